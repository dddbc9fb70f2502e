package pipeline_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corehttpd/pkg/env"
	"corehttpd/pkg/pipeline"
)

func strEnv(s string) env.Env {
	e := make(env.Env)
	e.SetString("X-TEST", s)
	return e
}

func wrapMW(before, after string) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(e env.Env) env.Response {
			e.SetString("X-TEST", before+e.GetString("X-TEST"))
			resp := next(e)
			resp.Body.Buffer = append(resp.Body.Buffer, after...)
			return resp
		}
	}
}

func TestEmptyPipelineReturnsEndpointDirectly(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		require.Equal(t, "X", e.GetString("X-TEST"))
		return env.Response{Status: 200, Body: env.BufferBody([]byte("R"))}
	}
	b := pipeline.New().SetEndpoint(endpoint)
	h, err := b.Build()
	require.NoError(t, err)
	resp := h(strEnv("X"))
	assert.Equal(t, "R", string(resp.Body.Buffer))
}

func TestOnionOrderAppendOnly(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Body: env.BufferBody([]byte(e.GetString("X-TEST") + "HANDLED"))}
	}
	b := pipeline.NewFromList([]pipeline.Middleware{wrapMW("1", "1"), wrapMW("2", "2")}, endpoint)
	h, err := b.Build()
	require.NoError(t, err)
	resp := h(strEnv("TESTDATA"))
	assert.Equal(t, "21TESTDATAHANDLED21", string(resp.Body.Buffer))
}

func TestPrependInsertsOutermostLayer(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Body: env.BufferBody([]byte(e.GetString("X-TEST") + "HANDLED"))}
	}
	b := pipeline.New().Append(wrapMW("1", "1")).SetEndpoint(endpoint)
	b.Prepend(wrapMW("2", "2"))
	h, err := b.Build()
	require.NoError(t, err)
	resp := h(strEnv("TESTDATA"))
	assert.Equal(t, "12TESTDATAHANDLED12", string(resp.Body.Buffer))
}

func TestNoEndpointFails(t *testing.T) {
	b := pipeline.New()
	_, err := b.Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrNoEndpoint))
}

func TestHandlerPanicsWithoutEndpoint(t *testing.T) {
	b := pipeline.New()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, pipeline.ErrNoEndpoint))
	}()
	b.Handler()(strEnv("X"))
}

func TestAppendNilPanicsInvalidArgument(t *testing.T) {
	b := pipeline.New()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, pipeline.ErrInvalidArgument))
	}()
	b.Append(nil)
}

func TestBuildIsCachedUntilMutated(t *testing.T) {
	calls := 0
	endpoint := func(e env.Env) env.Response {
		calls++
		return env.Response{Status: 200}
	}
	b := pipeline.New().SetEndpoint(endpoint)
	h1, err := b.Build()
	require.NoError(t, err)
	h2, err := b.Build()
	require.NoError(t, err)
	h1(strEnv(""))
	h2(strEnv(""))
	assert.Equal(t, 2, calls)

	b.Append(wrapMW("x", "x"))
	h3, err := b.Build()
	require.NoError(t, err)
	assert.NotNil(t, h3)
}
