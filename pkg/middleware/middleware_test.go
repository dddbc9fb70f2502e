package middleware_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corehttpd/pkg/env"
	"corehttpd/pkg/middleware"
	"corehttpd/pkg/pipeline"
)

func TestRecoverConvertsPanicTo500(t *testing.T) {
	panicky := func(e env.Env) env.Response { panic("boom") }
	h, err := pipeline.New().Append(middleware.Recover(nil)).SetEndpoint(panicky).Build()
	require.NoError(t, err)

	resp := h(make(env.Env))
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "close", resp.Headers.Get("Connection"))
}

func TestRecoverPassesThroughNormalResponse(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Headers: env.NewHeader(), Body: env.BufferBody([]byte("ok"))}
	}
	h, err := pipeline.New().Append(middleware.Recover(nil)).SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	resp := h(make(env.Env))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "ok", string(resp.Body.Buffer))
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Headers: env.NewHeader()}
	}
	h, err := pipeline.New().Append(middleware.RateLimit(1, 1)).SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	e := make(env.Env)
	e.SetString(env.KeyRemoteAddr, "10.0.0.1")

	first := h(e)
	second := h(e)
	assert.Equal(t, 200, first.Status)
	assert.Equal(t, 429, second.Status)
}

func TestRateLimitTracksAddressesIndependently(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Headers: env.NewHeader()}
	}
	h, err := pipeline.New().Append(middleware.RateLimit(1, 1)).SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	a := make(env.Env)
	a.SetString(env.KeyRemoteAddr, "10.0.0.1")
	b := make(env.Env)
	b.SetString(env.KeyRemoteAddr, "10.0.0.2")

	assert.Equal(t, 200, h(a).Status)
	assert.Equal(t, 200, h(b).Status)
}

func TestRateLimitZeroDisablesLimiting(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 200, Headers: env.NewHeader()}
	}
	h, err := pipeline.New().Append(middleware.RateLimit(0, 0)).SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	e := make(env.Env)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 200, h(e).Status)
	}
}

func TestAccessLogPassesResponseThrough(t *testing.T) {
	endpoint := func(e env.Env) env.Response {
		return env.Response{Status: 201, Headers: env.NewHeader()}
	}
	h, err := pipeline.New().Append(middleware.AccessLog(nil)).SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	resp := h(make(env.Env))
	assert.Equal(t, 201, resp.Status)
}
