package httpwire_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corehttpd/pkg/env"
	"corehttpd/pkg/httpwire"
)

func testCfg() httpwire.Config {
	return httpwire.Config{
		AllowedMethods: httpwire.DefaultAllowedMethods(),
		ServerName:     "localhost",
		ServerPort:     "8080",
	}
}

func TestParseValidRequest(t *testing.T) {
	raw := "GET /foo?a=1&a=2 HTTP/1.1\r\nHost: example.com\r\nX-Custom: hi\r\n\r\nbody-follows"
	e, rest, err := httpwire.Parse([]byte(raw), testCfg())
	require.NoError(t, err)
	assert.Equal(t, "GET", e.GetString(env.KeyRequestMethod))
	assert.Equal(t, "/foo?a=1&a=2", e.GetString(env.KeyRequestURI))
	assert.Equal(t, "/foo", e.GetString(env.KeyPathInfo))
	assert.Equal(t, "a=1&a=2", e.GetString(env.KeyQueryString))
	assert.Equal(t, "example.com", e.GetString(env.KeyHTTPHost))
	assert.Equal(t, "hi", e.GetString("HTTP_X_CUSTOM"))
	assert.Equal(t, "HTTP/1.1", e.GetString(env.KeyHTTPVersion))
	assert.Equal(t, "localhost", e.GetString(env.KeyServerName))
	assert.Equal(t, "body-follows", string(rest))
}

func TestParseIncompleteReturnsErrIncomplete(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("GET / HTTP/1.1\r\nHost: x\r\n"), testCfg())
	assert.ErrorIs(t, err, httpwire.ErrIncomplete)
}

func TestParseOversizeWithoutTerminatorReturns414(t *testing.T) {
	raw := strings.Repeat("A", httpwire.MaxHeaderBlockBytes+72)
	_, _, err := httpwire.Parse([]byte(raw), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 414, pe.Status)
}

func TestParseWrongTokenCountReturns400(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("GET /\r\nHost: x\r\n\r\n"), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 400, pe.Status)
}

func TestParseUnknownMethodReturns501(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("FROB / HTTP/1.1\r\nHost: x\r\n\r\n"), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 501, pe.Status)
}

func TestParseWrongProtocolReturns505(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 505, pe.Status)
	assert.Equal(t, "HTTP Version Not Supported", httpwire.ReasonPhrase(pe.Status))
}

func TestParseHeaderWithoutColonReturns400(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("GET / HTTP/1.1\r\nHost x\r\n\r\n"), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 400, pe.Status)
}

func TestParseMissingHostReturns400(t *testing.T) {
	_, _, err := httpwire.Parse([]byte("GET / HTTP/1.1\r\nX-Foo: bar\r\n\r\n"), testCfg())
	pe, ok := err.(*httpwire.ParseError)
	require.True(t, ok)
	assert.Equal(t, 400, pe.Status)
}

func TestParseContinuationLineAppendsToPreviousHeader(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Multi: one\r\n two\r\n\r\n"
	e, _, err := httpwire.Parse([]byte(raw), testCfg())
	require.NoError(t, err)
	assert.Equal(t, "onetwo", e.GetString("HTTP_X_MULTI"))
}

func TestParseLeadingContinuationIsDiscardedButParsingContinues(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n orphan\r\nHost: x\r\n\r\n"
	e, _, err := httpwire.Parse([]byte(raw), testCfg())
	require.NoError(t, err)
	assert.Equal(t, "x", e.GetString(env.KeyHTTPHost))
}

func TestParseMethodIsCaseInsensitiveNormalizedUppercase(t *testing.T) {
	raw := "get / HTTP/1.1\r\nHost: x\r\n\r\n"
	e, _, err := httpwire.Parse([]byte(raw), testCfg())
	require.NoError(t, err)
	assert.Equal(t, "GET", e.GetString(env.KeyRequestMethod))
}
