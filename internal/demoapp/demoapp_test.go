package demoapp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corehttpd/pkg/env"
)

func TestEndpointEchoesRequestIdentity(t *testing.T) {
	e := make(env.Env)
	e.SetString(env.KeyRequestMethod, "GET")
	e.SetString(env.KeyPathInfo, "/widgets")
	e.SetString(env.KeyRemoteAddr, "127.0.0.1")
	e.SetString(env.KeyAdapterName, "corehttpd-http")

	resp := Endpoint(e)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
	assert.Contains(t, string(resp.Body.Buffer), `"method":"GET"`)
	assert.Contains(t, string(resp.Body.Buffer), `"path":"/widgets"`)
}
