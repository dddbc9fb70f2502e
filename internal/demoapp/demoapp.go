// Package demoapp is the default endpoint cmd/corehttpd runs when no
// application plugin is configured: a minimal handler that echoes request
// identity back as JSON, useful for smoke-testing a fresh deployment.
package demoapp

import (
	"fmt"
	"strings"

	"corehttpd/pkg/env"
)

// Endpoint returns a pipeline.Handler-compatible endpoint.
func Endpoint(e env.Env) env.Response {
	h := env.NewHeader()
	h.Set("Content-Type", "application/json")

	var body strings.Builder
	body.WriteString("{")
	fmt.Fprintf(&body, `"method":%q,`, e.GetString(env.KeyRequestMethod))
	fmt.Fprintf(&body, `"path":%q,`, e.GetString(env.KeyPathInfo))
	fmt.Fprintf(&body, `"query":%q,`, e.GetString(env.KeyQueryString))
	fmt.Fprintf(&body, `"remote_addr":%q,`, e.GetString(env.KeyRemoteAddr))
	fmt.Fprintf(&body, `"adapter":%q`, e.GetString(env.KeyAdapterName))
	body.WriteString("}")

	return env.Response{
		Status:  200,
		Headers: h,
		Body:    env.BufferBody([]byte(body.String())),
	}
}
