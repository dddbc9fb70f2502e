package httpwire

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"corehttpd/pkg/env"
)

const formURLEncoded = "application/x-www-form-urlencoded"

// Normalize applies the post-parse steps spec §4.2 assigns to the worker:
// promoting HTTP_CONTENT_LENGTH/HTTP_CONTENT_TYPE to their untagged keys,
// decoding QUERY_STRING into adapter.get, and — when the content type is
// form-urlencoded — reading up to CONTENT_LENGTH bytes of body and decoding
// them into adapter.post. body may be nil if no body was sent.
func Normalize(e env.Env, body io.Reader) error {
	if v, ok := e["HTTP_CONTENT_LENGTH"]; ok {
		delete(e, "HTTP_CONTENT_LENGTH")
		if n, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
			e.SetInt(env.KeyContentLength, n)
		}
	}
	if v, ok := e["HTTP_CONTENT_TYPE"]; ok {
		delete(e, "HTTP_CONTENT_TYPE")
		e.SetString(env.KeyContentType, v.Str)
	}

	if qs := e.GetString(env.KeyQueryString); qs != "" {
		e.SetValues(env.KeyAdapterGet, parseFormPairs(qs))
	}

	ct := e.GetString(env.KeyContentType)
	if body == nil || !strings.HasPrefix(strings.ToLower(ct), formURLEncoded) {
		return nil
	}
	n := e.GetInt(env.KeyContentLength)
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(body, buf); err != nil {
		return err
	}
	e.SetValues(env.KeyAdapterPost, parseFormPairs(string(buf)))
	return nil
}

// parseFormPairs decodes a "k=v&k=v" percent-encoded body into an ordered
// multi-value map, preserving first-seen key order and duplicate values.
func parseFormPairs(raw string) *env.Values {
	vals := env.NewValues()
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			k, v = pair[:i], pair[i+1:]
		}
		dk, err := url.QueryUnescape(k)
		if err != nil {
			dk = k
		}
		dv, err := url.QueryUnescape(v)
		if err != nil {
			dv = v
		}
		vals.Add(dk, dv)
	}
	return vals
}
