package httpwire

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"

	"corehttpd/pkg/env"
)

// MaxHeaderBlockBytes is the size at which a request line + header block
// that still has no terminating blank line is rejected with 414. Parse does
// not check the length of a block whose terminator is present.
const MaxHeaderBlockBytes = 4128

// ErrIncomplete signals that data does not yet contain a full header block
// (no "\r\n\r\n" found) and is under the size cap. Callers should read more
// bytes and retry.
var ErrIncomplete = errors.New("httpwire: incomplete request header block")

// ParseError reports one of the parser's fixed HTTP status outcomes (see
// spec §4.2's condition table). It is never wrapped by ErrIncomplete.
type ParseError struct {
	Status int
}

func (e *ParseError) Error() string {
	return errors.Newf("httpwire: parse error, status %d %s", e.Status, ReasonPhrase(e.Status)).Error()
}

func parseErr(status int) error { return &ParseError{Status: status} }

// Config parameterizes the parser with values that don't come off the wire:
// the allowed method set and the SERVER_NAME/SERVER_PORT to stamp onto every
// parsed environment.
type Config struct {
	AllowedMethods map[string]struct{}
	ServerName     string
	ServerPort     string
}

// DefaultAllowedMethods returns the default method allow-list from spec §6.
func DefaultAllowedMethods() map[string]struct{} {
	return map[string]struct{}{
		"OPTIONS": {}, "GET": {}, "POST": {}, "PUT": {}, "DELETE": {},
		"HEAD": {}, "TRACE": {}, "CONNECT": {},
	}
}

// Parse looks for a "\r\n\r\n"-terminated header block in data and, if
// found, parses it into a request environment. It returns the unconsumed
// remainder of data (the start of the request body, if any) alongside the
// environment. If no terminator is present and data is still under
// MaxHeaderBlockBytes, it returns ErrIncomplete so the caller can read more.
// If no terminator is present and data has reached the cap, it returns a
// ParseError with Status 414.
func Parse(data []byte, cfg Config) (env.Env, []byte, error) {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(data) >= MaxHeaderBlockBytes {
			return nil, nil, parseErr(414)
		}
		return nil, nil, ErrIncomplete
	}

	headerBlock := data[:idx]
	rest := data[idx+4:]
	lines := bytes.Split(headerBlock, []byte("\r\n"))

	tokens := strings.Split(string(lines[0]), " ")
	if len(tokens) != 3 {
		return nil, nil, parseErr(400)
	}
	method := strings.ToUpper(tokens[0])
	if _, ok := cfg.AllowedMethods[method]; !ok {
		return nil, nil, parseErr(501)
	}
	uri := tokens[1]
	proto := strings.ToUpper(tokens[2])
	if proto != "HTTP/1.1" {
		return nil, nil, parseErr(505)
	}

	headers := env.NewHeader()
	var lastKey string
	havePrev := false
	var discarded strings.Builder

	for _, raw := range lines[1:] {
		line := string(raw)
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			cont := strings.TrimLeft(line, " \t")
			if havePrev {
				headers.Set(lastKey, headers.Get(lastKey)+cont)
			} else {
				// Continuation of a nonexistent header: append to a
				// discarded placeholder per spec §9's resolved open
				// question, and keep parsing.
				discarded.WriteString(cont)
			}
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, nil, parseErr(400)
		}
		name := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " \t")
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		headers.Set(key, value)
		lastKey = key
		havePrev = true
	}

	if !headers.Has(env.KeyHTTPHost) {
		return nil, nil, parseErr(400)
	}

	e := make(env.Env)
	e.SetString(env.KeyRequestMethod, method)
	e.SetString(env.KeyRequestURI, uri)
	path, query := splitRequestTarget(uri)
	e.SetString(env.KeyPathInfo, path)
	e.SetString(env.KeyQueryString, query)
	e.SetString(env.KeyServerName, cfg.ServerName)
	e.SetString(env.KeyServerPort, cfg.ServerPort)
	e.SetString(env.KeyHTTPVersion, "HTTP/1.1")
	headers.Range(func(name, value string) {
		e.SetString(name, value)
	})

	return e, rest, nil
}

// splitRequestTarget splits a request-target into its path and raw query
// components at the first '?'. The query string is returned without the
// leading '?'; "" if absent.
func splitRequestTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}
