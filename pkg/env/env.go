// Package env implements the canonical per-request key/value environment
// that flows through the middleware pipeline, and the response triple that
// comes back out of it.
package env

import "io"

// Kind discriminates the value stored under a key.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBytes
	KindStream
	KindValues
)

// Value is a small tagged union: exactly one of its fields is meaningful,
// selected by Kind. Do not read a field whose Kind doesn't match.
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Bytes  []byte
	Stream io.ReadCloser
	Values *Values
}

func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func Bytes(b []byte) Value         { return Value{Kind: KindBytes, Bytes: b} }
func Stream(r io.ReadCloser) Value { return Value{Kind: KindStream, Stream: r} }
func ValuesOf(v *Values) Value     { return Value{Kind: KindValues, Values: v} }

// Env is the request environment: a mapping from string key to a
// heterogeneously-typed value. Per spec, required keys after a successful
// parse include REQUEST_METHOD, REQUEST_URI, PATH_INFO, QUERY_STRING,
// SERVER_NAME, SERVER_PORT, REMOTE_ADDR, HTTP_VERSION, HTTP_HOST, one
// HTTP_* entry per received header, and the adapter.* self-description
// keys set by the worker.
type Env map[string]Value

// Well-known keys.
const (
	KeyRequestMethod = "REQUEST_METHOD"
	KeyRequestURI    = "REQUEST_URI"
	KeyPathInfo      = "PATH_INFO"
	KeyQueryString   = "QUERY_STRING"
	KeyServerName    = "SERVER_NAME"
	KeyServerPort    = "SERVER_PORT"
	KeyRemoteAddr    = "REMOTE_ADDR"
	KeyRemotePort    = "REMOTE_PORT"
	KeyHTTPVersion   = "HTTP_VERSION"
	KeyHTTPHost      = "HTTP_HOST"
	KeyContentLength = "CONTENT_LENGTH"
	KeyContentType   = "CONTENT_TYPE"

	KeyAdapterVersion   = "adapter.version"
	KeyAdapterName      = "adapter.name"
	KeyAdapterURLScheme = "adapter.url_scheme"
	KeyAdapterGet       = "adapter.get"
	KeyAdapterPost      = "adapter.post"
	KeyAdapterInput     = "adapter.input"
)

// GetString returns the string value at key, or "" if absent or not a string.
func (e Env) GetString(key string) string {
	v, ok := e[key]
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// GetInt returns the integer value at key, or 0 if absent or not an integer.
func (e Env) GetInt(key string) int64 {
	v, ok := e[key]
	if !ok || v.Kind != KindInt {
		return 0
	}
	return v.Int
}

// GetStream returns the stream at key, or nil if absent or not a stream.
func (e Env) GetStream(key string) io.ReadCloser {
	v, ok := e[key]
	if !ok || v.Kind != KindStream {
		return nil
	}
	return v.Stream
}

// GetValues returns the ordered multi-value map at key, or nil if absent or
// not of kind KindValues.
func (e Env) GetValues(key string) *Values {
	v, ok := e[key]
	if !ok || v.Kind != KindValues {
		return nil
	}
	return v.Values
}

// SetString, SetInt, SetBytes, SetStream, SetValues store a typed value
// under key.
func (e Env) SetString(key, val string)               { e[key] = String(val) }
func (e Env) SetInt(key string, val int64)             { e[key] = Int(val) }
func (e Env) SetBytes(key string, val []byte)          { e[key] = Bytes(val) }
func (e Env) SetStream(key string, val io.ReadCloser)  { e[key] = Stream(val) }
func (e Env) SetValues(key string, val *Values)        { e[key] = ValuesOf(val) }

// Values is an ordered multi-value map used for adapter.get / adapter.post,
// so iteration order matches insertion order. Headers use Header instead.
type Values struct {
	keys []string
	vals map[string][]string
}

// NewValues returns an empty ordered multi-value map.
func NewValues() *Values {
	return &Values{vals: make(map[string][]string)}
}

// Add appends value under key, remembering first-seen key order.
func (v *Values) Add(key, value string) {
	if _, ok := v.vals[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = append(v.vals[key], value)
}

// Set replaces all values under key with a single value, preserving the
// key's original position if it already existed.
func (v *Values) Set(key, value string) {
	if _, ok := v.vals[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = []string{value}
}

// Get returns the first value under key, or "".
func (v *Values) Get(key string) string {
	vs := v.vals[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// List returns all values under key in insertion order.
func (v *Values) List(key string) []string { return v.vals[key] }

// Has reports whether key has at least one value.
func (v *Values) Has(key string) bool { return len(v.vals[key]) > 0 }

// Keys returns keys in first-insertion order.
func (v *Values) Keys() []string { return v.keys }

// Header is an ordered header mapping: header name (case preserved) to a
// single value, iterated in insertion order. Response headers and the
// request's raw wire headers both use this shape.
type Header struct {
	order []string
	m     map[string]string
}

// NewHeader returns an empty ordered header map.
func NewHeader() *Header {
	return &Header{m: make(map[string]string)}
}

// Set stores value under name, appending name to the iteration order the
// first time it is seen and overwriting on subsequent calls.
func (h *Header) Set(name, value string) {
	if _, ok := h.m[name]; !ok {
		h.order = append(h.order, name)
	}
	h.m[name] = value
}

// Get returns the value stored under name, or "" if absent. Lookup is
// case-sensitive; callers that need case-insensitive lookup should
// normalize names before calling Set/Get.
func (h *Header) Get(name string) string { return h.m[name] }

// Has reports whether name has been set.
func (h *Header) Has(name string) bool {
	_, ok := h.m[name]
	return ok
}

// Range calls fn for each name/value pair in insertion order.
func (h *Header) Range(fn func(name, value string)) {
	for _, name := range h.order {
		fn(name, h.m[name])
	}
}

// Len returns the number of distinct header names.
func (h *Header) Len() int { return len(h.order) }

// Body is either a finite in-memory buffer or a readable stream. Exactly
// one of Buffer or Stream is set.
type Body struct {
	Buffer []byte
	Stream io.ReadCloser
}

// IsStream reports whether the body is stream-backed.
func (b Body) IsStream() bool { return b.Stream != nil }

// BufferBody wraps a finite byte slice as a Body.
func BufferBody(b []byte) Body { return Body{Buffer: b} }

// StreamBody wraps a readable stream as a Body.
func StreamBody(r io.ReadCloser) Body { return Body{Stream: r} }

// Response is the triple a pipeline invocation returns: status code,
// ordered headers, and body.
type Response struct {
	Status  int
	Headers *Header
	Body    Body
}

// IsZero reports whether r is the empty response triple (status 0, no
// headers, no body) — the "non-empty response" the HTTP socket worker
// checks for before writing.
func (r Response) IsZero() bool {
	return r.Status == 0 && (r.Headers == nil || r.Headers.Len() == 0) && r.Body.Buffer == nil && r.Body.Stream == nil
}
