// Package worker implements the two transport-specific request-serving
// loops: HTTPWorker speaks raw HTTP/1.1 over a TCP listener, QueueWorker
// speaks a framed protocol over a pair of message-queue sockets. Both
// decode a request into a pkg/env.Env, invoke a pkg/pipeline.Handler, and
// write the response back to their transport.
package worker

import (
	"io"
	"log/slog"
	"net"

	"corehttpd/pkg/adaptererr"
	"corehttpd/pkg/env"
	"corehttpd/pkg/httpwire"
	"corehttpd/pkg/pipeline"
)

// State is one of the HTTP worker's lifecycle states.
type State int

const (
	StateInitializing State = iota
	StateListening
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateListening:
		return "Listening"
	case StateServing:
		return "Serving"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Heartbeat is written to immediately before each request is handled. A
// supervisor-owned worker gets one backed by shared memory
// (pkg/supervisor); a standalone worker can pass a no-op.
type Heartbeat interface {
	Beat()
}

type noopHeartbeat struct{}

func (noopHeartbeat) Beat() {}

// NoopHeartbeat is a Heartbeat that does nothing, for standalone workers.
var NoopHeartbeat Heartbeat = noopHeartbeat{}

// HTTPConfig parameterizes an HTTPWorker.
type HTTPConfig struct {
	// Addr is used to bind a listener when Listener is nil.
	Addr string
	// Listener, when non-nil, is used directly (the supervisor's
	// pre-forked, inherited socket). Takes precedence over Addr.
	Listener       net.Listener
	ServerName     string
	ServerPort     string
	AllowedMethods map[string]struct{}
	AdapterVersion string
	Heartbeat      Heartbeat
	Logger         *slog.Logger
}

// HTTPWorker accepts one connection at a time, decodes exactly one request
// from it, dispatches it through a pipeline, writes the response, and
// closes the connection. It never serves more than one request per
// connection (no keep-alive, no pipelining — spec §1 Non-goals).
type HTTPWorker struct {
	cfg   HTTPConfig
	ln    net.Listener
	state State
	stop  chan struct{}
}

// NewHTTPWorker validates cfg and returns a worker in state Initializing.
func NewHTTPWorker(cfg HTTPConfig) *HTTPWorker {
	if cfg.Heartbeat == nil {
		cfg.Heartbeat = NoopHeartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AllowedMethods == nil {
		cfg.AllowedMethods = httpwire.DefaultAllowedMethods()
	}
	return &HTTPWorker{cfg: cfg, state: StateInitializing, stop: make(chan struct{})}
}

// State returns the worker's current lifecycle state.
func (w *HTTPWorker) State() State { return w.state }

// Stop requests a graceful shutdown: the worker finishes any in-flight
// accept, stops accepting new connections, and Run returns nil.
func (w *HTTPWorker) Stop() {
	w.state = StateShuttingDown
	close(w.stop)
}

// Run binds (if needed) and serves until Stop is called or an unrecoverable
// transport error occurs. handler is the built pipeline handler; the
// worker's job is entirely transport decode/encode around it.
func (w *HTTPWorker) Run(handler pipeline.Handler) error {
	if w.cfg.Listener != nil {
		w.ln = w.cfg.Listener
	} else {
		ln, err := net.Listen("tcp", w.cfg.Addr)
		if err != nil {
			return adaptererr.SocketUnavailable(w.cfg.Addr, err, err.Error())
		}
		w.ln = ln
	}
	defer w.ln.Close()
	w.state = StateListening

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)

	for {
		go func() {
			conn, err := w.ln.Accept()
			accepted <- acceptResult{conn, err}
		}()

		select {
		case <-w.stop:
			return nil
		case res := <-accepted:
			if res.err != nil {
				select {
				case <-w.stop:
					return nil
				default:
				}
				return adaptererr.Application(res.err)
			}
			w.state = StateServing
			w.cfg.Heartbeat.Beat()
			w.serveOne(res.conn, handler)
			w.state = StateListening
		}
	}
}

// serveOne handles exactly one request on conn, then closes it.
func (w *HTTPWorker) serveOne(conn net.Conn, handler pipeline.Handler) {
	defer conn.Close()

	buf := make([]byte, 0, httpwire.MaxHeaderBlockBytes)
	chunk := make([]byte, 4096)

	var e env.Env
	var rest []byte
	var parseErr error

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			e, rest, parseErr = httpwire.Parse(buf, httpwire.Config{
				AllowedMethods: w.cfg.AllowedMethods,
				ServerName:     w.cfg.ServerName,
				ServerPort:     w.cfg.ServerPort,
			})
			if parseErr != httpwire.ErrIncomplete {
				break
			}
		}
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				// Peer closed mid-header: treat as a bad request rather
				// than looping forever.
				parseErr = &httpwire.ParseError{Status: 400}
			} else if err == io.EOF {
				return
			} else {
				w.cfg.Logger.Warn("http worker: read failed", "error", err)
				return
			}
			break
		}
	}

	if parseErr != nil {
		writeParseError(conn, parseErr)
		return
	}

	e.SetString(env.KeyAdapterVersion, w.cfg.AdapterVersion)
	e.SetString(env.KeyAdapterName, "corehttpd-http")
	e.SetString(env.KeyAdapterURLScheme, "http")
	if host, port, splitErr := net.SplitHostPort(conn.RemoteAddr().String()); splitErr == nil {
		e.SetString(env.KeyRemoteAddr, host)
		e.SetString(env.KeyRemotePort, port)
	} else {
		e.SetString(env.KeyRemoteAddr, conn.RemoteAddr().String())
	}

	body := io.MultiReader(newBytesReader(rest), conn)
	e.SetStream(env.KeyAdapterInput, io.NopCloser(body))
	if err := httpwire.Normalize(e, body); err != nil {
		w.cfg.Logger.Warn("http worker: normalize failed", "error", err)
	}

	resp := invoke(handler, e, w.cfg.Logger)
	if resp.IsZero() {
		return
	}
	if err := httpwire.WriteResponse(conn, resp, 0); err != nil {
		w.cfg.Logger.Warn("http worker: write response failed", "error", err)
	}
}

// invoke calls handler, recovering a panic into a 500 response and logging
// it. The panic is not re-raised and is not wrapped as an ApplicationError:
// the worker writes the 500, closes the connection, and keeps serving; it
// does not exit.
func invoke(handler pipeline.Handler, e env.Env, logger *slog.Logger) env.Response {
	var resp env.Response
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("http worker: handler panicked", "panic", r)
				resp = env.Response{
					Status:  500,
					Headers: env.NewHeader(),
					Body:    env.BufferBody([]byte(httpwire.ReasonPhrase(500))),
				}
			}
		}()
		resp = handler(e)
	}()
	return resp
}

func writeParseError(w io.Writer, err error) {
	status := 400
	if pe, ok := err.(*httpwire.ParseError); ok {
		status = pe.Status
	}
	h := env.NewHeader()
	h.Set("Connection", "close")
	body := httpwire.ReasonPhrase(status)
	resp := env.Response{Status: status, Headers: h, Body: env.BufferBody([]byte(body))}
	_ = httpwire.WriteResponse(w, resp, 0)
}

type bytesReader struct {
	b []byte
	i int
}

func newBytesReader(b []byte) *bytesReader { return &bytesReader{b: b} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
