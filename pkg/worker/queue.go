package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	sockaddr "github.com/hashicorp/go-sockaddr"
	uuidlib "github.com/hashicorp/go-uuid"
	"github.com/mitchellh/mapstructure"
	glob "github.com/ryanuber/go-glob"

	"corehttpd/pkg/adaptererr"
	"corehttpd/pkg/env"
	"corehttpd/pkg/httpwire"
	"corehttpd/pkg/pipeline"
)

// QueueTransport is the pair of sockets a QueueWorker speaks over: an
// inbound pull and an outbound publish. The underlying queue library is an
// external collaborator (spec §1); a worker owns exactly one transport and
// never shares it with siblings (spec §4.6 forbids inheriting queue
// sockets across a fork).
type QueueTransport interface {
	Pull(ctx context.Context) ([]byte, error)
	Publish(ctx context.Context, frame []byte) error
	Close() error
}

// controlPathPattern is the glob spec §4.5 names for control-path frames
// that are accepted and silently discarded.
const controlPathPattern = "@*"

// identityMethod is the METHOD value that marks an identity-method frame,
// also silently discarded.
const identityMethod = "JSON"

// QueueConfig parameterizes a QueueWorker.
type QueueConfig struct {
	Transport      QueueTransport
	ServerName     string
	ServerPort     string
	AdapterVersion string
	Logger         *slog.Logger
}

// QueueWorker is the message-queue transport variant of the request-serving
// loop. It never enables heartbeat monitoring: its blocking receive cannot
// be polled cheaply (spec §4.6).
type QueueWorker struct {
	cfg  QueueConfig
	stop chan struct{}
}

// NewQueueWorker returns a worker in its initial state.
func NewQueueWorker(cfg QueueConfig) *QueueWorker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &QueueWorker{cfg: cfg, stop: make(chan struct{})}
}

// Stop requests that Run return after its current pull completes.
func (w *QueueWorker) Stop() { close(w.stop) }

// Run pulls frames until Stop is called, dispatching each through handler.
func (w *QueueWorker) Run(ctx context.Context, handler pipeline.Handler) error {
	defer w.cfg.Transport.Close()
	for {
		select {
		case <-w.stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		raw, err := w.cfg.Transport.Pull(ctx)
		if err != nil {
			select {
			case <-w.stop:
				return nil
			default:
			}
			return adaptererr.Application(err)
		}
		w.handleFrame(ctx, raw, handler)
	}
}

func (w *QueueWorker) handleFrame(ctx context.Context, raw []byte, handler pipeline.Handler) {
	frameID, connID, path, headers, body, err := parseInboundFrame(raw)
	if err != nil {
		w.cfg.Logger.Warn("queue worker: dropping malformed frame", "error", err)
		return
	}

	if glob.Glob(controlPathPattern, path) {
		w.cfg.Logger.Debug("queue worker: discarding control-path frame", "path", path)
		return
	}

	e, discard, buildErr := w.buildEnv(headers, path, body)
	if buildErr != nil {
		w.cfg.Logger.Warn("queue worker: dropping frame with unparseable headers", "error", buildErr)
		return
	}
	if discard {
		w.cfg.Logger.Debug("queue worker: discarding identity-method frame")
		return
	}

	if frameID == "" {
		if generated, genErr := uuidlib.GenerateUUID(); genErr == nil {
			frameID = generated
		}
	}

	resp := invoke(handler, e, w.cfg.Logger)
	if resp.IsZero() {
		return
	}
	if err := w.publishResponse(ctx, frameID, connID, resp); err != nil {
		w.cfg.Logger.Warn("queue worker: publish failed", "error", err)
	}
}

// frameHeaders is the recognized subset of the inbound frame's headers-json
// object (spec §6); everything else lands in Remain and becomes an HTTP_*
// environment entry.
type frameHeaders struct {
	Method        string                 `mapstructure:"METHOD"`
	Path          string                 `mapstructure:"PATH"`
	URI           string                 `mapstructure:"URI"`
	Pattern       string                 `mapstructure:"PATTERN"`
	Query         string                 `mapstructure:"QUERY"`
	XForwardedFor string                 `mapstructure:"x-forwarded-for"`
	Remain        map[string]interface{} `mapstructure:",remain"`
}

// buildEnv decodes the frame's headers object into an environment. discard
// reports an identity-method frame that should be silently dropped per spec
// §4.5.
func (w *QueueWorker) buildEnv(raw map[string]interface{}, framePath string, body []byte) (e env.Env, discard bool, err error) {
	var fh frameHeaders
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &fh, WeaklyTypedInput: true})
	if err != nil {
		return nil, false, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false, err
	}

	method := strings.ToUpper(fh.Method)
	if method == identityMethod {
		return nil, true, nil
	}

	path := fh.Path
	if path == "" {
		path = framePath
	}
	scriptName := fh.Pattern
	if scriptName == "/" {
		scriptName = ""
	}
	tail := ""
	if len(fh.Pattern) <= len(path) {
		tail = path[len(fh.Pattern):]
	}
	pathInfo := "/" + strings.Trim(tail, "/")

	e = make(env.Env)
	e.SetString(env.KeyRequestMethod, method)
	e.SetString(env.KeyRequestURI, fh.URI)
	e.SetString(env.KeyPathInfo, pathInfo)
	e.SetString("SCRIPT_NAME", scriptName)
	e.SetString(env.KeyQueryString, fh.Query)
	e.SetString(env.KeyServerName, w.cfg.ServerName)
	e.SetString(env.KeyServerPort, w.cfg.ServerPort)
	e.SetString(env.KeyHTTPVersion, "HTTP/1.1")
	e.SetString(env.KeyAdapterVersion, w.cfg.AdapterVersion)
	e.SetString(env.KeyAdapterName, "corehttpd-queue")
	e.SetString(env.KeyAdapterURLScheme, "http")

	if fh.XForwardedFor != "" {
		e.SetString("HTTP_X_FORWARDED_FOR", fh.XForwardedFor)
		if remote := firstForwardedAddr(fh.XForwardedFor); remote != "" {
			e.SetString(env.KeyRemoteAddr, remote)
		}
	}

	for k, v := range fh.Remain {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		e.SetString(key, fmt.Sprintf("%v", v))
	}

	e.SetStream(env.KeyAdapterInput, io.NopCloser(bytes.NewReader(body)))
	if err := httpwire.Normalize(e, bytes.NewReader(body)); err != nil {
		w.cfg.Logger.Warn("queue worker: normalize failed", "error", err)
	}
	return e, false, nil
}

// firstForwardedAddr returns the left-most address in a comma-separated
// X-Forwarded-For value, stripped of any port. The result is validated as a
// real IP via go-sockaddr; a value that doesn't parse as one is discarded
// rather than trusted as REMOTE_ADDR.
func firstForwardedAddr(header string) string {
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	host := first
	if h, _, err := splitHostMaybePort(first); err == nil {
		host = h
	}
	if _, err := sockaddr.NewIPAddr(host); err != nil {
		return ""
	}
	return host
}

func splitHostMaybePort(s string) (string, string, error) {
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s, "]") {
		return s[:i], s[i+1:], nil
	}
	return s, "", nil
}

// parseInboundFrame decodes the wire grammar
//
//	<uuid> <conn_id> <path> <hlen>:<headers-json>,<blen>:<body>,
//
// A missing comma separator after either length-prefixed payload aborts the
// frame per spec §9's resolved open question.
func parseInboundFrame(data []byte) (id, connID, path string, headers map[string]interface{}, body []byte, err error) {
	fields := bytes.SplitN(data, []byte(" "), 4)
	if len(fields) != 4 {
		return "", "", "", nil, nil, adaptererr.Frame("expected uuid, conn_id, path, and payload fields")
	}
	id = string(fields[0])
	connID = string(fields[1])
	path = string(fields[2])
	payload := fields[3]

	hlen, rest, err := readLengthPrefix(payload)
	if err != nil {
		return "", "", "", nil, nil, err
	}
	if len(rest) < hlen+1 {
		return "", "", "", nil, nil, adaptererr.Frame("truncated header payload")
	}
	headersJSON := rest[:hlen]
	if rest[hlen] != ',' {
		return "", "", "", nil, nil, adaptererr.Frame("missing comma after header payload")
	}
	rest = rest[hlen+1:]

	blen, rest2, err := readLengthPrefix(rest)
	if err != nil {
		return "", "", "", nil, nil, err
	}
	if len(rest2) < blen+1 {
		return "", "", "", nil, nil, adaptererr.Frame("truncated body payload")
	}
	bodyBytes := rest2[:blen]
	if rest2[blen] != ',' {
		return "", "", "", nil, nil, adaptererr.Frame("missing comma after body payload")
	}

	var hdrs map[string]interface{}
	if err := json.Unmarshal(headersJSON, &hdrs); err != nil {
		return "", "", "", nil, nil, adaptererr.Frame("invalid headers json: " + err.Error())
	}
	return id, connID, path, hdrs, bodyBytes, nil
}

// readLengthPrefix reads a decimal length prefix up to its terminating
// colon and returns the length and the remainder of b after the colon.
func readLengthPrefix(b []byte) (int, []byte, error) {
	i := bytes.IndexByte(b, ':')
	if i < 0 {
		return 0, nil, adaptererr.Frame("missing length-prefix colon")
	}
	n, err := strconv.Atoi(string(b[:i]))
	if err != nil || n < 0 {
		return 0, nil, adaptererr.Frame("invalid length prefix")
	}
	return n, b[i+1:], nil
}

// publishResponse encodes resp as one or more outbound frames
//
//	<uuid> <conn_id_len>:<conn_id>, <raw-http-response>
//
// Buffered bodies are sent as a single frame. Stream bodies are sent as a
// head frame followed by one frame per chunk, per spec §4.5's "streaming
// response bodies use chunked transfer encoding emitted as successive
// published frames".
func (w *QueueWorker) publishResponse(ctx context.Context, id, connID string, resp env.Response) error {
	if !resp.Body.IsStream() {
		var buf bytes.Buffer
		if err := httpwire.WriteResponse(&buf, resp, 0); err != nil {
			return err
		}
		return w.publishFrame(ctx, id, connID, buf.Bytes())
	}

	headers := resp.Headers
	if headers == nil {
		headers = env.NewHeader()
	}
	if !headers.Has("Content-Length") && !headers.Has("Transfer-Encoding") {
		headers.Set("Transfer-Encoding", "chunked")
	}
	var head bytes.Buffer
	fmt.Fprintf(&head, "HTTP/1.1 %d %s\r\n", resp.Status, httpwire.ReasonPhrase(resp.Status))
	headers.Range(func(name, value string) {
		fmt.Fprintf(&head, "%s: %s\r\n", name, value)
	})
	head.WriteString("\r\n")
	if err := w.publishFrame(ctx, id, connID, head.Bytes()); err != nil {
		return err
	}

	defer resp.Body.Stream.Close()
	chunk := make([]byte, httpwire.DefaultChunkSize)
	for {
		n, err := resp.Body.Stream.Read(chunk)
		if n > 0 {
			var f bytes.Buffer
			fmt.Fprintf(&f, "%x\r\n", n)
			f.Write(chunk[:n])
			f.WriteString("\r\n")
			if perr := w.publishFrame(ctx, id, connID, f.Bytes()); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return w.publishFrame(ctx, id, connID, []byte("0\r\n\r\n"))
		}
		if err != nil {
			return err
		}
	}
}

func (w *QueueWorker) publishFrame(ctx context.Context, id, connID string, payload []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d:%s, ", id, len(connID), connID)
	buf.Write(payload)
	return w.cfg.Transport.Publish(ctx, buf.Bytes())
}
