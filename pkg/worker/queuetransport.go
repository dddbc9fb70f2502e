package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"corehttpd/pkg/adaptererr"
)

// StreamTransport implements QueueTransport over any full-duplex byte
// stream (a TCP or Unix-domain connection to an upstream proxy). Frames are
// not delimited by a terminator byte; each Pull incrementally parses one
// frame's length-prefixed grammar off the stream.
type StreamTransport struct {
	r    *bufio.Reader
	w    io.Writer
	conn io.Closer
}

// NewStreamTransport wraps rw as a QueueTransport.
func NewStreamTransport(rw io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{r: bufio.NewReaderSize(rw, 64*1024), w: rw, conn: rw}
}

// Pull blocks until one full inbound frame has been read off the stream.
func (t *StreamTransport) Pull(ctx context.Context) ([]byte, error) {
	return t.readFrame()
}

// Publish writes frame directly to the stream.
func (t *StreamTransport) Publish(ctx context.Context, frame []byte) error {
	_, err := t.w.Write(frame)
	return err
}

// Close closes the underlying connection.
func (t *StreamTransport) Close() error { return t.conn.Close() }

func (t *StreamTransport) readFrame() ([]byte, error) {
	var buf bytes.Buffer

	for _, label := range [3]string{"uuid", "conn_id", "path"} {
		tok, err := t.r.ReadString(' ')
		if err != nil {
			return nil, err
		}
		buf.WriteString(tok)
		_ = label
	}

	if err := t.readLengthPrefixedField(&buf); err != nil {
		return nil, err
	}
	if err := t.readLengthPrefixedField(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readLengthPrefixedField reads one "<len>:<bytes>," segment (used for both
// the headers-json and body segments of an inbound frame) and appends its
// raw bytes to buf.
func (t *StreamTransport) readLengthPrefixedField(buf *bytes.Buffer) error {
	lenTok, err := t.r.ReadString(':')
	if err != nil {
		return err
	}
	buf.WriteString(lenTok)
	n, err := strconv.Atoi(strings.TrimSuffix(lenTok, ":"))
	if err != nil || n < 0 {
		return adaptererr.Frame("invalid length prefix on stream")
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(t.r, payload); err != nil {
		return err
	}
	buf.Write(payload)

	comma, err := t.r.ReadByte()
	if err != nil {
		return err
	}
	buf.WriteByte(comma)
	if comma != ',' {
		return adaptererr.Frame("missing comma separator on stream")
	}
	return nil
}
