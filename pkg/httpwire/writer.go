package httpwire

import (
	"fmt"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"corehttpd/pkg/env"
)

// DefaultChunkSize is the read size used to pump a stream body into chunked
// transfer-encoding frames when no explicit size is requested.
const DefaultChunkSize = 32 * 1024

// WriteResponse serializes resp to w: status line, headers in iteration
// order, a blank line, then the body. If resp.Body is a finite buffer, is
// non-empty, and neither Content-Length nor Transfer-Encoding is already
// set, WriteResponse adds Content-Length. If resp.Body is a stream under the
// same condition, it adds Transfer-Encoding: chunked and frames the body in
// chunkSize-sized reads. A chunkSize <= 0 uses DefaultChunkSize. The body
// stream, if any, is closed after the last byte is written.
func WriteResponse(w io.Writer, resp env.Response, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	headers := resp.Headers
	if headers == nil {
		headers = env.NewHeader()
	}

	chunked := false
	if !headers.Has("Content-Length") && !headers.Has("Transfer-Encoding") {
		switch {
		case resp.Body.IsStream():
			headers.Set("Transfer-Encoding", "chunked")
			chunked = true
		case len(resp.Body.Buffer) > 0:
			headers.Set("Content-Length", strconv.Itoa(len(resp.Body.Buffer)))
		}
	} else if headers.Get("Transfer-Encoding") == "chunked" {
		chunked = true
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", resp.Status, ReasonPhrase(resp.Status))
	headers.Range(func(name, value string) {
		fmt.Fprintf(buf, "%s: %s\r\n", name, value)
	})
	buf.WriteString("\r\n")

	if _, err := w.Write(buf.B); err != nil {
		return err
	}

	if resp.Body.IsStream() {
		defer resp.Body.Stream.Close()
		if chunked {
			return writeChunked(w, resp.Body.Stream, chunkSize)
		}
		return copyPlain(w, resp.Body.Stream, chunkSize)
	}

	if len(resp.Body.Buffer) > 0 {
		_, err := w.Write(resp.Body.Buffer)
		return err
	}
	return nil
}

// writeChunked frames each read from r as "<hex-length>\r\n<bytes>\r\n",
// terminated by "0\r\n\r\n".
func writeChunked(w io.Writer, r io.Reader, chunkSize int) error {
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if _, werr := fmt.Fprintf(w, "%x\r\n", n); werr != nil {
				return werr
			}
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return werr
			}
			if _, werr := io.WriteString(w, "\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			_, werr := io.WriteString(w, "0\r\n\r\n")
			return werr
		}
		if err != nil {
			return err
		}
	}
}

// copyPlain streams r to w unframed, buffer-sized reads at a time, until EOF.
func copyPlain(w io.Writer, r io.Reader, bufSize int) error {
	buf := make([]byte, bufSize)
	_, err := io.CopyBuffer(w, r, buf)
	return err
}
