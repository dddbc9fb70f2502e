package worker

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corehttpd/pkg/env"
	"corehttpd/pkg/pipeline"
)

func TestHTTPWorkerServesOneRequestThenCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	w := NewHTTPWorker(HTTPConfig{
		Listener:       ln,
		ServerName:     "localhost",
		ServerPort:     "0",
		AdapterVersion: "test",
	})

	endpoint := func(e env.Env) env.Response {
		assert.Equal(t, "GET", e.GetString(env.KeyRequestMethod))
		assert.Equal(t, "/hello", e.GetString(env.KeyPathInfo))
		h := env.NewHeader()
		return env.Response{Status: 200, Headers: h, Body: env.BufferBody([]byte("world"))}
	}
	handler, err := pipeline.New().SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(handler) }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)

	w.Stop()
}

func TestHTTPWorkerWritesParseErrorResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	w := NewHTTPWorker(HTTPConfig{Listener: ln, ServerName: "localhost", ServerPort: "0"})

	endpoint := func(e env.Env) env.Response {
		t.Fatal("endpoint should not be reached on a parse error")
		return env.Response{}
	}
	handler, err := pipeline.New().SetEndpoint(endpoint).Build()
	require.NoError(t, err)

	go w.Run(handler)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 505 HTTP Version Not Supported\r\n", statusLine)

	w.Stop()
}
