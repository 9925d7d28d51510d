package httpserver

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpconn"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	loop := eventloop.NewChanLoop(256)
	require.NoError(t, loop.Start())
	t.Cleanup(loop.Stop)

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.ArenaSize == 0 {
		cfg.ArenaSize = 4
	}
	if cfg.MaxHeaderSize == 0 {
		cfg.MaxHeaderSize = 4096
	}
	if cfg.MaxNumHeaders == 0 {
		cfg.MaxNumHeaders = 32
	}
	if cfg.BufferCount == 0 {
		cfg.BufferCount = 8
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4096
	}
	if cfg.ReactorWorkers == 0 {
		cfg.ReactorWorkers = 4
	}

	s, err := New(cfg, loop, nooptrace.NewTracerProvider(), noopmetric.NewMeterProvider(), nil)
	require.NoError(t, err)
	s.Serve()
	t.Cleanup(func() { s.StopAsync() })
	return s
}

func TestServerSimpleGetEcho(t *testing.T) {
	s := newTestServer(t, Config{
		MaxRequestsPerConnection: 1 << 20,
		DefaultKeepAlive:         false,
		OnRequest: func(c *httpconn.Connection) {
			require.NoError(t, c.Response.StartResponse(200))
			require.NoError(t, c.Response.EndWithBody([]byte("OK")))
		},
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /test HTTP/1.1\r\nUser-agent: SC\r\nHost: 127.0.0.1\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
}

func TestServerMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Config{
		MaxRequestsPerConnection: 1 << 20,
		OnRequest: func(c *httpconn.Connection) {
			require.NoError(t, c.Response.StartResponse(405))
			require.NoError(t, c.Response.EndWithBody(nil))
		},
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("POST /x HTTP/1.1\r\nHost: 127.0.0.1\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 405 Method Not Allowed\r\n", statusLine)
}

func TestServerArenaFullPausesAccept(t *testing.T) {
	s := newTestServer(t, Config{
		ArenaSize:                1,
		MaxRequestsPerConnection: 1 << 20,
		DefaultKeepAlive:         true,
		OnRequest: func(c *httpconn.Connection) {
			require.NoError(t, c.Response.StartResponse(200))
			require.NoError(t, c.Response.EndWithBody([]byte("OK")))
		},
	})

	first, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	_, err = first.Write([]byte("GET /a HTTP/1.1\r\nHost: h\r\nConnection: keep-alive\r\n\r\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.NumActive() == 1 }, time.Second, 5*time.Millisecond)

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	require.Error(t, err, "accept must stay paused while the arena is full")

	// Closing the first connection frees the only slot, so accept is
	// re-armed and the pending second connection is admitted and served.
	first.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = second.Write([]byte("GET /b HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)
	statusLine, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
	_ = context.Background()
}
