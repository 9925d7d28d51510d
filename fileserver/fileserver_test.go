package fileserver

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpconn"
	"github.com/compose-http/asynchttp/ioreactor"
	"github.com/compose-http/asynchttp/stream"
)

func newServedConnection(t *testing.T, root string) (*httpconn.Connection, net.Conn) {
	t.Helper()
	loop := eventloop.NewChanLoop(64)
	require.NoError(t, loop.Start())
	t.Cleanup(loop.Stop)
	pool := bufferpool.New(8, 4096, nil)
	reactor := ioreactor.New(loop, 4)

	serverSide, clientSide := net.Pipe()
	readable := stream.NewReadable(pool, reactor, serverSide, true)
	writable := stream.NewWritable(pool, reactor, serverSide)

	c := httpconn.New(0, serverSide, make([]byte, 4096), pool, readable, writable, httpconn.Config{
		MaxNumHeaders:            32,
		HighwaterMark:            1 << 16,
		MaxRequestsPerConnection: 10,
		DefaultKeepAlive:         false,
	}, nil)

	h := New(root, reactor, clockwork.NewFakeClock(), nil)
	c.OnRequest = h.ServeHTTP
	c.Start()
	return c, clientSide
}

func TestFileServerServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.html"), []byte("<html><body>Response from file</body></html>"), 0o644))

	_, client := newServedConnection(t, dir)
	defer client.Close()

	go client.Write([]byte("GET /file.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)

	var contentType string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		if len(line) > len("Content-Type: ") && line[:len("Content-Type: ")] == "Content-Type: " {
			contentType = line
		}
	}
	require.Contains(t, contentType, "text/html")

	body := make([]byte, len("<html><body>Response from file</body></html>"))
	_, err = readFull(reader, body)
	require.NoError(t, err)
	require.Equal(t, "<html><body>Response from file</body></html>", string(body))
}

func TestFileServerEmptyPathServesIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("home"), 0o644))

	_, client := newServedConnection(t, dir)
	defer client.Close()

	go client.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
}

func TestFileServerMissingFileReturns404(t *testing.T) {
	dir := t.TempDir()
	_, client := newServedConnection(t, dir)
	defer client.Close()

	go client.Write([]byte("GET /missing.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 404 Not Found\r\n", statusLine)
}

func TestFileServerRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("nope"), 0o644))

	_, client := newServedConnection(t, dir)
	defer client.Close()

	go client.Write([]byte("GET /../secret.txt HTTP/1.1\r\nHost: localhost\r\n\r\n"))

	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 404 Not Found\r\n", statusLine)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
