package httpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-http/asynchttp/httpparse"
)

func TestRequestFeedWholeMessage(t *testing.T) {
	req := NewRequest(make([]byte, 256), 32)
	msg := "GET /test HTTP/1.1\r\nHost: 127.0.0.1\r\nUser-Agent: SC\r\n\r\n"
	require.NoError(t, req.Feed([]byte(msg)))

	assert.Equal(t, httpparse.MethodGET, req.Method)
	assert.Equal(t, "/test", req.URL)
	assert.True(t, req.HeadersEndReceived)
	v, ok := req.Header("host")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", v)
}

func TestRequestFeedAcrossMultipleChunks(t *testing.T) {
	req := NewRequest(make([]byte, 256), 32)
	msg := "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"

	for i := 0; i < len(msg); i++ {
		require.NoError(t, req.Feed([]byte(msg[i:i+1])))
	}

	assert.Equal(t, httpparse.MethodPOST, req.Method)
	assert.True(t, req.HeadersEndReceived)
	assert.Equal(t, uint64(5), req.ContentLength)
	assert.Equal(t, "hello", string(req.Body))
}

func TestRequestTooManyHeadersErrors(t *testing.T) {
	req := NewRequest(make([]byte, 1024), 1)
	msg := "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\n\r\n"
	assert.ErrorIs(t, req.Feed([]byte(msg)), ErrTooManyHeaders)
}

func TestRequestHeaderArenaExhaustionErrors(t *testing.T) {
	req := NewRequest(make([]byte, 4), 32)
	assert.ErrorIs(t, req.Feed([]byte("GET / HTTP/1.1\r\n\r\n")), ErrHeadersTooLarge)
}

func TestRequestResetAllowsReuse(t *testing.T) {
	req := NewRequest(make([]byte, 256), 32)
	require.NoError(t, req.Feed([]byte("GET /a HTTP/1.1\r\n\r\n")))
	require.True(t, req.HeadersEndReceived)

	req.Reset()
	require.NoError(t, req.Feed([]byte("GET /b HTTP/1.1\r\n\r\n")))
	assert.Equal(t, "/b", req.URL)
}
