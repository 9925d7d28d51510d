package httpconn

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gtassert "gotest.tools/v3/assert"
)

func newTestResponse(out *bytes.Buffer) *Response {
	return NewResponse(func(b []byte) { out.Write(b) }, 1<<16, clockwork.NewFakeClock())
}

func TestResponseEndWithBodyRoundTrips(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)

	require.NoError(t, r.StartResponse(200))
	require.NoError(t, r.AddHeader("Content-Type", "text/plain"))
	require.NoError(t, r.EndWithBody([]byte("OK")))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, text, "Content-Type: text/plain\r\n")
	assert.Contains(t, text, "Content-Length: 2\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nOK"))
	assert.True(t, r.Ended())
}

func TestResponseHeaderBeforeStartErrors(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	assert.ErrorIs(t, r.AddHeader("X", "Y"), ErrStartNotCalled)
}

func TestResponseHeaderAfterSendErrors(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	require.NoError(t, r.StartResponse(200))
	require.NoError(t, r.SendHeaders())
	assert.ErrorIs(t, r.AddHeader("X", "Y"), ErrHeaderAfterSend)
}

func TestResponseDoubleEndErrors(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	require.NoError(t, r.StartResponse(200))
	require.NoError(t, r.End())
	assert.ErrorIs(t, r.End(), ErrAlreadyEnded)
}

func TestResponseSetKeepAliveOverride(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	require.NoError(t, r.StartResponse(200))
	r.SetKeepAlive(false)
	assert.Equal(t, KeepAliveForceOff, r.KeepAlive())
}

func TestResponseMustBeFlushedOnEnd(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	require.NoError(t, r.StartResponse(200))
	assert.False(t, r.MustBeFlushed())
	require.NoError(t, r.End())
	assert.True(t, r.MustBeFlushed())
}

// TestResponseMustBeFlushedOnHeaderOverflow exercises the non-Ended branch
// of MustBeFlushed: a highwater mark small enough that accumulated header
// bytes trip it before End/EndWithBody is ever called.
func TestResponseMustBeFlushedOnHeaderOverflow(t *testing.T) {
	var out bytes.Buffer
	r := NewResponse(func(b []byte) { out.Write(b) }, 32, clockwork.NewFakeClock())

	require.NoError(t, r.StartResponse(200))
	assert.False(t, r.MustBeFlushed())
	require.NoError(t, r.AddHeader("X-Long-Header-Name", "a-fairly-long-value"))
	assert.True(t, r.MustBeFlushed())
	assert.False(t, r.Ended())
}

// TestResponseWireBytesGolden pins the exact byte sequence EndWithBody
// puts on the wire, rather than the looser prefix/contains checks above.
func TestResponseWireBytesGolden(t *testing.T) {
	var out bytes.Buffer
	r := newTestResponse(&out)
	require.NoError(t, r.StartResponse(404))
	require.NoError(t, r.AddHeader("Content-Type", "text/plain"))
	require.NoError(t, r.EndWithBody([]byte("nope")))

	want := "HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\nContent-Length: 4\r\n\r\nnope"
	gtassert.Equal(t, out.String(), want)
}
