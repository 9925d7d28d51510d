package httpconn

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
)

// responseState is the Response builder's own state machine:
// Idle → HeadersStarted → HeadersSent → [Body…] → Ended.
type responseState int

const (
	responseIdle responseState = iota
	responseHeadersStarted
	responseHeadersSent
	responseEnded
)

// KeepAliveDecision overrides the server's default keep-alive policy for
// a single response.
type KeepAliveDecision int

const (
	KeepAliveDefault KeepAliveDecision = iota
	KeepAliveForceOn
	KeepAliveForceOff
)

// Response is the HTTP response builder: exactly one StartResponse
// call, headers added only before SendHeaders, then End/EndWithBody.
type Response struct {
	state      responseState
	statusCode int

	scratch bytes.Buffer // status line + header lines, built before SendHeaders
	headerLines int

	keepAlive KeepAliveDecision
	highwaterMark int

	out func([]byte)
	clock clockwork.Clock
}

// NewResponse constructs a Response. out is invoked with every byte range
// that must reach the wire — the connection wires this to its writable
// socket stream. highwaterMark controls MustBeFlushed's buffered-bytes
// threshold.
func NewResponse(out func([]byte), highwaterMark int, clock clockwork.Clock) *Response {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Response{out: out, highwaterMark: highwaterMark, clock: clock}
}

// Reset prepares the Response for the connection's next keep-alive
// message.
func (r *Response) Reset() {
	r.state = responseIdle
	r.statusCode = 0
	r.scratch.Reset()
	r.headerLines = 0
	r.keepAlive = KeepAliveDefault
}

var statusText = map[int]string{
	200: "OK",
	404: "Not Found",
	405: "Method Not Allowed",
}

func reasonPhrase(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}

// StartResponse opens the response with an HTTP/1.1 status line. Must be
// called exactly once, before any AddHeader.
func (r *Response) StartResponse(code int) error {
	if r.state != responseIdle {
		return ErrAlreadyEnded
	}
	r.statusCode = code
	r.state = responseHeadersStarted
	fmt.Fprintf(&r.scratch, "HTTP/1.1 %d %s\r\n", code, reasonPhrase(code))
	return nil
}

// AddHeader appends one header line. Valid only between StartResponse and
// SendHeaders.
func (r *Response) AddHeader(name, value string) error {
	switch r.state {
	case responseIdle:
		return ErrStartNotCalled
	case responseHeadersSent, responseEnded:
		return ErrHeaderAfterSend
	}
	fmt.Fprintf(&r.scratch, "%s: %s\r\n", name, value)
	r.headerLines++
	return nil
}

// SetKeepAlive overrides the server's default keep-alive decision for
// this response only.
func (r *Response) SetKeepAlive(keep bool) {
	if keep {
		r.keepAlive = KeepAliveForceOn
	} else {
		r.keepAlive = KeepAliveForceOff
	}
}

// KeepAlive reports this response's override, if any.
func (r *Response) KeepAlive() KeepAliveDecision { return r.keepAlive }

// SendHeaders flushes the status line and accumulated headers, followed
// by the blank line terminating the header block.
func (r *Response) SendHeaders() error {
	if r.state == responseIdle {
		return ErrStartNotCalled
	}
	if r.state != responseHeadersStarted {
		return ErrHeaderAfterSend
	}
	r.scratch.WriteString("\r\n")
	r.state = responseHeadersSent
	r.out(r.scratch.Bytes())
	r.scratch.Reset()
	return nil
}

// End finalizes the response with no body, flushing headers first if
// SendHeaders was not already called.
func (r *Response) End() error {
	if r.state == responseEnded {
		return ErrAlreadyEnded
	}
	if r.state == responseHeadersStarted {
		if err := r.SendHeaders(); err != nil {
			return err
		}
	}
	if r.state != responseHeadersSent {
		return ErrStartNotCalled
	}
	r.state = responseEnded
	return nil
}

// EndWithBody appends a Content-Length header computed from len(body),
// then flushes headers and body together.
func (r *Response) EndWithBody(body []byte) error {
	if r.state != responseHeadersStarted {
		if r.state == responseEnded {
			return ErrAlreadyEnded
		}
		if r.state == responseIdle {
			return ErrStartNotCalled
		}
		return ErrHeaderAfterSend
	}
	if err := r.AddHeader("Content-Length", strconv.Itoa(len(body))); err != nil {
		return err
	}
	if err := r.SendHeaders(); err != nil {
		return err
	}
	r.out(body)
	r.state = responseEnded
	return nil
}

// Ended reports whether End/EndWithBody has been called.
func (r *Response) Ended() bool { return r.state == responseEnded }

// MustBeFlushed reports whether the response is ready to drain to the
// socket: either it has ended, or buffered header bytes exceed the
// configured highwater mark.
func (r *Response) MustBeFlushed() bool {
	return r.state == responseEnded || r.scratch.Len() > r.highwaterMark
}

// Now returns the response's clock, for handlers computing Date/
// Last-Modified headers.
func (r *Response) Now() clockwork.Clock { return r.clock }
