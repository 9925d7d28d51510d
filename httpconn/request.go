package httpconn

import (
	"errors"

	"github.com/compose-http/asynchttp/httpparse"
)

// ErrTooManyHeaders is returned when a request's header count exceeds
// MaxNumHeaders.
var ErrTooManyHeaders = errors.New("httpconn: too many headers")

// Header is one parsed header line.
type Header struct {
	Name  string
	Value string
}

// Request is the server-side accumulation of one incoming HTTP message:
// the parser's token stream folded into a structured view, backed by the
// connection's own header-arena sub-span
// rather than the transient buffer-pool buffer a read arrived in — the
// pool buffer is released back to the pool as soon as the listener
// returns, but a request can straddle many reads.
type Request struct {
	Method  httpparse.Method
	URL     string
	Version string
	Headers []Header
	ContentLength uint64

	Body []byte

	HeadersEndReceived bool

	parser        *httpparse.Parser
	headerBuf     []byte
	writeIdx      int
	maxNumHeaders int
	pendingName   string
}

// NewRequest constructs a Request accumulating into headerBuf (the
// connection's arena sub-span) with at most maxNumHeaders header lines.
func NewRequest(headerBuf []byte, maxNumHeaders int) *Request {
	return &Request{
		parser:        httpparse.NewRequestParser(len(headerBuf)),
		headerBuf:     headerBuf,
		maxNumHeaders: maxNumHeaders,
	}
}

// Reset prepares the Request for a new message on a reused (keep-alive)
// connection.
func (r *Request) Reset() {
	r.parser.Reset()
	r.Method = httpparse.MethodUnknown
	r.URL = ""
	r.Version = ""
	r.Headers = r.Headers[:0]
	r.ContentLength = 0
	r.Body = r.Body[:0]
	r.HeadersEndReceived = false
	r.writeIdx = 0
	r.pendingName = ""
}

// Feed appends chunk to the request's header arena and drives the parser
// forward. It returns once the parser needs more bytes, finished the
// message, or hit a terminal error — never partway through a token.
func (r *Request) Feed(chunk []byte) error {
	if r.writeIdx+len(chunk) > len(r.headerBuf) {
		return ErrHeadersTooLarge
	}
	copy(r.headerBuf[r.writeIdx:], chunk)
	r.writeIdx += len(chunk)
	buf := r.headerBuf[:r.writeIdx]

	for {
		_, err := r.parser.Parse(buf)
		if err != nil {
			return err
		}
		switch r.parser.State {
		case httpparse.StateResult:
			if err := r.applyToken(buf); err != nil {
				return err
			}
		case httpparse.StateParsing, httpparse.StateFinished:
			return nil
		}
	}
}

func (r *Request) applyToken(buf []byte) error {
	tok := r.parser.TokenBytes(buf)
	switch r.parser.Token {
	case httpparse.TokenMethod:
		r.Method = r.parser.Method
	case httpparse.TokenURL:
		r.URL = string(tok)
	case httpparse.TokenVersion:
		r.Version = string(tok)
	case httpparse.TokenHeaderName:
		r.pendingName = string(tok)
	case httpparse.TokenHeaderValue:
		if len(r.Headers) >= r.maxNumHeaders {
			return ErrTooManyHeaders
		}
		r.Headers = append(r.Headers, Header{Name: r.pendingName, Value: string(tok)})
	case httpparse.TokenHeadersEnd:
		r.ContentLength = r.parser.ContentLength
		r.HeadersEndReceived = true
	case httpparse.TokenBody:
		r.Body = append(r.Body, tok...)
	}
	return nil
}

// Header looks up the first header matching name, case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if equalFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
