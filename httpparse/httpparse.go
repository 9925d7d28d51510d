// Package httpparse is an incremental HTTP/1.1 tokenizer shared by the
// server (request parsing) and the client (response parsing). It is
// grounded on original_source's HttpServer.cpp/HttpStringIterator.h token
// design: Method, Url, Version, (HeaderName, HeaderValue)*, HeadersEnd,
// Body*.
//
// Parse is called repeatedly with the full accumulated buffer received so
// far (not just newly-arrived bytes) — the parser keeps its own cursor and
// never copies or retains the slice itself; the caller (httpconn) owns
// keeping those bytes alive across calls. Each call emits at most one
// token: either Parse advances the cursor and sets Token/TokenStart/
// TokenLength with State set to Result, or it runs out of bytes before
// completing the current token and returns with State left at Parsing, in
// which case the caller must supply a longer buffer (more bytes appended)
// and call Parse again.
package httpparse

import (
	"errors"
	"strconv"
)

// MessageType selects whether Parse expects a request-line or a
// status-line.
type MessageType int

const (
	TypeRequest MessageType = iota
	TypeResponse
)

// State is the parser's coarse progress.
type State int

const (
	StateParsing State = iota
	StateResult
	StateFinished
)

// Token identifies the kind of byte range most recently completed.
type Token int

const (
	TokenNone Token = iota
	TokenMethod
	TokenURL
	TokenVersion
	TokenStatusCode
	TokenStatusString
	TokenHeaderName
	TokenHeaderValue
	TokenHeadersEnd
	TokenBody
)

// Method is the recognized HTTP method of a request. Unknown methods are
// tolerated syntactically and reported as MethodUnknown.
type Method int

const (
	MethodUnknown Method = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodHEAD
	MethodDELETE
	MethodOPTIONS
	MethodPATCH
)

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodHEAD:
		return "HEAD"
	case MethodDELETE:
		return "DELETE"
	case MethodOPTIONS:
		return "OPTIONS"
	case MethodPATCH:
		return "PATCH"
	default:
		return "UNKNOWN"
	}
}

func methodFromString(s string) Method {
	switch s {
	case "GET":
		return MethodGET
	case "POST":
		return MethodPOST
	case "PUT":
		return MethodPUT
	case "HEAD":
		return MethodHEAD
	case "DELETE":
		return MethodDELETE
	case "OPTIONS":
		return MethodOPTIONS
	case "PATCH":
		return MethodPATCH
	default:
		return MethodUnknown
	}
}

// HeaderKind marks a recognized header name the parser tracks specially.
type HeaderKind int

const (
	HeaderOther HeaderKind = iota
	HeaderContentLength
)

// Errors returned by Parse. All are terminal for the current message:
// the caller must close the connection/abort the response, not keep
// calling Parse.
var (
	ErrMalformedLine    = errors.New("httpparse: malformed request/status line")
	ErrInvalidContentLen = errors.New("httpparse: invalid Content-Length value")
	ErrInvalidStatusCode = errors.New("httpparse: invalid status code")
	ErrHeadersTooLarge  = errors.New("httpparse: cumulative header bytes exceed limit")
	ErrFinished         = errors.New("httpparse: parser already finished, call Reset")
)

type phase int

const (
	phaseStart phase = iota
	phaseMethod
	phaseURL
	phaseVersion
	phaseStatusCode
	phaseStatusString
	phaseHeaderNameOrEnd
	phaseHeaderValue
	phaseBody
	phaseDone
)

// Parser is the mutable incremental tokenizer. Zero value is not usable;
// construct with NewRequestParser or NewResponseParser.
type Parser struct {
	Type              MessageType
	State             State
	Token             Token
	TokenStart        int
	TokenLength       int
	Method            Method
	StatusCode        uint32
	ContentLength     uint64
	MatchedHeaderType HeaderKind

	maxHeaderSize int

	pos                 int
	scanStart           int
	phase               phase
	headerBytesConsumed int
	pendingHeaderKind   HeaderKind
	headerLineEnd       int
	headerValueEnd      int
	bodyRemaining       uint64
}

// NewRequestParser returns a Parser for a request byte stream. maxHeaderSize
// bounds the cumulative bytes of header names+values.
func NewRequestParser(maxHeaderSize int) *Parser {
	return &Parser{Type: TypeRequest, maxHeaderSize: maxHeaderSize}
}

// NewResponseParser returns a Parser for a response byte stream.
func NewResponseParser(maxHeaderSize int) *Parser {
	return &Parser{Type: TypeResponse, maxHeaderSize: maxHeaderSize}
}

// Reset zero-initializes the parser so it can parse a new message on the
// same connection (keep-alive), preserving Type and maxHeaderSize.
func (p *Parser) Reset() {
	t, m := p.Type, p.maxHeaderSize
	*p = Parser{Type: t, maxHeaderSize: m}
}

// TokenBytes returns the most recently completed byte window as a slice of
// data. data must be the same (or a longer, same-prefix) buffer most
// recently passed to Parse.
func (p *Parser) TokenBytes(data []byte) []byte {
	return data[p.TokenStart : p.TokenStart+p.TokenLength]
}

func isOWS(b byte) bool { return b == ' ' || b == '\t' }

func skipOWS(data []byte, pos int) int {
	for pos < len(data) && isOWS(data[pos]) {
		pos++
	}
	return pos
}

func indexByteFrom(data []byte, from int, c byte) int {
	for i := from; i < len(data); i++ {
		if data[i] == c {
			return i
		}
	}
	return -1
}

// indexCRLF finds the first standalone CRLF at or after from, tolerating a
// bare LF as some clients send (OWS-trimmed callers still get a clean
// window).
func indexCRLF(data []byte, from int) (start, end int, ok bool) {
	for i := from; i < len(data); i++ {
		if data[i] == '\n' {
			if i > from && data[i-1] == '\r' {
				return i - 1, i + 1, true
			}
			return i, i + 1, true
		}
	}
	return 0, 0, false
}

func (p *Parser) emit(tok Token, start, length int) {
	p.Token = tok
	p.TokenStart = start
	p.TokenLength = length
	p.State = StateResult
}

// Parse advances the state machine over data (the full accumulated
// buffer, starting at byte 0) and returns the number of bytes consumed so
// far in total. Inspect State after each call: StateResult means Token/
// TokenStart/TokenLength describe a freshly completed token; StateParsing
// means more bytes are needed; StateFinished means the message is
// complete.
func (p *Parser) Parse(data []byte) (int, error) {
	if p.State == StateFinished {
		return p.pos, ErrFinished
	}
	p.State = StateParsing

	for {
		switch p.phase {
		case phaseStart:
			p.scanStart = p.pos
			if p.Type == TypeRequest {
				p.phase = phaseMethod
			} else {
				p.phase = phaseVersion
			}

		case phaseMethod:
			idx := indexByteFrom(data, p.pos, ' ')
			if idx < 0 {
				return p.pos, nil
			}
			if idx == p.scanStart {
				return p.pos, ErrMalformedLine
			}
			p.Method = methodFromString(string(data[p.scanStart:idx]))
			start, length := p.scanStart, idx-p.scanStart
			p.pos = skipOWS(data, idx+1)
			p.scanStart = p.pos
			p.phase = phaseURL
			p.emit(TokenMethod, start, length)
			return p.pos, nil

		case phaseURL:
			idx := indexByteFrom(data, p.pos, ' ')
			if idx < 0 {
				return p.pos, nil
			}
			if idx == p.scanStart {
				return p.pos, ErrMalformedLine
			}
			start, length := p.scanStart, idx-p.scanStart
			p.pos = skipOWS(data, idx+1)
			p.scanStart = p.pos
			p.phase = phaseVersion
			p.emit(TokenURL, start, length)
			return p.pos, nil

		case phaseVersion:
			if p.Type == TypeRequest {
				lineStart, lineEnd, ok := indexCRLF(data, p.pos)
				if !ok {
					return p.pos, nil
				}
				start, length := p.scanStart, lineStart-p.scanStart
				p.pos = lineEnd
				p.phase = phaseHeaderNameOrEnd
				p.emit(TokenVersion, start, length)
				return p.pos, nil
			}
			idx := indexByteFrom(data, p.pos, ' ')
			if idx < 0 {
				return p.pos, nil
			}
			if idx == p.scanStart {
				return p.pos, ErrMalformedLine
			}
			start, length := p.scanStart, idx-p.scanStart
			p.pos = skipOWS(data, idx+1)
			p.scanStart = p.pos
			p.phase = phaseStatusCode
			p.emit(TokenVersion, start, length)
			return p.pos, nil

		case phaseStatusCode:
			idx := indexByteFrom(data, p.pos, ' ')
			if idx < 0 {
				return p.pos, nil
			}
			tok := data[p.scanStart:idx]
			if len(tok) != 3 {
				return p.pos, ErrInvalidStatusCode
			}
			code, err := strconv.Atoi(string(tok))
			if err != nil || code < 0 {
				return p.pos, ErrInvalidStatusCode
			}
			p.StatusCode = uint32(code)
			start, length := p.scanStart, idx-p.scanStart
			p.pos = skipOWS(data, idx+1)
			p.scanStart = p.pos
			p.phase = phaseStatusString
			p.emit(TokenStatusCode, start, length)
			return p.pos, nil

		case phaseStatusString:
			lineStart, lineEnd, ok := indexCRLF(data, p.pos)
			if !ok {
				return p.pos, nil
			}
			start, length := p.scanStart, lineStart-p.scanStart
			p.pos = lineEnd
			p.phase = phaseHeaderNameOrEnd
			p.emit(TokenStatusString, start, length)
			return p.pos, nil

		case phaseHeaderNameOrEnd:
			// Blank line terminates the header block.
			lineStart, lineEnd, ok := indexCRLF(data, p.pos)
			if !ok {
				return p.pos, nil
			}
			if lineStart == p.pos {
				p.pos = lineEnd
				p.phase = phaseBody
				p.bodyRemaining = p.ContentLength
				p.emit(TokenHeadersEnd, p.pos, 0)
				return p.pos, nil
			}
			colon := indexByteFrom(data[:lineStart], p.pos, ':')
			if colon < 0 {
				return p.pos, ErrMalformedLine
			}
			name := data[p.pos:colon]
			if err := p.accountHeaderBytes(colon - p.pos); err != nil {
				return p.pos, err
			}
			p.pendingHeaderKind = classifyHeaderName(name)
			start, length := p.pos, colon-p.pos
			p.pos = skipOWS(data, colon+1)
			p.scanStart = p.pos
			p.headerLineEnd = lineEnd
			p.headerValueEnd = lineStart
			p.phase = phaseHeaderValue
			p.emit(TokenHeaderName, start, length)
			return p.pos, nil

		case phaseHeaderValue:
			valueEnd := p.headerValueEnd
			for valueEnd > p.scanStart && isOWS(data[valueEnd-1]) {
				valueEnd--
			}
			if valueEnd < p.scanStart {
				valueEnd = p.scanStart
			}
			if err := p.accountHeaderBytes(valueEnd - p.scanStart); err != nil {
				return p.pos, err
			}
			start, length := p.scanStart, valueEnd-p.scanStart
			p.MatchedHeaderType = p.pendingHeaderKind
			if p.pendingHeaderKind == HeaderContentLength {
				v, err := strconv.ParseUint(string(data[start:start+length]), 10, 64)
				if err != nil {
					return p.pos, ErrInvalidContentLen
				}
				p.ContentLength = v
			}
			p.pos = p.headerLineEnd
			p.scanStart = p.pos
			p.phase = phaseHeaderNameOrEnd
			p.emit(TokenHeaderValue, start, length)
			return p.pos, nil

		case phaseBody:
			if p.bodyRemaining == 0 {
				p.phase = phaseDone
				p.State = StateFinished
				return p.pos, nil
			}
			// The body is one token: wait until all of it is buffered, so
			// the token sequence does not depend on how the input was split.
			available := uint64(len(data) - p.pos)
			if available < p.bodyRemaining {
				return p.pos, nil
			}
			n := p.bodyRemaining
			start := p.pos
			p.pos += int(n)
			p.bodyRemaining -= n
			p.emit(TokenBody, start, int(n))
			if p.bodyRemaining == 0 {
				p.phase = phaseDone
			}
			return p.pos, nil

		case phaseDone:
			p.State = StateFinished
			return p.pos, nil
		}
	}
}

func (p *Parser) accountHeaderBytes(n int) error {
	if n < 0 {
		n = 0
	}
	p.headerBytesConsumed += n
	if p.maxHeaderSize > 0 && p.headerBytesConsumed > p.maxHeaderSize {
		return ErrHeadersTooLarge
	}
	return nil
}

func classifyHeaderName(name []byte) HeaderKind {
	if equalFoldASCII(name, []byte("Content-Length")) {
		return HeaderContentLength
	}
	return HeaderOther
}

func equalFoldASCII(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
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
