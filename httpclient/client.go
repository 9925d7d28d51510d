// Package httpclient implements the HTTP client: GET/PUT/POST multipart
// requests with optional keep-alive connection reuse, grounded on
// original_source's Tests/Libraries/Http/HttpClient.cpp (the one with
// keepOpen/bodyDelay/postMultipart — the production HttpClient.cpp lacks
// those; this module wants the fuller surface the test variant already
// demonstrates).
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpparse"
	"github.com/compose-http/asynchttp/ioreactor"
	"github.com/compose-http/asynchttp/urlparse"
)

// multipartBoundary is a fixed boundary literal, matching the one
// original_source's client uses.
const multipartBoundary = "----SCFormBoundary7MA4YWxkTrZu0gW"

// ErrNotHTTP is returned when the target URL's scheme isn't http.
var ErrNotHTTP = errors.New("httpclient: only http:// URLs are supported")

// Response is the client's result: status, headers and the full body.
// The client buffers the entire response; it does not stream.
type Response struct {
	StatusCode int
	Headers    []httpHeader
	Body       []byte
}

type httpHeader struct {
	Name  string
	Value string
}

// Header looks up the first response header matching name.
func (r *Response) Header(name string) (string, bool) {
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

// Client issues single requests against an http:// origin, optionally
// keeping the TCP connection open across calls.
type Client struct {
	reactor *ioreactor.Reactor
	log     *logrus.Entry

	conn        net.Conn
	connAddr    string
	keepingOpen bool
}

// New constructs a Client driven by loop via a private reactor.
func New(loop eventloop.EventLoop, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{reactor: ioreactor.New(loop, 2), log: log}
}

func (c *Client) ensureConnection(ctx context.Context, addr string, keepOpen bool) (net.Conn, error) {
	if c.conn != nil && c.keepingOpen && c.connAddr == addr {
		return c.conn, nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	result := make(chan struct {
		conn net.Conn
		err  error
	}, 1)
	c.reactor.Connect(ctx, "tcp", addr, func(conn net.Conn, err error) {
		result <- struct {
			conn net.Conn
			err  error
		}{conn, err}
	})
	r := <-result
	if r.err != nil {
		return nil, r.err
	}
	c.conn = r.conn
	c.connAddr = addr
	c.keepingOpen = keepOpen
	return c.conn, nil
}

func (c *Client) send(conn net.Conn, data []byte) error {
	done := make(chan error, 1)
	c.reactor.Send(conn, data, func(n int, err error) { done <- err })
	return <-done
}

// sendDelayed sends head+tail as a single write when delay <= 0 (matching
// original_source's buildRequest: one buffer, headerBytes recorded only as
// a split point for the delayed case) — only a positive bodyDelay actually
// splits the send into headers-then-timer-then-body, to exercise server
// tolerance of a request arriving across two reads.
func (c *Client) sendDelayed(conn net.Conn, head, tail []byte, delay time.Duration) error {
	if delay <= 0 {
		whole := make([]byte, 0, len(head)+len(tail))
		whole = append(whole, head...)
		whole = append(whole, tail...)
		return c.send(conn, whole)
	}
	if err := c.send(conn, head); err != nil {
		return err
	}
	fired := make(chan struct{})
	c.reactor.Timer(delay, func() { close(fired) })
	<-fired
	return c.send(conn, tail)
}

// receive reads from conn into a growable buffer, feeding the response
// parser incrementally, until parsedBytes+Content-Length == received
// bytes.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	parser := httpparse.NewResponseParser(1 << 20)
	var received []byte
	resp := &Response{}
	var pendingName string
	bodyStart := -1

	for {
		buf := make([]byte, 4096)
		n, err := c.blockingRead(conn, buf)
		if n > 0 {
			received = append(received, buf[:n]...)
		}
		// Drain every token the parser can produce from what's already
		// buffered before issuing another read.
		for {
			if _, perr := parser.Parse(received); perr != nil {
				return nil, perr
			}
			if parser.State == httpparse.StateParsing {
				break
			}
			tok := parser.TokenBytes(received)
			switch parser.Token {
			case httpparse.TokenStatusCode:
				resp.StatusCode = int(parser.StatusCode)
			case httpparse.TokenHeaderName:
				pendingName = string(tok)
			case httpparse.TokenHeaderValue:
				resp.Headers = append(resp.Headers, httpHeader{Name: pendingName, Value: string(tok)})
			case httpparse.TokenHeadersEnd:
				bodyStart = parser.TokenStart + parser.TokenLength
			case httpparse.TokenBody:
				// body bytes already sit in received at the parser's own
				// cursor; nothing to copy, Body is sliced below once done.
			}
			if parser.State == httpparse.StateFinished {
				break
			}
		}
		if parser.State == httpparse.StateFinished {
			if bodyStart >= 0 {
				resp.Body = received[bodyStart:]
			}
			return resp, nil
		}
		if err != nil {
			return resp, err
		}
		if n == 0 {
			return resp, io.ErrUnexpectedEOF
		}
	}
}

func (c *Client) blockingRead(conn net.Conn, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	c.reactor.Receive(conn, buf, func(n int, err error) { ch <- result{n, err} })
	r := <-ch
	return r.n, r.err
}

// Get issues GET path against url's origin, optionally keeping the
// connection open for a subsequent call.
func (c *Client) Get(ctx context.Context, rawURL string, keepOpen bool) (*Response, error) {
	u, err := urlparse.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" {
		return nil, ErrNotHTTP
	}
	addr := net.JoinHostPort(u.Hostname, fmt.Sprintf("%d", u.Port))
	conn, err := c.ensureConnection(ctx, addr, keepOpen)
	if err != nil {
		return nil, err
	}

	var req bytes.Buffer
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", u.Path)
	req.WriteString("User-agent: SC\r\n")
	req.WriteString("Host: 127.0.0.1\r\n")
	if keepOpen {
		req.WriteString("Connection: keep-alive\r\n")
	}
	req.WriteString("\r\n")

	if err := c.send(conn, req.Bytes()); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	c.finishExchange(conn, keepOpen, err)
	return resp, err
}

// Put issues PUT path with body as the request entity. If bodyDelay > 0,
// headers and body are sent as two separate writes with a timer between
// them, to exercise server tolerance of split writes.
func (c *Client) Put(ctx context.Context, rawURL string, body []byte, bodyDelay time.Duration) (*Response, error) {
	u, err := urlparse.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" {
		return nil, ErrNotHTTP
	}
	addr := net.JoinHostPort(u.Hostname, fmt.Sprintf("%d", u.Port))
	conn, err := c.ensureConnection(ctx, addr, false)
	if err != nil {
		return nil, err
	}

	var head bytes.Buffer
	fmt.Fprintf(&head, "PUT %s HTTP/1.1\r\n", u.Path)
	head.WriteString("User-agent: SC\r\n")
	head.WriteString("Host: 127.0.0.1\r\n")
	fmt.Fprintf(&head, "Content-Length: %d\r\n\r\n", len(body))

	if err := c.sendDelayed(conn, head.Bytes(), body, bodyDelay); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	c.finishExchange(conn, false, err)
	return resp, err
}

// PostMultipart builds a multipart/form-data body carrying one file field
// and posts it. When bodyDelay > 0 the send is split in two: request
// headers plus the multipart preamble, then the file content and trailer.
func (c *Client) PostMultipart(ctx context.Context, rawURL, fieldName, fileName string, fileContent []byte, bodyDelay time.Duration) (*Response, error) {
	u, err := urlparse.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" {
		return nil, ErrNotHTTP
	}
	addr := net.JoinHostPort(u.Hostname, fmt.Sprintf("%d", u.Port))
	conn, err := c.ensureConnection(ctx, addr, false)
	if err != nil {
		return nil, err
	}

	var preamble, trailer bytes.Buffer
	preamble.WriteString("--" + multipartBoundary + "\r\n")
	fmt.Fprintf(&preamble, "Content-Disposition: form-data; name=%q; filename=%q\r\n", fieldName, fileName)
	preamble.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	trailer.WriteString("\r\n--" + multipartBoundary + "--\r\n")

	bodySize := preamble.Len() + len(fileContent) + trailer.Len()

	var head bytes.Buffer
	fmt.Fprintf(&head, "POST %s HTTP/1.1\r\n", u.Path)
	head.WriteString("User-agent: SC\r\n")
	head.WriteString("Host: 127.0.0.1\r\n")
	fmt.Fprintf(&head, "Content-Type: multipart/form-data; boundary=%s\r\n", multipartBoundary)
	fmt.Fprintf(&head, "Content-Length: %d\r\n\r\n", bodySize)

	head.Write(preamble.Bytes())

	var body bytes.Buffer
	body.Write(fileContent)
	body.Write(trailer.Bytes())

	if err := c.sendDelayed(conn, head.Bytes(), body.Bytes(), bodyDelay); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	c.finishExchange(conn, false, err)
	return resp, err
}

func (c *Client) finishExchange(conn net.Conn, keepOpen bool, exchangeErr error) {
	if !keepOpen || exchangeErr != nil {
		conn.Close()
		if c.conn == conn {
			c.conn = nil
			c.keepingOpen = false
		}
	}
}

// Close releases any open connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.keepingOpen = false
	return err
}
