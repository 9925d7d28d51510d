// Package httpconn implements the per-connection HTTP/1.1 state machine
// and the response builder, grounded on original_source's
// HttpServer.cpp connection-slot design and on docker-compose's
// context-threaded, logrus-logged connection handling
// (api/compose/compose.go's per-service callback shape).
package httpconn

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/stream"
)

// State is a connection's position in its lifecycle:
// Free → Accepted → Receiving → Parsing → Dispatched → Sending →
// (Finished ∨ KeepAliveReset → Receiving) → Closing → Free.
type State int

const (
	StateFree State = iota
	StateAccepted
	StateReceiving
	StateParsing
	StateDispatched
	StateSending
	StateFinished
	StateKeepAliveReset
	StateClosing
)

// ErrConnectionClosing is delivered to a handler that tries to act on a
// connection already tearing down.
var ErrConnectionClosing = errors.New("httpconn: connection is closing")

// Connection is one HTTP/1.1 client slot: socket, request/response pair,
// and keep-alive bookkeeping.
type Connection struct {
	ID     int
	Socket net.Conn

	Request  *Request
	Response *Response

	Readable *stream.Readable
	Writable *stream.Writable

	State State

	RequestsServed           uint32
	MaxRequestsPerConnection uint32
	DefaultKeepAlive         bool

	OnRequest func(*Connection)
	OnClosed  func(*Connection)

	log *logrus.Entry
}

// Config bundles the fixed parameters a Connection needs at construction,
// shared across every slot in a server's arena.
type Config struct {
	MaxNumHeaders            int
	HighwaterMark            int
	MaxRequestsPerConnection uint32
	DefaultKeepAlive         bool
}

// New wires a fresh Connection around an accepted socket, its header
// arena sub-span (headerBuf) and the async readable/writable streams the
// server already constructed for this slot.
func New(id int, socket net.Conn, headerBuf []byte, pool *bufferpool.Pool, readable *stream.Readable, writable *stream.Writable, cfg Config, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Connection{
		ID:                       id,
		Socket:                   socket,
		Readable:                 readable,
		Writable:                 writable,
		MaxRequestsPerConnection: cfg.MaxRequestsPerConnection,
		DefaultKeepAlive:         cfg.DefaultKeepAlive,
		State:                    StateAccepted,
		log:                      log.WithField("conn", id),
	}
	c.Request = NewRequest(headerBuf, cfg.MaxNumHeaders)
	c.Response = NewResponse(func(b []byte) {
		c.Writable.Write(append([]byte(nil), b...), nil)
	}, cfg.HighwaterMark, nil)
	return c
}

// Start begins receiving on the socket: every readable data event is fed
// to the request parser, and OnRequest fires once the header block
// completes.
func (c *Connection) Start() {
	c.State = StateReceiving
	c.Readable.OnData(func(id bufferpool.ID, n int) {
		c.handleData(id, n)
	})
	c.Readable.OnEnd(func() {
		c.close()
	})
	c.Readable.OnClose(func(err error) {
		// close() itself destroys the readable, which emits Close again;
		// a connection already closing must not be closed twice.
		if c.State == StateClosing || c.State == StateFree {
			return
		}
		c.close()
	})
	c.Readable.Start()
}

func (c *Connection) handleData(id bufferpool.ID, n int) {
	if c.State == StateClosing {
		return
	}
	chunk := c.Readable.Pool().ReadableData(id, n)
	c.State = StateParsing
	if err := c.Request.Feed(chunk); err != nil {
		c.log.WithError(err).Warn("malformed request, closing connection")
		c.State = StateClosing
		c.close()
		return
	}
	if c.Request.HeadersEndReceived && c.State != StateDispatched {
		c.dispatch()
	}
}

func (c *Connection) dispatch() {
	c.State = StateDispatched
	if c.OnRequest != nil {
		c.OnRequest(c)
	}
	if c.Response.MustBeFlushed() {
		c.finishResponse()
	}
}

func (c *Connection) finishResponse() {
	c.State = StateSending
	if c.decideKeepAlive() {
		// The writable stream stays open for the next response; its writes
		// are queued FIFO, so this response drains before the next one.
		c.resetForKeepAlive()
		return
	}
	c.Writable.OnFinish(func() {
		c.State = StateFinished
		c.close()
	})
	c.Writable.End()
}

// FinishStreamed runs the keep-alive/close decision for a response whose
// body was handed off to a pipeline rather than ended through Response
// directly (transferring writable-stream ownership to a pipeline — used
// by the file server). The caller must already have called
// Writable.End() (the pipeline does this itself once its source ends).
func (c *Connection) FinishStreamed() {
	c.State = StateSending
	keep := c.decideKeepAlive()
	if keep {
		c.resetForKeepAlive()
	} else {
		c.State = StateFinished
		c.close()
	}
}

func (c *Connection) decideKeepAlive() bool {
	switch c.Response.KeepAlive() {
	case KeepAliveForceOn:
		return uint32(c.RequestsServed+1) < c.MaxRequestsPerConnection
	case KeepAliveForceOff:
		return false
	default:
		return c.DefaultKeepAlive && uint32(c.RequestsServed+1) < c.MaxRequestsPerConnection
	}
}

func (c *Connection) resetForKeepAlive() {
	c.RequestsServed++
	c.State = StateKeepAliveReset
	c.Request.Reset()
	c.Response.Reset()
	c.State = StateReceiving
}

func (c *Connection) close() {
	c.State = StateClosing
	c.Readable.Destroy()
	c.Writable.Destroy()
	c.Socket.Close()
	c.State = StateFree
	if c.OnClosed != nil {
		c.OnClosed(c)
	}
}

// Close tears the connection down out of band (server shutdown).
func (c *Connection) Close() {
	c.close()
}
