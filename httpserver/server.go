// Package httpserver implements the async HTTP server: a listening
// socket, a fixed-capacity connection arena with accept-pause admission
// control, and the receive→parse→dispatch→send→close-or-reuse
// orchestration. Grounded on docker-compose's own service-up
// orchestration shape (api/compose/compose.go's per-resource fan-out) for
// the shutdown/aggregation pattern, and on original_source's
// HttpServer.cpp for the arena/admission-control algorithm itself.
package httpserver

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpconn"
	"github.com/compose-http/asynchttp/ioreactor"
	mnet "github.com/compose-http/asynchttp/netutil"
	"github.com/compose-http/asynchttp/stream"
)

// shutdownErrorFormat renders accumulated StopAsync errors one per line,
// the same shape docker-compose's own multierror wrapper used for CLI
// output.
func shutdownErrorFormat(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "Error: " + err.Error()
	}
	return strings.Join(lines, "\n")
}

// Config holds the server defaults and limits (maxHeaderSize,
// MaxNumHeaders, maxRequestsPerConnection, defaultKeepAlive), plus the
// arena/buffer-pool sizing needed to instantiate them.
type Config struct {
	Addr string

	ArenaSize                int
	MaxHeaderSize            int
	MaxNumHeaders            int
	MaxRequestsPerConnection uint32
	DefaultKeepAlive         bool

	BufferCount int
	BufferSize  int

	ReactorWorkers int

	OnRequest func(*httpconn.Connection)
}

// Server owns the listening socket and the connection arena, running the
// accept-loop and shutdown algorithms.
type Server struct {
	cfg      Config
	listener *net.TCPListener
	loop     eventloop.EventLoop
	reactor  *ioreactor.Reactor
	pool     *bufferpool.Pool
	headers  []byte

	slots     []*httpconn.Connection
	numActive int
	acceptOp  *ioreactor.AcceptOp

	log    *logrus.Entry
	tracer trace.Tracer
	meter  metric.Meter

	activeGauge metric.Int64UpDownCounter
}

// New constructs a Server bound to cfg.Addr, ready for Serve. loop is the
// single event-loop goroutine driving all connections created from this
// server.
func New(cfg Config, loop eventloop.EventLoop, tp trace.TracerProvider, mp metric.MeterProvider, log *logrus.Entry) (*Server, error) {
	if cfg.ArenaSize <= 0 {
		cfg.ArenaSize = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		cfg:     cfg,
		loop:    loop,
		reactor: ioreactor.New(loop, cfg.ReactorWorkers),
		pool:    bufferpool.New(cfg.BufferCount, cfg.BufferSize, mp.Meter("httpserver.bufferpool")),
		headers: make([]byte, cfg.MaxHeaderSize*cfg.ArenaSize),
		slots:   make([]*httpconn.Connection, cfg.ArenaSize),
		log:     log,
		tracer:  tp.Tracer("httpserver"),
		meter:   mp.Meter("httpserver"),
	}
	var err error
	s.activeGauge, err = s.meter.Int64UpDownCounter("httpserver.active_connections")
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"arena_size":  cfg.ArenaSize,
		"buffer_pool": units.HumanSize(float64(cfg.BufferCount * cfg.BufferSize)),
	}).Info("initializing http server")

	addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}
	if err := mnet.TuneListener(ln); err != nil {
		s.log.WithError(err).Debug("socket tuning unavailable on this platform")
	}
	s.listener = ln
	return s, nil
}

// Addr reports the bound listening address (useful when Config.Addr asked
// for an ephemeral port).
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve arms the persistent accept loop.
func (s *Server) Serve() {
	s.acceptOp = s.reactor.Accept(s.listener, s.onAccept)
}

func (s *Server) onAccept(conn net.Conn, err error) {
	if err != nil {
		if err != ioreactor.ErrCancelled {
			s.log.WithError(err).Warn("accept failed")
			s.acceptOp.Rearm()
		}
		return
	}
	slot := s.findFreeSlot()
	if slot < 0 {
		// Arena is full; a racing accept slipped through between the
		// previous completion and admission control un-arming — reject
		// immediately rather than block the loop.
		conn.Close()
		return
	}
	s.admit(slot, conn)
	s.numActive++
	s.activeGauge.Add(context.Background(), 1)
	if s.numActive < len(s.slots) {
		s.acceptOp.Rearm()
	}
	// else: admission control — accept stays un-armed until a slot frees.
}

func (s *Server) findFreeSlot() int {
	for i, c := range s.slots {
		if c == nil {
			return i
		}
	}
	return -1
}

func (s *Server) admit(slot int, conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := mnet.TuneConn(tc); err != nil {
			s.log.WithError(err).Debug("TCP_NODELAY unavailable on this platform")
		}
	}

	headerSpan := s.headerSpan(slot)
	readable := stream.NewReadable(s.pool, s.reactor, conn, false)
	writable := stream.NewWritable(s.pool, s.reactor, conn)

	connLog := s.log.WithField("request_id", uuid.NewString())
	c := httpconn.New(slot, conn, headerSpan, s.pool, readable, writable, httpconn.Config{
		MaxNumHeaders:            s.cfg.MaxNumHeaders,
		HighwaterMark:            s.cfg.BufferSize,
		MaxRequestsPerConnection: s.cfg.MaxRequestsPerConnection,
		DefaultKeepAlive:         s.cfg.DefaultKeepAlive,
	}, connLog)

	c.OnRequest = func(conn *httpconn.Connection) {
		ctx, span := s.tracer.Start(context.Background(), "httpserver.dispatch")
		defer span.End()
		_ = ctx
		if s.cfg.OnRequest != nil {
			s.cfg.OnRequest(conn)
		}
	}
	c.OnClosed = func(conn *httpconn.Connection) {
		s.release(slot)
	}

	s.slots[slot] = c
	c.Start()
}

func (s *Server) headerSpan(slot int) []byte {
	h := len(s.headers) / len(s.slots)
	return s.headers[slot*h : (slot+1)*h]
}

func (s *Server) release(slot int) {
	wasFull := s.numActive == len(s.slots)
	s.slots[slot] = nil
	s.numActive--
	s.activeGauge.Add(context.Background(), -1)
	if wasFull && s.acceptOp != nil {
		s.acceptOp.Rearm()
	}
}

// NumActive reports the server's current active-connection count.
func (s *Server) NumActive() int { return s.numActive }

// StopAsync cancels the accept request and every active connection's
// in-flight operations, aggregating any errors encountered.
func (s *Server) StopAsync() error {
	var errs *multierror.Error
	if s.acceptOp != nil {
		s.acceptOp.Stop()
	}
	for _, c := range s.slots {
		if c == nil {
			continue
		}
		c.Close()
	}
	if err := s.listener.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if errs != nil {
		errs.ErrorFormat = shutdownErrorFormat
	}
	return errs.ErrorOrNil()
}

// StopSync stops accepting and polls (via loop.Post round-trips, never
// blocking the loop goroutine itself) until every connection has actually
// drained and the arena is empty.
func (s *Server) StopSync(ctx context.Context) error {
	err := s.StopAsync()
	for {
		active := make(chan int, 1)
		if postErr := s.loop.Post(func() { active <- s.numActive }); postErr != nil {
			return err
		}
		select {
		case n := <-active:
			if n == 0 {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
