// Package ioreactor supplies the async accept/connect/send/receive/
// file-read/timer primitives that form the event loop's external
// surface. OS-specific readiness polling (epoll/kqueue/IOCP) is out of
// scope and is not reimplemented here; instead a bounded pool of
// goroutines performs the blocking syscall and posts its completion back
// onto the single eventloop.EventLoop goroutine, which is what actually
// gives callers the ordering and single-dispatch-thread guarantees. This
// is the Go-idiomatic analogue of a completion port, grounded on
// docker-compose's own goroutine-per-blocking-call-then-channel-back shape
// (containerd/journal.go's newLogger feeds two io.Copy goroutines into one
// channel the way this package feeds N blocking ops into one loop).
package ioreactor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compose-http/asynchttp/eventloop"
)

// ErrCancelled is delivered to a completion callback when Stop was called
// before the underlying operation finished.
var ErrCancelled = errors.New("ioreactor: operation cancelled")

// Reactor dispatches blocking I/O onto a bounded worker pool and
// serializes every completion through loop. The pool itself is an
// errgroup.Group with SetLimit, which is what actually bounds and
// supervises concurrent blocking operations here.
type Reactor struct {
	loop eventloop.EventLoop
	grp  *errgroup.Group
}

// New returns a Reactor posting completions to loop, running at most
// maxWorkers blocking operations concurrently.
func New(loop eventloop.EventLoop, maxWorkers int) *Reactor {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	grp := &errgroup.Group{}
	grp.SetLimit(maxWorkers)
	return &Reactor{loop: loop, grp: grp}
}

// Wait blocks until every in-flight blocking operation this Reactor
// started has returned (not until its completion has been dispatched —
// callers that need that should wait on a loop-posted signal instead).
func (r *Reactor) Wait() {
	r.grp.Wait()
}

func (r *Reactor) spawn(fn func()) {
	r.grp.Go(func() error {
		fn()
		return nil
	})
}

func (r *Reactor) post(fn func()) {
	// Loop may already be stopped (server shutting down); a failed Post is
	// not actionable here, the connection/stream is being torn down anyway.
	_ = r.loop.Post(fn)
}

// cancelState is embedded by every op to provide idempotent Stop()
// semantics shared across Accept/Connect/Send/Receive/FileRead/Timer.
type cancelState struct {
	mu        sync.Mutex
	cancelled bool
	cancelFn  context.CancelFunc
}

func (c *cancelState) arm(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFn = cancel
}

func (c *cancelState) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	if c.cancelFn != nil {
		c.cancelFn()
	}
}

func (c *cancelState) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// AcceptOp is a persistent async-accept request. Its callback decides
// whether to re-arm via Rearm — the server uses this
// for admission control, leaving accept un-armed while its connection
// arena is full.
type AcceptOp struct {
	cancelState
	reactor  *Reactor
	listener *net.TCPListener
	cb       func(conn net.Conn, err error)
}

// Accept starts (arms) a single accept attempt on listener. cb runs on the
// loop goroutine exactly once per Rearm/initial Start.
func (r *Reactor) Accept(listener *net.TCPListener, cb func(net.Conn, error)) *AcceptOp {
	op := &AcceptOp{reactor: r, listener: listener, cb: cb}
	op.Rearm()
	return op
}

// Rearm submits one more accept attempt. Safe to call from within cb.
func (op *AcceptOp) Rearm() {
	if op.isCancelled() {
		return
	}
	op.reactor.spawn(func() {
		conn, err := op.listener.Accept()
		op.reactor.post(func() {
			if op.isCancelled() {
				if conn != nil {
					conn.Close()
				}
				op.cb(nil, ErrCancelled)
				return
			}
			op.cb(conn, err)
		})
	})
}

// Stop cancels the outstanding accept; a pending Accept() is unblocked by
// closing the listener is the caller's responsibility (the listener is
// shared with the server, not owned by this op) — Stop only marks future
// completions as cancelled.
func (op *AcceptOp) Stop() { op.stop() }

// ConnectOp is a one-shot async TCP connect.
type ConnectOp struct {
	cancelState
}

// Connect dials network/address on a reactor worker; cb receives the
// established net.Conn or the dial error.
func (r *Reactor) Connect(ctx context.Context, network, address string, cb func(net.Conn, error)) *ConnectOp {
	op := &ConnectOp{}
	dialCtx, cancel := context.WithCancel(ctx)
	op.arm(cancel)
	r.spawn(func() {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, network, address)
		r.post(func() {
			if op.isCancelled() {
				if conn != nil {
					conn.Close()
				}
				cb(nil, ErrCancelled)
				return
			}
			cb(conn, err)
		})
	})
	return op
}

// Stop cancels an in-flight dial.
func (op *ConnectOp) Stop() { op.stop() }

// IOOp is a one-shot async read or write against an io.Reader/io.Writer.
// At most one IOOp is outstanding per stream at a time — the reactor
// itself does not enforce that, the caller (stream package) does.
type IOOp struct {
	cancelState
}

// Receive reads into buf from r, delivering the byte count (0 with no
// error means EOF) or an error to cb.
func (reactor *Reactor) Receive(r io.Reader, buf []byte, cb func(int, error)) *IOOp {
	op := &IOOp{}
	if dl, ok := r.(interface{ SetReadDeadline(time.Time) error }); ok {
		op.arm(func() { dl.SetReadDeadline(time.Unix(0, 1)) })
	}
	reactor.spawn(func() {
		n, err := r.Read(buf)
		reactor.post(func() {
			if op.isCancelled() {
				cb(0, ErrCancelled)
				return
			}
			if err == io.EOF {
				err = nil
				n = 0
			}
			cb(n, err)
		})
	})
	return op
}

// Send writes buf to w, delivering the byte count or an error to cb.
func (reactor *Reactor) Send(w io.Writer, buf []byte, cb func(int, error)) *IOOp {
	op := &IOOp{}
	if dl, ok := w.(interface{ SetWriteDeadline(time.Time) error }); ok {
		op.arm(func() { dl.SetWriteDeadline(time.Unix(0, 1)) })
	}
	reactor.spawn(func() {
		n, err := w.Write(buf)
		reactor.post(func() {
			if op.isCancelled() {
				cb(0, ErrCancelled)
				return
			}
			cb(n, err)
		})
	})
	return op
}

// Stop cancels an in-flight read or write by forcing the underlying
// conn's deadline into the past, if it supports one.
func (op *IOOp) Stop() { op.stop() }

// FileReadOp is a one-shot async file read.
type FileReadOp struct {
	cancelState
}

// FileRead reads up to len(buf) bytes from f at the stream's current
// offset on a reactor worker.
func (reactor *Reactor) FileRead(f *os.File, buf []byte, cb func(int, error)) *FileReadOp {
	op := &FileReadOp{}
	reactor.spawn(func() {
		n, err := f.Read(buf)
		reactor.post(func() {
			if op.isCancelled() {
				cb(0, ErrCancelled)
				return
			}
			if err == io.EOF {
				err = nil
				n = 0
			}
			cb(n, err)
		})
	})
	return op
}

// Stop marks the read cancelled; since os.File reads aren't usually
// interruptible mid-syscall, Stop only suppresses the callback's effect
// once the syscall does return.
func (op *FileReadOp) Stop() { op.stop() }

// TimerOp is a one-shot loop timeout, used by the HTTP client to delay a
// split send (bodyDelay).
type TimerOp struct {
	cancelState
	timer *time.Timer
}

// Timer fires cb on the loop goroutine after d, unless Stop is called
// first.
func (r *Reactor) Timer(d time.Duration, cb func()) *TimerOp {
	op := &TimerOp{}
	op.timer = time.AfterFunc(d, func() {
		r.post(func() {
			if op.isCancelled() {
				return
			}
			cb()
		})
	})
	return op
}

// Stop cancels the timer; idempotent.
func (op *TimerOp) Stop() {
	op.stop()
	if op.timer != nil {
		op.timer.Stop()
	}
}

