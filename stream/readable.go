// Package stream implements async readable/writable streams: a
// pull/push hybrid over bufferpool.Pool and ioreactor, with multi-cast
// listener registration grounded on docker-compose/eventloop.Event's
// callback-on-the-loop shape.
package stream

import (
	"io"
	"sync"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/ioreactor"
)

// ListenerHandle identifies one registered listener so it can be removed
// without ambiguity.
type ListenerHandle int

// Readable is an async readable stream: it asks the pool for a buffer,
// fills it from source, and emits Data to every listener in
// kernel-completion order — a single reactor worker per stream enforces
// this since only one read is outstanding at a time.
type Readable struct {
	pool     *bufferpool.Pool
	reactor  *ioreactor.Reactor
	source   io.Reader
	autoClose bool
	closer   io.Closer

	mu        sync.Mutex
	nextID    ListenerHandle
	onData    map[ListenerHandle]func(bufferpool.ID, int)
	onEnd     map[ListenerHandle]func()
	onClose   map[ListenerHandle]func(error)
	paused    bool
	destroyed bool
	op        *ioreactor.IOOp
	awaitBuf  bool
}

// NewReadable constructs a Readable pulling from source via reactor,
// filling buffers from pool. If autoClose, source is closed (via closer,
// when non-nil) once the stream ends or errors.
func NewReadable(pool *bufferpool.Pool, reactor *ioreactor.Reactor, source io.Reader, autoClose bool) *Readable {
	var closer io.Closer
	if c, ok := source.(io.Closer); ok {
		closer = c
	}
	return &Readable{
		pool:      pool,
		reactor:   reactor,
		source:    source,
		autoClose: autoClose,
		closer:    closer,
		onData:    make(map[ListenerHandle]func(bufferpool.ID, int)),
		onEnd:     make(map[ListenerHandle]func()),
		onClose:   make(map[ListenerHandle]func(error)),
	}
}

// OnData registers a listener invoked with (bufferID, n) every time a read
// completes with n>0 bytes. The listener runs with the buffer's refcount
// already incremented by 1; it must either use the buffer synchronously
// (refcount is released automatically right after the listener returns)
// or call Pool().Retain(id) before returning to keep it alive longer.
func (r *Readable) OnData(fn func(bufferpool.ID, int)) ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextID
	r.nextID++
	r.onData[h] = fn
	return h
}

// OnEnd registers a listener invoked once, when the source reports EOF.
func (r *Readable) OnEnd(fn func()) ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextID
	r.nextID++
	r.onEnd[h] = fn
	return h
}

// OnClose registers a listener invoked once, on error or after Destroy.
func (r *Readable) OnClose(fn func(error)) ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.nextID
	r.nextID++
	r.onClose[h] = fn
	return h
}

// RemoveListener removes a listener previously registered with OnData,
// OnEnd or OnClose.
func (r *Readable) RemoveListener(h ListenerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.onData, h)
	delete(r.onEnd, h)
	delete(r.onClose, h)
}

// Pool exposes the backing buffer pool, for listeners that need to Retain.
func (r *Readable) Pool() *bufferpool.Pool { return r.pool }

// Start issues the stream's first read.
func (r *Readable) Start() {
	r.armNext()
}

// Pause suspends issuing further reads once the current one completes.
func (r *Readable) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume re-arms reading if it had been paused.
func (r *Readable) Resume() {
	r.mu.Lock()
	wasPaused := r.paused
	r.paused = false
	r.mu.Unlock()
	if wasPaused {
		r.armNext()
	}
}

func (r *Readable) armNext() {
	r.mu.Lock()
	if r.destroyed || r.paused {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	id, ok := r.pool.Acquire()
	if !ok {
		// Backpressure: the pool has nothing free. bufferpool.Release wakes
		// nothing by itself; the stream records that it is waiting and
		// issues no read until Retry is called.
		r.mu.Lock()
		r.awaitBuf = true
		r.mu.Unlock()
		return
	}
	r.issueRead(id)
}

// Retry re-attempts to acquire a buffer after the caller observed one
// being released — queuing a read request and retrying on the next
// release. Safe to call unconditionally; it is a no-op unless this
// stream is actually waiting on a buffer.
func (r *Readable) Retry() {
	r.mu.Lock()
	waiting := r.awaitBuf
	r.mu.Unlock()
	if waiting {
		r.mu.Lock()
		r.awaitBuf = false
		r.mu.Unlock()
		r.armNext()
	}
}

func (r *Readable) issueRead(id bufferpool.ID) {
	buf := r.pool.WritableData(id)
	r.mu.Lock()
	r.op = r.reactor.Receive(r.source, buf, func(n int, err error) {
		r.onReadComplete(id, n, err)
	})
	r.mu.Unlock()
}

func (r *Readable) onReadComplete(id bufferpool.ID, n int, err error) {
	r.mu.Lock()
	destroyed := r.destroyed
	r.mu.Unlock()
	if destroyed {
		r.pool.Release(id)
		return
	}

	if err != nil {
		r.pool.Release(id)
		r.closeSource()
		r.fireClose(err)
		return
	}

	if n == 0 {
		r.pool.Release(id)
		r.closeSource()
		r.fireEnd()
		return
	}

	r.fireData(id, n)
	r.pool.Release(id)

	r.mu.Lock()
	paused := r.paused
	r.mu.Unlock()
	if !paused {
		r.armNext()
	}
}

func (r *Readable) closeSource() {
	if r.autoClose && r.closer != nil {
		r.closer.Close()
	}
}

func (r *Readable) fireData(id bufferpool.ID, n int) {
	r.mu.Lock()
	listeners := make([]func(bufferpool.ID, int), 0, len(r.onData))
	for _, fn := range r.onData {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()
	r.pool.Retain(id)
	for _, fn := range listeners {
		fn(id, n)
	}
	// Listeners ran synchronously; a listener wanting the buffer past this
	// point must have called Pool().Retain(id) itself before returning, in
	// which case this Release merely undoes the temporary reference above
	// and the listener's own retain keeps it alive.
	r.pool.Release(id)
}

func (r *Readable) fireEnd() {
	r.mu.Lock()
	listeners := make([]func(), 0, len(r.onEnd))
	for _, fn := range r.onEnd {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (r *Readable) fireClose(err error) {
	r.mu.Lock()
	listeners := make([]func(error), 0, len(r.onClose))
	for _, fn := range r.onClose {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Destroy cancels the outstanding read, emits Close, and de-registers
// listeners. No further callbacks fire after Destroy returns.
func (r *Readable) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	op := r.op
	r.mu.Unlock()
	if op != nil {
		op.Stop()
	}
	r.closeSource()
	r.fireClose(ioreactor.ErrCancelled)
	r.mu.Lock()
	r.onData = map[ListenerHandle]func(bufferpool.ID, int){}
	r.onEnd = map[ListenerHandle]func(){}
	r.onClose = map[ListenerHandle]func(error){}
	r.mu.Unlock()
}
