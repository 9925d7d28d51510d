package stream

import (
	"io"
	"sync"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/ioreactor"
)

// writeRequest is a queued buffer span plus its per-write completion
// callback.
type writeRequest struct {
	id        bufferpool.ID
	data      []byte
	ownBuffer bool
	completion func(bufferpool.ID)
}

// Writable is an async writable stream: writes are serialized through sink
// one at a time (at most one write outstanding), queued FIFO otherwise.
type Writable struct {
	pool *bufferpool.Pool
	sink io.Writer

	mu       sync.Mutex
	pending  []writeRequest
	writing  bool
	ended    bool
	finished bool
	destroyed bool
	op       *ioreactor.IOOp

	onDrain  []func()
	onFinish []func()

	reactor *ioreactor.Reactor
}

// NewWritable constructs a Writable draining into sink via reactor.
func NewWritable(pool *bufferpool.Pool, reactor *ioreactor.Reactor, sink io.Writer) *Writable {
	return &Writable{pool: pool, sink: sink, reactor: reactor}
}

// Pool exposes the backing buffer pool, so a caller building a new
// readable stream to pipe into this sink (e.g. the file server) can share
// the same pool.
func (w *Writable) Pool() *bufferpool.Pool { return w.pool }

// Write enqueues data (already the caller's bytes, not pool-backed) for
// sending; completion fires once this specific write has been flushed to
// the sink.
func (w *Writable) Write(data []byte, completion func()) {
	w.enqueue(writeRequest{id: -1, data: data, completion: func(bufferpool.ID) {
		if completion != nil {
			completion()
		}
	}})
}

// WriteBuffer enqueues a pool-owned buffer for sending. The caller's
// existing reference (from Pool().Acquire) transfers to the stream, which
// releases it back to the pool once the kernel write completes — the
// caller must not also release id itself.
func (w *Writable) WriteBuffer(id bufferpool.ID, n int, completion func(bufferpool.ID)) {
	w.enqueue(writeRequest{id: id, data: w.pool.ReadableData(id, n), ownBuffer: true, completion: completion})
}

func (w *Writable) enqueue(req writeRequest) {
	w.mu.Lock()
	if w.destroyed || w.ended {
		w.mu.Unlock()
		if req.ownBuffer {
			w.pool.Release(req.id)
		}
		return
	}
	w.pending = append(w.pending, req)
	writing := w.writing
	w.mu.Unlock()
	if !writing {
		w.pump()
	}
}

func (w *Writable) pump() {
	w.mu.Lock()
	if w.writing || w.destroyed {
		w.mu.Unlock()
		return
	}
	if len(w.pending) == 0 {
		ended := w.ended
		finished := w.finished
		w.mu.Unlock()
		if ended && !finished {
			w.markFinished()
		}
		return
	}
	req := w.pending[0]
	w.pending = w.pending[1:]
	w.writing = true
	w.mu.Unlock()

	w.op = w.reactor.Send(w.sink, req.data, func(n int, err error) {
		w.onWriteComplete(req, n, err)
	})
}

func (w *Writable) onWriteComplete(req writeRequest, n int, err error) {
	w.mu.Lock()
	w.writing = false
	w.mu.Unlock()

	if req.ownBuffer {
		w.pool.Release(req.id)
	}
	if req.completion != nil {
		req.completion(req.id)
	}
	if err != nil {
		w.Destroy()
		return
	}
	w.fireDrain()
	w.pump()
}

// OnDrain registers a listener invoked after every individual write
// completes successfully.
func (w *Writable) OnDrain(fn func()) {
	w.mu.Lock()
	w.onDrain = append(w.onDrain, fn)
	w.mu.Unlock()
}

// OnFinish registers a listener invoked once, after End() and every
// queued write have completed.
func (w *Writable) OnFinish(fn func()) {
	w.mu.Lock()
	w.onFinish = append(w.onFinish, fn)
	w.mu.Unlock()
}

func (w *Writable) fireDrain() {
	w.mu.Lock()
	listeners := append([]func(){}, w.onDrain...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (w *Writable) markFinished() {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return
	}
	w.finished = true
	listeners := append([]func(){}, w.onFinish...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// End marks no further writes will be queued; once the queue drains,
// Finish fires.
func (w *Writable) End() {
	w.mu.Lock()
	w.ended = true
	writing := w.writing
	empty := len(w.pending) == 0
	w.mu.Unlock()
	if empty && !writing {
		w.markFinished()
	}
}

// Destroy cancels any outstanding write and releases queued buffers.
func (w *Writable) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	op := w.op
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	if op != nil {
		op.Stop()
	}
	for _, req := range pending {
		if req.ownBuffer {
			w.pool.Release(req.id)
		}
	}
}
