// Package bufferpool implements a fixed set of reusable byte buffers
// addressable by stable ID. Unlike sync.Pool, buffers here are
// enumerable, keep the same id/backing memory for the pool's whole
// lifetime, and track an explicit refcount so async streams can hold a
// buffer across a suspension point.
package bufferpool

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// ID identifies one buffer. The same ID always refers to the same backing
// memory for the lifetime of the Pool.
type ID int

const noBuffer ID = -1

type entry struct {
	memory   []byte
	reusable bool
	refcount uint32
}

// Pool is a fixed-capacity set of byte buffers.
type Pool struct {
	mu      sync.Mutex
	entries []entry

	inUse metric.Int64UpDownCounter
}

// New allocates count buffers of bufSize bytes each, all initially
// reusable and with refcount 0. meter may be nil, in which case occupancy
// is not instrumented.
func New(count, bufSize int, meter metric.Meter) *Pool {
	p := &Pool{entries: make([]entry, count)}
	for i := range p.entries {
		p.entries[i] = entry{memory: make([]byte, bufSize), reusable: true}
	}
	if meter != nil {
		p.inUse, _ = meter.Int64UpDownCounter(
			"bufferpool.buffers_in_use",
			metric.WithDescription("buffers currently leased out of the pool"),
		)
	}
	return p
}

// Len returns the pool's fixed capacity.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Acquire returns the lowest-index buffer with refcount 0 that is
// reusable, incrementing its refcount to 1. It returns (-1, false) if none
// is currently available — the caller (an async readable stream) should
// queue its read and retry on the next Release.
func (p *Pool) Acquire() (ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		e := &p.entries[i]
		if e.refcount == 0 && e.reusable {
			e.refcount = 1
			p.bump(1)
			return ID(i), true
		}
	}
	return noBuffer, false
}

// Retain increments the refcount of an already-acquired buffer — used by a
// listener that wants to hold a buffer past the callback that delivered it.
func (p *Pool) Retain(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[id].refcount++
}

// Release decrements the refcount; at 0 the buffer becomes available again
// if it is still marked reusable.
func (p *Pool) Release(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := &p.entries[id]
	if e.refcount == 0 {
		return
	}
	e.refcount--
	if e.refcount == 0 {
		p.bump(-1)
	}
}

// SetReusable controls whether a buffer is returned to the free list once
// its refcount drops to 0. A non-reusable buffer is leased to a single
// stream for that stream's lifetime.
func (p *Pool) SetReusable(id ID, reusable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[id].reusable = reusable
}

// WritableData returns the full mutable backing slice for id, for a reader
// (socket/file) to fill.
func (p *Pool) WritableData(id ID) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id].memory
}

// ReadableData returns the first n bytes of id's backing memory.
func (p *Pool) ReadableData(id ID, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id].memory[:n]
}

// Refcount reports a buffer's current refcount, mostly for tests.
func (p *Pool) Refcount(id ID) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id].refcount
}

func (p *Pool) bump(delta int64) {
	if p.inUse == nil {
		return
	}
	p.inUse.Add(context.Background(), delta)
}
