// Package pipeline binds one async readable stream to one or more async
// writable sinks, forwarding every data event to each sink and
// propagating end once every in-flight write has completed. A close of
// the source (error or Destroy) is not forwarded to the sinks.
// Grounded on stream.Readable/Writable's own listener-registration shape
// (eventloop.Event's callback dispatch).
package pipeline

import (
	"sync"

	"github.com/compose-http/asynchttp/bufferpool"
	"github.com/compose-http/asynchttp/stream"
)

// Pipeline binds one readable source to N writable sinks.
type Pipeline struct {
	source *stream.Readable
	sinks  []*stream.Writable

	mu        sync.Mutex
	sourceEnded bool
	inFlight  int

	onDone []func()
}

// New constructs a Pipeline over source and sinks. Pipe() must be called
// before Start().
func New(source *stream.Readable, sinks ...*stream.Writable) *Pipeline {
	return &Pipeline{source: source, sinks: sinks}
}

// OnDone registers a listener invoked once every sink has been ended
// after the source's own end.
func (p *Pipeline) OnDone(fn func()) {
	p.mu.Lock()
	p.onDone = append(p.onDone, fn)
	p.mu.Unlock()
}

// Pipe wires the source's data/end events to the sinks: every delivered
// buffer is written to every sink, with backpressure applied by not
// re-arming the source read until all sink writes for the current
// buffer have completed.
func (p *Pipeline) Pipe() {
	p.source.OnData(func(id bufferpool.ID, n int) {
		p.forward(id, n)
	})
	p.source.OnEnd(func() {
		p.mu.Lock()
		p.sourceEnded = true
		done := p.inFlight == 0
		p.mu.Unlock()
		if done {
			p.endSinks()
		}
	})
}

// Start begins reading from the source.
func (p *Pipeline) Start() {
	p.source.Start()
}

func (p *Pipeline) forward(id bufferpool.ID, n int) {
	if len(p.sinks) == 0 {
		return
	}
	p.mu.Lock()
	p.inFlight += len(p.sinks)
	p.mu.Unlock()

	p.source.Pause()
	for _, sink := range p.sinks {
		p.source.Pool().Retain(id)
		sink.WriteBuffer(id, n, func(bufferpool.ID) {
			p.writeCompleted()
		})
	}
}

func (p *Pipeline) writeCompleted() {
	p.mu.Lock()
	p.inFlight--
	drained := p.inFlight == 0
	ended := p.sourceEnded
	p.mu.Unlock()

	if drained {
		p.source.Resume()
	}
	if drained && ended {
		p.endSinks()
	}
}

func (p *Pipeline) endSinks() {
	for _, sink := range p.sinks {
		sink.End()
	}
	listeners := p.collectDone()
	for _, fn := range listeners {
		fn()
	}
}

func (p *Pipeline) collectDone() []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]func(), len(p.onDone))
	copy(out, p.onDone)
	return out
}
