package stream

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/compose-http/asynchttp/bufferpool"
)

func TestWritableSerializesWritesFIFO(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	pool, reactor := newTestHarness(t)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	w := NewWritable(pool, reactor, client)

	var received bytes.Buffer
	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := server.Read(buf)
			if n > 0 {
				received.Write(buf[:n])
			}
			if err != nil {
				close(readDone)
				return
			}
		}
	}()

	var completions []string
	done := make(chan struct{})
	w.Write([]byte("one "), func() { completions = append(completions, "one") })
	w.Write([]byte("two "), func() { completions = append(completions, "two") })
	w.Write([]byte("three"), func() {
		completions = append(completions, "three")
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writes never completed")
	}
	assert.Equal(t, []string{"one", "two", "three"}, completions)

	server.Close()
	<-readDone
	assert.Equal(t, "one two three", received.String())
}

func TestWritableEndFiresFinishOnceQueueDrains(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	pool, reactor := newTestHarness(t)

	server, client := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	w := NewWritable(pool, reactor, client)
	finished := make(chan struct{})
	w.OnFinish(func() { close(finished) })

	w.Write([]byte("payload"), nil)
	w.End()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish never fired")
	}
	server.Close()
}

func TestWritableBufferReleasedOnCompletion(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	pool, reactor := newTestHarness(t)

	server, client := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	id, ok := pool.Acquire()
	require.True(t, ok)
	copy(pool.WritableData(id), []byte("abc"))

	w := NewWritable(pool, reactor, client)
	done := make(chan struct{})
	w.WriteBuffer(id, 3, func(bufferpool.ID) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write never completed")
	}
	require.Eventually(t, func() bool {
		return pool.Refcount(id) == 0
	}, time.Second, time.Millisecond, "buffer must be released back to the pool once the write completes")
	server.Close()
}

func TestWritableEnqueueAfterEndReleasesBuffer(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	pool, reactor := newTestHarness(t)

	_, client := net.Pipe()
	defer client.Close()

	w := NewWritable(pool, reactor, client)
	w.End()

	id, ok := pool.Acquire()
	require.True(t, ok)
	w.WriteBuffer(id, 1, nil)

	assert.Equal(t, uint32(0), pool.Refcount(id), "a write queued after End must release its buffer immediately")
}
