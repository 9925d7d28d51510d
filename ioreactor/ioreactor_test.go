package ioreactor

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/compose-http/asynchttp/eventloop"
)

func newTestReactor(t *testing.T) (*Reactor, eventloop.EventLoop) {
	t.Helper()
	loop := eventloop.NewChanLoop(64)
	require.NoError(t, loop.Start())
	t.Cleanup(loop.Stop)
	return New(loop, 4), loop
}

func TestAcceptConnectRoundTrip(t *testing.T) {
	r, _ := newTestReactor(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpLn := ln.(*net.TCPListener)
	defer tcpLn.Close()

	accepted := make(chan net.Conn, 1)
	op := r.Accept(tcpLn, func(conn net.Conn, err error) {
		require.NoError(t, err)
		accepted <- conn
	})
	defer op.Stop()

	connected := make(chan net.Conn, 1)
	r.Connect(context.Background(), "tcp", tcpLn.Addr().String(), func(conn net.Conn, err error) {
		require.NoError(t, err)
		connected <- conn
	})

	select {
	case c := <-accepted:
		defer c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept never completed")
	}
	select {
	case c := <-connected:
		defer c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("connect never completed")
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	r, _ := newTestReactor(t)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	received := make(chan string, 1)
	buf := make([]byte, 16)
	r.Receive(server, buf, func(n int, err error) {
		require.NoError(t, err)
		received <- string(buf[:n])
	})

	sent := make(chan int, 1)
	r.Send(client, []byte("hello"), func(n int, err error) {
		require.NoError(t, err)
		sent <- n
	})

	select {
	case n := <-sent:
		assert.Equal(t, 5, n)
	case <-time.After(2 * time.Second):
		t.Fatal("send never completed")
	}
	select {
	case s := <-received:
		assert.Equal(t, "hello", s)
	case <-time.After(2 * time.Second):
		t.Fatal("receive never completed")
	}
}

func TestTimerFiresAfterDelay(t *testing.T) {
	r, _ := newTestReactor(t)

	fired := make(chan struct{})
	start := time.Now()
	r.Timer(30*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerStopPreventsCallback(t *testing.T) {
	r, _ := newTestReactor(t)

	fired := make(chan struct{})
	op := r.Timer(20*time.Millisecond, func() { close(fired) })
	op.Stop()

	select {
	case <-fired:
		t.Fatal("stopped timer must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectCancelledAfterDial(t *testing.T) {
	r, _ := newTestReactor(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpLn := ln.(*net.TCPListener)
	defer tcpLn.Close()

	go func() {
		c, err := tcpLn.Accept()
		if err == nil {
			c.Close()
		}
	}()

	result := make(chan error, 1)
	op := r.Connect(context.Background(), "tcp", tcpLn.Addr().String(), func(conn net.Conn, err error) {
		if conn != nil {
			conn.Close()
		}
		result <- err
	})
	op.Stop() // racing the dial; either outcome is valid, both must be reported

	select {
	case err := <-result:
		_ = err // ErrCancelled or nil depending on the race; both are handled by caller.
	case <-time.After(2 * time.Second):
		t.Fatal("connect callback never ran")
	}
}

// TestSendPostsCompletionThroughMockLoop exercises Reactor.Send against a
// mocked eventloop.EventLoop and an in-memory io.Writer, so the assertion
// depends on neither a real dispatch goroutine nor a real socket: the
// mock's Post implementation runs the completion inline, exactly as a
// loop would eventually do.
func TestSendPostsCompletionThroughMockLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := eventloop.NewMockEventLoop(ctrl)
	loop.EXPECT().Post(gomock.Any()).DoAndReturn(func(fn func()) error {
		fn()
		return nil
	})

	r := New(loop, 1)
	var buf bytes.Buffer
	done := make(chan struct{})
	var gotN int
	var gotErr error
	r.Send(&buf, []byte("hello"), func(n int, err error) {
		gotN, gotErr = n, err
		close(done)
	})
	r.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send completion never posted")
	}
	require.NoError(t, gotErr)
	assert.Equal(t, 5, gotN)
	assert.Equal(t, "hello", buf.String())
}

// TestReceivePostsCompletionThroughMockLoop mirrors the Send case for
// Receive, again with no real socket and no real loop goroutine.
func TestReceivePostsCompletionThroughMockLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := eventloop.NewMockEventLoop(ctrl)
	loop.EXPECT().Post(gomock.Any()).DoAndReturn(func(fn func()) error {
		fn()
		return nil
	})

	r := New(loop, 1)
	src := bytes.NewBufferString("hello")
	buf := make([]byte, 16)
	done := make(chan struct{})
	var gotN int
	var gotErr error
	r.Receive(src, buf, func(n int, err error) {
		gotN, gotErr = n, err
		close(done)
	})
	r.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive completion never posted")
	}
	require.NoError(t, gotErr)
	assert.Equal(t, "hello", string(buf[:gotN]))
}
