// Package netutil applies socket-level tuning treated as an external
// collaborator of the event loop: SO_REUSEADDR on the listening socket
// and TCP_NODELAY on accepted connections, set directly via
// golang.org/x/sys/unix rather than relying on whatever defaults the
// standard library's net package picks.
package netutil

import (
	"net"

	"golang.org/x/sys/unix"
)

// TuneListener sets SO_REUSEADDR on ln's underlying file descriptor so a
// restarted server can rebind its address immediately.
func TuneListener(ln *net.TCPListener) error {
	raw, err := ln.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// TuneConn sets TCP_NODELAY on conn's underlying file descriptor,
// disabling Nagle's algorithm so small HTTP header writes aren't delayed.
func TuneConn(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
