//go:build !unix

package transport

import (
	"net"
	"syscall"
)

// listenControl is a no-op on non-unix platforms; SO_REUSEADDR tuning via
// golang.org/x/sys/unix is unix-specific, mirroring the teacher's own
// per-OS split (client_udp_listener_unix.go / _windows.go).
func listenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}

func tuneBuffers(conn *net.TCPConn, sendBytes, recvBytes int) error {
	if err := conn.SetWriteBuffer(sendBytes); err != nil {
		return err
	}
	if err := conn.SetReadBuffer(recvBytes); err != nil {
		return err
	}
	return conn.SetKeepAlive(true)
}
