//go:build unix

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl sets SO_REUSEADDR on the listening socket before bind,
// matching TcpConnection::ConfigSocket's SetReuseAddr(). net.ListenConfig
// does not expose this knob directly, so we reach the raw fd via
// syscall.RawConn the way the teacher's platform-specific udp-listener
// files (client_udp_listener_unix.go / _windows.go) split behavior by OS.
func listenControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// tuneBuffers sets the send/recv socket buffer sizes and enables
// keepalive with system defaults, matching ConfigSocket's
// SetSendBufferSize/SetRecvBufferSize/SetKeepAlive.
func tuneBuffers(conn *net.TCPConn, sendBytes, recvBytes int) error {
	if err := conn.SetWriteBuffer(sendBytes); err != nil {
		return err
	}
	if err := conn.SetReadBuffer(recvBytes); err != nil {
		return err
	}
	return conn.SetKeepAlive(true)
}
