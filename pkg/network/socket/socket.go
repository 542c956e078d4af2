// Package socket opens the UDP socket shared by the ICE agents
// in the single port mode.
package socket

import (
	"errors"
	"net"
	"runtime"
	"syscall"
)

const (
	listenAttempts = 42
	udpBufferSize  = 16 * 1024 * 1024
)

var ErrNoFreePort = errors.New("no available ports")

// ListenUDP opens a UDP socket with big OS buffers on the port.
// With roll set a busy port is replaced by one of the next free ones.
func ListenUDP(port int, roll bool) (*net.UDPConn, error) {
	last := port
	if roll {
		last = port + listenAttempts - 1
	}
	var err error
	for p := port; p <= last; p++ {
		var conn *net.UDPConn
		if conn, err = net.ListenUDP("udp", &net.UDPAddr{Port: p}); err == nil {
			_ = conn.SetReadBuffer(udpBufferSize)
			_ = conn.SetWriteBuffer(udpBufferSize)
			return conn, nil
		}
		if !IsPortBusyError(err) {
			return nil, err
		}
	}
	if roll {
		return nil, ErrNoFreePort
	}
	return nil, err
}

// IsPortBusyError tells whether a listen failed on a taken port.
func IsPortBusyError(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	const wsaeaddrinuse = 10048
	var errno syscall.Errno
	return runtime.GOOS == "windows" && errors.As(err, &errno) && errno == wsaeaddrinuse
}
