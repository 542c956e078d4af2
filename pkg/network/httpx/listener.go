package httpx

import (
	"net"
	"strconv"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network/socket"
)

const portRollAttempts = 42

type Listener struct {
	net.Listener
}

// NewListener listens on the TCP address. With roll set a busy port
// is replaced by one of the next free ports.
func NewListener(address string, roll bool, log *logger.Logger) (*Listener, error) {
	ls, err := net.Listen("tcp4", address)
	if err == nil {
		return &Listener{ls}, nil
	}
	if !roll || !socket.IsPortBusyError(err) {
		return nil, err
	}
	host, p, _ := net.SplitHostPort(address)
	port, perr := strconv.Atoi(p)
	if perr != nil {
		return nil, err
	}
	for i := port + 1; i < port+portRollAttempts; i++ {
		addr := net.JoinHostPort(host, strconv.Itoa(i))
		if ls, err = net.Listen("tcp4", addr); err == nil {
			if log != nil {
				log.Debug().Msgf("Port %v is busy, took %v", port, i)
			}
			return &Listener{ls}, nil
		}
	}
	return nil, err
}

// Port is the TCP port the listener got.
func (l *Listener) Port() int {
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
