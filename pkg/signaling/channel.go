// Package signaling carries typed signaling messages over one
// message connection per session.
package signaling

import (
	"errors"
	"sync"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network/websocket"
)

// Reason says why a channel has ended.
type Reason string

const (
	ClientInitiated Reason = "client-initiated"
	TransportFailed Reason = "transport-error"
	Timeout         Reason = "timeout"
)

var ErrChannelClosed = errors.New("signaling: channel closed")

// Conn is a message connection, a websocket usually.
type Conn interface {
	SetMessageHandler(fn func(message []byte, err error))
	// SetCloseHandler gets nil when the connection was closed on this side.
	SetCloseHandler(fn func(err error))
	Listen() chan struct{}
	Write(data []byte) error
	Close()
}

// Channel is a bidirectional stream of signaling messages.
// Sent messages are delivered in the FIFO order, inbound messages
// are handed over in the order of arrival.
type Channel struct {
	conn     Conn
	cameraId string
	log      *logger.Logger

	mu        sync.Mutex
	dmu       sync.Mutex // keeps the delivery order
	onMessage func(api.Message, error)
	backlog   []inboundMessage
	onClose   func(Reason)
	reason    Reason
	closed    bool
	ended     bool
	closeOnce sync.Once
}

type inboundMessage struct {
	m   api.Message
	err error
}

// Accept opens the server end of a channel for a camera.
// The very first message it sends is the welcome with the given status.
func Accept(conn Conn, cameraId string, status string, log *logger.Logger) (*Channel, error) {
	c := newChannel(conn, cameraId, log)
	if err := c.Send(api.Welcome{CameraId: cameraId, Status: status}); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Connect opens the viewer end of a channel.
func Connect(conn Conn, cameraId string, log *logger.Logger) *Channel {
	return newChannel(conn, cameraId, log)
}

func newChannel(conn Conn, cameraId string, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.Default()
	}
	c := &Channel{
		conn:     conn,
		cameraId: cameraId,
		log:      log.Extend(log.With().Str(logger.CameraField, cameraId)),
	}
	conn.SetMessageHandler(c.handleMessage)
	conn.SetCloseHandler(c.handleClose)
	conn.Listen()
	return c
}

func (c *Channel) CameraId() string { return c.cameraId }

// Send queues a message, it fails with ErrChannelClosed once the channel is closed.
func (c *Channel) Send(m api.Message) error {
	c.mu.Lock()
	closed := c.closed || c.ended
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	data, err := api.Encode(m)
	if err != nil {
		return err
	}
	if err = c.conn.Write(data); err != nil {
		if errors.Is(err, websocket.ErrClosed) {
			return ErrChannelClosed
		}
		return err
	}
	c.log.Debug().Str("dir", "→").Msgf("%v", m.Type())
	return nil
}

// OnMessage sets the handler of inbound messages.
// Undecodable messages come as *api.SignalingError.
// Messages that came before the handler was set are handed over first.
func (c *Channel) OnMessage(fn func(api.Message, error)) {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.mu.Lock()
	c.onMessage = fn
	backlog := c.backlog
	c.backlog = nil
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, in := range backlog {
		fn(in.m, in.err)
	}
}

// OnClose sets the handler that is called exactly once when the channel ends.
// If the channel has already ended, the handler is called right away.
func (c *Channel) OnClose(fn func(Reason)) {
	c.mu.Lock()
	c.onClose = fn
	ended, reason := c.ended, c.reason
	c.mu.Unlock()
	if ended {
		c.fireClose(fn, reason)
	}
}

// Close ends the channel on this side.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Channel) handleMessage(data []byte, err error) {
	var m api.Message
	if err == nil {
		m, err = api.Decode(data)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("bad message")
	} else {
		c.log.Debug().Str("dir", "←").Msgf("%v", m.Type())
	}
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.mu.Lock()
	fn := c.onMessage
	if fn == nil {
		c.backlog = append(c.backlog, inboundMessage{m: m, err: err})
	}
	c.mu.Unlock()
	if fn != nil {
		fn(m, err)
	}
}

func (c *Channel) handleClose(err error) {
	reason := reasonOf(err)
	c.mu.Lock()
	c.ended, c.reason = true, reason
	fn := c.onClose
	c.mu.Unlock()
	c.log.Debug().Err(err).Msgf("channel end (%v)", reason)
	if fn != nil {
		c.fireClose(fn, reason)
	}
}

func (c *Channel) fireClose(fn func(Reason), reason Reason) {
	c.closeOnce.Do(func() { fn(reason) })
}

func reasonOf(err error) Reason {
	switch {
	case err == nil, websocket.IsNormalClose(err):
		return ClientInitiated
	case websocket.IsTimeout(err):
		return Timeout
	default:
		return TransportFailed
	}
}
