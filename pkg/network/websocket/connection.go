package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// frameConn applies the framing rules of the signaling sockets:
// bounded text frames, write deadlines and the pong keep-alive.
type frameConn struct {
	*websocket.Conn
}

// limit bounds the frames, with keepAlive reads fail when the other
// side stops answering the pings.
func (c frameConn) limit(keepAlive bool) {
	c.SetReadLimit(maxMessageSize)
	if !keepAlive {
		return
	}
	extend := func(string) error { return c.SetReadDeadline(time.Now().Add(pongTime)) }
	_ = extend("")
	c.SetPongHandler(extend)
}

func (c frameConn) next() ([]byte, error) {
	_, message, err := c.ReadMessage()
	return message, err
}

func (c frameConn) text(data []byte) error {
	if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func (c frameConn) ping() error {
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// goodbye sends the close frame and leaves the reader closeWait
// to get the answer.
func (c frameConn) goodbye() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.SetReadDeadline(time.Now().Add(closeWait))
}
