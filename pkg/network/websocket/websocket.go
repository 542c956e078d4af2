package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	closeWait      = 5 * time.Second
	writeWait      = 10 * time.Second
)

var ErrClosed = errors.New("websocket is closed")

// WS is a websocket connection with serialized reads and writes.
// Reads are handed to the message handler, writes are queued
// and flushed by a single writer goroutine in the FIFO order.
type WS struct {
	id   network.Uid
	conn frameConn
	send chan []byte

	onMessage func(message []byte, err error)
	onClose   func(err error)

	pingPong bool
	local    bool
	err      error

	mu       sync.Mutex
	once     sync.Once
	listen   sync.Once
	closing  chan struct{}
	shutdown sync.WaitGroup
	Done     chan struct{}

	log *logger.Logger
}

var DefaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	WriteBufferPool: &sync.Pool{},
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewServer upgrades an incoming HTTP request into a websocket connection.
// Server connections keep the client alive with pings.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := DefaultUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

// NewClient dials a websocket server.
func NewClient(ctx context.Context, address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	if log == nil {
		log = logger.Default()
	}
	id := network.NewUid()
	return &WS{
		id:       id,
		conn:     frameConn{conn},
		send:     make(chan []byte, 32),
		pingPong: pingPong,
		closing:  make(chan struct{}),
		Done:     make(chan struct{}),
		log:      log.Extend(log.With().Str("ws", id.Short())),
	}
}

func (ws *WS) Id() network.Uid { return ws.id }

// SetMessageHandler sets a callback for all incoming messages.
// Should be called before Listen.
func (ws *WS) SetMessageHandler(fn func(message []byte, err error)) {
	ws.mu.Lock()
	ws.onMessage = fn
	ws.mu.Unlock()
}

// SetCloseHandler sets a callback that is called once the connection has ended.
// The error is nil when the connection was closed by this side,
// otherwise it is the error that broke the read loop.
func (ws *WS) SetCloseHandler(fn func(err error)) {
	ws.mu.Lock()
	ws.onClose = fn
	ws.mu.Unlock()
}

// Listen starts the read and write pumps.
func (ws *WS) Listen() chan struct{} {
	ws.listen.Do(func() {
		ws.shutdown.Add(2)
		go ws.writer()
		go ws.reader()
		go ws.finish()
	})
	return ws.Done
}

// Write queues a text message.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.closing:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.closing:
		return ErrClosed
	}
}

// Close flushes the queued messages, sends a close frame
// and waits for the other side to confirm it.
func (ws *WS) Close() {
	ws.mu.Lock()
	ws.local = true
	ws.mu.Unlock()
	ws.stop()
}

func (ws *WS) stop() { ws.once.Do(func() { close(ws.closing) }) }

// reader pumps messages from the websocket connection to the message handler.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.stop()
		ws.shutdown.Done()
		ws.log.Debug().Msg("close reader")
	}()
	ws.conn.limit(ws.pingPong)
	for {
		message, err := ws.conn.next()
		if err != nil {
			ws.mu.Lock()
			if !ws.local {
				ws.err = err
			}
			ws.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Warn().Err(err).Msg("read")
			}
			return
		}
		ws.mu.Lock()
		handler := ws.onMessage
		ws.mu.Unlock()
		if handler != nil {
			handler(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var ping <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		ws.shutdown.Done()
		ws.log.Debug().Msg("close writer")
	}()
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.text(message); err != nil {
				ws.log.Warn().Err(err).Msg("write")
				_ = ws.conn.Close()
				return
			}
		case <-ping:
			if err := ws.conn.ping(); err != nil {
				ws.log.Warn().Err(err).Msg("ping")
				_ = ws.conn.Close()
				return
			}
		case <-ws.closing:
			ws.flush()
			return
		}
	}
}

// flush writes what's left in the queue and says goodbye.
func (ws *WS) flush() {
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.text(message); err != nil {
				_ = ws.conn.Close()
				return
			}
		default:
			if err := ws.conn.goodbye(); err != nil {
				_ = ws.conn.Close()
			}
			return
		}
	}
}

func (ws *WS) finish() {
	ws.shutdown.Wait()
	_ = ws.conn.Close()
	ws.mu.Lock()
	err, fn := ws.err, ws.onClose
	ws.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	close(ws.Done)
}

// IsTimeout checks whether the connection was dropped by a read deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNormalClose checks whether the other side closed the connection on purpose.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
