package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/orderhub/internal/hub"
	"github.com/and161185/orderhub/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
	_                 = hub.Member((*conn)(nil))
)

// conn is one WebSocket connection. Every outbound frame goes through send
// so that writePump is the only writer.
type conn struct {
	id      string
	ws      *websocket.Conn
	account model.Account
	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	once      sync.Once
	closeCode int

	mu    sync.Mutex
	state State
}

func newConn(ws *websocket.Conn, cfg Config, log *zap.Logger) *conn {
	id := newConnID()
	return &conn{
		id:      id,
		ws:      ws,
		cfg:     cfg,
		log:     log.With(zap.String("conn", id)),
		limiter: newLimiter(cfg),
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		state:   Connecting,
	}
}

// ID implements hub.Member.
func (c *conn) ID() string { return c.id }

// Deliver implements hub.Member. It never blocks.
func (c *conn) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *conn) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode reply", zap.Error(err))
		return
	}
	if err := c.Deliver(b); err != nil {
		c.log.Warn("reply dropped", zap.Error(err))
	}
}

func (c *conn) setState(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

func (c *conn) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// shutdown stops the writer, which then sends a close frame with code.
// Only the first call has an effect.
func (c *conn) shutdown(code int) {
	c.once.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// closeWith sends a close control frame with no reason text.
func (c *conn) closeWith(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.fail(err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			c.closeWith(c.closeCode)
			// let the peer answer the close, then unblock the reader
			_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// fail tears the transport down after a write error so the reader exits too.
func (c *conn) fail(err error) {
	c.log.Debug("connection write", zap.Error(err))
	c.shutdown(websocket.CloseAbnormalClosure)
	_ = c.ws.Close()
}
