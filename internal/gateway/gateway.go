// Package gateway serves authenticated WebSocket connections that create
// orders and receive order broadcasts.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/and161185/orderhub/internal/authctx"
	"github.com/and161185/orderhub/internal/hub"
	"github.com/and161185/orderhub/internal/metrics"
	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/service"
	"github.com/and161185/orderhub/internal/workpool"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CloseHandshakeRejected is sent when the bearer credential is missing or invalid.
const CloseHandshakeRejected = 4001

// Authenticator resolves an access token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.Account, error)
}

// Config tunes per-connection limits.
type Config struct {
	HandshakeTimeout time.Duration
	OrderTimeout     time.Duration // slot wait plus write; capped at PongWait-PingPeriod
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration // must be < PongWait
	MaxMessageSize   int64
	SendBuffer       int
	MsgRate          float64 // per second; <= 0 disables limiting
	MsgBurst         int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		OrderTimeout:     5 * time.Second,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		PingPeriod:       54 * time.Second,
		MaxMessageSize:   64 << 10,
		SendBuffer:       64,
		MsgRate:          10,
		MsgBurst:         20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = d.OrderTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	// an order blocks the reader; it must be back before the next pong is overdue
	if slack := c.PongWait - c.PingPeriod; c.OrderTimeout > slack {
		c.OrderTimeout = slack
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

// Gateway upgrades HTTP requests and runs each connection's state machine.
type Gateway struct {
	auth     Authenticator
	orders   service.OrderPipeline
	hub      *hub.Manager
	pool     *workpool.Pool
	cfg      Config
	log      *zap.Logger
	rec      metrics.Recorder
	upgrader websocket.Upgrader
	handlers map[MessageType]handlerFunc

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Gateway. A nil rec disables metrics.
func New(
	auth Authenticator,
	orders service.OrderPipeline,
	m *hub.Manager,
	pool *workpool.Pool,
	cfg Config,
	log *zap.Logger,
	rec metrics.Recorder,
) *Gateway {
	if rec == nil {
		rec = metrics.Nop{}
	}
	g := &Gateway{
		auth:   auth,
		orders: orders,
		hub:    m,
		pool:   pool,
		cfg:    cfg.withDefaults(),
		log:    log,
		rec:    rec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*conn]struct{}),
	}
	g.handlers = g.handlerTable()
	return g
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	acc, authErr := g.authenticate(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(ws, g.cfg, g.log)
	if authErr != nil {
		g.reject(c, authErr)
		return
	}
	c.account = *acc

	if !g.track(c) {
		c.closeWith(websocket.CloseGoingAway)
		_ = c.setState(Closed)
		_ = ws.Close()
		return
	}
	defer g.untrack(c)

	if err := g.hub.Register(c, hub.GroupOrders); err != nil {
		g.log.Warn("register connection", zap.String("conn", c.id), zap.Error(err))
		c.closeWith(websocket.CloseTryAgainLater)
		_ = c.setState(Closed)
		_ = ws.Close()
		return
	}
	_ = c.setState(Authenticated)
	g.rec.ConnectionOpened()
	g.log.Info("connection open",
		zap.String("conn", c.id),
		zap.String("account", c.account.ID.String()),
		zap.String("remote", r.RemoteAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	g.readPump(ctx, c)

	// teardown runs synchronously, whatever ended the read loop
	g.hub.DeregisterAll(c)
	cancel()
	c.shutdown(websocket.CloseNormalClosure)
	<-writerDone
	_ = ws.Close()
	_ = c.setState(Closed)
	g.rec.ConnectionClosed()
	g.log.Info("connection closed", zap.String("conn", c.id))
}

func (g *Gateway) authenticate(r *http.Request) (*model.Account, error) {
	tok, ok := authctx.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, errors.New("missing or malformed bearer credential")
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HandshakeTimeout)
	defer cancel()
	return g.auth.Authenticate(ctx, tok)
}

func (g *Gateway) reject(c *conn, reason error) {
	c.closeWith(CloseHandshakeRejected)
	_ = c.setState(Closed)
	_ = c.ws.Close()
	g.rec.RecordHandshakeRejected()
	g.log.Info("handshake rejected", zap.String("remote", c.ws.RemoteAddr().String()), zap.Error(reason))
}

func (g *Gateway) readPump(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(g.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				g.log.Debug("connection read", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reply(errorReply{Error: replyRateLimited})
			continue
		}
		g.dispatch(ctx, c, data)
	}
}

func (g *Gateway) track(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[c] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
	g.wg.Done()
}

// Count reports open authenticated connections.
func (g *Gateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Close sends a going-away close to every connection and waits until they
// have been torn down or ctx ends.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	open := make([]*conn, 0, len(g.conns))
	for c := range g.conns {
		open = append(open, c)
	}
	g.mu.Unlock()

	for _, c := range open {
		c.shutdown(websocket.CloseGoingAway)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newConnID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return time.Now().Format(time.RFC3339Nano)
	}
	return id.String()
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.MsgRate <= 0 {
		return nil
	}
	burst := cfg.MsgBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.MsgRate), burst)
}
