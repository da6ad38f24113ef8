// Package signal is the WebSocket transport adapter: it owns the
// connection lifecycle and routes inbound signaling messages to the room
// table.
package signal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/auth"
	"github.com/meetrix/signaling/internal/config"
	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait  = 5 * time.Second
	retryDelay = 100 * time.Millisecond
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller wires one WebSocket endpoint to the room table.
type Controller struct {
	Registry   *app.Registry
	Rooms      *app.RoomTable
	Supervisor *app.Supervisor
	Limiter    *app.JoinLimiter
	Tokens     *auth.TokenVerifier
	Cfg        *config.Config
}

func NewController(reg *app.Registry, rooms *app.RoomTable, sup *app.Supervisor, limiter *app.JoinLimiter, tokens *auth.TokenVerifier, cfg *config.Config) *Controller {
	return &Controller{
		Registry:   reg,
		Rooms:      rooms,
		Supervisor: sup,
		Limiter:    limiter,
		Tokens:     tokens,
		Cfg:        cfg,
	}
}

// wsConn implements core.SignalConnection over gorilla. Writes flow
// through the buffered send channel; control frames go directly, which
// gorilla permits concurrently with data writes.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, send: make(chan core.Frame, sendBuffer)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Send retries once after a short delay on backpressure, without blocking
// the caller. Used for critical signaling traffic.
func (c *wsConn) Send(f core.Frame) error {
	if err := c.TrySend(f); err == nil {
		return nil
	}
	go func() {
		time.Sleep(retryDelay)
		if err := c.TrySend(f); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("critical frame dropped after retry")
		}
	}()
	return nil
}

func (c *wsConn) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the HTTP request and runs the connection until it
// dies. The client-token cookie is the session id; device class and an
// optional signed admin token come from the query string.
func (ctl *Controller) HandleSignal(c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	device := domain.ParseDeviceClass(c.Query("device"))

	admin := false
	if token := c.Query("token"); token != "" && ctl.Tokens != nil {
		claims, err := ctl.Tokens.Verify(token)
		if err != nil {
			// Invalid tokens demote to ordinary participant, never fatal.
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad client token")
		} else {
			admin = claims.Admin
		}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := newWSConn(ws)
	reg := ctl.Registry.Register(sid, device, conn)
	reg.SetAdmin(admin)

	// Transport-level pongs are one of the two liveness signals.
	ws.SetPongHandler(func(string) error {
		ctl.Registry.MarkAlive(reg)
		return nil
	})

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("device", device.String()).Bool("admin", admin).Msg("new signaling connection")

	go ctl.Supervisor.Watch(reg)
	go ctl.writePump(conn)
	ctl.readPump(reg, conn)
}
