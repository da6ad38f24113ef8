package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
)

// LivenessState is the heartbeat state machine position of a connection.
type LivenessState int

const (
	StateAlive LivenessState = iota
	StateAwaitingPong
	StateTerminated
)

// Conn is one live transport session tracked by the Registry. The user and
// room bindings are empty until a join succeeds.
type Conn struct {
	SID    core.SessionID
	Device domain.DeviceClass
	Signal core.SignalConnection

	mu       sync.Mutex
	userID   domain.UserID
	roomID   domain.RoomID
	admin    bool
	state    LivenessState
	missed   int
	lastSeen time.Time

	stopOnce  sync.Once
	heartbeat chan struct{}
}

func (c *Conn) UserID() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) RoomID() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Conn) Admin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

func (c *Conn) SetAdmin(v bool) {
	c.mu.Lock()
	c.admin = v
	c.mu.Unlock()
}

func (c *Conn) State() LivenessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// stopHeartbeat is idempotent; both Deregister and the supervisor's own
// terminate path may race to call it.
func (c *Conn) stopHeartbeat() {
	c.stopOnce.Do(func() { close(c.heartbeat) })
}

// Registry tracks every live transport connection. It owns the Conn
// records; the Room Table references them through room membership but
// never destroys them.
type Registry struct {
	mu     sync.RWMutex
	bySID  map[core.SessionID]*Conn
	byUser map[domain.UserID]*Conn

	// cleanup cascades room membership removal on deregistration. Wired
	// once at startup; nil in narrow unit tests.
	cleanup func(*Conn)
}

func NewRegistry() *Registry {
	return &Registry{
		bySID:  make(map[core.SessionID]*Conn),
		byUser: make(map[domain.UserID]*Conn),
	}
}

// OnDeregister installs the Room Table cleanup hook.
func (r *Registry) OnDeregister(fn func(*Conn)) {
	r.mu.Lock()
	r.cleanup = fn
	r.mu.Unlock()
}

// Register adds a new connection with liveness fresh. The caller starts
// the heartbeat watcher with the returned Conn.
func (r *Registry) Register(sid core.SessionID, device domain.DeviceClass, signal core.SignalConnection) *Conn {
	c := &Conn{
		SID:       sid,
		Device:    device,
		Signal:    signal,
		state:     StateAlive,
		lastSeen:  time.Now(),
		heartbeat: make(chan struct{}),
	}
	r.mu.Lock()
	old, hadOld := r.bySID[sid]
	r.bySID[sid] = c
	r.mu.Unlock()
	if hadOld {
		// Same browser session reconnected before the old transport
		// noticed. Tear the stale one down without touching the new entry.
		old.Signal.Close()
		old.stopHeartbeat()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("device", device.String()).Msg("connection registered")
	return c
}

// BindUser associates a joined identity with the connection and indexes it
// for O(1) routing by user id.
func (r *Registry) BindUser(c *Conn, userID domain.UserID, roomID domain.RoomID) {
	c.mu.Lock()
	c.userID = userID
	c.roomID = roomID
	c.mu.Unlock()

	r.mu.Lock()
	r.byUser[userID] = c
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(c.SID)).Str("user", string(userID)).Str("room", string(roomID)).Msg("user bound")
}

// ClearRoom drops the room association after a leave while keeping the
// connection itself registered.
func (r *Registry) ClearRoom(c *Conn) {
	c.mu.Lock()
	userID := c.userID
	c.userID = ""
	c.roomID = ""
	c.mu.Unlock()

	if userID == "" {
		return
	}
	r.mu.Lock()
	if cur, ok := r.byUser[userID]; ok && cur == c {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()
}

// Lookup returns the live connection routing to userID, if any.
func (r *Registry) Lookup(userID domain.UserID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// BySession returns the connection for a transport session id.
func (r *Registry) BySession(sid core.SessionID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySID[sid]
	return c, ok
}

// MarkAlive refreshes liveness on any inbound traffic, including both
// transport pong frames and application-level pings.
func (r *Registry) MarkAlive(c *Conn) {
	c.mu.Lock()
	c.state = StateAlive
	c.missed = 0
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// Deregister removes the connection and cascades room cleanup. Idempotent:
// close and error paths may both reach it.
func (r *Registry) Deregister(c *Conn) {
	r.mu.Lock()
	if cur, ok := r.bySID[c.SID]; !ok || cur != c {
		// Already deregistered, or a newer connection owns this session id.
		r.mu.Unlock()
		c.stopHeartbeat()
		return
	}
	delete(r.bySID, c.SID)
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID != "" {
		if cur, ok := r.byUser[userID]; ok && cur == c {
			delete(r.byUser, userID)
		}
	}
	cleanup := r.cleanup
	r.mu.Unlock()

	c.stopHeartbeat()
	if cleanup != nil {
		cleanup(c)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(c.SID)).Str("user", string(userID)).Msg("connection deregistered")
}

// Drop removes the connection from the maps without the room cleanup
// cascade. Used when a duplicate join replaces a stale connection: the
// room entry is reused by the newcomer and must survive.
func (r *Registry) Drop(c *Conn) {
	r.mu.Lock()
	if cur, ok := r.bySID[c.SID]; ok && cur == c {
		delete(r.bySID, c.SID)
	}
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID != "" {
		if cur, ok := r.byUser[userID]; ok && cur == c {
			delete(r.byUser, userID)
		}
	}
	r.mu.Unlock()
	c.stopHeartbeat()
}

// Count reports live connections, for the stats endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}
