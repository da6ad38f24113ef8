package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

var (
	ErrNotInRoom  = errors.New("not joined to a room")
	ErrRoomLocked = errors.New("room is locked")
)

const gatewayTimeout = 3 * time.Second

// RoomInfo is the read-only listing shape for the HTTP API.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// JoinRequest is the normalized join input after protocol validation.
type JoinRequest struct {
	RoomID       domain.RoomID
	UserID       domain.UserID
	Name         string
	Admin        bool
	ExplicitHost bool
	HostSettings *domain.HostSettings
}

// JoinResult is handed back to the joiner as the room-users reply.
type JoinResult struct {
	Others   []domain.Participant
	HostID   domain.UserID
	Settings domain.HostSettings
}

// RoomTable owns every live room. It is the only shared mutable state in
// the process; all writers go through the signaling handlers. Delivery
// reaches members through the Conn records the Registry owns.
type RoomTable struct {
	reg      *Registry
	store    core.ConferenceStore
	notifier core.Notifier
	ttl      time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomTable(reg *Registry, store core.ConferenceStore, notifier core.Notifier, ttl time.Duration) *RoomTable {
	return &RoomTable{
		reg:      reg,
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		rooms:    make(map[domain.RoomID]*Room),
	}
}

// Get returns a live room, if present.
func (t *RoomTable) Get(id domain.RoomID) (*Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rooms[id]
	return r, ok
}

func (t *RoomTable) List() []RoomInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RoomInfo, 0, len(t.rooms))
	for id, r := range t.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: r.MemberCount(), CreatedAt: r.CreatedAt})
	}
	return out
}

// Join adds c to the requested room, creating it lazily. A duplicate join
// for the same user id evicts the prior connection first with a
// connection-replaced notice; arrival order at the room lock is the
// tie-break for near-simultaneous duplicates (last writer wins).
func (t *RoomTable) Join(c *Conn, req JoinRequest) (JoinResult, error) {
	// A bound connection switching rooms or identities leaves its current
	// room first, otherwise the old participant would be unreachable once
	// the binding is overwritten.
	if boundUser, boundRoom := c.UserID(), c.RoomID(); boundUser != "" &&
		(boundRoom != req.RoomID || boundUser != req.UserID) {
		t.removeFromRoom(c, true)
	}

	var room *Room
	for {
		t.mu.Lock()
		r, ok := t.rooms[req.RoomID]
		if !ok {
			r = newRoom(req.RoomID, time.Now())
			r.OwnerID = req.UserID
			t.rooms[req.RoomID] = r
			log.Info().Str("module", "app.rooms").Str("room", string(req.RoomID)).Msg("room created")
		}
		t.mu.Unlock()

		r.mu.Lock()
		if r.closed {
			// Lost a race with room teardown; the map no longer holds
			// this instance.
			r.mu.Unlock()
			continue
		}
		room = r
		break
	}
	existing, rejoin := room.participants[req.UserID]
	if room.settings.Locked && !rejoin && !req.Admin {
		room.mu.Unlock()
		return JoinResult{}, ErrRoomLocked
	}

	if old, ok := room.conns[req.UserID]; ok && old != c {
		Deliver(old, protocol.ConnectionReplacedEvent(req.RoomID))
		old.Signal.Close()
		t.reg.Drop(old)
		// A replacement transport means a fresh peer connection with no
		// remote description; the evicted connection's candidate state
		// must not leak onto it.
		delete(room.pendingICE, req.UserID)
		delete(room.descReady, req.UserID)
		log.Info().Str("module", "app.rooms").Str("room", string(req.RoomID)).Str("user", string(req.UserID)).Msg("duplicate join, replaced stale connection")
	}

	hostChanged := domain.UserID("")
	if rejoin {
		existing.Name = req.Name
		existing.Admin = existing.Admin || req.Admin
	} else {
		p, err := domain.NewParticipant(req.UserID, req.Name, req.Admin)
		if err != nil {
			room.mu.Unlock()
			return JoinResult{}, err
		}
		room.participants[req.UserID] = p
		room.order = append(room.order, req.UserID)
	}
	room.conns[req.UserID] = c

	switch {
	case req.ExplicitHost:
		if room.hostID != req.UserID {
			if prev, ok := room.participants[room.hostID]; ok {
				prev.Host = false
			}
			room.hostID = req.UserID
			hostChanged = req.UserID
		}
	case room.hostID == "":
		// First joiner becomes host by default.
		room.hostID = req.UserID
	}
	room.participants[req.UserID].Host = room.hostID == req.UserID
	if req.HostSettings != nil && room.hostID == req.UserID {
		room.settings = *req.HostSettings
	}

	joined := *room.participants[req.UserID]
	res := JoinResult{
		Others:   room.othersLocked(req.UserID),
		HostID:   room.hostID,
		Settings: room.settings,
	}
	count := len(room.participants)

	if !rejoin {
		room.broadcastLocked(protocol.UserJoinedEvent(req.RoomID, joined), req.UserID)
	}
	if hostChanged != "" {
		room.broadcastLocked(protocol.HostChangedEvent(req.RoomID, hostChanged), "")
	}
	room.mu.Unlock()

	t.reg.BindUser(c, req.UserID, req.RoomID)
	t.recordJoin(req.RoomID, room.OwnerID, count)
	return res, nil
}

// Leave removes the connection's participant from its room, reassigning
// the host and deleting the room when it empties. No-op when not joined.
func (t *RoomTable) Leave(c *Conn) {
	t.removeFromRoom(c, true)
}

// HandleDisconnect is the Registry deregistration hook: an implicit leave.
func (t *RoomTable) HandleDisconnect(c *Conn) {
	t.removeFromRoom(c, false)
}

func (t *RoomTable) removeFromRoom(c *Conn, clearBinding bool) {
	userID := c.UserID()
	roomID := c.RoomID()
	if userID == "" || roomID == "" {
		return
	}

	room, ok := t.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	// A replaced connection must not remove the participant the newer
	// connection now backs.
	if cur, ok := room.conns[userID]; ok && cur != c {
		room.mu.Unlock()
		return
	}
	newHost, empty := room.removeLocked(userID)
	count := len(room.participants)
	if !empty {
		room.broadcastLocked(protocol.UserLeftEvent(roomID, userID), "")
		if newHost != "" {
			room.broadcastLocked(protocol.HostChangedEvent(roomID, newHost), "")
		}
	}
	room.mu.Unlock()

	if clearBinding {
		t.reg.ClearRoom(c)
	} else {
		c.mu.Lock()
		c.userID = ""
		c.roomID = ""
		c.mu.Unlock()
	}

	if newHost != "" {
		t.notifyAsync(newHost, fmt.Sprintf("You are now the host of conference %s.", roomID), nil)
	}

	if empty {
		t.dropRoom(room)
		return
	}
	t.recordLeave(roomID, count)
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("user", string(userID)).Int("remaining", count).Msg("participant left")
}

// dropRoom deletes an empty room and closes out its durable record.
func (t *RoomTable) dropRoom(room *Room) {
	t.mu.Lock()
	room.mu.Lock()
	if len(room.participants) > 0 {
		// Someone joined between the emptiness check and now; keep it.
		room.mu.Unlock()
		t.mu.Unlock()
		return
	}
	room.closed = true
	room.mu.Unlock()
	if t.rooms[room.ID] == room {
		delete(t.rooms, room.ID)
	}
	t.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Msg("room destroyed")
	t.recordEnd(room.ID)
	t.notifyAsync(room.OwnerID, fmt.Sprintf("Your conference %s has ended.", room.ID), nil)
}

// Broadcast fans out to all live connections of a room except exclude.
func (t *RoomTable) Broadcast(roomID domain.RoomID, env protocol.Envelope, exclude domain.UserID) {
	room, ok := t.Get(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	room.broadcastLocked(env, exclude)
	room.mu.Unlock()
}

// Relay forwards a message verbatim to a single recipient in the sender's
// room. Unknown recipients are dropped silently: they may have left
// concurrently, which is expected.
func (t *RoomTable) Relay(from *Conn, to domain.UserID, env protocol.Envelope) {
	room, ok := t.Get(from.RoomID())
	if !ok {
		return
	}
	room.mu.Lock()
	target, ok := room.conns[to]
	room.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "app.rooms").Str("type", env.Type).Str("to", string(to)).Msg("recipient not found, dropped")
		return
	}
	env.From = from.UserID()
	Deliver(target, env)
}

// RelayCandidate forwards an ICE candidate, buffering it while the
// recipient's remote description is not yet set. Buffered candidates keep
// arrival order and are discarded if the recipient leaves first.
func (t *RoomTable) RelayCandidate(from *Conn, to domain.UserID, env protocol.Envelope) {
	room, ok := t.Get(from.RoomID())
	if !ok {
		return
	}
	env.From = from.UserID()

	room.mu.Lock()
	target, present := room.conns[to]
	if !present {
		room.mu.Unlock()
		return
	}
	if !room.descReady[to] {
		room.pendingICE[to] = append(room.pendingICE[to], env)
		room.mu.Unlock()
		return
	}
	room.mu.Unlock()
	Deliver(target, env)
}

// RemoteDescriptionSet marks the caller ready for live candidates and
// drains their pending queue in original order.
func (t *RoomTable) RemoteDescriptionSet(c *Conn) {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return
	}
	room.mu.Lock()
	room.descReady[userID] = true
	queued := room.pendingICE[userID]
	delete(room.pendingICE, userID)
	room.mu.Unlock()

	for _, env := range queued {
		Deliver(c, env)
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "app.rooms").Str("user", string(userID)).Int("drained", len(queued)).Msg("pending candidates drained")
	}
}

// UpdateHostSettings applies new room policy; only the current host may
// call it.
func (t *RoomTable) UpdateHostSettings(c *Conn, settings domain.HostSettings) error {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return ErrNotInRoom
	}
	room.mu.Lock()
	if room.hostID != userID {
		room.mu.Unlock()
		return &protocol.AuthorizationError{Action: "update host settings"}
	}
	room.settings = settings
	room.broadcastLocked(protocol.HostSettingsUpdatedEvent(room.ID, settings), "")
	room.mu.Unlock()
	return nil
}

// ToggleMedia flips a participant's audio or video flag and fans out the
// new state.
func (t *RoomTable) ToggleMedia(c *Conn, kind string, enabled bool) error {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return ErrNotInRoom
	}
	room.mu.Lock()
	p, ok := room.participants[userID]
	if !ok {
		room.mu.Unlock()
		return ErrNotInRoom
	}
	switch kind {
	case "audio":
		p.Media.AudioEnabled = enabled
	case "video":
		p.Media.VideoEnabled = enabled
	case "screen":
		p.Media.ScreenSharing = enabled
	default:
		room.mu.Unlock()
		return &protocol.ProtocolError{Code: "bad_payload", Reason: fmt.Sprintf("unknown media kind %q", kind)}
	}
	state := p.Media
	room.broadcastLocked(protocol.MediaStateChangedEvent(room.ID, userID, kind, enabled, state), userID)
	room.mu.Unlock()
	return nil
}

// SetHandRaised updates the hand flag and fans out.
func (t *RoomTable) SetHandRaised(c *Conn, raised bool) error {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return ErrNotInRoom
	}
	room.mu.Lock()
	p, ok := room.participants[userID]
	if !ok {
		room.mu.Unlock()
		return ErrNotInRoom
	}
	p.Media.HandRaised = raised
	room.broadcastLocked(protocol.HandStateEvent(room.ID, userID, raised), userID)
	room.mu.Unlock()
	return nil
}

// SetRecording requires admin or host and fans out the recording state.
func (t *RoomTable) SetRecording(c *Conn, recording bool) error {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return ErrNotInRoom
	}
	room.mu.Lock()
	p, ok := room.participants[userID]
	if !ok {
		room.mu.Unlock()
		return ErrNotInRoom
	}
	if !p.Privileged() {
		room.mu.Unlock()
		return &protocol.AuthorizationError{Action: "change recording state"}
	}
	p.Media.Recording = recording
	room.broadcastLocked(protocol.RecordingStateEvent(room.ID, userID, recording), userID)
	room.mu.Unlock()
	return nil
}

// Participant returns a copy of the member's current state.
func (t *RoomTable) Participant(c *Conn) (domain.Participant, error) {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return domain.Participant{}, ErrNotInRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	p, ok := room.participants[userID]
	if !ok {
		return domain.Participant{}, ErrNotInRoom
	}
	return *p, nil
}

// Sweep evicts rooms past the hard age ceiling regardless of activity, a
// safety valve against leaked state. Run periodically by the janitor.
func (t *RoomTable) Sweep(now time.Time) int {
	if t.ttl <= 0 {
		return 0
	}
	t.mu.RLock()
	expired := make([]*Room, 0)
	for _, r := range t.rooms {
		if now.Sub(r.CreatedAt) > t.ttl {
			expired = append(expired, r)
		}
	}
	t.mu.RUnlock()

	for _, room := range expired {
		log.Warn().Str("module", "app.rooms").Str("room", string(room.ID)).Time("created", room.CreatedAt).Msg("room exceeded hard age ceiling, evicting")
		room.mu.Lock()
		conns := make([]*Conn, 0, len(room.conns))
		for _, c := range room.conns {
			conns = append(conns, c)
		}
		room.mu.Unlock()
		for _, c := range conns {
			Deliver(c, protocol.ErrorEvent("room_expired", "conference exceeded maximum duration"))
			c.Signal.Close()
			t.reg.Deregister(c)
		}
	}
	return len(expired)
}

// RunJanitor sweeps on an interval until ctx is done.
func (t *RoomTable) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}

// Persistence and notification are best-effort bookkeeping: short
// timeouts, failures logged, signaling never blocks on them.

func (t *RoomTable) recordJoin(roomID domain.RoomID, ownerID domain.UserID, count int) {
	if t.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
		defer cancel()
		if _, err := t.store.EnsureConference(ctx, roomID, ownerID); err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("ensure conference failed")
			return
		}
		active := true
		upd := core.ConferenceUpdate{Active: &active, ParticipantCount: &count, Started: true}
		if _, err := t.store.UpdateConference(ctx, roomID, upd); err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("update conference failed")
		}
	}()
}

func (t *RoomTable) recordLeave(roomID domain.RoomID, count int) {
	if t.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
		defer cancel()
		upd := core.ConferenceUpdate{ParticipantCount: &count}
		if _, err := t.store.UpdateConference(ctx, roomID, upd); err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("update conference failed")
		}
	}()
}

func (t *RoomTable) recordEnd(roomID domain.RoomID) {
	if t.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
		defer cancel()
		active := false
		zero := 0
		upd := core.ConferenceUpdate{Active: &active, ParticipantCount: &zero, Ended: true}
		if _, err := t.store.UpdateConference(ctx, roomID, upd); err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("close conference failed")
		}
	}()
}

func (t *RoomTable) notifyAsync(userID domain.UserID, text string, buttons []core.NotifyButton) {
	if t.notifier == nil || userID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
		defer cancel()
		if err := t.notifier.NotifyUser(ctx, userID, text, buttons); err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("user", string(userID)).Msg("notify failed")
		}
	}()
}
