package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

// Room is one conference session's live coordination state. All mutation
// happens under mu; join, leave and host reassignment are multi-step and
// must not interleave.
type Room struct {
	ID        domain.RoomID
	CreatedAt time.Time
	OwnerID   domain.UserID

	mu           sync.Mutex
	closed       bool
	participants map[domain.UserID]*domain.Participant
	order        []domain.UserID
	conns        map[domain.UserID]*Conn
	hostID       domain.UserID
	settings     domain.HostSettings
	polls        map[string]*poll

	// pendingICE buffers candidates addressed to a user whose peer
	// connection has no remote description yet, in arrival order.
	pendingICE map[domain.UserID][]protocol.Envelope
	descReady  map[domain.UserID]bool
}

func newRoom(id domain.RoomID, now time.Time) *Room {
	return &Room{
		ID:           id,
		CreatedAt:    now,
		participants: make(map[domain.UserID]*domain.Participant),
		conns:        make(map[domain.UserID]*Conn),
		settings:     domain.DefaultHostSettings(),
		polls:        make(map[string]*poll),
		pendingICE:   make(map[domain.UserID][]protocol.Envelope),
		descReady:    make(map[domain.UserID]bool),
	}
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (r *Room) HostID() domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

func (r *Room) Settings() domain.HostSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Deliver encodes for the target device and sends. Critical signaling
// types go through the retrying Send path, the rest may be shed under
// backpressure.
func Deliver(c *Conn, env protocol.Envelope) {
	frame, err := protocol.Encode(env, c.Device.Compact())
	if err != nil {
		log.Error().Err(err).Str("module", "app.room").Str("type", env.Type).Msg("encode failed")
		return
	}
	if protocol.Critical(env.Type) {
		if err := c.Signal.Send(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.room").Str("type", env.Type).Str("sid", string(c.SID)).Msg("critical send failed")
		}
		return
	}
	if err := c.Signal.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "app.room").Str("type", env.Type).Str("sid", string(c.SID)).Msg("frame dropped")
	}
}

// broadcastLocked fans out to every live connection except exclude.
// Callers hold r.mu; sends are non-blocking.
func (r *Room) broadcastLocked(env protocol.Envelope, exclude domain.UserID) {
	for uid, c := range r.conns {
		if uid == exclude {
			continue
		}
		Deliver(c, env)
	}
}

// othersLocked snapshots every participant except exclude, in join order.
func (r *Room) othersLocked(exclude domain.UserID) []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, uid := range r.order {
		if uid == exclude {
			continue
		}
		if p, ok := r.participants[uid]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// removeLocked deletes a participant and everything keyed by them, and
// reassigns the host to the earliest-joined remaining participant when
// needed. Returns the new host id ("" when unchanged) and whether the
// room is now empty. Host reassignment happens in the same step so no
// dangling host id is ever observable.
func (r *Room) removeLocked(userID domain.UserID) (newHost domain.UserID, empty bool) {
	if _, ok := r.participants[userID]; !ok {
		return "", len(r.participants) == 0
	}
	delete(r.participants, userID)
	delete(r.conns, userID)
	delete(r.pendingICE, userID)
	delete(r.descReady, userID)
	for i, uid := range r.order {
		if uid == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if len(r.participants) == 0 {
		r.hostID = ""
		return "", true
	}
	if r.hostID == userID {
		r.hostID = r.order[0]
		if p, ok := r.participants[r.hostID]; ok {
			p.Host = true
		}
		return r.hostID, false
	}
	return "", false
}
