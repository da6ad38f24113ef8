package domain

import "time"

// Conference is the durable record behind a room. Live rooms are the
// source of truth; this is best-effort bookkeeping for dashboards and the
// bot.
type Conference struct {
	ID               RoomID
	OwnerID          UserID
	Title            string
	Active           bool
	ParticipantCount int
	PeakParticipants int
	StartedAt        *time.Time
	EndedAt          *time.Time
}
