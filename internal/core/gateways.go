package core

import (
	"context"

	"github.com/meetrix/signaling/internal/domain"
)

// ConferenceUpdate is a partial-field update for a durable conference
// record. Nil fields are left untouched.
type ConferenceUpdate struct {
	Active           *bool
	ParticipantCount *int
	PeakParticipants *int
	Started          bool
	Ended            bool
}

// ConferenceStore persists conference metadata. Signaling never blocks on
// it; callers use short-timeout contexts and log failures.
type ConferenceStore interface {
	GetConference(ctx context.Context, id domain.RoomID) (*domain.Conference, error)
	EnsureConference(ctx context.Context, id domain.RoomID, ownerID domain.UserID) (*domain.Conference, error)
	UpdateConference(ctx context.Context, id domain.RoomID, upd ConferenceUpdate) (*domain.Conference, error)
}

// NotifyButton is one inline action offered to the notified user.
type NotifyButton struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Notifier pushes an out-of-band message to a user (e.g. through the chat
// bot). Fire-and-forget: failures are logged, never retried by callers.
type Notifier interface {
	NotifyUser(ctx context.Context, userID domain.UserID, text string, buttons []NotifyButton) error
}
