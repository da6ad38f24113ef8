package domain

// MediaState mirrors the client-side toggles that other room members need
// to render. Mutated only through the signaling handlers.
type MediaState struct {
	AudioEnabled  bool `json:"audioEnabled"`
	VideoEnabled  bool `json:"videoEnabled"`
	ScreenSharing bool `json:"screenSharing"`
	HandRaised    bool `json:"handRaised"`
	Recording     bool `json:"recording"`
	Speaking      bool `json:"speaking"`
}

// Participant is a room member's signaling-visible state. It is rejoinable
// user-facing state, distinct from the transient transport connection.
type Participant struct {
	ID    UserID     `json:"id"`
	Name  string     `json:"name"`
	Admin bool       `json:"isAdmin,omitempty"`
	Host  bool       `json:"isHost,omitempty"`
	Media MediaState `json:"media"`
}

// NewParticipant avoids raw literals in adapters and keeps construction
// obvious. Audio and video default to enabled, matching client behavior.
func NewParticipant(id UserID, name string, admin bool) (*Participant, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if err := ValidDisplayName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:    id,
		Name:  name,
		Admin: admin,
		Media: MediaState{AudioEnabled: true, VideoEnabled: true},
	}, nil
}

// Privileged reports whether the participant may perform host-or-admin
// gated actions (recording, polls).
func (p *Participant) Privileged() bool {
	return p.Admin || p.Host
}
