// Package protocol models the signaling wire surface: the message
// envelope, its compact variant for bandwidth-constrained clients, and
// the payload schemas. It never interprets SDP semantics.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
)

// Inbound message types.
const (
	TypeJoin           = "join"
	TypeLeave          = "leave"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeICECandidate   = "ice-candidate"
	TypeRemoteDescSet  = "remote-description-set"
	TypeToggleMedia    = "toggle-media"
	TypeChatMessage    = "chat-message"
	TypeHandState      = "hand-state-changed"
	TypeRecordingState = "recording-state-changed"
	TypeHostSettings   = "update-host-settings"
	TypeFileShared     = "file-shared"
	TypePollCreated    = "poll-created"
	TypePollVote       = "poll-vote"
	TypePollEnded      = "poll-ended"
	TypePing           = "ping"
)

// Outbound event types.
const (
	TypeRoomUsers           = "room-users"
	TypeUserJoined          = "user-joined"
	TypeUserLeft            = "user-left"
	TypeHostChanged         = "host-changed"
	TypeMediaStateChanged   = "media-state-changed"
	TypeHostSettingsUpdated = "host-settings-updated"
	TypeError               = "error"
	TypeConnectionReplaced  = "connection-replaced"
	TypePong                = "pong"
)

// Envelope is the normalized logical message. Both wire encodings decode
// into it.
type Envelope struct {
	Type     string
	RoomID   domain.RoomID
	To       domain.UserID
	From     domain.UserID
	Priority bool
	Mobile   bool
	Payload  json.RawMessage
}

// wireEnvelope carries both key sets; Decode normalizes whichever the
// client used. The compact variant shortens type/payload/from keys and
// adds priority and mobile hints.
type wireEnvelope struct {
	Type   string          `json:"type,omitempty"`
	RoomID string          `json:"roomId,omitempty"`
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Pload  json.RawMessage `json:"payload,omitempty"`

	T string          `json:"t,omitempty"`
	F string          `json:"f,omitempty"`
	P json.RawMessage `json:"p,omitempty"`
	R bool            `json:"r,omitempty"`
	M bool            `json:"m,omitempty"`
}

type compactEnvelope struct {
	T  string          `json:"t"`
	To string          `json:"to,omitempty"`
	F  string          `json:"f,omitempty"`
	P  json.RawMessage `json:"p,omitempty"`
	R  bool            `json:"r,omitempty"`
	M  bool            `json:"m,omitempty"`
}

type fullEnvelope struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Pload  json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a frame in either wire encoding into the logical Envelope.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, &ProtocolError{Code: "bad_json", Reason: err.Error()}
	}
	env := Envelope{
		Type:     w.Type,
		RoomID:   domain.RoomID(w.RoomID),
		To:       domain.UserID(w.To),
		From:     domain.UserID(w.From),
		Priority: w.R,
		Mobile:   w.M,
		Payload:  w.Pload,
	}
	if env.Type == "" {
		env.Type = w.T
	}
	if env.From == "" {
		env.From = domain.UserID(w.F)
	}
	if env.Payload == nil {
		env.Payload = w.P
	}
	if env.Type == "" {
		return Envelope{}, &ProtocolError{Code: "missing_type", Reason: "frame has no type discriminator"}
	}
	return env, nil
}

// Encode renders the envelope in the requested wire variant.
func Encode(env Envelope, compact bool) (core.Frame, error) {
	var (
		b   []byte
		err error
	)
	if compact {
		b, err = json.Marshal(compactEnvelope{
			T:  env.Type,
			To: string(env.To),
			F:  string(env.From),
			P:  env.Payload,
			R:  env.Priority,
			M:  env.Mobile,
		})
	} else {
		b, err = json.Marshal(fullEnvelope{
			Type:   env.Type,
			RoomID: string(env.RoomID),
			To:     string(env.To),
			From:   string(env.From),
			Pload:  env.Payload,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return core.Frame(b), nil
}

// Critical reports whether a message type must survive transient send
// failures (one retry after a short delay).
func Critical(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate,
		TypeRoomUsers, TypeUserJoined, TypeUserLeft:
		return true
	}
	return false
}
