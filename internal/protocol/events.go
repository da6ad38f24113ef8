package protocol

import (
	"encoding/json"
	"time"

	"github.com/meetrix/signaling/internal/domain"
)

// event marshals a payload into an outbound envelope. Marshal errors are
// impossible for the closed set of payload types below, so they are
// swallowed into an empty payload rather than propagated through every
// handler.
func event(msgType string, roomID domain.RoomID, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return Envelope{Type: msgType, RoomID: roomID, Payload: raw}
}

// RoomUsersEvent is the join reply: a snapshot of the other current
// participants plus the room policy.
func RoomUsersEvent(roomID domain.RoomID, hostID domain.UserID, settings domain.HostSettings, others []domain.Participant) Envelope {
	return event(TypeRoomUsers, roomID, struct {
		Users    []domain.Participant `json:"users"`
		HostID   domain.UserID        `json:"hostId,omitempty"`
		Settings domain.HostSettings  `json:"settings"`
	}{others, hostID, settings})
}

func UserJoinedEvent(roomID domain.RoomID, p domain.Participant) Envelope {
	return event(TypeUserJoined, roomID, struct {
		User domain.Participant `json:"user"`
	}{p})
}

func UserLeftEvent(roomID domain.RoomID, userID domain.UserID) Envelope {
	return event(TypeUserLeft, roomID, struct {
		UserID domain.UserID `json:"userId"`
	}{userID})
}

func HostChangedEvent(roomID domain.RoomID, userID domain.UserID) Envelope {
	return event(TypeHostChanged, roomID, struct {
		UserID domain.UserID `json:"userId"`
	}{userID})
}

func MediaStateChangedEvent(roomID domain.RoomID, userID domain.UserID, kind string, enabled bool, state domain.MediaState) Envelope {
	return event(TypeMediaStateChanged, roomID, struct {
		UserID  domain.UserID     `json:"userId"`
		Kind    string            `json:"kind"`
		Enabled bool              `json:"enabled"`
		Media   domain.MediaState `json:"media"`
	}{userID, kind, enabled, state})
}

// ChatMessageEvent carries a server-assigned id and timestamp so clients
// agree on ordering and dedup.
func ChatMessageEvent(roomID domain.RoomID, id string, from domain.UserID, name, text string, at time.Time) Envelope {
	return event(TypeChatMessage, roomID, struct {
		ID       string        `json:"id"`
		UserID   domain.UserID `json:"userId"`
		Name     string        `json:"name"`
		Message  string        `json:"message"`
		SentAtMs int64         `json:"sentAt"`
	}{id, from, name, text, at.UnixMilli()})
}

func HandStateEvent(roomID domain.RoomID, userID domain.UserID, raised bool) Envelope {
	return event(TypeHandState, roomID, struct {
		UserID domain.UserID `json:"userId"`
		Raised bool          `json:"raised"`
	}{userID, raised})
}

func RecordingStateEvent(roomID domain.RoomID, userID domain.UserID, recording bool) Envelope {
	return event(TypeRecordingState, roomID, struct {
		UserID      domain.UserID `json:"userId"`
		IsRecording bool          `json:"isRecording"`
	}{userID, recording})
}

func HostSettingsUpdatedEvent(roomID domain.RoomID, settings domain.HostSettings) Envelope {
	return event(TypeHostSettingsUpdated, roomID, settings)
}

func FileSharedEvent(roomID domain.RoomID, id string, from domain.UserID, name string, file FilePayload, at time.Time) Envelope {
	return event(TypeFileShared, roomID, struct {
		ID       string        `json:"id"`
		UserID   domain.UserID `json:"userId"`
		Name     string        `json:"name"`
		File     FilePayload   `json:"file"`
		SentAtMs int64         `json:"sentAt"`
	}{id, from, name, file, at.UnixMilli()})
}

// PollSnapshot is the fan-out shape for poll lifecycle events.
type PollSnapshot struct {
	ID       string        `json:"id"`
	Question string        `json:"question"`
	Options  []string      `json:"options"`
	Votes    []int         `json:"votes"`
	OwnerID  domain.UserID `json:"ownerId"`
	Ended    bool          `json:"ended"`
}

func PollCreatedEvent(roomID domain.RoomID, poll PollSnapshot) Envelope {
	return event(TypePollCreated, roomID, poll)
}

func PollVoteEvent(roomID domain.RoomID, poll PollSnapshot, voter domain.UserID) Envelope {
	return event(TypePollVote, roomID, struct {
		PollSnapshot
		Voter domain.UserID `json:"voter"`
	}{poll, voter})
}

func PollEndedEvent(roomID domain.RoomID, poll PollSnapshot) Envelope {
	return event(TypePollEnded, roomID, poll)
}

func ErrorEvent(code, message string) Envelope {
	return event(TypeError, "", struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{code, message})
}

// ConnectionReplacedEvent tells a stale connection that a newer session
// for the same user took over.
func ConnectionReplacedEvent(roomID domain.RoomID) Envelope {
	return event(TypeConnectionReplaced, roomID, struct {
		Reason string `json:"reason"`
	}{"another connection joined with your user id"})
}

func PongEvent() Envelope {
	return Envelope{Type: TypePong}
}
