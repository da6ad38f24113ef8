package signal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

func (ctl *Controller) handleToggleMedia(conn *app.Conn, env protocol.Envelope) {
	var p protocol.ToggleMediaPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "toggle-media payload is not valid json"})
		return
	}
	if p.Kind == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeToggleMedia, "payload.type"))
		return
	}
	if err := ctl.Rooms.ToggleMedia(conn, p.Kind, p.Enabled); err != nil {
		ctl.replyError(conn, err)
	}
}

// handleChat fans the message out with a server-assigned id and timestamp
// so every client agrees on ordering.
func (ctl *Controller) handleChat(conn *app.Conn, env protocol.Envelope) {
	var p protocol.ChatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "chat payload is not valid json"})
		return
	}
	if p.Message == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeChatMessage, "payload.message"))
		return
	}
	sender, err := ctl.Rooms.Participant(conn)
	if err != nil {
		ctl.replyError(conn, err)
		return
	}
	ev := protocol.ChatMessageEvent(conn.RoomID(), uuid.NewString(), sender.ID, sender.Name, p.Message, time.Now())
	ctl.Rooms.Broadcast(conn.RoomID(), ev, "")
}

func (ctl *Controller) handleHandState(conn *app.Conn, env protocol.Envelope) {
	var p protocol.HandPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "hand payload is not valid json"})
		return
	}
	if err := ctl.Rooms.SetHandRaised(conn, p.Raised); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *Controller) handleRecordingState(conn *app.Conn, env protocol.Envelope) {
	var p protocol.RecordingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "recording payload is not valid json"})
		return
	}
	if err := ctl.Rooms.SetRecording(conn, p.IsRecording); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *Controller) handleHostSettings(conn *app.Conn, env protocol.Envelope) {
	var p domain.HostSettings
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "host settings payload is not valid json"})
		return
	}
	if err := ctl.Rooms.UpdateHostSettings(conn, p); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *Controller) handleFileShared(conn *app.Conn, env protocol.Envelope) {
	var p protocol.FilePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "file payload is not valid json"})
		return
	}
	if p.Name == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeFileShared, "payload.name"))
		return
	}
	sender, err := ctl.Rooms.Participant(conn)
	if err != nil {
		ctl.replyError(conn, err)
		return
	}
	ev := protocol.FileSharedEvent(conn.RoomID(), uuid.NewString(), sender.ID, sender.Name, p, time.Now())
	ctl.Rooms.Broadcast(conn.RoomID(), ev, sender.ID)
}
