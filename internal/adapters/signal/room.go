package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

// replyError maps handler errors onto the wire taxonomy. Not-joined
// situations are ignored silently per the router contract.
func (ctl *Controller) replyError(conn *app.Conn, err error) {
	var perr *protocol.ProtocolError
	var aerr *protocol.AuthorizationError
	switch {
	case errors.As(err, &perr):
		app.Deliver(conn, protocol.ErrorEvent(perr.Code, perr.Reason))
	case errors.As(err, &aerr):
		app.Deliver(conn, protocol.ErrorEvent("not_authorized", aerr.Error()))
	case errors.Is(err, app.ErrRoomLocked):
		app.Deliver(conn, protocol.ErrorEvent("room_locked", "this conference is locked by the host"))
	case errors.Is(err, app.ErrNotInRoom):
		// Expected for messages racing a leave; drop quietly.
	default:
		app.Deliver(conn, protocol.ErrorEvent("internal", "could not process message"))
		log.Error().Err(err).Str("module", "signal").Str("sid", string(conn.SID)).Msg("handler error")
	}
}

func (ctl *Controller) handleJoin(conn *app.Conn, env protocol.Envelope) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(conn.SID) {
		app.Deliver(conn, protocol.ErrorEvent("rate_limited", "too many join attempts"))
		return
	}

	var p protocol.JoinPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "join payload is not valid json"})
			return
		}
	}
	roomID := env.RoomID
	if roomID == "" {
		roomID = domain.RoomID(p.RoomID)
	}
	if err := domain.ValidRoomID(roomID); err != nil {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeJoin, "roomId"))
		return
	}
	if p.UserID == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeJoin, "userId"))
		return
	}
	if p.Name == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeJoin, "name"))
		return
	}

	req := app.JoinRequest{
		RoomID:       roomID,
		UserID:       domain.UserID(p.UserID),
		Name:         p.Name,
		Admin:        conn.Admin(),
		ExplicitHost: p.Host,
		HostSettings: p.HostSettings,
	}
	res, err := ctl.Rooms.Join(conn, req)
	if err != nil {
		ctl.replyError(conn, err)
		return
	}
	app.Deliver(conn, protocol.RoomUsersEvent(roomID, res.HostID, res.Settings, res.Others))
}

func (ctl *Controller) handlePing(conn *app.Conn) {
	// Redundant application-level heartbeat: some proxies eat transport
	// ping frames. MarkAlive already ran in handleFrame.
	app.Deliver(conn, protocol.PongEvent())
}
