package signal

import (
	"encoding/json"
	"errors"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/protocol"
)

func (ctl *Controller) handlePollCreate(conn *app.Conn, env protocol.Envelope) {
	var p protocol.PollCreatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "poll payload is not valid json"})
		return
	}
	if _, err := ctl.Rooms.CreatePoll(conn, p.Question, p.Options); err != nil {
		ctl.replyPollError(conn, err)
	}
}

func (ctl *Controller) handlePollVote(conn *app.Conn, env protocol.Envelope) {
	var p protocol.PollVotePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "vote payload is not valid json"})
		return
	}
	if p.PollID == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypePollVote, "payload.pollId"))
		return
	}
	if _, err := ctl.Rooms.Vote(conn, p.PollID, p.Option); err != nil {
		ctl.replyPollError(conn, err)
	}
}

func (ctl *Controller) handlePollEnd(conn *app.Conn, env protocol.Envelope) {
	var p protocol.PollEndPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ctl.replyError(conn, &protocol.ProtocolError{Code: "bad_payload", Reason: "poll payload is not valid json"})
		return
	}
	if p.PollID == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypePollEnded, "payload.pollId"))
		return
	}
	if _, err := ctl.Rooms.EndPoll(conn, p.PollID); err != nil {
		ctl.replyPollError(conn, err)
	}
}

// replyPollError surfaces poll domain errors with stable codes; the rest
// fall through to the shared mapping.
func (ctl *Controller) replyPollError(conn *app.Conn, err error) {
	switch {
	case errors.Is(err, app.ErrPollNotFound):
		app.Deliver(conn, protocol.ErrorEvent("poll_not_found", err.Error()))
	case errors.Is(err, app.ErrPollEnded):
		app.Deliver(conn, protocol.ErrorEvent("poll_ended", err.Error()))
	case errors.Is(err, app.ErrBadPollOption), errors.Is(err, app.ErrEmptyPoll), errors.Is(err, app.ErrTooManyOptions):
		app.Deliver(conn, protocol.ErrorEvent("bad_poll", err.Error()))
	default:
		ctl.replyError(conn, err)
	}
}
