package signal

import (
	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/protocol"
)

// handleSDP relays an offer or answer verbatim to its recipient. The
// server checks shape only; SDP semantics are never interpreted.
func (ctl *Controller) handleSDP(conn *app.Conn, env protocol.Envelope) {
	if env.To == "" {
		ctl.replyError(conn, protocol.MissingField(env.Type, "to"))
		return
	}
	if len(env.Payload) == 0 {
		ctl.replyError(conn, protocol.MissingField(env.Type, "payload"))
		return
	}
	if err := protocol.ValidateSDP(env.Type, env.Payload); err != nil {
		ctl.replyError(conn, err)
		return
	}
	ctl.Rooms.Relay(conn, env.To, env)
}

// handleCandidate relays or buffers an ICE candidate. Candidates for a
// recipient without a remote description queue up and drain in order.
func (ctl *Controller) handleCandidate(conn *app.Conn, env protocol.Envelope) {
	if env.To == "" {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeICECandidate, "to"))
		return
	}
	if len(env.Payload) == 0 {
		ctl.replyError(conn, protocol.MissingField(protocol.TypeICECandidate, "payload"))
		return
	}
	if err := protocol.ValidateCandidate(env.Payload); err != nil {
		ctl.replyError(conn, err)
		return
	}
	ctl.Rooms.RelayCandidate(conn, env.To, env)
}
