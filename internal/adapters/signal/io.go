package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/protocol"
)

func (ctl *Controller) writePump(c *wsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

// readPump processes inbound frames until the transport dies, then
// deregisters. Deregistration is idempotent: the liveness supervisor may
// already have evicted us.
func (ctl *Controller) readPump(conn *app.Conn, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(conn.SID)).Msg("readPump closing")
		c.Close()
		ctl.Registry.Deregister(conn)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(conn.SID)
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(conn.SID)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(conn, c, data)
	}
}

// handleFrame decodes, refreshes liveness and dispatches. A handler error
// never tears the connection down; one malformed message must not affect
// other rooms or connections.
func (ctl *Controller) handleFrame(conn *app.Conn, c *wsConn, data []byte) {
	// Any inbound traffic proves the peer alive.
	ctl.Registry.MarkAlive(conn)

	env, err := protocol.Decode(data)
	if err != nil {
		ctl.replyError(conn, err)
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(conn, env)
	case protocol.TypeLeave:
		ctl.Rooms.Leave(conn)
	case protocol.TypeOffer, protocol.TypeAnswer:
		ctl.handleSDP(conn, env)
	case protocol.TypeICECandidate:
		ctl.handleCandidate(conn, env)
	case protocol.TypeRemoteDescSet:
		ctl.Rooms.RemoteDescriptionSet(conn)
	case protocol.TypeToggleMedia:
		ctl.handleToggleMedia(conn, env)
	case protocol.TypeChatMessage:
		ctl.handleChat(conn, env)
	case protocol.TypeHandState:
		ctl.handleHandState(conn, env)
	case protocol.TypeRecordingState:
		ctl.handleRecordingState(conn, env)
	case protocol.TypeHostSettings:
		ctl.handleHostSettings(conn, env)
	case protocol.TypeFileShared:
		ctl.handleFileShared(conn, env)
	case protocol.TypePollCreated:
		ctl.handlePollCreate(conn, env)
	case protocol.TypePollVote:
		ctl.handlePollVote(conn, env)
	case protocol.TypePollEnded:
		ctl.handlePollEnd(conn, env)
	case protocol.TypePing:
		ctl.handlePing(conn)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal type")
	}
}
