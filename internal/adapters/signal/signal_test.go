package signal

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/auth"
	"github.com/meetrix/signaling/internal/config"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.RoomTable, *auth.TokenVerifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{ReadLimit: 32768}
	reg := app.NewRegistry()
	rooms := app.NewRoomTable(reg, nil, nil, 0)
	reg.OnDeregister(rooms.HandleDisconnect)
	// Long heartbeat periods: liveness is not under test here.
	sup := app.NewSupervisor(reg, time.Minute, time.Minute, time.Minute)
	tokens := auth.NewTokenVerifier("test-secret")
	ctl := NewController(reg, rooms, sup, app.NewJoinLimiter(100, time.Minute), tokens, cfg)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("sid"))
		ctl.HandleSignal(c)
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, rooms, tokens
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

func readEnvelope(t *testing.T, c *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func joinMsg(room, user, name string) map[string]any {
	return map[string]any{
		"type":   "join",
		"roomId": room,
		"payload": map[string]any{
			"userId": user,
			"name":   name,
		},
	}
}

func TestJoinScenario(t *testing.T) {
	ts, _, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, joinMsg("X", "alice", "Alice"))

	env := readEnvelope(t, a)
	require.Equal(t, protocol.TypeRoomUsers, env.Type)
	var roomUsers struct {
		Users  []domain.Participant `json:"users"`
		HostID domain.UserID        `json:"hostId"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &roomUsers))
	assert.Empty(t, roomUsers.Users)
	assert.Equal(t, domain.UserID("alice"), roomUsers.HostID)

	b := dial(t, ts, "sid=sb")
	send(t, b, joinMsg("X", "bob", "Bob"))

	env = readEnvelope(t, b)
	require.Equal(t, protocol.TypeRoomUsers, env.Type)
	require.NoError(t, json.Unmarshal(env.Payload, &roomUsers))
	require.Len(t, roomUsers.Users, 1)
	assert.Equal(t, domain.UserID("alice"), roomUsers.Users[0].ID)

	env = readEnvelope(t, a)
	require.Equal(t, protocol.TypeUserJoined, env.Type)

	// A disconnects; B becomes host.
	require.NoError(t, a.Close())
	env = readEnvelope(t, b)
	require.Equal(t, protocol.TypeUserLeft, env.Type)
	env = readEnvelope(t, b)
	require.Equal(t, protocol.TypeHostChanged, env.Type)
	var changed struct {
		UserID domain.UserID `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &changed))
	assert.Equal(t, domain.UserID("bob"), changed.UserID)
}

func TestCompactFramesAreAccepted(t *testing.T) {
	ts, _, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa&device=mobile")
	send(t, a, map[string]any{
		"t": "join",
		"p": map[string]any{
			"roomId": "X",
			"userId": "alice",
			"name":   "Alice",
		},
		"m": true,
	})

	env := readEnvelope(t, a)
	assert.Equal(t, protocol.TypeRoomUsers, env.Type)
}

func TestOfferRelayAndAbsentRecipient(t *testing.T) {
	ts, _, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, joinMsg("X", "alice", "Alice"))
	readEnvelope(t, a) // room-users

	// Offer to a user who never joined: silently dropped, no error, no
	// crash. The pong fence proves nothing else arrived.
	send(t, a, map[string]any{
		"type":    "offer",
		"to":      "ghost",
		"payload": map[string]any{"type": "offer", "sdp": "v=0"},
	})
	send(t, a, map[string]any{"type": "ping"})
	env := readEnvelope(t, a)
	assert.Equal(t, protocol.TypePong, env.Type)

	b := dial(t, ts, "sid=sb")
	send(t, b, joinMsg("X", "bob", "Bob"))
	readEnvelope(t, b) // room-users
	readEnvelope(t, a) // user-joined

	send(t, a, map[string]any{
		"type":    "offer",
		"to":      "bob",
		"payload": map[string]any{"type": "offer", "sdp": "v=0"},
	})
	env = readEnvelope(t, b)
	require.Equal(t, protocol.TypeOffer, env.Type)
	assert.Equal(t, domain.UserID("alice"), env.From)
	var sdp struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &sdp))
	assert.Equal(t, "v=0", sdp.SDP)
}

func TestChatGetsServerIDAndTimestamp(t *testing.T) {
	ts, _, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, joinMsg("X", "alice", "Alice"))
	readEnvelope(t, a)

	send(t, a, map[string]any{
		"type":    "chat-message",
		"payload": map[string]any{"message": "hello"},
	})
	env := readEnvelope(t, a)
	require.Equal(t, protocol.TypeChatMessage, env.Type)
	var chat struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		SentAt  int64  `json:"sentAt"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &chat))
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, "hello", chat.Message)
	assert.Greater(t, chat.SentAt, int64(0))
}

func TestUnauthorizedRecordingGetsErrorAndNoBroadcast(t *testing.T) {
	ts, _, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, joinMsg("X", "alice", "Alice"))
	readEnvelope(t, a)

	b := dial(t, ts, "sid=sb")
	send(t, b, joinMsg("X", "bob", "Bob"))
	readEnvelope(t, b)
	readEnvelope(t, a) // user-joined

	send(t, b, map[string]any{
		"type":    "recording-state-changed",
		"payload": map[string]any{"isRecording": true},
	})
	env := readEnvelope(t, b)
	require.Equal(t, protocol.TypeError, env.Type)
	var errPayload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &errPayload))
	assert.Equal(t, "not_authorized", errPayload.Code)

	// A must not see a recording broadcast; fence with a chat message.
	send(t, b, map[string]any{
		"type":    "chat-message",
		"payload": map[string]any{"message": "fence"},
	})
	env = readEnvelope(t, a)
	assert.Equal(t, protocol.TypeChatMessage, env.Type)
}

func TestAdminTokenGrantsRecording(t *testing.T) {
	ts, _, tokens := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, joinMsg("X", "alice", "Alice"))
	readEnvelope(t, a)

	token, err := tokens.Mint("bob", true, time.Minute)
	require.NoError(t, err)
	b := dial(t, ts, "sid=sb&token="+token)
	send(t, b, joinMsg("X", "bob", "Bob"))
	readEnvelope(t, b)
	readEnvelope(t, a) // user-joined

	send(t, b, map[string]any{
		"type":    "recording-state-changed",
		"payload": map[string]any{"isRecording": true},
	})
	env := readEnvelope(t, a)
	require.Equal(t, protocol.TypeRecordingState, env.Type)
}

func TestMalformedJoinGetsProtocolError(t *testing.T) {
	ts, rooms, _ := newTestServer(t)

	a := dial(t, ts, "sid=sa")
	send(t, a, map[string]any{
		"type":   "join",
		"roomId": "X",
		"payload": map[string]any{
			"userId": "alice",
			// name missing
		},
	})
	env := readEnvelope(t, a)
	require.Equal(t, protocol.TypeError, env.Type)
	assert.Empty(t, rooms.List(), "no state change on malformed join")
}
