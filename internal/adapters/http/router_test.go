package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetrix/signaling/internal/adapters/signal"
	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/config"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Secret: "test", ReadLimit: 32768}
	reg := app.NewRegistry()
	rooms := app.NewRoomTable(reg, nil, nil, 0)
	sup := app.NewSupervisor(reg, time.Minute, time.Minute, time.Minute)
	ctl := signal.NewController(reg, rooms, sup, nil, nil, cfg)

	store, err := storage.Open(":memory:")
	require.NoError(t, err)

	return SetupRouter(cfg, ctl, rooms, reg, store), store
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoomsListing(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms       []app.RoomInfo `json:"rooms"`
		Connections int            `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Rooms)
	assert.Zero(t, body.Connections)
}

func TestConferenceLookupHitsPersistence(t *testing.T) {
	r, store := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conferences/room-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := store.EnsureConference(context.Background(), "room-1", "alice")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conferences/room-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var conf domain.Conference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conf))
	assert.Equal(t, domain.RoomID("room-1"), conf.ID)
	assert.Equal(t, domain.UserID("alice"), conf.OwnerID)
	assert.True(t, conf.Active)
}
