package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/adapters/signal"
	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/config"
	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/storage"
)

// ClientTokenMiddleware assigns each browser a stable session id cookie.
// The signaling endpoint uses it as the transport session id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctl *signal.Controller, rooms *app.RoomTable, reg *app.Registry, store core.ConferenceStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sessionStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConferenceSessions", sessionStore))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rooms":       rooms.List(),
			"connections": reg.Count(),
		})
	})

	if store != nil {
		api.GET("/conferences/:id", func(c *gin.Context) {
			conf, err := store.GetConference(c.Request.Context(), domain.RoomID(c.Param("id")))
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conference not found"})
				return
			}
			if err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("conference lookup")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
				return
			}
			c.JSON(http.StatusOK, conf)
		})
	}

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleSignal(c)
	})

	return r
}
