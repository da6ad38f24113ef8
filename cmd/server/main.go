package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/meetrix/signaling/internal/adapters/http"
	wssignal "github.com/meetrix/signaling/internal/adapters/signal"
	"github.com/meetrix/signaling/internal/app"
	"github.com/meetrix/signaling/internal/auth"
	"github.com/meetrix/signaling/internal/config"
	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/notify"
	"github.com/meetrix/signaling/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open conference store")
	}

	var notifier core.Notifier = notify.Noop{}
	if cfg.RedisAddr != "" {
		queue := notify.NewQueue(cfg.RedisAddr)
		defer queue.Close()
		notifier = queue
	}

	reg := app.NewRegistry()
	rooms := app.NewRoomTable(reg, store, notifier, cfg.RoomTTL)
	reg.OnDeregister(rooms.HandleDisconnect)

	supervisor := app.NewSupervisor(reg, cfg.PingPeriod, cfg.MobilePingPeriod, cfg.LowEndPingPeriod)
	limiter := app.NewJoinLimiter(cfg.JoinLimit, cfg.JoinWindow)
	tokens := auth.NewTokenVerifier(cfg.TokenKey)

	ctl := wssignal.NewController(reg, rooms, supervisor, limiter, tokens, cfg)

	go rooms.RunJanitor(ctx, cfg.JanitorPeriod)

	r := router.SetupRouter(cfg, ctl, rooms, reg, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
