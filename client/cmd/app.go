package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/watchparty/client/config"
	"github.com/adwski/watchparty/client/model"
	httpServer "github.com/adwski/watchparty/client/server/http"
	"github.com/adwski/watchparty/client/service"
	websocketTransport "github.com/adwski/watchparty/client/transport/websocket"
	"github.com/rs/zerolog"
)

const defaultWireSize = 64

// logPlayer stands in for the media player and only reports the gate.
type logPlayer struct {
	logger zerolog.Logger
}

func (p logPlayer) SetPlaybackEnabled(enabled bool) {
	p.logger.Info().Bool("enabled", enabled).Msg("playback gate")
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	wire := model.NewWire(defaultWireSize)
	tr := websocketTransport.NewTransport(websocketTransport.Config{
		Logger:            &logger,
		Wire:              wire,
		URL:               cfg.ServerURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		Timeout:           cfg.Timeout,
	})
	svc := service.NewService(service.Config{
		Logger:    &logger,
		Transport: tr,
		Wire:      wire,
		Player:    logPlayer{logger: logger.With().Str("component", "player").Logger()},
		Username:  cfg.Username,
	})
	viewLogger := logger.With().Str("component", "view").Logger()
	svc.Subscribe(func(snap model.Snapshot) {
		viewLogger.Trace().
			Str("session", snap.Session).
			Str("room", snap.CurrentRoom).
			Int("messages", len(snap.History)).
			Str("fileSync", snap.FileSync).
			Bool("canPlay", snap.CanPlay).
			Msg("render")
	})
	apiSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		Core:       svc,
		ListenAddr: cfg.APIListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go svc.Run(ctx, wg)
	go tr.Run(ctx, wg, errc)
	go apiSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unrecoverable error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
