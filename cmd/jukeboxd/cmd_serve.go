/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/db"
	"github.com/friendsincode/grimnir_jukebox/internal/eventbus"
	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/friendsincode/grimnir_jukebox/internal/logbuffer"
	"github.com/friendsincode/grimnir_jukebox/internal/player"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/scheduler"
	"github.com/friendsincode/grimnir_jukebox/internal/server"
	"github.com/friendsincode/grimnir_jukebox/internal/speaker"
	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
	"github.com/friendsincode/grimnir_jukebox/internal/telemetry"
	"github.com/friendsincode/grimnir_jukebox/internal/trackdb"
	"github.com/friendsincode/grimnir_jukebox/internal/version"
)

// logBufferSize is how many recent log events /api/v1/log can return.
const logBufferSize = 2000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the jukebox",
	Long:  "Start the playback scheduler, the speaker link and the status server.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logs := logbuffer.New(logBufferSize)
	if err := loadConfig(logbuffer.NewWriter(logs)); err != nil {
		return err
	}
	logger.Info().Str("version", version.Version).Str("instance", cfg.InstanceID).Msg("jukeboxd starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "jukeboxd",
		ServiceVersion: version.Version,
		InstanceID:     cfg.InstanceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	// Queue persistence.
	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register database callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	bus := events.NewBus()
	store := queue.NewStore(playback.History, bus, logger)
	recorder := queue.NewRecorder(database, logger)
	queued, history, err := recorder.Load(ctx)
	if err != nil {
		return err
	}
	store.Restore(queued, history)
	logger.Info().Int("queued", store.Len()).Int("history", store.HistoryLen()).Msg("queue restored")
	recorder.Start()
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("flushing queue database")
		}
	}()

	// Track database and chooser.
	tracks, err := openTrackDB()
	if err != nil {
		return err
	}
	defer tracks.Close()
	chooser := choose.NewService(tracks, policyFor(playback), logger)
	library := trackdb.NewLibrary(tracks, chooser)

	table, err := player.NewTable(playback.Players)
	if err != nil {
		return fmt.Errorf("player table: %w", err)
	}

	sup := supervisor.New(logger, playback.Device)

	deps := scheduler.Deps{
		Store:    store,
		Library:  library,
		Launcher: sup,
		Recorder: recorder,
		Bus:      bus,
		Logger:   logger,
	}
	var spawned *speaker.Spawned
	switch {
	case cfg.SpeakerCommand != "":
		spawned, err = speaker.Spawn(cfg.SpeakerArgv(), []string{"SPEAKER_STREAM_SOCKET=" + cfg.SpeakerStreamSocket}, logger)
		if err != nil {
			return err
		}
		deps.Speaker = spawned
		deps.Streams = speaker.StreamDialer{Path: cfg.SpeakerStreamSocket}
	case cfg.SpeakerSocket != "":
		link, err := speaker.Dial(ctx, cfg.SpeakerSocket, logger)
		if err != nil {
			return err
		}
		defer link.Close()
		deps.Speaker = link
		deps.Streams = speaker.StreamDialer{Path: cfg.SpeakerStreamSocket}
	default:
		logger.Warn().Msg("no speaker configured, raw players are unavailable")
	}

	sched := scheduler.New(playback, table, deps)
	srv := server.New(cfg, sched, logger)
	srv.SetLogs(logs)

	var wg sync.WaitGroup
	schedDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		schedDone <- sched.Run(ctx)
	}()

	if cfg.PlaybackFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.WatchPlayback(ctx, cfg.PlaybackFile, logger, func(pb *config.Playback) {
				tracks.SetCollections(pb.Collections)
				chooser.SetPolicy(policyFor(pb))
				if err := sched.Reload(ctx, pb); err != nil {
					logger.Error().Err(err).Msg("applying playback file")
				}
			})
			if err != nil {
				logger.Error().Err(err).Msg("playback file watcher stopped")
			}
		}()
	}

	if fwd := newForwarder(ctx, bus); fwd != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fwd.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		maintenance(ctx, tracks, database)
	}()

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-schedDone:
		stop()
	}
	logger.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	wg.Wait()
	if err := sup.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("players did not exit")
	}
	if spawned != nil {
		if err := spawned.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("speaker did not exit")
		}
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("jukeboxd stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// newForwarder returns nil when no broker is configured.
func newForwarder(ctx context.Context, bus *events.Bus) *eventbus.Forwarder {
	var pubs []eventbus.Publisher
	if cfg.RedisAddr != "" {
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		rc.Channel = cfg.RedisChannel
		rp, err := eventbus.NewRedisPublisher(ctx, rc, logger)
		if err != nil {
			logger.Error().Err(err).Msg("redis event publisher disabled")
		} else {
			pubs = append(pubs, rp)
		}
	}
	if cfg.NATSURL != "" {
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.Subject = cfg.NATSSubject
		nc.Name = "jukeboxd-" + cfg.InstanceID
		np, err := eventbus.NewNATSPublisher(nc, logger)
		if err != nil {
			logger.Error().Err(err).Msg("nats event publisher disabled")
		} else {
			pubs = append(pubs, np)
		}
	}
	if len(pubs) == 0 {
		return nil
	}
	return eventbus.NewForwarder(bus, cfg.InstanceID, logger, pubs...)
}
