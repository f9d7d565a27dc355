package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/fieldlab/odm-watcher/internal/api/handlers/jobs"
	"github.com/fieldlab/odm-watcher/internal/api/router"
	"github.com/fieldlab/odm-watcher/internal/api/server"
	"github.com/fieldlab/odm-watcher/internal/archive"
	"github.com/fieldlab/odm-watcher/internal/config"
	"github.com/fieldlab/odm-watcher/internal/events"
	"github.com/fieldlab/odm-watcher/internal/model"
	"github.com/fieldlab/odm-watcher/internal/node"
	"github.com/fieldlab/odm-watcher/internal/orchestrator"
	"github.com/fieldlab/odm-watcher/internal/preset"
	"github.com/fieldlab/odm-watcher/internal/registry"
	"github.com/fieldlab/odm-watcher/internal/watcher"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "./config/config.yml", "path to the config file")
	flag.Parse()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad(*configPath)

	if err := cfg.Validate(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Enumerate the recognized trigger tokens; a watcher with nothing to
	// recognize is a misconfiguration.
	presets := preset.NewStore(cfg.Watcher.PresetsDir)
	tokens, err := presets.Scan()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to enumerate preset tokens")
	}
	zlog.Logger.Info().Strs("tokens", tokens).Msg("recognized trigger tokens")

	// Retry strategy for the startup probe and broker sends.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Probe the processing node before watching anything.
	client := node.New(cfg.Node.Host, cfg.Node.Port, cfg.Node.Token, cfg.Node.UseSSL)

	var info model.NodeInfo
	err = retry.Do(func() error {
		var probeErr error
		info, probeErr = client.Info(ctx)
		return probeErr
	}, strategy)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("cannot reach processing node")
	}

	zlog.Logger.Info().
		Str("server", fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)).
		Str("engine", info.Engine).
		Str("engine_version", info.EngineVersion).
		Int("max_images", info.MaxImages).
		Int("max_parallel_tasks", info.MaxParallelTasks).
		Msg("connected to processing node")

	// Optional lifecycle event publisher (Kafka).
	var publisher orchestrator.EventPublisher
	var pub *events.Publisher
	if cfg.Kafka.Enabled {
		pub = events.New(&cfg.Kafka, strategy)
		publisher = pub
	}

	// Optional artifact archive (MinIO).
	var archiver orchestrator.ArtifactArchiver
	if cfg.Storage.Enabled {
		up, err := archive.NewUploader(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to artifact storage")
		}
		archiver = up
	}

	// Wire the orchestration core and the trigger pipeline.
	reg := registry.New()
	orch := orchestrator.New(
		orchestrator.WrapNode(client),
		presets,
		reg,
		cfg.Output.Dir,
		cfg.Watcher.PollInterval,
		publisher,
		archiver,
	)

	dispatcher := watcher.NewDispatcher(tokens, orch)
	w, err := watcher.New(cfg.Watcher.Root, dispatcher)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to start watching")
	}
	go w.Run(ctx)
	zlog.Logger.Info().Str("root", cfg.Watcher.Root).Msg("watching for triggers")

	// Start the status HTTP server in a separate goroutine.
	var s *http.Server
	if cfg.Server.Enabled {
		h := jobs.NewHandler(reg, client)
		r := router.Setup(h)
		s = server.New(cfg.Server.HTTPPort, r)
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Logger.Fatal().Err(err).Msg("failed to start server")
			}
		}()
	}

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	// Stop accepting filesystem events before touching remote jobs.
	if err := w.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close watcher")
	}

	// Cancel every registered job and wait for the worker pairs to write
	// their terminal markers. The signal context is already done, so the
	// shutdown work runs on a fresh one.
	orch.CancelAll(context.Background())
	orch.Wait()

	// Graceful shutdown with timeout for the HTTP server.
	if s != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		zlog.Logger.Info().Msg("shutting down server")
		if err := s.Shutdown(shutdownCtx); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
		}
	}

	// Close the Kafka producer client.
	if pub != nil {
		if err := pub.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
}
