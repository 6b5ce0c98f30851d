package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/biedra-watchdog/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/biedra-watchdog/internal/adapter/kafka"
	"github.com/couchcryptid/biedra-watchdog/internal/adapter/mqtt"
	"github.com/couchcryptid/biedra-watchdog/internal/adapter/sqlite"
	"github.com/couchcryptid/biedra-watchdog/internal/config"
	"github.com/couchcryptid/biedra-watchdog/internal/observability"
	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("watchdog exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("fix store close error", "error", err)
		}
	}()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	if n, err := store.Prune(ctx, time.Now().Add(-cfg.FixRetention)); err != nil {
		logger.Warn("fix store prune failed", "error", err)
	} else if n > 0 {
		logger.Info("pruned old fixes", "rows", n, "retention", cfg.FixRetention)
	}

	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "biedra-watchdog-" + uuid.NewString()
	}
	bridge, client, err := mqtt.Dial(ctx, cfg.MQTTBroker, clientID, cfg.DeviceID, store, logger, metrics)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := bridge.Start(); err != nil {
		return err
	}

	w := watchdog.New(
		watchdog.Platform{Status: bridge, Events: bridge, Client: bridge},
		watchdog.Config{
			PollInterval: cfg.PollInterval,
			QueryTimeout: cfg.QueryTimeout,
			Fallback:     cfg.Fallback,
		},
		logger.With("device_id", cfg.DeviceID),
		metrics,
	)

	// The sink attaches before Register so it sees the first enabled emission.
	// It runs on its own context so queued events are drained at shutdown.
	sinkCtx, cancelSink := context.WithCancel(context.Background())
	defer cancelSink()

	var sink *kafkaadapter.Sink
	if cfg.KafkaEnabled {
		sink = kafkaadapter.NewSink(kafkaadapter.NewWriter(cfg), w.ID().String(), cfg.DeviceID, logger, metrics)
		sink.Attach(w.Fixes(), w.Enabled())
		go func() {
			if err := sink.Run(sinkCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, kafkaadapter.ErrSinkClosed) {
				logger.Error("position sink error", "error", err)
			}
		}()
		logger.Info("kafka position sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaPositionTopic)
	} else {
		logger.Info("kafka position sink disabled")
	}

	if err := w.Register(ctx); err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, w, w, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	w.Unregister()
	if err := bridge.Stop(); err != nil {
		logger.Error("mqtt unsubscribe error", "error", err)
	}
	if sink != nil {
		if err := sink.Close(shutdownCtx); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	cancelSink()
	return nil
}
