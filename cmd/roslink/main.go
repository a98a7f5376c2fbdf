package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roslink/roslink/internal/config"
	"github.com/roslink/roslink/internal/database"
	"github.com/roslink/roslink/internal/gateway"
	"github.com/roslink/roslink/internal/recorder"
	"github.com/roslink/roslink/internal/subscription"
	"github.com/roslink/roslink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/roslink.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting roslink",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"gateway", cfg.Gateway.Address,
		"topics", len(cfg.Topics),
		"recorder_enabled", cfg.Recorder.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional message recorder
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"port", cfg.Recorder.Database.Port,
			"database", cfg.Recorder.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, pool, logger)

		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			rec.Stop(stopCtx)
		}()
	}

	// Gateway session
	session := gateway.NewSession(sessionConfig(cfg), logger)
	defer session.Close()

	statusCh := session.StatusChanges()

	if err := session.Connect(ctx, cfg.Gateway.Address); err != nil {
		// Reconnection keeps trying in the background unless disabled.
		logger.Warn("initial connect failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Log status transitions and resubscribe startup topics after the
	// first successful connect.
	subscribed := false
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case st, ok := <-statusCh:
				if !ok {
					return nil
				}
				logger.Info("session status", "status", st)
				if st == gateway.StatusConnected && !subscribed {
					subscribed = true
					if err := subscribeTopics(session, cfg.Topics, rec, logger); err != nil {
						return err
					}
				}
			}
		}
	})

	// Periodic stats reporting
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logStats(session, rec, logger)
			}
		}
	})

	logger.Info("roslink running", "gateway", cfg.Gateway.Address)

	if err := g.Wait(); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}

	logger.Info("roslink stopped")
}

// sessionConfig maps file configuration onto the gateway session.
func sessionConfig(cfg *config.Config) gateway.SessionConfig {
	sc := gateway.DefaultSessionConfig()

	sc.Client.HandshakeTimeout = cfg.Gateway.HandshakeTimeout
	sc.Client.PingInterval = cfg.Gateway.PingInterval
	sc.Client.PingTimeout = cfg.Gateway.PingTimeout
	sc.Client.WriteTimeout = cfg.Gateway.WriteTimeout
	sc.Client.BufferSize = cfg.Gateway.BufferSize

	sc.CallTimeout = cfg.Gateway.CallTimeout
	sc.MaxReconnectAttempts = cfg.Reconnect.MaxAttempts
	sc.ReconnectBaseDelay = cfg.Reconnect.BaseDelay
	sc.ReconnectMaxDelay = cfg.Reconnect.MaxDelay

	sc.ThrottleInterval = cfg.Subscription.ThrottleInterval
	sc.MaxBufferSize = cfg.Subscription.MaxBufferSize
	sc.QueueSize = cfg.Subscription.QueueSize

	sc.MaxMemoryBytes = int64(cfg.Output.MaxMemoryMB) << 20
	sc.MaxLines = cfg.Output.MaxLines
	sc.SweepInterval = cfg.Output.SweepInterval

	return sc
}

// subscribeTopics registers the configured startup topics. Delivered
// messages are logged and, when the recorder is enabled, queued for
// persistence.
func subscribeTopics(session *gateway.Session, topics []config.TopicConfig, rec *recorder.Recorder, logger *slog.Logger) error {
	for _, tc := range topics {
		tc := tc
		cb := func(msg subscription.Message) {
			logger.Debug("message", "topic", tc.Name, "bytes", len(msg.Payload))
			if rec != nil {
				rec.Offer(recorder.Record{
					Topic:      tc.Name,
					Type:       tc.Type,
					ReceivedAt: msg.ReceivedAt,
					Payload:    msg.Payload,
				})
			}
		}

		opts := subscription.Options{ThrottleInterval: tc.ThrottleInterval}
		if _, err := session.SubscribeWith(tc.Name, tc.Type, opts, cb); err != nil {
			return fmt.Errorf("subscribe %s: %w", tc.Name, err)
		}
		logger.Info("subscribed", "topic", tc.Name, "type", tc.Type)
	}
	return nil
}

// logStats emits periodic per-topic delivery counters.
func logStats(session *gateway.Session, rec *recorder.Recorder, logger *slog.Logger) {
	reg := session.Registry()
	for _, topic := range reg.Topics() {
		delivered, err := reg.Delivered(topic)
		if err != nil {
			continue
		}
		logger.Info("topic stats", "topic", topic, "delivered", delivered)
	}
	if rec != nil {
		stats := rec.Stats()
		logger.Info("recorder stats",
			"inserts", stats.Inserts,
			"conflicts", stats.Conflicts,
			"drops", stats.Drops,
			"flushes", stats.Flushes,
			"errors", stats.Errors,
		)
	}
}
