package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/admin"
	"github.com/cory-johannsen/chatrelay/internal/config"
	"github.com/cory-johannsen/chatrelay/internal/observability"
	"github.com/cory-johannsen/chatrelay/internal/relay"
	"github.com/cory-johannsen/chatrelay/internal/server"
	"github.com/cory-johannsen/chatrelay/internal/session"
)

func run(ctx context.Context, cfg config.Config) error {
	start := time.Now()

	logger, err := observability.NewLogger(cfg.Logging, cfg.Relay.Debug)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting chat relay",
		zap.String("addr", cfg.Relay.Addr()),
		zap.Bool("debug", cfg.Relay.Debug),
		zap.Int("capacity", cfg.Relay.Capacity),
	)

	registry := session.NewRegistry(cfg.Relay.Capacity)
	chatRelay := relay.New(cfg.Relay, registry, logger)

	var health *admin.HealthServer
	if cfg.Admin.Enabled() {
		health = admin.NewHealthServer(cfg.Admin, logger)
	}
	setServing := func(serving bool) {
		if health != nil {
			health.SetServing(serving)
		}
	}

	lifecycle := server.NewLifecycle(logger)

	if health != nil {
		lifecycle.Add("health", &server.FuncService{
			StartFn: health.ListenAndServe,
			StopFn:  health.Stop,
		})
	}

	lifecycle.Add("relay", &server.FuncService{
		StartFn: func() error {
			setServing(true)
			defer setServing(false)
			return chatRelay.ListenAndServe()
		},
		StopFn: chatRelay.Stop,
	})

	logger.Info("relay initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("health_endpoint", health != nil),
	)

	return lifecycle.Run(ctx)
}
