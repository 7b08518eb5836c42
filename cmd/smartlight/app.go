package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/parsakn/smartlight-client/internal/config"
	"github.com/parsakn/smartlight-client/internal/credentials"
	"github.com/parsakn/smartlight-client/internal/logging"
	"github.com/parsakn/smartlight-client/internal/session"
	"github.com/parsakn/smartlight-client/internal/storage"
	"github.com/parsakn/smartlight-client/internal/telemetry"
)

// app is everything one command needs, opened from config.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *storage.Repository
	session *session.Session
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := telemetry.Init(cfg.SentryDSN, version); err != nil {
		logger.Warn("sentry init failed", "err", err)
	}

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	store := credentials.NewStore(repo, logger)
	sess := session.New(session.Options{
		APIBaseURL:         cfg.APIBaseURL,
		RequestTimeout:     cfg.RequestTimeout,
		RefreshTimeout:     cfg.RefreshTimeout,
		PushReconnectDelay: cfg.PushReconnectDelay,
		ResyncInterval:     cfg.ResyncInterval,
	}, store, logger)

	if _, err := sess.Bootstrap(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &app{cfg: cfg, logger: logger, repo: repo, session: sess}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}
