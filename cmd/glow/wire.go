package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nstogner/glow/pkg/config"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/model/gemini"
	"github.com/nstogner/glow/pkg/model/openai"
	"github.com/nstogner/glow/pkg/store"
	"github.com/nstogner/glow/pkg/store/postgres"
	"github.com/nstogner/glow/pkg/store/sqlite"
	"github.com/nstogner/glow/pkg/tools"
)

// openStore opens the configured store. The pool is non-nil for Postgres.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *pgxpool.Pool, error) {
	switch cfg.Database.Driver {
	case "postgres":
		st, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		slog.Info("Using postgres store")
		return st, st.Pool(), nil
	default:
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		st, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		slog.Info("Using sqlite store", "path", cfg.Database.Path)
		return st, nil, nil
	}
}

// openMailer builds the configured sender. With Postgres the sender sits
// behind a river queue so requests never wait on SMTP.
func openMailer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (mail.Sender, func(), error) {
	var sender mail.Sender = mail.LogSender{}
	if cfg.Mail.Driver == "smtp" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	if pool == nil {
		return sender, func() {}, nil
	}

	queue, err := mail.NewQueue(pool, sender, cfg.Mail.QueueWorkers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize mail queue: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start mail queue: %w", err)
	}
	slog.Info("Mail queue started", "workers", cfg.Mail.QueueWorkers)
	stop := func() {
		if err := queue.Stop(context.Background()); err != nil {
			slog.Error("Mail queue stop failed", "error", err)
		}
	}
	return queue, stop, nil
}

// openModel builds the chat provider and the matching image analyzer.
func openModel(ctx context.Context, cfg *config.Config) (model.Provider, tools.ImageAnalyzer, error) {
	visionModel := cfg.Model.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model.Name
	}
	switch cfg.Model.Provider {
	case "openai":
		p := openai.New(cfg.Model.APIKey, cfg.Model.BaseURL)
		return p, openai.NewSkinAnalyzer(p, visionModel), nil
	default:
		p, err := gemini.New(ctx, cfg.Model.APIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Gemini provider: %w", err)
		}
		return p, gemini.NewSkinAnalyzer(p, visionModel), nil
	}
}
