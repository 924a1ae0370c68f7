package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nstogner/glow/pkg/agent"
	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/campaign"
	"github.com/nstogner/glow/pkg/catalog"
	"github.com/nstogner/glow/pkg/config"
	"github.com/nstogner/glow/pkg/conversation"
	"github.com/nstogner/glow/pkg/server"
	"github.com/nstogner/glow/pkg/tools"
)

// loadConfig loads the configuration and installs the default logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP and websocket API",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mailer, stopMail, err := openMailer(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer stopMail()

	provider, images, err := openModel(ctx, cfg)
	if err != nil {
		return err
	}

	deps := tools.Deps{Products: st, Mail: mailer, Images: images}
	if cfg.Model.WriterModel != "" {
		deps.Writer = provider
		deps.WriterModel = cfg.Model.WriterModel
	}
	registry := tools.NewStandardRegistry(deps, cfg.Agent.ToolTimeout)

	a := agent.New(provider, registry, agent.Options{
		Model:              cfg.Model.Name,
		Instructions:       cfg.Agent.Instructions,
		MaxToolInvocations: cfg.Agent.MaxToolInvocations,
		Parallelism:        cfg.Agent.Parallelism,
	})

	if cfg.Auth.Secret == "" {
		slog.Warn("auth.secret is empty; tokens are signed with an empty key")
	}
	srv := server.New(server.Deps{
		Conversations:  conversation.NewService(st, a),
		Store:          st,
		Tools:          registry,
		Campaigns:      campaign.NewSender(st, mailer),
		Auth:           auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Admins),
		Limiter:        server.NewRateLimiter(cfg.RateLimit.ChatPerMinute, cfg.RateLimit.Burst),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func importProductsCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-products",
		Usage:     "Import products from a CSV file",
		ArgsUsage: "<file.csv>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one CSV file")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			st, _, err := openStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := catalog.Import(c.Context, st, f)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d products\n", n)
			return nil
		},
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "init-config",
		Usage:     "Write a sample configuration file",
		ArgsUsage: "[path]",
		Action: func(c *cli.Context) error {
			path := config.DefaultPath
			if c.NArg() > 0 {
				path = c.Args().First()
			}
			if err := config.InitConfig(path); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			fmt.Printf("Created configuration file at %s\n", path)
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an identity token for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "name"},
			&cli.BoolFlag{Name: "admin"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			v := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Admins)
			token, err := v.Issue(auth.Identity{
				Email: c.String("email"),
				Name:  c.String("name"),
				Admin: c.Bool("admin"),
			}, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
