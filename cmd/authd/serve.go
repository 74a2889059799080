// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/skynet-visitas/authd/internal/auth"
	"github.com/skynet-visitas/authd/internal/config"
	"github.com/skynet-visitas/authd/internal/httpapi"
	identitypg "github.com/skynet-visitas/authd/internal/identity/postgres"
	"github.com/skynet-visitas/authd/internal/logging"
	"github.com/skynet-visitas/authd/internal/mailer"
	"github.com/skynet-visitas/authd/internal/observability"
	"github.com/skynet-visitas/authd/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the HTTP API and the observability endpoints, connected to
the PostgreSQL identity store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}
}

// disabledMailer stands in when no SMTP relay is configured: reset requests
// still succeed, the mail is just never sent.
type disabledMailer struct {
	logger *slog.Logger
}

func (d *disabledMailer) SendPasswordReset(ctx context.Context, to, _, _ string) error {
	d.logger.WarnContext(ctx, "mail delivery disabled, reset link not sent", "to", to)
	return nil
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logging.SetDefault("authd", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("connected to database")

	identities := identitypg.NewIdentityRepository(pool)
	roles := identitypg.NewRoleRepository(pool)
	hasher := auth.NewBcryptHasher(cfg.Auth.AllowPlaintextPasswords)
	if cfg.Auth.AllowPlaintextPasswords {
		logger.Warn("legacy plaintext password fallback is enabled")
	}

	authSvc, err := auth.NewServiceWithLogger(identities, roles, hasher, logger)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionIssuer(
		cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.Audience, cfg.SessionTTL())
	if err != nil {
		return err
	}
	resetTokens, err := auth.NewResetTokens(cfg.ResetSecret(), cfg.ResetTTL())
	if err != nil {
		return err
	}

	var resetMailer auth.Mailer
	if cfg.SMTP.Host != "" {
		resetMailer, err = mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			ResetTTL: cfg.ResetTTL(),
		}, logger)
		if err != nil {
			return err
		}
	} else {
		resetMailer = &disabledMailer{logger: logger}
	}

	resetSvc, err := auth.NewResetService(
		identities, hasher, resetTokens, resetMailer,
		cfg.Reset.FrontendURL, cfg.Reset.ExposeLink, logger)
	if err != nil {
		return err
	}
	passwordSvc, err := auth.NewPasswordService(identities, hasher, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability first: readiness reflects the database connection.
	obsServer := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, obsErrCh, "observability")

	apiServer, err := httpapi.NewServer(cfg.Server.Addr, httpapi.Deps{
		Authenticator: authSvc,
		Sessions:      sessions,
		Resets:        resetSvc,
		Passwords:     passwordSvc,
		Metrics:       obsServer.Metrics(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	apiErrCh, err := apiServer.Start()
	if err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
		}
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authd started")
	logger.Info("service ready",
		"api_addr", apiServer.Addr(),
		"observability_addr", obsServer.Addr(),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the run context when a server reports a fatal
// error. A closed channel means a clean stop.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
