// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sorae/sorae/internal/auth"
	"github.com/sorae/sorae/internal/auth/memory"
	authpg "github.com/sorae/sorae/internal/auth/postgres"
	"github.com/sorae/sorae/internal/biometric"
	"github.com/sorae/sorae/internal/config"
	"github.com/sorae/sorae/internal/gateway"
	"github.com/sorae/sorae/internal/logging"
	"github.com/sorae/sorae/internal/mail"
	"github.com/sorae/sorae/internal/observability"
	"github.com/sorae/sorae/internal/securityevent"
	"github.com/sorae/sorae/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication gateway",
		Long: `Start the HTTP gateway which handles enrollment, login, credential
rotation, and backup code recovery, plus the metrics endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServe wires the engine and runs until a shutdown signal arrives.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logging.SetDefault("sorae", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	logger.Info("starting sorae",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Observability.Addr,
		"mail_mode", cfg.Mail.Mode,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Account storage: Postgres when configured, in-memory otherwise.
	var accounts auth.AccountRepository
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		accounts = authpg.NewAccountRepository(pool)
		logger.Info("using postgres account store")
	} else {
		accounts = memory.NewAccountRepository()
		logger.Warn("no database configured, accounts are held in memory")
	}

	// Security event trail.
	sink, err := securityevent.NewFileSink(cfg.Events.Path)
	if err != nil {
		return err
	}
	events, err := securityevent.NewRecorder(sink, logger, cfg.Events.BufferSize)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := events.Close(); closeErr != nil {
			logger.Warn("error closing event recorder", "error", closeErr)
		}
	}()

	// Magic link delivery.
	var sender auth.MagicLinkSender
	switch cfg.Mail.Mode {
	case "smtp":
		sender, err = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			From:     cfg.Mail.From,
			Subject:  cfg.Mail.Subject,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}, logger)
		if err != nil {
			return err
		}
	default:
		sender = mail.NewLogSender(logger)
	}

	// The gateway injects request-supplied samples through the context; the
	// simulator covers callers that send none.
	capturer := biometric.FromContext(biometric.NewSimulator(logger))

	opts := cfg.Auth.Options()
	locker := auth.NewAccountLocker()

	login, err := auth.NewService(accounts, capturer, locker, logger, events, opts)
	if err != nil {
		return err
	}
	enrollment, err := auth.NewEnrollmentService(accounts, capturer, sender, locker, logger, events, opts)
	if err != nil {
		return err
	}
	recovery, err := auth.NewRecoveryService(accounts, locker, logger, events, opts)
	if err != nil {
		return err
	}

	gw, err := gateway.NewServer(gateway.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, login, enrollment, recovery, logger)
	if err != nil {
		return err
	}

	gwErrCh, err := gw.Start()
	if err != nil {
		return err
	}
	logger.Info("gateway listening", "addr", gw.Addr())

	collectors := append(securityevent.Collectors(), gateway.Collectors()...)
	obsServer := observability.NewServer(cfg.Observability.Addr,
		func() bool { return true },
		collectors...,
	)
	obsErrCh, err := obsServer.Start()
	if err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		_ = gw.Stop(shutdownCtx)
		return err
	}

	cmd.Println("Sorae started")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr := <-gwErrCh:
		if serveErr != nil {
			logger.Error("gateway server error", "error", serveErr)
		}
	case serveErr := <-obsErrCh:
		if serveErr != nil {
			logger.Error("observability server error", "error", serveErr)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping gateway", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
