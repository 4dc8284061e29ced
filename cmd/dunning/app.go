// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/licenseops/dunning/internal/api"
	"github.com/licenseops/dunning/internal/buildinfo"
	"github.com/licenseops/dunning/internal/config"
	"github.com/licenseops/dunning/internal/database"
	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/locks"
	"github.com/licenseops/dunning/internal/metrics"
	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning"
	"github.com/licenseops/dunning/internal/services/dunning/chat"
	"github.com/licenseops/dunning/internal/services/dunning/email"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/internal/services/ledger"
)

// application is the fully wired service graph shared by serve and scan.
type application struct {
	cfg     *config.AppConfig
	logs    *config.LogManager
	db      *database.DB
	deps    *api.Dependencies
	closers []func() error
}

// loadConfig reads --config and sets up logging.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, *config.LogManager, error) {
	path, _ := cmd.Flags().GetString("config")

	logs := config.NewLogManager(buildinfo.Version)
	logs.Initialize()

	cfg, err := config.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Config.Version = buildinfo.Version

	if err := logs.Apply(cfg.Config.LogLevel, cfg.Config.LogPath, cfg.Config.LogMaxSize, cfg.Config.LogMaxBackups); err != nil {
		return nil, nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	return cfg, logs, nil
}

func openDatabase(cfg *config.AppConfig) (*database.DB, error) {
	db, err := database.OpenFromConfig(cfg.Config, cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info().Str("engine", db.Dialect()).Msg("Database ready")
	return db, nil
}

func newApplication(cmd *cobra.Command) (*application, error) {
	cfg, logs, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, logs: logs, db: db}
	app.closers = append(app.closers, db.Close)

	if err := app.wire(cfg.Config); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire(cfg *domain.Config) error {
	licenseStore := models.NewLicenseStore(a.db)
	jobStore := models.NewNotificationJobStore(a.db)

	ledgerSvc := ledger.NewService(licenseStore)
	jobsSvc := jobs.NewService(jobStore, models.NewNotificationLogStore(a.db), jobs.WithCountryCode(cfg.ChatDefaultCountryCode))

	var manager *metrics.Manager
	if cfg.MetricsEnabled {
		manager = metrics.NewManager(jobStore, database.NewMetricsCollector(a.db))
	}

	locker, closeLocker, err := locks.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create dispatch locker: %w", err)
	}
	a.closers = append(a.closers, closeLocker)

	opts := []dunning.Option{
		dunning.WithLocker(locker),
		dunning.WithEmailSender(email.NewClient(email.ConfigFromDomain(cfg))),
	}
	if manager != nil {
		opts = append(opts, dunning.WithRecorder(manager.Dispatch))
	}

	chatClient, err := chat.NewClient(chat.ConfigFromDomain(cfg))
	switch {
	case err == nil:
		opts = append(opts, dunning.WithChatPlatform(chatClient))
	case errors.Is(err, chat.ErrNotConfigured):
		log.Warn().Msg("Chat platform is not configured, chat reminders are disabled")
	default:
		return fmt.Errorf("failed to create chat client: %w", err)
	}
	if !cfg.EmailConfigured() {
		log.Warn().Msg("Email provider is not configured, email reminders are disabled")
	}

	dispatcher := dunning.NewDispatcher(ledgerSvc, jobsSvc, dunning.Config{
		DefaultCountryCode: cfg.ChatDefaultCountryCode,
		PaymentURL:         cfg.PaymentInstructionsURL,
		Location:           cfg.Location(),
		LockTTL:            cfg.LockTTLDuration(),
	}, opts...)

	a.deps = &api.Dependencies{
		Config:     cfg,
		DB:         a.db,
		Ledger:     ledgerSvc,
		Scanner:    ledger.NewScanner(licenseStore, nil),
		Jobs:       jobsSvc,
		Dispatcher: dispatcher,
		Metrics:    manager,
	}
	return nil
}

// Close runs closers in reverse order and returns the first error.
func (a *application) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
