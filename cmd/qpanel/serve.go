// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/leo-stotch/qpanel/internal/config"
	"github.com/leo-stotch/qpanel/internal/database"
	"github.com/leo-stotch/qpanel/internal/jobs"
	"github.com/leo-stotch/qpanel/internal/logger"
	"github.com/leo-stotch/qpanel/internal/models"
	"github.com/leo-stotch/qpanel/internal/qbittorrent"
	"github.com/leo-stotch/qpanel/internal/services/notifications"
)

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the background reconciliation loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.New(configDir, version)
			if err != nil {
				return err
			}

			logger.Init(cfg.Config)
			cfg.WatchConfig()

			log.Info().Str("version", version).Msg("starting qpanel")

			db, err := database.New(cfg.GetDatabasePath())
			if err != nil {
				return err
			}
			defer db.Close()

			encryptionKey, err := cfg.Config.EncryptionKey()
			if err != nil {
				return err
			}

			instanceStore, err := models.NewInstanceStore(db, encryptionKey)
			if err != nil {
				return err
			}
			ruleStore := models.NewRuleStore(db)

			notifier := notifications.NewService(cfg.Config.NotificationURLs)
			notifier.Start(ctx)

			pool := qbittorrent.NewClientPool(instanceStore)

			scheduler := jobs.NewScheduler(cfg.Config, db, instanceStore, ruleStore, pool, notifier)
			scheduler.Start(ctx)

			log.Info().Dur("interval", cfg.Config.CheckInterval()).Msg("reconciliation loop started")

			<-ctx.Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml (default: user config dir)")

	return cmd
}
