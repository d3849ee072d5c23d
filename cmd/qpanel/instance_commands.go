// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/leo-stotch/qpanel/internal/config"
	"github.com/leo-stotch/qpanel/internal/database"
	"github.com/leo-stotch/qpanel/internal/models"
	"github.com/leo-stotch/qpanel/internal/qbittorrent"
)

func openStores(configDir string) (*config.AppConfig, *database.DB, *models.InstanceStore, error) {
	cfg, err := config.New(configDir, version)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, nil, err
	}

	encryptionKey, err := cfg.Config.EncryptionKey()
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	instanceStore, err := models.NewInstanceStore(db, encryptionKey)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	return cfg, db, instanceStore, nil
}

func RunInstanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage qBittorrent instances",
	}

	cmd.AddCommand(runInstanceAddCommand())
	cmd.AddCommand(runInstanceListCommand())
	cmd.AddCommand(runInstanceStatusCommand())
	cmd.AddCommand(runInstanceDeleteCommand())
	return cmd
}

func runInstanceAddCommand() *cobra.Command {
	var (
		configDir            string
		name                 string
		host                 string
		username             string
		password             string
		remoteRoot           string
		localRoot            string
		tagNoHardlinks       bool
		pauseCrossSeeded     bool
		tagUnregistered      bool
		orphanScan           bool
		orphanMinAgeDays     int
		orphanIgnorePatterns string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a qBittorrent instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" || host == "" {
				return errors.New("--name and --host are required")
			}

			_, db, instanceStore, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			instance, err := instanceStore.Create(cmd.Context(), &models.Instance{
				Name:                 name,
				Host:                 host,
				Username:             username,
				RemoteRoot:           remoteRoot,
				LocalRoot:            localRoot,
				TagNoHardlinks:       tagNoHardlinks,
				PauseCrossSeeded:     pauseCrossSeeded,
				TagUnregistered:      tagUnregistered,
				OrphanScanEnabled:    orphanScan,
				OrphanMinAgeDays:     orphanMinAgeDays,
				OrphanIgnorePatterns: orphanIgnorePatterns,
			}, password)
			if err != nil {
				return err
			}

			cmd.Printf("Instance '%s' created with ID %d\n", instance.Name, instance.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().StringVar(&name, "name", "", "Instance name (unique)")
	cmd.Flags().StringVar(&host, "host", "", "qBittorrent WebUI URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&username, "username", "", "WebUI username")
	cmd.Flags().StringVar(&password, "password", "", "WebUI password")
	cmd.Flags().StringVar(&remoteRoot, "remote-root", "", "Download directory as the instance sees it")
	cmd.Flags().StringVar(&localRoot, "local-root", "", "Same directory as mounted locally")
	cmd.Flags().BoolVar(&tagNoHardlinks, "tag-no-hardlinks", false, "Tag torrents whose files have no hard links")
	cmd.Flags().BoolVar(&pauseCrossSeeded, "pause-cross-seeded", false, "Pause duplicates of paused torrents")
	cmd.Flags().BoolVar(&tagUnregistered, "tag-unregistered", false, "Tag torrents unregistered with their tracker")
	cmd.Flags().BoolVar(&orphanScan, "orphan-scan", false, "Scan the local root for orphaned files")
	cmd.Flags().IntVar(&orphanMinAgeDays, "orphan-min-age-days", 7, "Minimum file age in days before it counts as orphaned")
	cmd.Flags().StringVar(&orphanIgnorePatterns, "orphan-ignore-patterns", "", "Comma or newline separated regexes to skip while scanning")

	return cmd
}

func runInstanceListCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, instanceStore, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			instances, err := instanceStore.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				cmd.Println("No instances configured.")
				return nil
			}

			for _, instance := range instances {
				cmd.Printf("%d\t%s\t%s\n", instance.ID, instance.Name, instance.Host)
				if instance.HasPathMapping() {
					cmd.Printf("\tpaths: %s -> %s\n", instance.RemoteRoot, instance.LocalRoot)
				}
				cmd.Printf("\tflags: noHL=%t crossSeed=%t unregistered=%t orphanScan=%t\n",
					instance.TagNoHardlinks, instance.PauseCrossSeeded, instance.TagUnregistered, instance.OrphanScanEnabled)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")

	return cmd
}

func runInstanceStatusCommand() *cobra.Command {
	var (
		configDir string
		id        int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe an instance's connectivity and WebAPI capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == 0 {
				return errors.New("--id is required")
			}

			_, db, instanceStore, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			instance, err := instanceStore.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			pool := qbittorrent.NewClientPool(instanceStore)
			client, err := pool.GetClient(cmd.Context(), id)
			if err != nil {
				cmd.Printf("Instance %d '%s' at %s\n", instance.ID, instance.Name, instance.Host)
				cmd.Printf("\tconnection: failed (%v)\n", err)
				return nil
			}

			health := "healthy"
			if !client.IsHealthy() {
				health = "unhealthy"
			}
			webAPIVersion := client.GetWebAPIVersion()
			if webAPIVersion == "" {
				webAPIVersion = "unknown"
			}
			setTags := "unsupported"
			if client.SupportsSetTags() {
				setTags = "supported"
			}

			cmd.Printf("Instance %d '%s' at %s\n", client.GetInstanceID(), instance.Name, instance.Host)
			cmd.Printf("\tconnection: %s\n", health)
			cmd.Printf("\twebAPI version: %s\n", webAPIVersion)
			cmd.Printf("\tsetTags endpoint: %s\n", setTags)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&id, "id", 0, "Instance ID")

	return cmd
}

func runInstanceDeleteCommand() *cobra.Command {
	var (
		configDir string
		id        int
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an instance and its history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == 0 {
				return errors.New("--id is required")
			}

			_, db, instanceStore, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := instanceStore.Delete(cmd.Context(), id); err != nil {
				return err
			}

			cmd.Printf("Instance %d deleted\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&id, "id", 0, "Instance ID")

	return cmd
}
