// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/leo-stotch/qpanel/internal/models"
	"github.com/leo-stotch/qpanel/internal/services/orphanscan"
)

func RunOrphansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Inspect orphaned files found by the background scan",
	}

	cmd.AddCommand(runOrphansListCommand())
	cmd.AddCommand(runOrphansClearCommand())
	return cmd
}

func runOrphansListCommand() *cobra.Command {
	var (
		configDir  string
		instanceID int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded orphans grouped by release directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			store := models.NewOrphanedFileStore(db)

			var orphans []*models.OrphanedFile
			if instanceID != 0 {
				orphans, err = store.ListByInstance(cmd.Context(), instanceID)
			} else {
				orphans, err = store.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				cmd.Println("No orphaned files recorded.")
				return nil
			}

			grouped := orphanscan.GroupByRelease(orphans)

			ids := make([]int, 0, len(grouped))
			for id := range grouped {
				ids = append(ids, id)
			}
			sort.Ints(ids)

			for _, id := range ids {
				cmd.Printf("Instance %d:\n", id)
				for _, group := range grouped[id].Groups {
					cmd.Printf("  %s (%d files, %d bytes)\n", group.Directory, len(group.Files), group.TotalSize)
					for _, f := range group.Files {
						cmd.Printf("    %s\n", f.Path)
					}
				}
				for _, f := range grouped[id].Ungrouped {
					cmd.Printf("  %s\n", f.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&instanceID, "instance-id", 0, "Limit to one instance")

	return cmd
}

func runOrphansClearCommand() *cobra.Command {
	var (
		configDir  string
		instanceID int
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget recorded orphans (files on disk are untouched)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			store := models.NewOrphanedFileStore(db)
			if instanceID != 0 {
				err = store.ClearInstance(cmd.Context(), instanceID)
			} else {
				err = store.Clear(cmd.Context())
			}
			if err != nil {
				return err
			}

			cmd.Println("Orphan records cleared.")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&instanceID, "instance-id", 0, "Limit to one instance")

	return cmd
}
