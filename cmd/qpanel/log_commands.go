// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/leo-stotch/qpanel/internal/models"
)

func RunLogsCommand() *cobra.Command {
	var (
		configDir  string
		instanceID int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the action history, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			store := models.NewActionLogStore(db)

			var logs []*models.ActionLog
			if instanceID != 0 {
				logs, err = store.ListByInstance(cmd.Context(), instanceID, limit)
			} else {
				logs, err = store.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				cmd.Println("No actions recorded.")
				return nil
			}

			for _, entry := range logs {
				cmd.Printf("%s\t[%d]\t%s\t%s\n",
					entry.CreatedAt.Format(time.RFC3339), entry.InstanceID, entry.Action, entry.Details)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&instanceID, "instance-id", 0, "Limit to one instance")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to show")

	return cmd
}
