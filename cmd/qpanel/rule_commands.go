// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leo-stotch/qpanel/internal/models"
)

func RunRuleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage limit rules and their instance assignments",
	}

	cmd.AddCommand(runRuleAddCommand())
	cmd.AddCommand(runRuleListCommand())
	cmd.AddCommand(runRuleDeleteCommand())
	cmd.AddCommand(runRuleAssignCommand())
	cmd.AddCommand(runRuleUnassignCommand())
	return cmd
}

func runRuleAddCommand() *cobra.Command {
	var (
		configDir        string
		name             string
		conditionType    string
		conditionValue   string
		ratioLimit       float64
		seedingTimeLimit int64
		uploadLimit      int64
		downloadLimit    int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule",
		Long: `Create a rule matching torrents by tag or tracker URL substring.
Limit flags left unset are not touched on matching torrents.
Speed limits are given in KiB/s, seeding time in minutes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" || conditionValue == "" {
				return errors.New("--name and --condition-value are required")
			}

			rule := &models.Rule{
				Name:           name,
				ConditionType:  conditionType,
				ConditionValue: conditionValue,
			}
			if cmd.Flags().Changed("ratio-limit") {
				rule.RatioLimit = &ratioLimit
			}
			if cmd.Flags().Changed("seeding-time-limit") {
				rule.SeedingTimeLimit = &seedingTimeLimit
			}
			if cmd.Flags().Changed("upload-limit") {
				limit := uploadLimit * 1024
				rule.UploadLimit = &limit
			}
			if cmd.Flags().Changed("download-limit") {
				limit := downloadLimit * 1024
				rule.DownloadLimit = &limit
			}

			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			created, err := models.NewRuleStore(db).Create(cmd.Context(), rule)
			if err != nil {
				return err
			}

			cmd.Printf("Rule '%s' created with ID %d\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().StringVar(&name, "name", "", "Rule name")
	cmd.Flags().StringVar(&conditionType, "condition-type", models.ConditionTag, "Match on \"tag\" or \"tracker\"")
	cmd.Flags().StringVar(&conditionValue, "condition-value", "", "Comma-separated values, any of which matches")
	cmd.Flags().Float64Var(&ratioLimit, "ratio-limit", 0, "Share ratio limit")
	cmd.Flags().Int64Var(&seedingTimeLimit, "seeding-time-limit", 0, "Seeding time limit in minutes")
	cmd.Flags().Int64Var(&uploadLimit, "upload-limit", 0, "Upload limit in KiB/s")
	cmd.Flags().Int64Var(&downloadLimit, "download-limit", 0, "Download limit in KiB/s")

	return cmd
}

func runRuleListCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			rules, err := models.NewRuleStore(db).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				cmd.Println("No rules configured.")
				return nil
			}

			for _, rule := range rules {
				var limits []string
				if rule.RatioLimit != nil {
					limits = append(limits, formatRatio(*rule.RatioLimit))
				}
				if rule.SeedingTimeLimit != nil {
					limits = append(limits, formatMinutes(*rule.SeedingTimeLimit))
				}
				if rule.UploadLimit != nil {
					limits = append(limits, formatSpeed("up", *rule.UploadLimit))
				}
				if rule.DownloadLimit != nil {
					limits = append(limits, formatSpeed("down", *rule.DownloadLimit))
				}
				if len(limits) == 0 {
					limits = append(limits, "no limits")
				}

				cmd.Printf("%d\t%s\t%s=%s\t%s\n", rule.ID, rule.Name, rule.ConditionType, rule.ConditionValue, strings.Join(limits, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")

	return cmd
}

func formatRatio(ratio float64) string {
	return fmt.Sprintf("ratio %v", ratio)
}

func formatMinutes(minutes int64) string {
	return fmt.Sprintf("seed %dm", minutes)
}

func formatSpeed(direction string, limitBytes int64) string {
	return fmt.Sprintf("%s %dKiB/s", direction, limitBytes/1024)
}

func runRuleDeleteCommand() *cobra.Command {
	var (
		configDir string
		id        int
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == 0 {
				return errors.New("--id is required")
			}

			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := models.NewRuleStore(db).Delete(cmd.Context(), id); err != nil {
				return err
			}

			cmd.Printf("Rule %d deleted\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&id, "id", 0, "Rule ID")

	return cmd
}

func runRuleAssignCommand() *cobra.Command {
	var (
		configDir  string
		ruleID     int
		instanceID int
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a rule to an instance",
		Long: `Assign a rule to an instance. Rules are evaluated in assignment
order and the first matching rule wins.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ruleID == 0 || instanceID == 0 {
				return errors.New("--rule-id and --instance-id are required")
			}

			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := models.NewRuleStore(db).AssignToInstance(cmd.Context(), ruleID, instanceID); err != nil {
				return err
			}

			cmd.Printf("Rule %d assigned to instance %d\n", ruleID, instanceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&ruleID, "rule-id", 0, "Rule ID")
	cmd.Flags().IntVar(&instanceID, "instance-id", 0, "Instance ID")

	return cmd
}

func runRuleUnassignCommand() *cobra.Command {
	var (
		configDir  string
		ruleID     int
		instanceID int
	)

	cmd := &cobra.Command{
		Use:   "unassign",
		Short: "Remove a rule from an instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ruleID == 0 || instanceID == 0 {
				return errors.New("--rule-id and --instance-id are required")
			}

			_, db, _, err := openStores(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := models.NewRuleStore(db).UnassignFromInstance(cmd.Context(), ruleID, instanceID); err != nil {
				return err
			}

			cmd.Printf("Rule %d unassigned from instance %d\n", ruleID, instanceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding config.toml")
	cmd.Flags().IntVar(&ruleID, "rule-id", 0, "Rule ID")
	cmd.Flags().IntVar(&instanceID, "instance-id", 0, "Instance ID")

	return cmd
}
