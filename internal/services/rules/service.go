// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package rules matches declarative limit rules against torrents and
// applies them through the qBittorrent API.
package rules

import (
	"context"
	"fmt"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/leo-stotch/qpanel/internal/models"
)

// inheritLimit is qBittorrent's sentinel for "inherit the global
// default" in share limit calls.
const inheritLimit = -2

type torrentClient interface {
	SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit, inactiveSeedingTimeLimit int64) error
	SetTorrentUploadLimitCtx(ctx context.Context, hashes []string, limitBytes int64) error
	SetTorrentDownloadLimitCtx(ctx context.Context, hashes []string, limitBytes int64) error
}

type actionLogger interface {
	Create(ctx context.Context, instanceID int, action, details string) error
}

// splitTags splits a torrent's comma-separated tag string into trimmed
// non-empty tags.
func splitTags(tags string) []string {
	var out []string
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// torrentHasTag reports whether candidate is one of the torrent's
// tags. Comparison is exact and case-sensitive, matching qBittorrent's
// own tag semantics.
func torrentHasTag(tags string, candidate string) bool {
	for _, tag := range splitTags(tags) {
		if tag == candidate {
			return true
		}
	}
	return false
}

func matchesRule(torrent qbt.Torrent, rule *models.Rule) bool {
	switch rule.ConditionType {
	case models.ConditionTag:
		for _, value := range rule.ConditionValues() {
			if torrentHasTag(torrent.Tags, value) {
				return true
			}
		}
	case models.ConditionTracker:
		for _, value := range rule.ConditionValues() {
			for _, tracker := range torrent.Trackers {
				if strings.Contains(tracker.Url, value) {
					return true
				}
			}
			if torrent.Tracker != "" && strings.Contains(torrent.Tracker, value) {
				return true
			}
		}
	}
	return false
}

// MatchRule returns the first rule in order that matches the torrent,
// or nil. Later rules are never consulted once one matches, even when
// the matching rule changes nothing.
func MatchRule(torrent qbt.Torrent, rules []*models.Rule) *models.Rule {
	for _, rule := range rules {
		if matchesRule(torrent, rule) {
			return rule
		}
	}
	return nil
}

// isApplied reports whether every limit the rule constrains already
// holds on the torrent. Unset rule fields are not compared.
func isApplied(torrent qbt.Torrent, rule *models.Rule) bool {
	if rule.RatioLimit != nil && torrent.RatioLimit != *rule.RatioLimit {
		return false
	}
	if rule.SeedingTimeLimit != nil && torrent.SeedingTimeLimit != *rule.SeedingTimeLimit {
		return false
	}
	if rule.UploadLimit != nil && torrent.UpLimit != *rule.UploadLimit {
		return false
	}
	if rule.DownloadLimit != nil && torrent.DlLimit != *rule.DownloadLimit {
		return false
	}
	return true
}

// ruleDetails renders the applied limits for the action log, listing
// only the fields the rule constrains.
func ruleDetails(rule *models.Rule) string {
	var parts []string
	if rule.RatioLimit != nil {
		parts = append(parts, fmt.Sprintf("Share Ratio: %v", *rule.RatioLimit))
	}
	if rule.SeedingTimeLimit != nil {
		parts = append(parts, fmt.Sprintf("Seeding Time: %dm", *rule.SeedingTimeLimit))
	}
	if rule.UploadLimit != nil {
		parts = append(parts, fmt.Sprintf("Up: %dKiB/s", *rule.UploadLimit/1024))
	}
	if rule.DownloadLimit != nil {
		parts = append(parts, fmt.Sprintf("Down: %dKiB/s", *rule.DownloadLimit/1024))
	}
	return strings.Join(parts, ", ")
}

// applyRule pushes the rule's limits to one torrent. Share limits go
// out as a single combined call with unset fields inheriting.
func applyRule(ctx context.Context, client torrentClient, torrent qbt.Torrent, rule *models.Rule) error {
	hashes := []string{torrent.Hash}

	if rule.RatioLimit != nil || rule.SeedingTimeLimit != nil {
		ratio := float64(inheritLimit)
		if rule.RatioLimit != nil {
			ratio = *rule.RatioLimit
		}
		seedingMinutes := int64(inheritLimit)
		if rule.SeedingTimeLimit != nil {
			seedingMinutes = *rule.SeedingTimeLimit
		}
		if err := client.SetTorrentShareLimitCtx(ctx, hashes, ratio, seedingMinutes, inheritLimit); err != nil {
			return fmt.Errorf("set share limits: %w", err)
		}
	}

	if rule.UploadLimit != nil {
		if err := client.SetTorrentUploadLimitCtx(ctx, hashes, *rule.UploadLimit); err != nil {
			return fmt.Errorf("set upload limit: %w", err)
		}
	}

	if rule.DownloadLimit != nil {
		if err := client.SetTorrentDownloadLimitCtx(ctx, hashes, *rule.DownloadLimit); err != nil {
			return fmt.Errorf("set download limit: %w", err)
		}
	}

	return nil
}

// Apply runs the instance's rules over its torrents. Each torrent gets
// at most the first matching rule; torrents already conforming produce
// no API calls and no log entries. One torrent's API failure is logged
// and does not abort the rest. Returns the number of torrents changed.
func Apply(ctx context.Context, instanceID int, torrents []qbt.Torrent, instanceRules []*models.Rule, client torrentClient, logs actionLogger) (int, error) {
	if len(instanceRules) == 0 {
		return 0, nil
	}

	applied := 0

	for _, torrent := range torrents {
		rule := MatchRule(torrent, instanceRules)
		if rule == nil {
			continue
		}

		if isApplied(torrent, rule) {
			log.Trace().Int("instanceID", instanceID).Str("torrent", torrent.Name).
				Str("rule", rule.Name).Msg("rules: torrent already conforms")
			continue
		}

		if err := applyRule(ctx, client, torrent, rule); err != nil {
			log.Error().Err(err).Int("instanceID", instanceID).
				Str("torrent", torrent.Name).Str("rule", rule.Name).
				Msg("rules: failed to apply rule")
			continue
		}

		action := fmt.Sprintf("Applied rule '%s' to '%s'", rule.Name, torrent.Name)
		if err := logs.Create(ctx, instanceID, action, ruleDetails(rule)); err != nil {
			return applied, fmt.Errorf("record action log: %w", err)
		}

		log.Info().Int("instanceID", instanceID).Str("torrent", torrent.Name).
			Str("rule", rule.Name).Msg("rules: applied rule")
		applied++
	}

	return applied, nil
}
