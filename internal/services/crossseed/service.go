// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package crossseed pauses duplicate torrents that cross-seed a
// release one of whose copies is already paused.
package crossseed

import (
	"context"
	"fmt"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/leo-stotch/qpanel/internal/models"
)

type torrentClient interface {
	PauseCtx(ctx context.Context, hashes []string) error
}

type actionLogger interface {
	Create(ctx context.Context, instanceID int, action, details string) error
}

type notifier interface {
	Send(message string)
}

func isPaused(state string) bool {
	return strings.Contains(strings.ToLower(state), "paused")
}

// firstHTTPTracker returns the torrent's first http(s) tracker URL for
// display, or "N/A".
func firstHTTPTracker(torrent qbt.Torrent) string {
	for _, tracker := range torrent.Trackers {
		if strings.HasPrefix(tracker.Url, "http") {
			return tracker.Url
		}
	}
	return "N/A"
}

// PauseDuplicates pauses every running torrent that shares a name with
// a paused torrent on the same instance. Returns the number of
// torrents paused.
func PauseDuplicates(ctx context.Context, instance *models.Instance, torrents []qbt.Torrent, client torrentClient, logs actionLogger, notify notifier) (int, error) {
	pausedNames := make(map[string]struct{})
	for _, torrent := range torrents {
		if isPaused(string(torrent.State)) {
			pausedNames[torrent.Name] = struct{}{}
		}
	}

	if len(pausedNames) == 0 {
		return 0, nil
	}

	paused := 0

	for _, torrent := range torrents {
		if isPaused(string(torrent.State)) {
			continue
		}
		if _, dup := pausedNames[torrent.Name]; !dup {
			continue
		}

		if err := client.PauseCtx(ctx, []string{torrent.Hash}); err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Msg("crossseed: failed to pause torrent")
			continue
		}

		tracker := firstHTTPTracker(torrent)
		details := fmt.Sprintf("%s (%s)", torrent.Name, tracker)
		if err := logs.Create(ctx, instance.ID, "Paused cross-seeded torrent", details); err != nil {
			return paused, err
		}
		if notify != nil {
			notify.Send(fmt.Sprintf("Paused cross-seeded torrent on %s: %s (%s)",
				instance.Name, torrent.Name, tracker))
		}

		log.Info().Int("instanceID", instance.ID).Str("torrent", torrent.Name).
			Msg("crossseed: paused cross-seeded torrent")
		paused++
	}

	return paused, nil
}
