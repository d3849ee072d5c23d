// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tagsync keeps hygiene tags on torrents in step with
// observed state: noHL for torrents without hard-linked files and
// unregistered for torrents dropped by their tracker.
package tagsync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/leo-stotch/qpanel/internal/models"
	"github.com/leo-stotch/qpanel/internal/qbittorrent"
	"github.com/leo-stotch/qpanel/pkg/hardlink"
	"github.com/leo-stotch/qpanel/pkg/pathutil"
)

const (
	TagNoHardlinks  = "noHL"
	TagUnregistered = "unregistered"

	// completionGracePeriod delays noHL tagging after completion so
	// torrents mid-finalization are not tagged prematurely.
	completionGracePeriod = time.Hour

	// inheritLimit is qBittorrent's sentinel for inheriting the
	// global share limit defaults.
	inheritLimit = -2
)

type torrentClient interface {
	GetFilesInformationCtx(ctx context.Context, hash string) (*qbt.TorrentFiles, error)
	AddTagsCtx(ctx context.Context, hashes []string, tags string) error
	RemoveTagsCtx(ctx context.Context, hashes []string, tags string) error
	SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit, inactiveSeedingTimeLimit int64) error
}

type actionLogger interface {
	Create(ctx context.Context, instanceID int, action, details string) error
}

type notifier interface {
	Send(message string)
}

// Service evaluates both tag state machines. The link count lookup is
// a provider field so tests can exercise tagging without hardlinks on
// disk.
type Service struct {
	linkCountProvider func(path string) (uint64, error)
	now               func() time.Time
}

func NewService() *Service {
	return &Service{
		linkCountProvider: hardlink.Count,
		now:               time.Now,
	}
}

func torrentHasTag(tags, candidate string) bool {
	for _, tag := range strings.Split(tags, ",") {
		if strings.TrimSpace(tag) == candidate {
			return true
		}
	}
	return false
}

// hasHardLink reports whether any of the torrent's files resolves to
// an existing local path with more than one hard link.
func (s *Service) hasHardLink(ctx context.Context, instance *models.Instance, torrent qbt.Torrent, client torrentClient) (bool, error) {
	files, err := client.GetFilesInformationCtx(ctx, torrent.Hash)
	if err != nil {
		return false, fmt.Errorf("list torrent files: %w", err)
	}
	if files == nil {
		return false, nil
	}

	for _, file := range *files {
		remotePath := filepath.Join(torrent.SavePath, file.Name)

		localPath, ok := pathutil.Translate(instance.RemoteRoot, instance.LocalRoot, remotePath)
		if !ok {
			continue
		}

		count, err := s.linkCountProvider(localPath)
		if err != nil {
			continue // missing or unreadable, not evidence either way
		}
		if count > 1 {
			return true, nil
		}
	}

	return false, nil
}

// resetShareLimits puts the torrent back on the global defaults.
func resetShareLimits(ctx context.Context, client torrentClient, hash string) error {
	return client.SetTorrentShareLimitCtx(ctx, []string{hash}, inheritLimit, inheritLimit, inheritLimit)
}

// SyncHardlinkTags reconciles the noHL tag for every torrent. Both
// path roots must be configured; otherwise the whole check is a no-op.
func (s *Service) SyncHardlinkTags(ctx context.Context, instance *models.Instance, torrents []qbt.Torrent, client torrentClient, logs actionLogger, notify notifier) error {
	if !instance.HasPathMapping() {
		log.Debug().Int("instanceID", instance.ID).
			Msg("tagsync: path mapping not configured, skipping hard link check")
		return nil
	}

	for _, torrent := range torrents {
		hasLink, err := s.hasHardLink(ctx, instance, torrent, client)
		if err != nil {
			log.Warn().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Msg("tagsync: hard link check failed, skipping torrent")
			continue
		}

		tagged := torrentHasTag(torrent.Tags, TagNoHardlinks)

		switch {
		case hasLink && tagged:
			if err := client.RemoveTagsCtx(ctx, []string{torrent.Hash}, TagNoHardlinks); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to remove noHL tag")
				continue
			}
			if err := resetShareLimits(ctx, client, torrent.Hash); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to reset share limits")
			}
			action := fmt.Sprintf("Removed 'noHL' tag from '%s'", torrent.Name)
			if err := logs.Create(ctx, instance.ID, action, "Share limits reset to global defaults."); err != nil {
				return err
			}
			log.Info().Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Msg("tagsync: removed noHL tag, torrent has hard links again")

		case !hasLink && !tagged:
			if torrent.CompletionOn <= 0 {
				continue
			}
			completed := time.Unix(torrent.CompletionOn, 0)
			if s.now().Sub(completed) <= completionGracePeriod {
				continue
			}

			if err := client.AddTagsCtx(ctx, []string{torrent.Hash}, TagNoHardlinks); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to add noHL tag")
				continue
			}
			details := fmt.Sprintf("Torrent '%s' has no hard links and was completed over an hour ago.", torrent.Name)
			if err := logs.Create(ctx, instance.ID, "Tagged with noHL", details); err != nil {
				return err
			}
			if notify != nil {
				notify.Send(fmt.Sprintf("Torrent '%s' on '%s' was tagged with 'noHL' because it has no hard links and was completed over an hour ago.",
					torrent.Name, instance.Name))
			}
			log.Info().Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Msg("tagsync: tagged torrent with noHL")
		}
	}

	return nil
}

// unregisteredMessage returns the first tracker message flagging the
// torrent as unregistered, if any.
func unregisteredMessage(torrent qbt.Torrent) (string, bool) {
	for _, tracker := range torrent.Trackers {
		if qbittorrent.TrackerMessageMatchesUnregistered(tracker.Message) {
			return tracker.Message, true
		}
	}
	return "", false
}

// SyncUnregisteredTags mirrors the unregistered tag against the latest
// tracker status of every torrent. There is no grace period; the tag
// always reflects the current poll.
func (s *Service) SyncUnregisteredTags(ctx context.Context, instance *models.Instance, torrents []qbt.Torrent, client torrentClient, logs actionLogger, notify notifier) error {
	for _, torrent := range torrents {
		message, isUnregistered := unregisteredMessage(torrent)
		tagged := torrentHasTag(torrent.Tags, TagUnregistered)

		switch {
		case isUnregistered && !tagged:
			if err := client.AddTagsCtx(ctx, []string{torrent.Hash}, TagUnregistered); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to add unregistered tag")
				continue
			}
			action := fmt.Sprintf("Tagged '%s' as unregistered", torrent.Name)
			if err := logs.Create(ctx, instance.ID, action, fmt.Sprintf("Tracker status: %s", message)); err != nil {
				return err
			}
			if notify != nil {
				notify.Send(fmt.Sprintf("Tagged '%s' as unregistered on '%s'.\nTracker status: %s",
					torrent.Name, instance.Name, message))
			}
			log.Info().Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Str("trackerMessage", message).Msg("tagsync: tagged torrent as unregistered")

		case !isUnregistered && tagged:
			if err := client.RemoveTagsCtx(ctx, []string{torrent.Hash}, TagUnregistered); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to remove unregistered tag")
				continue
			}
			if err := resetShareLimits(ctx, client, torrent.Hash); err != nil {
				log.Error().Err(err).Int("instanceID", instance.ID).Str("torrent", torrent.Name).
					Msg("tagsync: failed to reset share limits")
			}
			action := fmt.Sprintf("Removed 'unregistered' tag from '%s'", torrent.Name)
			if err := logs.Create(ctx, instance.ID, action, "Tracker status is now normal."); err != nil {
				return err
			}
			log.Info().Int("instanceID", instance.ID).Str("torrent", torrent.Name).
				Msg("tagsync: removed unregistered tag")
		}
	}

	return nil
}
