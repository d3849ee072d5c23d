// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"
)

// torrentPageSize caps per-request result counts so large instances
// don't produce oversized responses.
const torrentPageSize = 1000

// GetAllTorrents fetches the instance's complete torrent list in pages
// of torrentPageSize, including tracker details. A short or empty page
// ends the iteration. If any paginated request fails, pages collected
// so far are discarded and the fetch falls back to one unpaged
// request, which older WebAPI versions handle fine.
func (c *Client) GetAllTorrents(ctx context.Context) ([]qbt.Torrent, error) {
	var all []qbt.Torrent

	for offset := 0; ; offset += torrentPageSize {
		page, err := c.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{
			Limit:           torrentPageSize,
			Offset:          offset,
			IncludeTrackers: true,
		})
		if err != nil {
			log.Warn().Err(err).Int("instanceID", c.instanceID).Int("offset", offset).
				Msg("client: paginated torrent fetch failed, retrying unpaged")
			return c.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{IncludeTrackers: true})
		}

		all = append(all, page...)

		if len(page) < torrentPageSize {
			break
		}
	}

	log.Debug().Int("instanceID", c.instanceID).Int("torrents", len(all)).
		Msg("client: fetched torrent list")

	return all, nil
}
