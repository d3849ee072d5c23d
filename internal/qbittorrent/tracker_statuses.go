// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import "strings"

// unregisteredPhrases are tracker status messages that indicate the
// torrent is no longer registered. Matching is a case-insensitive
// substring check because trackers decorate these messages freely.
var unregisteredPhrases = []string{
	"unregistered",
	"torrent has been deleted",
	"torrent not registered with this tracker",
	"torrent is not authorized for use on this tracker",
	"this torrent does not exist",
	"torrent not found",
}

// TrackerMessageMatchesUnregistered reports whether a tracker status
// message marks the torrent as unregistered.
func TrackerMessageMatchesUnregistered(message string) bool {
	if message == "" {
		return false
	}

	lower := strings.ToLower(message)
	for _, phrase := range unregisteredPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
