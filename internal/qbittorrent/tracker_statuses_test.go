// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerMessageMatchesUnregistered(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"empty", "", false},
		{"working", "This torrent is working", false},
		{"plain unregistered", "Unregistered torrent", true},
		{"lowercase unregistered", "unregistered", true},
		{"deleted", "Torrent has been deleted.", true},
		{"not registered", "Torrent not registered with this tracker", true},
		{"not authorized", "Torrent is not authorized for use on this tracker", true},
		{"does not exist", "Failure: This torrent does not exist", true},
		{"not found", "Torrent not found", true},
		{"decorated", "ERROR: unregistered torrent (deleted by moderator)", true},
		{"timeout is not unregistered", "Connection timed out", false},
		{"down tracker is not unregistered", "Tracker is down", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrackerMessageMatchesUnregistered(tt.message))
		})
	}
}
