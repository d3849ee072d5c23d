// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"fmt"
	"strings"
)

const maxListedOrphans = 10

// OrphanReport builds the message sent when an orphan scan turns up files
// under a scan root. The file list is capped at ten entries with a trailing
// count of whatever was cut.
func OrphanReport(root string, minAgeDays int, ownerName string, paths []string) string {
	listed := paths
	moreCount := 0
	if len(paths) > maxListedOrphans {
		listed = paths[:maxListedOrphans]
		moreCount = len(paths) - maxListedOrphans
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Orphaned files detected in '%s' (>= %dd).\n", root, minAgeDays)
	fmt.Fprintf(&b, "Owner instance: %s\n", ownerName)
	b.WriteString(strings.Join(listed, "\n"))
	if moreCount > 0 {
		fmt.Fprintf(&b, "\n...and %d more", moreCount)
	}
	return b.String()
}
