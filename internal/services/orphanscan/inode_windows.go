// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build windows

package orphanscan

import "io/fs"

// Windows has no cheap stable file identity from FileInfo alone, so
// inode-based dedup is disabled and only path matching applies.
func inodeKeyFromInfo(info fs.FileInfo) (inodeKey, bool) {
	return inodeKey{}, false
}
