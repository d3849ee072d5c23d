// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !windows

// Package hardlink inspects hard-link counts of files on disk.
package hardlink

import (
	"errors"
	"os"
	"syscall"
)

// Count returns the number of hard links to the file at path.
func Count(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errors.New("failed to get syscall.Stat_t")
	}

	return uint64(sys.Nlink), nil
}
