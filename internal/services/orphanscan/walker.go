// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// OrphanFile is one on-disk file not accounted for by any torrent.
type OrphanFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// compilePatterns compiles ignore patterns, dropping invalid ones so a
// single bad regex never disables scanning.
func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).
				Msg("orphanscan: invalid ignore pattern, skipping")
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func matchesAny(path string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// FindOrphanedFiles walks root and returns every regular file that is
// not in expectedPaths, does not share an inode with an expected file,
// matches no ignore pattern, and is at least minAgeDays old. The walk
// never follows symlinks and silently skips entries that vanish or
// cannot be read mid-walk; for an unchanged filesystem the result is
// deterministic.
func FindOrphanedFiles(ctx context.Context, root string, expectedPaths map[string]struct{}, expectedInodes InodeSet, minAgeDays int, ignorePatterns []string) ([]OrphanFile, error) {
	patterns := compilePatterns(ignorePatterns)

	if minAgeDays < 0 {
		minAgeDays = 0
	}
	minAge := time.Duration(minAgeDays) * 24 * time.Hour
	cutoff := time.Now().Add(-minAge)

	var orphans []OrphanFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsPermission(err) || os.IsNotExist(err) {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			return err
		}

		// Never follow symlinks.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if d.IsDir() {
			return nil
		}

		canonical := filepath.Clean(path)

		if matchesAny(canonical, patterns) {
			return nil
		}

		if _, ok := expectedPaths[canonical]; ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // vanished or unreadable mid-walk
		}

		if key, ok := inodeKeyFromInfo(info); ok {
			if _, shared := expectedInodes[key]; shared {
				return nil
			}
		}

		// A file exactly at the age threshold counts as orphaned.
		if info.ModTime().After(cutoff) {
			return nil
		}

		orphans = append(orphans, OrphanFile{
			Path:    canonical,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return orphans, nil
}
