// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"sort"
	"strings"

	"github.com/leo-stotch/qpanel/internal/models"
)

// ReleaseGroup is a set of orphaned files sharing one release
// directory.
type ReleaseGroup struct {
	Directory string                 `json:"directory"`
	Files     []*models.OrphanedFile `json:"files"`
	TotalSize int64                  `json:"total_size"`
}

// InstanceOrphans holds one instance's orphans grouped for display.
type InstanceOrphans struct {
	Groups    []ReleaseGroup         `json:"groups"`
	Ungrouped []*models.OrphanedFile `json:"ungrouped"`
}

// releaseDirectory returns the grouping directory for a path: the
// first two path segments ("/downloads/Some.Release" for
// "/downloads/Some.Release/sub/file.mkv"). A path with a single
// segment groups on itself.
func releaseDirectory(path string) string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) >= 2:
		return "/" + parts[0] + "/" + parts[1]
	case len(parts) == 1:
		return "/" + parts[0]
	default:
		return "/"
	}
}

// GroupByRelease buckets orphaned files per instance by release
// directory. Buckets with at least two files become groups with files
// sorted by path and sizes summed; single files land in Ungrouped.
// Groups are sorted by directory, so output is deterministic for a
// given input set.
func GroupByRelease(orphans []*models.OrphanedFile) map[int]*InstanceOrphans {
	byInstance := make(map[int][]*models.OrphanedFile)
	for _, f := range orphans {
		byInstance[f.InstanceID] = append(byInstance[f.InstanceID], f)
	}

	result := make(map[int]*InstanceOrphans, len(byInstance))

	for instanceID, files := range byInstance {
		byRelease := make(map[string][]*models.OrphanedFile)
		for _, f := range files {
			dir := releaseDirectory(f.Path)
			byRelease[dir] = append(byRelease[dir], f)
		}

		out := &InstanceOrphans{}
		for dir, dirFiles := range byRelease {
			if len(dirFiles) < 2 {
				out.Ungrouped = append(out.Ungrouped, dirFiles...)
				continue
			}

			sort.Slice(dirFiles, func(i, j int) bool {
				return dirFiles[i].Path < dirFiles[j].Path
			})

			var totalSize int64
			for _, f := range dirFiles {
				totalSize += f.Size
			}

			out.Groups = append(out.Groups, ReleaseGroup{
				Directory: dir,
				Files:     dirFiles,
				TotalSize: totalSize,
			})
		}

		sort.Slice(out.Groups, func(i, j int) bool {
			return out.Groups[i].Directory < out.Groups[j].Directory
		})
		sort.Slice(out.Ungrouped, func(i, j int) bool {
			return out.Ungrouped[i].Path < out.Ungrouped[j].Path
		})

		result[instanceID] = out
	}

	return result
}
