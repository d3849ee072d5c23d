// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orphanscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func scanRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func orphanPaths(orphans []OrphanFile) []string {
	paths := make([]string, 0, len(orphans))
	for _, o := range orphans {
		paths = append(paths, o.Path)
	}
	return paths
}

func TestFindOrphanedFilesExcludesExpectedPaths(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	expected := filepath.Join(root, "Release.A", "file.mkv")
	orphan := filepath.Join(root, "Release.B", "file.mkv")
	writeFile(t, expected, "a", old)
	writeFile(t, orphan, "b", old)

	orphans, err := FindOrphanedFiles(context.Background(), root,
		map[string]struct{}{expected: {}}, nil, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, orphanPaths(orphans))
}

func TestFindOrphanedFilesHardlinkDedup(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	expected := filepath.Join(root, "torrents", "file.mkv")
	writeFile(t, expected, "content", old)

	// Hardlink under a different path: same inode, so not an orphan.
	link := filepath.Join(root, "media", "file.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Link(expected, link))
	require.NoError(t, os.Chtimes(link, old, old))

	// A genuine copy is an orphan.
	copied := filepath.Join(root, "media", "copy.mkv")
	writeFile(t, copied, "content", old)

	expectedPaths := map[string]struct{}{expected: {}}
	inodes := CollectInodes(expectedPaths)
	require.Len(t, inodes, 1)

	orphans, err := FindOrphanedFiles(context.Background(), root, expectedPaths, inodes, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{copied}, orphanPaths(orphans))
}

func TestFindOrphanedFilesAgeBoundary(t *testing.T) {
	root := scanRoot(t)

	atThreshold := filepath.Join(root, "at-threshold.bin")
	justUnder := filepath.Join(root, "just-under.bin")

	// Exactly seven days old: included. One second younger: excluded.
	// The extra margin on the first file covers walk latency.
	writeFile(t, atThreshold, "x", time.Now().Add(-7*24*time.Hour-2*time.Second))
	writeFile(t, justUnder, "y", time.Now().Add(-7*24*time.Hour+time.Second))

	orphans, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{atThreshold}, orphanPaths(orphans))
}

func TestFindOrphanedFilesNegativeMinAgeIncludesEverything(t *testing.T) {
	root := scanRoot(t)
	writeFile(t, filepath.Join(root, "fresh.bin"), "x", time.Now().Add(-time.Minute))

	orphans, err := FindOrphanedFiles(context.Background(), root, nil, nil, -3, nil)
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func TestFindOrphanedFilesIgnorePatterns(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	writeFile(t, filepath.Join(root, "incomplete", "file.part"), "x", old)
	writeFile(t, filepath.Join(root, "Release", "file.mkv"), "x", old)

	orphans, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7,
		[]string{`\.part$`})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "Release", "file.mkv")}, orphanPaths(orphans))
}

func TestFindOrphanedFilesInvalidPatternSkipped(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	writeFile(t, filepath.Join(root, "file.part"), "x", old)
	writeFile(t, filepath.Join(root, "file.mkv"), "x", old)

	// The broken pattern is dropped, the valid one still applies.
	orphans, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7,
		[]string{`[invalid`, `\.part$`})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "file.mkv")}, orphanPaths(orphans))
}

func TestFindOrphanedFilesSkipsSymlinks(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	target := filepath.Join(root, "real.mkv")
	writeFile(t, target, "x", old)
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.mkv")))

	orphans, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{target}, orphanPaths(orphans))
}

func TestFindOrphanedFilesDeterministic(t *testing.T) {
	root := scanRoot(t)
	old := time.Now().Add(-30 * 24 * time.Hour)

	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		writeFile(t, filepath.Join(root, name), "x", old)
	}

	first, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7, nil)
	require.NoError(t, err)
	second, err := FindOrphanedFiles(context.Background(), root, nil, nil, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindOrphanedFilesCancellation(t *testing.T) {
	root := scanRoot(t)
	writeFile(t, filepath.Join(root, "file.bin"), "x", time.Now().Add(-30*24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindOrphanedFiles(ctx, root, nil, nil, 7, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
