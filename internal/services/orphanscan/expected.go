// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orphanscan locates files on disk that no torrent accounts
// for. Scanning is read-only: nothing here deletes from disk.
package orphanscan

import (
	"context"
	"os"
	"path/filepath"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/leo-stotch/qpanel/pkg/pathutil"
)

// inodeKey identifies a file by device and inode, so hardlinked copies
// of an expected file are recognized regardless of path.
type inodeKey struct {
	dev uint64
	ino uint64
}

// InodeSet holds the inode identities of expected files.
type InodeSet map[inodeKey]struct{}

// FileLister is the subset of the qBittorrent client the expected-path
// builder needs.
type FileLister interface {
	GetFilesInformationCtx(ctx context.Context, hash string) (*qbt.TorrentFiles, error)
}

// BuildExpectedPaths resolves every file of every torrent to the
// canonical local path it should occupy. Files whose translation fails
// are still accepted when the remote path already lies under
// fallbackRoot, which covers instances sharing one mount with
// identical paths on both sides. Torrents whose file listing fails are
// logged and skipped.
func BuildExpectedPaths(ctx context.Context, instanceID int, torrents []qbt.Torrent, lister FileLister, remoteRoot, localRoot, fallbackRoot string) map[string]struct{} {
	expected := make(map[string]struct{})

	canonFallback := ""
	if fallbackRoot != "" {
		canonFallback = pathutil.Canonicalize(fallbackRoot)
	}

	for _, torrent := range torrents {
		files, err := lister.GetFilesInformationCtx(ctx, torrent.Hash)
		if err != nil {
			log.Warn().Err(err).Int("instanceID", instanceID).Str("hash", torrent.Hash).
				Msg("orphanscan: failed to list torrent files, skipping torrent")
			continue
		}
		if files == nil {
			continue
		}

		for _, file := range *files {
			remotePath := filepath.Join(torrent.SavePath, file.Name)

			if localPath, ok := pathutil.Translate(remoteRoot, localRoot, remotePath); ok {
				expected[pathutil.Canonicalize(localPath)] = struct{}{}
				continue
			}

			if canonFallback != "" {
				canonRemote := pathutil.Canonicalize(remotePath)
				if pathutil.Within(canonRemote, canonFallback) {
					expected[canonRemote] = struct{}{}
				}
			}
		}
	}

	return expected
}

// CollectInodes stats every expected path and returns the set of file
// identities found. Missing or unreadable paths are skipped.
func CollectInodes(paths map[string]struct{}) InodeSet {
	inodes := make(InodeSet)

	for path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if key, ok := inodeKeyFromInfo(info); ok {
			inodes[key] = struct{}{}
		}
	}

	return inodes
}
