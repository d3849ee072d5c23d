// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathutil provides filesystem path canonicalization and
// cross-mount path translation helpers shared by the scanning and
// tagging services.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Canonicalize returns the cleaned absolute form of p with symlinks
// resolved. Symlink resolution follows the longest existing prefix of
// the path, so paths that do not exist yet still canonicalize
// deterministically.
func Canonicalize(p string) string {
	if p == "" {
		return ""
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved)
	}

	// The full path does not exist. Resolve the deepest existing
	// ancestor and re-attach the remainder.
	dir := abs
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return filepath.Clean(resolved)
		}
	}

	return filepath.Clean(abs)
}

// Within reports whether path is root itself or a descendant of root.
// Both arguments must already be canonical. The check is
// boundary-safe: "/data/movies2" is not within "/data/movies".
func Within(path, root string) bool {
	if path == "" || root == "" {
		return false
	}
	if path == root {
		return true
	}
	root = strings.TrimSuffix(root, string(filepath.Separator))
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// Rel returns path relative to root when path lies within root.
func Rel(path, root string) (string, bool) {
	if !Within(path, root) {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	return rel, true
}

// Translate maps remotePath, a path as seen by a remote qBittorrent
// instance, into the equivalent local path. It returns false when
// either root is unset or remotePath does not lie under remoteRoot
// after canonicalization. Malformed input never produces an error,
// only a failed translation.
func Translate(remoteRoot, localRoot, remotePath string) (string, bool) {
	if remoteRoot == "" || localRoot == "" || remotePath == "" {
		return "", false
	}

	canonRoot := Canonicalize(remoteRoot)
	canonPath := Canonicalize(remotePath)

	rel, ok := Rel(canonPath, canonRoot)
	if !ok {
		return "", false
	}

	return filepath.Join(Canonicalize(localRoot), rel), true
}

// Exists reports whether p refers to an existing file or directory.
func Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
