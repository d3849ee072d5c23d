// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !windows

package hardlink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	tmp := t.TempDir()

	single := filepath.Join(tmp, "single.bin")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	n, err := Count(single)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	linked := filepath.Join(tmp, "linked.bin")
	require.NoError(t, os.Link(single, linked))

	n, err = Count(single)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	_, err = Count(filepath.Join(tmp, "missing.bin"))
	assert.Error(t, err)
}
