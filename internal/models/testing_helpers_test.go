// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leo-stotch/qpanel/internal/database"
)

var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func createTestInstance(t *testing.T, store *InstanceStore, name string) *Instance {
	t.Helper()

	instance, err := store.Create(context.Background(), &Instance{
		Name:     name,
		Host:     "http://localhost:8080",
		Username: "admin",
	}, "adminadmin")
	require.NoError(t, err)

	return instance
}
