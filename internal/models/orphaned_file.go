// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/leo-stotch/qpanel/internal/dbinterface"
)

// OrphanedFile is a file found on disk under an instance's local root
// that no torrent accounts for. Rows persist until explicitly cleared;
// the scanner never deletes anything from disk.
type OrphanedFile struct {
	ID         int        `json:"id"`
	InstanceID int        `json:"instance_id"`
	Path       string     `json:"file_path"`
	Size       int64      `json:"file_size"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

type OrphanedFileStore struct {
	db dbinterface.Querier
}

func NewOrphanedFileStore(db dbinterface.Querier) *OrphanedFileStore {
	return &OrphanedFileStore{db: db}
}

// Upsert records an orphaned file, refreshing size and mtime when the
// path was already recorded for the instance.
func (s *OrphanedFileStore) Upsert(ctx context.Context, instanceID int, path string, size int64, modifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orphaned_files (instance_id, file_path, file_size, modified_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (instance_id, file_path) DO UPDATE SET
			file_size = excluded.file_size,
			modified_at = excluded.modified_at,
			detected_at = CURRENT_TIMESTAMP
	`, instanceID, path, size, modifiedAt)
	return err
}

// List returns every recorded orphan across all instances.
func (s *OrphanedFileStore) List(ctx context.Context) ([]*OrphanedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, file_path, file_size, modified_at, detected_at
		FROM orphaned_files
		ORDER BY instance_id ASC, file_path ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrphanedFiles(rows)
}

func (s *OrphanedFileStore) ListByInstance(ctx context.Context, instanceID int) ([]*OrphanedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, file_path, file_size, modified_at, detected_at
		FROM orphaned_files
		WHERE instance_id = ?
		ORDER BY file_path ASC
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrphanedFiles(rows)
}

func collectOrphanedFiles(rows *sql.Rows) ([]*OrphanedFile, error) {
	var files []*OrphanedFile
	for rows.Next() {
		f := &OrphanedFile{}
		if err := rows.Scan(&f.ID, &f.InstanceID, &f.Path, &f.Size, &f.ModifiedAt, &f.DetectedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

func (s *OrphanedFileStore) Delete(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM orphaned_files WHERE id = ?", id)
	return err
}

// ClearInstance removes all recorded orphans for one instance.
func (s *OrphanedFileStore) ClearInstance(ctx context.Context, instanceID int) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM orphaned_files WHERE instance_id = ?", instanceID)
	return err
}

// Clear removes all recorded orphans.
func (s *OrphanedFileStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM orphaned_files")
	return err
}
