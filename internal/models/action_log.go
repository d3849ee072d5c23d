// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/leo-stotch/qpanel/internal/dbinterface"
)

// ActionLog records one action the reconciler performed against an
// instance. Entries are append-only.
type ActionLog struct {
	ID         int       `json:"id"`
	InstanceID int       `json:"instance_id"`
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActionLogStore struct {
	db dbinterface.Querier
}

func NewActionLogStore(db dbinterface.Querier) *ActionLogStore {
	return &ActionLogStore{db: db}
}

func (s *ActionLogStore) Create(ctx context.Context, instanceID int, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO action_logs (instance_id, action, details) VALUES (?, ?, ?)",
		instanceID, action, details)
	return err
}

// List returns the most recent entries, newest first.
func (s *ActionLogStore) List(ctx context.Context, limit int) ([]*ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, action, details, created_at
		FROM action_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*ActionLog
	for rows.Next() {
		entry := &ActionLog{}
		if err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// ListByInstance returns the most recent entries for one instance.
func (s *ActionLogStore) ListByInstance(ctx context.Context, instanceID, limit int) ([]*ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, action, details, created_at
		FROM action_logs
		WHERE instance_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*ActionLog
	for rows.Next() {
		entry := &ActionLog{}
		if err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// Clear removes all log entries.
func (s *ActionLogStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM action_logs")
	return err
}
