// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leo-stotch/qpanel/internal/dbinterface"
)

var ErrRuleNotFound = errors.New("rule not found")

// Rule condition types.
const (
	ConditionTag     = "tag"
	ConditionTracker = "tracker"
)

// Rule describes limits applied to torrents matching its condition.
// Nil limit fields leave the corresponding torrent setting untouched.
type Rule struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	ConditionType string `json:"condition_type"`

	// ConditionValue holds one or more comma-separated accepted
	// values; a torrent matches when any of them does.
	ConditionValue string `json:"condition_value"`

	RatioLimit       *float64 `json:"ratio_limit,omitempty"`
	SeedingTimeLimit *int64   `json:"seeding_time_limit,omitempty"` // minutes
	UploadLimit      *int64   `json:"upload_limit,omitempty"`       // bytes/s
	DownloadLimit    *int64   `json:"download_limit,omitempty"`     // bytes/s

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConditionValues returns the accepted values split on commas,
// trimmed, with empties removed.
func (r *Rule) ConditionValues() []string {
	var values []string
	for _, v := range strings.Split(r.ConditionValue, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func (r *Rule) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name cannot be empty")
	}
	if r.ConditionType != ConditionTag && r.ConditionType != ConditionTracker {
		return fmt.Errorf("invalid condition type %q", r.ConditionType)
	}
	if len(r.ConditionValues()) == 0 {
		return errors.New("rule requires at least one condition value")
	}
	return nil
}

// RuleStore persists rules and their instance assignments.
type RuleStore struct {
	db dbinterface.Querier
}

func NewRuleStore(db dbinterface.Querier) *RuleStore {
	return &RuleStore{db: db}
}

const ruleColumns = `id, name, condition_type, condition_value,
	ratio_limit, seeding_time_limit, upload_limit, download_limit,
	created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	rule := &Rule{}
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.ConditionType,
		&rule.ConditionValue,
		&rule.RatioLimit,
		&rule.SeedingTimeLimit,
		&rule.UploadLimit,
		&rule.DownloadLimit,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *RuleStore) Create(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rules (name, condition_type, condition_value,
			ratio_limit, seeding_time_limit, upload_limit, download_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + ruleColumns

	return scanRule(s.db.QueryRowContext(ctx, query,
		rule.Name,
		rule.ConditionType,
		rule.ConditionValue,
		rule.RatioLimit,
		rule.SeedingTimeLimit,
		rule.UploadLimit,
		rule.DownloadLimit,
	))
}

func (s *RuleStore) Get(ctx context.Context, id int) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	return rule, nil
}

func (s *RuleStore) List(ctx context.Context) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

func (s *RuleStore) Update(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE rules SET name = ?, condition_type = ?, condition_value = ?,
			ratio_limit = ?, seeding_time_limit = ?, upload_limit = ?, download_limit = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING ` + ruleColumns

	updated, err := scanRule(s.db.QueryRowContext(ctx, query,
		rule.Name,
		rule.ConditionType,
		rule.ConditionValue,
		rule.RatioLimit,
		rule.SeedingTimeLimit,
		rule.UploadLimit,
		rule.DownloadLimit,
		rule.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (s *RuleStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// AssignToInstance links a rule to an instance. Assignment order
// determines rule precedence: the first assigned matching rule wins.
func (s *RuleStore) AssignToInstance(ctx context.Context, ruleID, instanceID int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO instance_rules (instance_id, rule_id) VALUES (?, ?)",
		instanceID, ruleID)
	return err
}

func (s *RuleStore) UnassignFromInstance(ctx context.Context, ruleID, instanceID int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM instance_rules WHERE instance_id = ? AND rule_id = ?",
		instanceID, ruleID)
	return err
}

// ListByInstance returns the rules assigned to an instance in
// assignment order.
func (s *RuleStore) ListByInstance(ctx context.Context, instanceID int) ([]*Rule, error) {
	query := `
		SELECT r.id, r.name, r.condition_type, r.condition_value,
			r.ratio_limit, r.seeding_time_limit, r.upload_limit, r.download_limit,
			r.created_at, r.updated_at
		FROM rules r
		JOIN instance_rules ir ON ir.rule_id = r.id
		WHERE ir.instance_id = ?
		ORDER BY ir.rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
