// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/leo-stotch/qpanel/internal/dbinterface"
	"github.com/leo-stotch/qpanel/internal/domain"
)

var ErrInstanceNotFound = errors.New("instance not found")

// Instance is a managed qBittorrent instance together with its
// per-instance feature flags and path mapping.
type Instance struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Host              string `json:"host"`
	Username          string `json:"username"`
	PasswordEncrypted string `json:"-"`

	// RemoteRoot is the download directory as the qBittorrent instance
	// sees it; LocalRoot is the same directory as mounted locally.
	// Both must be set for hard-link tagging and orphan scanning.
	RemoteRoot string `json:"qbt_download_dir"`
	LocalRoot  string `json:"mapped_download_dir"`

	TagNoHardlinks   bool `json:"tag_no_hardlinks"`
	PauseCrossSeeded bool `json:"pause_cross_seeded"`
	TagUnregistered  bool `json:"tag_unregistered"`

	OrphanScanEnabled    bool   `json:"orphan_scan_enabled"`
	OrphanMinAgeDays     int    `json:"orphan_min_age_days"`
	OrphanIgnorePatterns string `json:"orphan_ignore_patterns"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPathMapping reports whether both path roots are configured.
func (i *Instance) HasPathMapping() bool {
	return strings.TrimSpace(i.RemoteRoot) != "" && strings.TrimSpace(i.LocalRoot) != ""
}

// IgnorePatterns returns the configured orphan ignore patterns split
// on newlines and commas, trimmed, with empties removed.
func (i *Instance) IgnorePatterns() []string {
	var patterns []string
	for _, line := range strings.FieldsFunc(i.OrphanIgnorePatterns, func(r rune) bool {
		return r == '\n' || r == ','
	}) {
		if p := strings.TrimSpace(line); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func (i Instance) MarshalJSON() ([]byte, error) {
	type alias Instance
	return json.Marshal(&struct {
		alias
		Password string `json:"password,omitempty"`
	}{
		alias:    alias(i),
		Password: domain.RedactString(i.PasswordEncrypted),
	})
}

// InstanceStore persists instances. Passwords are encrypted with
// AES-GCM before they reach the database.
type InstanceStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewInstanceStore(db dbinterface.Querier, encryptionKey []byte) (*InstanceStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &InstanceStore{
		db:            db,
		encryptionKey: encryptionKey,
	}, nil
}

// encrypt encrypts a string using AES-GCM.
func (s *InstanceStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a string encrypted with encrypt.
func (s *InstanceStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("malformed ciphertext")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// DecryptPassword returns the instance's plaintext WebUI password.
func (s *InstanceStore) DecryptPassword(instance *Instance) (string, error) {
	return s.decrypt(instance.PasswordEncrypted)
}

// validateAndNormalizeHost validates and normalizes an instance host URL.
func validateAndNormalizeHost(rawHost string) (string, error) {
	rawHost = strings.TrimSpace(rawHost)
	if rawHost == "" {
		return "", errors.New("host cannot be empty")
	}

	if !strings.Contains(rawHost, "://") {
		rawHost = "http://" + rawHost
	}

	u, err := url.Parse(rawHost)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: must be http or https", u.Scheme)
	}

	if u.Host == "" {
		return "", errors.New("URL must include a host")
	}

	return u.String(), nil
}

const instanceColumns = `id, name, host, username, password_encrypted,
	qbt_download_dir, mapped_download_dir,
	tag_no_hardlinks, pause_cross_seeded, tag_unregistered,
	orphan_scan_enabled, orphan_min_age_days, orphan_ignore_patterns,
	created_at, updated_at`

func scanInstance(row interface{ Scan(...any) error }) (*Instance, error) {
	instance := &Instance{}
	err := row.Scan(
		&instance.ID,
		&instance.Name,
		&instance.Host,
		&instance.Username,
		&instance.PasswordEncrypted,
		&instance.RemoteRoot,
		&instance.LocalRoot,
		&instance.TagNoHardlinks,
		&instance.PauseCrossSeeded,
		&instance.TagUnregistered,
		&instance.OrphanScanEnabled,
		&instance.OrphanMinAgeDays,
		&instance.OrphanIgnorePatterns,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *InstanceStore) Create(ctx context.Context, instance *Instance, password string) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(instance.Host)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(instance.Name) == "" {
		return nil, errors.New("name cannot be empty")
	}

	encryptedPassword, err := s.encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	if instance.OrphanMinAgeDays == 0 {
		instance.OrphanMinAgeDays = 7
	}

	query := `
		INSERT INTO instances (name, host, username, password_encrypted,
			qbt_download_dir, mapped_download_dir,
			tag_no_hardlinks, pause_cross_seeded, tag_unregistered,
			orphan_scan_enabled, orphan_min_age_days, orphan_ignore_patterns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + instanceColumns

	return scanInstance(s.db.QueryRowContext(ctx, query,
		instance.Name,
		normalizedHost,
		instance.Username,
		encryptedPassword,
		instance.RemoteRoot,
		instance.LocalRoot,
		instance.TagNoHardlinks,
		instance.PauseCrossSeeded,
		instance.TagUnregistered,
		instance.OrphanScanEnabled,
		instance.OrphanMinAgeDays,
		instance.OrphanIgnorePatterns,
	))
}

func (s *InstanceStore) Get(ctx context.Context, id int) (*Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = ?`

	instance, err := scanInstance(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	return instance, nil
}

func (s *InstanceStore) List(ctx context.Context) ([]*Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// Update persists instance changes. A non-empty password replaces the
// stored one; an empty or redacted password keeps it.
func (s *InstanceStore) Update(ctx context.Context, instance *Instance, password string) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(instance.Host)
	if err != nil {
		return nil, err
	}

	passwordEncrypted := instance.PasswordEncrypted
	if password != "" && !domain.IsRedactedString(password) {
		passwordEncrypted, err = s.encrypt(password)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt password: %w", err)
		}
	}

	query := `
		UPDATE instances SET name = ?, host = ?, username = ?, password_encrypted = ?,
			qbt_download_dir = ?, mapped_download_dir = ?,
			tag_no_hardlinks = ?, pause_cross_seeded = ?, tag_unregistered = ?,
			orphan_scan_enabled = ?, orphan_min_age_days = ?, orphan_ignore_patterns = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING ` + instanceColumns

	updated, err := scanInstance(s.db.QueryRowContext(ctx, query,
		instance.Name,
		normalizedHost,
		instance.Username,
		passwordEncrypted,
		instance.RemoteRoot,
		instance.LocalRoot,
		instance.TagNoHardlinks,
		instance.PauseCrossSeeded,
		instance.TagUnregistered,
		instance.OrphanScanEnabled,
		instance.OrphanMinAgeDays,
		instance.OrphanIgnorePatterns,
		instance.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (s *InstanceStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM instances WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}
