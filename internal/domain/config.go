// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"strings"
	"time"
)

// Config represents the application configuration.
type Config struct {
	Version       string
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// SessionSecret keys the AES-GCM encryption of stored instance
	// passwords. Generated on first start when absent.
	SessionSecret string `toml:"sessionSecret" mapstructure:"sessionSecret"`

	// CheckIntervalMinutes is the spacing between background
	// reconciliation runs. The first run happens immediately on start.
	CheckIntervalMinutes int `toml:"checkIntervalMinutes" mapstructure:"checkIntervalMinutes"`

	// NotificationURLs are shoutrrr-style delivery URLs
	// (discord://..., telegram://...). Empty disables notifications.
	NotificationURLs []string `toml:"notificationUrls" mapstructure:"notificationUrls"`
}

// CheckInterval returns the reconciliation interval, with a floor of
// one minute to protect instances from tight polling loops.
func (c *Config) CheckInterval() time.Duration {
	minutes := c.CheckIntervalMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

// EncryptionKey derives the 32-byte store key from the session secret.
func (c *Config) EncryptionKey() ([]byte, error) {
	secret := strings.TrimSpace(c.SessionSecret)
	if len(secret) < 32 {
		return nil, errors.New("sessionSecret must be at least 32 characters")
	}
	return []byte(secret)[:32], nil
}
