// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/leo-stotch/qpanel/internal/domain"
	"github.com/leo-stotch/qpanel/internal/logger"
)

const (
	configFileName = "config.toml"
	envPrefix      = "QPANEL__"
)

// AppConfig loads config.toml, overlays QPANEL__ environment variables,
// and watches the file so log level changes apply without a restart.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	mu         sync.Mutex
}

// New reads the configuration from configPath. When configPath is empty
// the default config directory is used, and a commented config.toml is
// generated on first run.
func New(configPath, version string) (*AppConfig, error) {
	c := &AppConfig{
		Config: &domain.Config{Version: version},
		viper:  viper.New(),
	}

	c.setDefaults()

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *AppConfig) setDefaults() {
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("sessionSecret", "")
	c.viper.SetDefault("checkIntervalMinutes", 60)
	c.viper.SetDefault("notificationUrls", []string{})
}

func (c *AppConfig) load(configPath string) error {
	if configPath == "" {
		dir, err := getDefaultConfigDir()
		if err != nil {
			return err
		}
		configPath = dir
	}

	// A path pointing at a file is used as-is, anything else is treated
	// as a directory holding config.toml.
	if strings.HasSuffix(configPath, ".toml") {
		c.configPath = configPath
	} else {
		c.configPath = filepath.Join(configPath, configFileName)
	}

	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(); err != nil {
			return err
		}
	}

	c.viper.SetConfigFile(c.configPath)
	c.bindEnvironment()

	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(c.Config.SessionSecret) == "" {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		c.Config.SessionSecret = secret
		log.Warn().Msg("config: sessionSecret not set, generated an ephemeral one; stored passwords will not survive a restart")
	}

	return nil
}

// bindEnvironment maps each known key to its QPANEL__ environment
// variable, e.g. checkIntervalMinutes to QPANEL__CHECK_INTERVAL_MINUTES.
// Viper lowercases AllKeys, so the camelCase names are listed here.
func (c *AppConfig) bindEnvironment() {
	keys := []string{
		"logLevel",
		"logPath",
		"logMaxSize",
		"logMaxBackups",
		"dataDir",
		"sessionSecret",
		"checkIntervalMinutes",
		"notificationUrls",
	}
	for _, key := range keys {
		_ = c.viper.BindEnv(key, envPrefix+camelToUpperSnake(key))
	}
}

func camelToUpperSnake(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// WatchConfig re-reads the file on change and applies the settings that
// are safe to flip at runtime.
func (c *AppConfig) WatchConfig() {
	c.viper.OnConfigChange(func(_ fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if err := c.viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("config: failed to re-read config file")
			return
		}

		updated := &domain.Config{}
		if err := c.viper.Unmarshal(updated); err != nil {
			log.Error().Err(err).Msg("config: failed to unmarshal updated config")
			return
		}

		if updated.LogLevel != c.Config.LogLevel {
			c.Config.LogLevel = updated.LogLevel
			logger.SetLogLevel(updated.LogLevel)
			log.Info().Str("level", updated.LogLevel).Msg("config: log level updated")
		}

		c.Config.CheckIntervalMinutes = updated.CheckIntervalMinutes
		c.Config.NotificationURLs = updated.NotificationURLs
	})
	c.viper.WatchConfig()
}

// GetDatabasePath returns the SQLite file location: inside dataDir when
// configured, otherwise next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, "qpanel.db")
	}
	return filepath.Join(filepath.Dir(c.configPath), "qpanel.db")
}

func (c *AppConfig) writeDefaultConfig() error {
	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := fmt.Sprintf(`# config.toml - Auto-generated on first run

# Log level
# Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
# Default: "INFO"
logLevel = "INFO"

# Log file path
# If not defined, logs only to stdout
# Optional
#logPath = "log/qpanel.log"

# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Data directory for the SQLite database
# If not defined, the database lives next to this file
# Optional
#dataDir = "/var/lib/qpanel"

# Secret used to encrypt stored qBittorrent passwords
# Generated on first run, keep it stable across restarts
sessionSecret = "%s"

# Minutes between background reconciliation runs
# Default: 60
checkIntervalMinutes = 60

# Shoutrrr notification URLs (discord://..., telegram://...)
# Empty disables notifications
# Optional
#notificationUrls = ["telegram://token@telegram?chats=123456"]
`, secret)

	if err := os.WriteFile(c.configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	log.Info().Str("path", c.configPath).Msg("config: generated default config file")
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func getDefaultConfigDir() (string, error) {
	// Docker images set XDG_CONFIG_HOME=/config; use it directly.
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, "qpanel"), nil
}
