// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version            string
	Host               string   `toml:"host" mapstructure:"host"`
	Port               int      `toml:"port" mapstructure:"port"`
	BaseURL            string   `toml:"baseUrl" mapstructure:"baseUrl"`
	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`
	LogLevel           string   `toml:"logLevel" mapstructure:"logLevel"`
	LogPath            string   `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize         int      `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups      int      `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir            string   `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath       string   `toml:"databasePath" mapstructure:"databasePath"`
	MetricsEnabled     bool     `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	DatabaseEngine          string `toml:"databaseEngine" mapstructure:"databaseEngine"`
	DatabaseDSN             string `toml:"databaseDsn" mapstructure:"databaseDsn"`
	DatabaseHost            string `toml:"databaseHost" mapstructure:"databaseHost"`
	DatabasePort            int    `toml:"databasePort" mapstructure:"databasePort"`
	DatabaseUser            string `toml:"databaseUser" mapstructure:"databaseUser"`
	DatabasePassword        string `toml:"databasePassword" mapstructure:"databasePassword"`
	DatabaseName            string `toml:"databaseName" mapstructure:"databaseName"`
	DatabaseSSLMode         string `toml:"databaseSslMode" mapstructure:"databaseSslMode"`
	DatabaseConnectTimeout  int    `toml:"databaseConnectTimeout" mapstructure:"databaseConnectTimeout"`
	DatabaseMaxOpenConns    int    `toml:"databaseMaxOpenConns" mapstructure:"databaseMaxOpenConns"`
	DatabaseMaxIdleConns    int    `toml:"databaseMaxIdleConns" mapstructure:"databaseMaxIdleConns"`
	DatabaseConnMaxLifetime int    `toml:"databaseConnMaxLifetime" mapstructure:"databaseConnMaxLifetime"`

	// SharedSecret guards the machine-to-machine endpoints. An empty secret
	// makes those endpoints answer 503.
	SharedSecret       string `toml:"sharedSecret" mapstructure:"sharedSecret"`
	SharedSecretHeader string `toml:"sharedSecretHeader" mapstructure:"sharedSecretHeader"`

	EmailAPIURL   string `toml:"emailApiUrl" mapstructure:"emailApiUrl"`
	EmailAPIKey   string `toml:"emailApiKey" mapstructure:"emailApiKey"`
	EmailFrom     string `toml:"emailFrom" mapstructure:"emailFrom"`
	EmailFromName string `toml:"emailFromName" mapstructure:"emailFromName"`
	EmailReplyTo  string `toml:"emailReplyTo" mapstructure:"emailReplyTo"`

	ChatBaseURL            string  `toml:"chatBaseUrl" mapstructure:"chatBaseUrl"`
	ChatAccessToken        string  `toml:"chatAccessToken" mapstructure:"chatAccessToken"`
	ChatAccountID          string  `toml:"chatAccountId" mapstructure:"chatAccountId"`
	ChatInboxID            int64   `toml:"chatInboxId" mapstructure:"chatInboxId"`
	ChatDefaultCountryCode string  `toml:"chatDefaultCountryCode" mapstructure:"chatDefaultCountryCode"`
	ChatRetryAttempts      int     `toml:"chatRetryAttempts" mapstructure:"chatRetryAttempts"`
	ChatRateLimit          float64 `toml:"chatRateLimit" mapstructure:"chatRateLimit"`
	ChatRateBurst          int     `toml:"chatRateBurst" mapstructure:"chatRateBurst"`

	// HTTPTimeout applies to every outbound provider call, in seconds.
	HTTPTimeout            int    `toml:"httpTimeout" mapstructure:"httpTimeout"`
	PaymentInstructionsURL string `toml:"paymentInstructionsUrl" mapstructure:"paymentInstructionsUrl"`
	Timezone               string `toml:"timezone" mapstructure:"timezone"`

	LockBackend   string `toml:"lockBackend" mapstructure:"lockBackend"`
	LockTTL       int    `toml:"lockTtl" mapstructure:"lockTtl"`
	RedisAddr     string `toml:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `toml:"redisPassword" mapstructure:"redisPassword"`
	RedisDB       int    `toml:"redisDb" mapstructure:"redisDb"`
}

func (c *Config) EmailConfigured() bool {
	return strings.TrimSpace(c.EmailAPIURL) != "" && strings.TrimSpace(c.EmailAPIKey) != "" && strings.TrimSpace(c.EmailFrom) != ""
}

func (c *Config) ChatConfigured() bool {
	return strings.TrimSpace(c.ChatBaseURL) != "" && strings.TrimSpace(c.ChatAccessToken) != "" &&
		strings.TrimSpace(c.ChatAccountID) != "" && c.ChatInboxID > 0
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (c *Config) HTTPTimeoutDuration() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.HTTPTimeout) * time.Second
}

func (c *Config) LockTTLDuration() time.Duration {
	if c.LockTTL <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.LockTTL) * time.Second
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.LockBackend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("redisAddr is required when lockBackend is redis")
		}
	default:
		return fmt.Errorf("unsupported lockBackend %q", c.LockBackend)
	}

	if c.SharedSecretHeader != "" && strings.ContainsAny(c.SharedSecretHeader, " :\t") {
		return fmt.Errorf("invalid sharedSecretHeader %q", c.SharedSecretHeader)
	}

	return nil
}
