// Package config loads and watches heraldbot's configuration file.
//
// Both JSON and YAML are accepted; YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both formats. All duration
// fields are Go duration strings (e.g. "15s", "2m").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Banner   BannerConfig   `json:"banner"`
	Capture  CaptureConfig  `json:"capture"`
	Alias    AliasConfig    `json:"alias,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token falls back to the TELEGRAM_TOKEN environment variable
	// (loadable from .env) when empty.
	Token string `json:"token,omitempty"`

	// OperatorUserIDs is the allow-list of identities permitted to use
	// mutating commands. Falls back to OPERATOR_USERS (comma-separated).
	OperatorUserIDs []int64 `json:"operator_user_ids,omitempty"`

	PollTimeout    string `json:"poll_timeout,omitempty"`
	SendRatePerSec int    `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type BannerConfig struct {
	// Tick is the scheduler polling interval and the maximum end-to-end
	// scheduling error budget. Default "15s".
	Tick string `json:"tick,omitempty"`

	MinIntervalMinutes int `json:"min_interval_minutes,omitempty"`

	// StatePath is the banner snapshot file. Default "./banner_schedules.json".
	StatePath string `json:"state_path,omitempty"`

	// Timezone is the fixed IANA zone used for persisted timestamps and
	// operator-facing times. Default "UTC".
	Timezone string `json:"timezone,omitempty"`
}

type CaptureConfig struct {
	Enabled bool `json:"enabled"`

	// ArchiveChatID falls back to the ARCHIVE_CHAT environment variable.
	ArchiveChatID   int64  `json:"archive_chat_id,omitempty"`
	ArchiveThreadID int    `json:"archive_thread_id,omitempty"`
	BaseDelay       string `json:"base_delay,omitempty"`
}

type AliasConfig struct {
	Path string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// ApplyEnv fills secret-bearing fields from the environment when the file
// leaves them empty.
func (c *Config) ApplyEnv() {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		c.Telegram.Token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if len(c.Telegram.OperatorUserIDs) == 0 {
		for _, part := range strings.Split(os.Getenv("OPERATOR_USERS"), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil {
				c.Telegram.OperatorUserIDs = append(c.Telegram.OperatorUserIDs, id)
			}
		}
	}
	if c.Capture.ArchiveChatID == 0 {
		if id, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("ARCHIVE_CHAT")), 10, 64); err == nil {
			c.Capture.ArchiveChatID = id
		}
	}
}

// Validate rejects configs the app cannot start (or hot-reload) with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set TELEGRAM_TOKEN)")
	}
	if _, err := ParseDurationOrDefault("banner.tick", c.Banner.Tick, 15*time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("capture.base_delay", c.Capture.BaseDelay); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Banner.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("banner.timezone: %w", err)
		}
	}
	if c.Banner.MinIntervalMinutes < 0 {
		return fmt.Errorf("banner.min_interval_minutes must be >= 0")
	}
	if c.Capture.Enabled && c.Capture.ArchiveChatID == 0 {
		return fmt.Errorf("capture.archive_chat_id is required when capture is enabled (or set ARCHIVE_CHAT)")
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the banner timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Banner.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
