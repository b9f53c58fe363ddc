package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"echse/internal/observability/debug"
)

// Config is the daemon configuration file. Every section is optional;
// zero values fall back to the defaults documented per field.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Daemon     DaemonConfig     `json:"daemon"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Control    ControlConfig    `json:"control"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Debug      DebugConfig      `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

// LoggingFile is the rotated JSON log sink.
type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// DaemonConfig holds the scheduling core settings. Empty paths are
// derived from the running uid.
type DaemonConfig struct {
	Socket   string `json:"socket,omitempty"`
	QueueDir string `json:"queue_dir,omitempty"`
	Helper   string `json:"helper,omitempty"`
	// Timezone interprets floating calendar times (IANA name, default UTC).
	Timezone    string `json:"timezone,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type CheckpointConfig struct {
	// Schedule is a cron expression or descriptor (default "@every 60s").
	Schedule   string `json:"schedule,omitempty"`
	DirtySlots int    `json:"dirty_slots,omitempty"`
}

// ControlConfig limits the control socket. ReadTimeout is a Go duration
// string.
type ControlConfig struct {
	MaxConns    int     `json:"max_conns,omitempty"`
	AcceptRate  float64 `json:"accept_rate,omitempty"`
	AcceptBurst int     `json:"accept_burst,omitempty"`
	ReadTimeout string  `json:"read_timeout,omitempty"`
}

// StorageConfig enables the run history and audit journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "/var/lib/echse/history.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DebugConfig serves pprof and a JSON status page. A non-loopback Addr
// needs a Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Location resolves the daemon timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Daemon.Timezone)
	if tz == "" || strings.EqualFold(tz, "UTC") {
		return time.UTC, nil
	}
	if strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("daemon.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks every field that could only fail later at runtime.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := c.Location(); err != nil {
		result = multierror.Append(result, err)
	}
	if s := strings.TrimSpace(c.Checkpoint.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("checkpoint.schedule: %w", err))
		}
	}
	if c.Checkpoint.DirtySlots < 0 {
		result = multierror.Append(result, errors.New("checkpoint.dirty_slots must be >= 0"))
	}
	if c.Control.MaxConns < 0 || c.Control.AcceptRate < 0 || c.Control.AcceptBurst < 0 {
		result = multierror.Append(result, errors.New("control: limits must be >= 0"))
	}
	if _, err := ParseDurationField("control.read_timeout", c.Control.ReadTimeout); err != nil {
		result = multierror.Append(result, err)
	}
	if st := c.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			result = multierror.Append(result, fmt.Errorf("storage.driver: unknown %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d := c.Debug; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(d.Addr); err != nil {
			result = multierror.Append(result, fmt.Errorf("debug.addr: %w", err))
		} else if err := debug.CheckAddr(d.Addr, d.Token); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// ParseDurationField parses a Go duration string; empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr parses raw and substitutes def for zero or invalid values.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
