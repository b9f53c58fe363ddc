package app

import (
	"os"
	"path/filepath"
	"strings"

	"echse/internal/checkpoint"
	"echse/internal/config"
	"echse/internal/control"
	"echse/internal/task/engine"
	logx "echse/pkg/logx"
)

// Options are command line overrides. Non-empty values win over the
// config file, also across hot reloads.
type Options struct {
	ConfigPath string
	Socket     string
	QueueDir   string
	Helper     string
	Timezone   string
	LogLevel   string
	DryRun     bool
}

func (o Options) apply(cfg *config.Config) {
	if o.Socket != "" {
		cfg.Daemon.Socket = o.Socket
	}
	if o.QueueDir != "" {
		cfg.Daemon.QueueDir = o.QueueDir
	}
	if o.Helper != "" {
		cfg.Daemon.Helper = o.Helper
	}
	if o.Timezone != "" {
		cfg.Daemon.Timezone = o.Timezone
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.DryRun {
		cfg.Daemon.DryRun = true
	}
}

// DefaultQueueDir is /var/spool/echse for root and ~/.echse/<host>
// for everyone else.
func DefaultQueueDir(uid int) string {
	if uid == 0 {
		return "/var/spool/echse"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return filepath.Join(home, ".echse", host)
}

func socketPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Daemon.Socket); p != "" {
		return p
	}
	return control.SocketPath(os.Getuid())
}

func queueDir(cfg *config.Config) string {
	if d := strings.TrimSpace(cfg.Daemon.QueueDir); d != "" {
		return d
	}
	return DefaultQueueDir(os.Getuid())
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	level := l.Level
	if level == "" {
		level = "info"
	}
	return logx.Config{
		Level: level,
		// without any sink configured, fall back to the console
		Console: l.Console || !l.File.Enabled,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
	}
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Helper:      strings.TrimSpace(cfg.Daemon.Helper),
		DryRun:      cfg.Daemon.DryRun,
		HistorySize: cfg.Daemon.HistorySize,
	}
}

func mapCheckpointConfig(cfg *config.Config) checkpoint.Config {
	return checkpoint.Config{
		Dir:      queueDir(cfg),
		Schedule: cfg.Checkpoint.Schedule,
		Slots:    cfg.Checkpoint.DirtySlots,
	}
}

func mapControlConfig(cfg *config.Config) control.Config {
	c := cfg.Control
	return control.Config{
		Path:        socketPath(cfg),
		MaxConns:    c.MaxConns,
		AcceptRate:  c.AcceptRate,
		AcceptBurst: c.AcceptBurst,
		ReadTimeout: config.DurationOr(c.ReadTimeout, control.DefaultReadTimeout),
	}
}
