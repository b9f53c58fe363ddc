package storage

import (
	"errors"
	"time"

	"github.com/spf13/afero"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON lines files (<prefix>.runs.jsonl, <prefix>.audit.jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Fs backs the file driver; nil means the OS file system.
	Fs afero.Fs
}

// Run record kinds.
const (
	RunSpawned = "spawned"
	RunExited  = "exited"
)

// RunRecord is one child lifecycle event.
type RunRecord struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	TaskID string    `json:"tuid"`
	Owner  int       `json:"owner"`
	PID    int       `json:"pid"`
	NoRun  bool      `json:"no_run,omitempty"`
	Code   int       `json:"code"`
	TookMS int64     `json:"took_ms,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// AuditEntry records one directive received on the control socket.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Peer   int       `json:"peer"`
	Verb   string    `json:"verb"`
	TaskID string    `json:"tuid"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}
