package engine

import "time"

// Config controls how occurrences are turned into processes.
type Config struct {
	// Helper is the path of the echsx binary. Empty means locate it
	// next to the running executable or on $PATH.
	Helper string

	// DryRun logs helper invocations instead of executing them.
	DryRun bool

	HistorySize int
}

// Job is one helper invocation.
type Job struct {
	// Serial identifies the job to its submitter and comes back in Exit.
	// Pids are recycled once the child is waited for, serials are not.
	Serial uint64
	TaskID string
	Owner  int
	// NoRun asks the helper to only notify about a skipped occurrence.
	// Such jobs are fire-and-forget and never reported as exits.
	NoRun bool
	Argv  []string
	Env   []string
	// At is the occurrence the job was started for.
	At time.Time
}

// Exit reports a finished child to the scheduler.
type Exit struct {
	Serial   uint64
	TaskID   string
	PID      int
	Code     int
	Err      error
	Started  time.Time
	Duration time.Duration
}

type HistoryItem struct {
	TaskID   string
	PID      int
	NoRun    bool
	Started  time.Time
	Duration time.Duration
	Code     int
	Error    string
}

// TaskEvent is emitted on the event bus for child lifecycle events.
type TaskEvent struct {
	TaskID   string        `json:"tuid"`
	Owner    int           `json:"owner"`
	PID      int           `json:"pid"`
	NoRun    bool          `json:"no_run,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Code     int           `json:"code"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Helper  string
	DryRun  bool
	Running int
	Spawned uint64
	Failed  uint64
	History []HistoryItem
}
