package scheduler

import (
	"time"

	"echse/internal/stream"
	"echse/internal/task"
	"echse/internal/task/engine"
)

// Config controls the core.
type Config struct {
	// Location interprets floating calendar times. Nil means UTC.
	Location *time.Location
}

// State is the lifecycle of a registered task. Running is not a state of
// its own: an Armed or Retiring entry may have children in flight.
type State uint8

const (
	StateNone State = iota
	StateArmed
	StateRetiring
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRetiring:
		return "retiring"
	case StateRemoved:
		return "removed"
	default:
		return "none"
	}
}

// Peer is the identity of whoever issues a directive.
type Peer struct {
	UID int
	GID int
}

// Root is the administrative peer.
var Root = Peer{}

func (p Peer) Privileged() bool { return p.UID == 0 }

// Spawner starts helper processes.
type Spawner interface {
	Spawn(engine.Job) (pid int, err error)
}

// Dirtier is told about users whose task set changed.
type Dirtier interface {
	Mark(uid int)
}

// Entry is the core's record of one task. Its address is stable for the
// lifetime of the registration.
type Entry struct {
	Task  *task.Task
	Creds task.Creds

	state   State
	stream  stream.Stream
	current stream.Event
	runs    int
	running int

	deadline time.Time
	index    int // position in the watcher heap, -1 when disarmed
}

func resetEntry(e *Entry) {
	*e = Entry{index: -1}
}

func (e *Entry) State() State { return e.state }

// Current is the occurrence the watcher is armed for, or the last one
// fired once the entry retires.
func (e *Entry) Current() stream.Event { return e.current }

// Runs counts the occurrences armed so far.
func (e *Entry) Runs() int { return e.runs }

// Running counts children in flight.
func (e *Entry) Running() int { return e.running }

func (e *Entry) Armed() bool { return e.index >= 0 }

// Pending returns a copy of the task's stream narrowed to what is still
// due, suitable for checkpointing. Nil for retiring entries.
func (e *Entry) Pending() stream.Stream {
	if e.state != StateArmed || e.stream == nil {
		return nil
	}
	s := e.stream.Clone()
	v := s.Valid()
	v.From = e.current.From
	s.SetValid(v)
	return s
}

type child struct {
	pid   int
	entry *Entry
}

func resetChild(c *child) { *c = child{} }

// LifecycleEvent is published on the event bus.
type LifecycleEvent struct {
	TaskID string    `json:"tuid"`
	Owner  int       `json:"owner"`
	State  string    `json:"state"`
	Next   time.Time `json:"next,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Item is one line of a live schedule listing.
type Item struct {
	TaskID string
	Owner  int
	Event  stream.Event
	State  State
}
