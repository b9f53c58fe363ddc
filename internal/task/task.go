// Package task holds the declarative task record and the containers the
// scheduler keeps tasks in.
package task

import (
	"echse/internal/instant"
	"echse/internal/rrule"
	"echse/internal/stream"
)

// NoID marks an unset uid or gid.
const NoID = -1

// Creds are run-as credentials. Unset fields are filled from the
// owner's defaults when the task is registered.
type Creds struct {
	UID   int
	GID   int
	Dir   string
	Shell string
}

// Unset returns credentials with no field set.
func Unset() Creds { return Creds{UID: NoID, GID: NoID} }

// Merge fills unset fields of c from def.
func (c Creds) Merge(def Creds) Creds {
	if c.UID == NoID {
		c.UID = def.UID
	}
	if c.GID == NoID {
		c.GID = def.GID
	}
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.Shell == "" {
		c.Shell = def.Shell
	}
	return c
}

// Task is one scheduled command. It is replaced as a whole on update.
type Task struct {
	ID    string
	Owner int

	Command   string
	RunAs     Creds
	MaxSimul  int
	MailOut   bool
	MailErr   bool
	Stdin     string
	Stdout    string
	Stderr    string
	Organizer string
	Attendees []string
	Env       []string

	// Proto is the anchor occurrence (DTSTART..DTEND).
	Proto   stream.Event
	Rules   []rrule.Spec
	RDates  []instant.Instant
	ExDates []instant.Instant
	ExRules []rrule.Spec
}

// New returns a task with every optional field unset.
func New(id string) *Task {
	return &Task{ID: id, Owner: NoID, RunAs: Unset(), MaxSimul: 1}
}

// Duration of each occurrence.
func (t *Task) Duration() instant.Span {
	if t.Proto.Till.IsNull() {
		return instant.Span{}
	}
	return instant.Diff(t.Proto.From, t.Proto.Till)
}

// MailFrom picks the sender of notification mail.
func (t *Task) MailFrom() string {
	switch {
	case t.Organizer != "":
		return t.Organizer
	case len(t.Attendees) > 0:
		return t.Attendees[0]
	default:
		return "echse"
	}
}

// Stream composes the task's occurrences: one rule stream per RRULE and
// an explicit list of DTSTART plus RDATEs, used when RDATEs exist or no
// rule is given. The explicit list honours the exceptions through a
// filter. Returns nil when the task has no anchor.
func (t *Task) Stream() stream.Stream {
	if t.Proto.From.IsNull() {
		return nil
	}
	dur := t.Duration()
	var parts []stream.Stream
	for _, r := range t.Rules {
		parts = append(parts, rrule.NewStream(t.Proto.From, dur, r, t.ExDates, t.ExRules, t.ID))
	}
	if len(t.RDates) > 0 || len(t.Rules) == 0 {
		ins := append([]instant.Instant{t.Proto.From}, t.RDates...)
		var s stream.Stream = stream.NewArray(ins, dur, t.ID)
		if len(t.ExDates) > 0 || len(t.ExRules) > 0 {
			s = stream.NewFilter(s, exceptionStream(t, dur))
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return stream.NewMux(parts...)
}

func exceptionStream(t *Task, dur instant.Span) stream.Stream {
	var parts []stream.Stream
	if len(t.ExDates) > 0 {
		parts = append(parts, stream.NewArray(t.ExDates, dur, nil))
	}
	for _, r := range t.ExRules {
		parts = append(parts, rrule.NewStream(t.Proto.From, dur, r, nil, nil, nil))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return stream.NewMux(parts...)
}
