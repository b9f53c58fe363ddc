package daemon

import (
	"context"
	"errors"
	"io"

	"echse/internal/checkpoint"
	"echse/internal/eventbus"
	"echse/internal/ical"
	"echse/internal/storage"
	"echse/internal/task/scheduler"
)

// Instruct applies one directive on behalf of p.
func (l *Loop) Instruct(ctx context.Context, p scheduler.Peer, in ical.Instruction) error {
	var err error
	if derr := l.Do(ctx, func() { err = l.apply(p, in) }); derr != nil {
		return derr
	}
	e := storage.AuditEntry{Peer: p.UID, Verb: in.Verb.String(), TaskID: in.ID, OK: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	l.bus.Publish(eventbus.Event{Type: storage.EventDirective, Data: e})
	return err
}

func (l *Loop) apply(p scheduler.Peer, in ical.Instruction) error {
	switch in.Verb {
	case ical.VerbSchedule:
		return l.core.Inject(in.Task, p, l.clk.Now())
	case ical.VerbCancel:
		return l.core.Cancel(in.ID, p)
	default:
		return ErrUnsupported
	}
}

// Schedule lists the current occurrence of uid's tasks.
func (l *Loop) Schedule(ctx context.Context, uid int, ids []string) ([]scheduler.Item, error) {
	var items []scheduler.Item
	err := l.Do(ctx, func() { items = l.core.Schedule(uid, ids) })
	return items, err
}

// Queue checkpoints uid if needed and opens its queue file. A user
// without a queue file gets a nil reader.
func (l *Loop) Queue(ctx context.Context, uid int) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if derr := l.Do(ctx, func() {
		if err = l.cp.User(l.core, uid); err != nil {
			return
		}
		rc, err = l.cp.Open(uid)
	}); derr != nil {
		return nil, derr
	}
	if errors.Is(err, checkpoint.ErrNoQueue) {
		return nil, nil
	}
	return rc, err
}

// Status snapshots the core.
func (l *Loop) Status(ctx context.Context) (scheduler.Snapshot, error) {
	var s scheduler.Snapshot
	err := l.Do(ctx, func() { s = l.core.Snapshot() })
	return s, err
}
