package storage

import (
	"context"
	"time"

	"echse/internal/eventbus"
	"echse/internal/task/engine"
	logx "echse/pkg/logx"
)

// Event types the recorder persists.
const (
	EventSpawned   = "task.spawned"
	EventExited    = "task.exited"
	EventDirective = "control.directive"
)

// Recorder copies child and directive events from the bus into a Store.
type Recorder struct {
	st  Store
	bus eventbus.Bus
	log logx.Logger
}

func NewRecorder(st Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{st: st, bus: bus, log: log.With(logx.String("comp", "recorder"))}
}

// Run consumes events until ctx is done. Write failures are logged and
// the event is dropped.
func (r *Recorder) Run(ctx context.Context) error {
	ch, unsub := r.bus.Subscribe(256, EventSpawned, EventExited, EventDirective)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.record(ctx, ev); err != nil {
				r.log.Warn("record failed", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) error {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	switch d := ev.Data.(type) {
	case engine.TaskEvent:
		rec := RunRecord{
			At:     ev.Time,
			Kind:   RunSpawned,
			TaskID: d.TaskID,
			Owner:  d.Owner,
			PID:    d.PID,
			NoRun:  d.NoRun,
			Code:   d.Code,
			Error:  d.Error,
		}
		if ev.Type == EventExited {
			rec.Kind = RunExited
			rec.TookMS = d.Duration.Milliseconds()
		}
		return r.st.AppendRun(wctx, rec)
	case AuditEntry:
		if d.At.IsZero() {
			d.At = ev.Time
		}
		return r.st.AppendAudit(wctx, d)
	}
	return nil
}
