// Package daemon runs the scheduling loop: the single goroutine that owns
// the scheduler core and the checkpointer.
//
// Everything else talks to the loop by submitting closures through Do.
// Connection goroutines block until their closure ran, so the core never
// sees concurrent callers.
package daemon

import (
	"context"
	"time"

	"echse/internal/checkpoint"
	"echse/internal/clock"
	"echse/internal/eventbus"
	"echse/internal/ical"
	"echse/internal/task/engine"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
)

type Loop struct {
	core  *scheduler.Core
	cp    *checkpoint.Checkpointer
	exits <-chan engine.Exit
	clk   clock.Clock
	bus   eventbus.Bus
	log   logx.Logger

	reqs chan func()
	done chan struct{}
}

// New wires a loop. exits is usually engine.Service.Exits.
func New(core *scheduler.Core, cp *checkpoint.Checkpointer, exits <-chan engine.Exit, clk clock.Clock, bus eventbus.Bus, log logx.Logger) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		core:  core,
		cp:    cp,
		exits: exits,
		clk:   clk,
		bus:   bus,
		log:   log.With(logx.String("comp", "loop")),
		reqs:  make(chan func()),
		done:  make(chan struct{}),
	}
}

// Done is closed once Run returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Load injects every task found in the queue directory. Call it before
// Run. Tasks whose owner no longer resolves are logged and dropped.
func (l *Loop) Load() error {
	now := l.clk.Now()
	return l.cp.Load(func(uid int, in ical.Instruction) {
		if err := l.core.Inject(in.Task, scheduler.Root, now); err != nil {
			l.log.Warn("queued task dropped", logx.Int("uid", uid), logx.String("tuid", in.ID), logx.Err(err))
		}
	})
}

// Do runs fn on the loop goroutine and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case l.reqs <- func() { fn(); close(ran) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
	<-ran
	return nil
}

// Run multiplexes requests, the watcher deadline, child exits and the
// checkpoint schedule until ctx is cancelled, then checkpoints once more.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	watch := l.clk.NewTimer(time.Hour)
	watch.Stop()
	defer watch.Stop()
	now := l.clk.Now()
	ckpt := l.clk.NewTimer(l.cp.Next(now).Sub(now))
	defer ckpt.Stop()

	l.log.Info("loop started", logx.Int("tasks", l.core.Len()))
	for {
		l.arm(watch)
		select {
		case <-ctx.Done():
			l.checkpoint("shutdown")
			l.log.Info("loop stopped", logx.Int("tasks", l.core.Len()))
			return nil
		case fn := <-l.reqs:
			fn()
		case <-watch.C:
			if n := l.core.Tick(l.clk.Now()); n > 0 {
				l.log.Debug("tick", logx.Int("fired", n))
			}
		case ex, ok := <-l.exits:
			if !ok {
				l.exits = nil
				continue
			}
			if !l.core.ChildExit(ex) {
				l.log.Debug("exit of unknown child", logx.Int("pid", ex.PID))
			}
		case <-ckpt.C:
			l.checkpoint("schedule")
			now := l.clk.Now()
			ckpt.Reset(l.cp.Next(now).Sub(now))
		}
	}
}

// arm points the watcher timer at the earliest deadline. A stale fire
// only causes an empty Tick.
func (l *Loop) arm(t *clock.Timer) {
	t.Stop()
	next, ok := l.core.NextDeadline()
	if !ok {
		return
	}
	t.Reset(next.Sub(l.clk.Now()))
}

func (l *Loop) checkpoint(why string) {
	if err := l.cp.Run(l.core); err != nil {
		l.log.Warn("checkpoint failed", logx.String("trigger", why), logx.Err(err))
	}
}
