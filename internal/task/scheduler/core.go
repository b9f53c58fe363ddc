package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"echse/internal/eventbus"
	"echse/internal/identity"
	"echse/internal/instant"
	"echse/internal/stream"
	"echse/internal/task"
	"echse/internal/task/engine"
	logx "echse/pkg/logx"
)

// Core is the scheduling context: registry, pools and watchers of one
// daemon instance.
type Core struct {
	log   logx.Logger
	bus   eventbus.Bus
	loc   *time.Location
	spawn Spawner
	ids   identity.Resolver
	dirty Dirtier

	reg      *task.Registry[*Entry]
	entries  *task.Pool[Entry]
	children *task.Pool[child]
	kids     map[uint64]*child
	serial   uint64
	watch    watchers
}

func New(cfg Config, spawn Spawner, ids identity.Resolver, dirty Dirtier, log logx.Logger, bus eventbus.Bus) *Core {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Core{
		log:      log.With(logx.String("comp", "sched")),
		bus:      bus,
		loc:      loc,
		spawn:    spawn,
		ids:      ids,
		dirty:    dirty,
		reg:      task.NewRegistry[*Entry](0),
		entries:  task.NewPool(resetEntry),
		children: task.NewPool(resetChild),
		kids:     map[uint64]*child{},
	}
}

func (c *Core) Location() *time.Location { return c.loc }

// Inject registers t on behalf of p, replacing a task with the same id.
// The task is rejected when p may not act for its owner or its run-as
// credentials cannot be resolved.
func (c *Core) Inject(t *task.Task, p Peer, now time.Time) error {
	if t == nil || t.ID == "" {
		return ErrBadTask
	}
	if !p.Privileged() {
		if t.Owner != task.NoID && t.Owner != p.UID {
			return fmt.Errorf("%w: uid %d acting for %d", ErrPermission, p.UID, t.Owner)
		}
		if t.RunAs.UID != task.NoID && t.RunAs.UID != p.UID {
			return fmt.Errorf("%w: uid %d running as %d", ErrPermission, p.UID, t.RunAs.UID)
		}
		if t.RunAs.GID != task.NoID && t.RunAs.GID != p.GID {
			return fmt.Errorf("%w: uid %d running as gid %d", ErrPermission, p.UID, t.RunAs.GID)
		}
		t.Owner = p.UID
	} else if t.Owner == task.NoID {
		t.Owner = 0
	}

	old, exists := c.reg.Get(t.ID)
	if exists && old.Task.Owner != t.Owner && !p.Privileged() {
		return fmt.Errorf("%w: %s belongs to uid %d", ErrPermission, t.ID, old.Task.Owner)
	}

	uid := t.Owner
	if t.RunAs.UID != task.NoID {
		uid = t.RunAs.UID
	}
	def, err := c.ids.Lookup(uid)
	if err != nil {
		return err
	}
	s := t.Stream()
	if s == nil {
		return ErrNoSchedule
	}

	e := old
	if exists {
		c.watch.disarm(e)
		if e.Task.Owner != t.Owner {
			c.markDirty(e.Task.Owner)
		}
	} else {
		e = c.entries.Get()
		c.reg.Put(t.ID, e)
	}
	e.Task = t
	e.Creds = t.RunAs.Merge(def)
	e.stream = s
	e.state = StateArmed
	c.markDirty(t.Owner)
	c.log.Debug("injected", logx.String("tuid", t.ID), logx.Int("owner", t.Owner), logx.Bool("replace", exists))

	c.Reschedule(e, now)
	c.settle(e)
	return nil
}

// Cancel disarms the task. Children already running finish and are
// reaped normally.
func (c *Core) Cancel(id string, p Peer) error {
	e, ok := c.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !p.Privileged() && e.Task.Owner != p.UID {
		return fmt.Errorf("%w: %s belongs to uid %d", ErrPermission, id, e.Task.Owner)
	}
	c.remove(e, "cancelled")
	return nil
}

// Reschedule pulls the next occurrence starting at or after now and arms
// the watcher for it. An exhausted stream retires the entry, or removes it
// outright when nothing was ever armed.
func (c *Core) Reschedule(e *Entry, now time.Time) {
	cut := instant.FromTime(now.In(c.loc))
	for {
		ev := e.stream.Next()
		if ev.IsNull() {
			break
		}
		if ev.From.Less(cut) {
			continue
		}
		at := ev.From.Time(c.loc)
		e.current = ev
		e.runs++
		e.state = StateArmed
		c.watch.arm(e, at)
		c.log.Debug("armed", logx.String("tuid", e.Task.ID), logx.String("at", ev.From.String()),
			logx.String("in", humanize.RelTime(now, at, "ago", "from now")))
		c.publish("task.armed", e, at, "")
		return
	}
	if e.runs == 0 {
		c.log.Info("schedule lies in the past", logx.String("tuid", e.Task.ID))
		c.remove(e, "expired")
		return
	}
	e.state = StateRetiring
	c.publish("task.retiring", e, time.Time{}, "")
}

// Fire runs occurrence ev of e. Once e has as many children as it
// allows, the helper is started in notify-only mode and not counted.
func (c *Core) Fire(e *Entry, ev stream.Event) {
	limit := e.Task.MaxSimul
	if limit < 1 {
		limit = 1
	}
	noRun := e.running >= limit
	c.serial++
	job := engine.Job{
		Serial: c.serial,
		TaskID: e.Task.ID,
		Owner:  e.Task.Owner,
		NoRun:  noRun,
		Argv:   engine.Args(e.Task, e.Creds, noRun),
		Env:    engine.Env(e.Task, e.Creds),
		At:     ev.From.Time(c.loc),
	}
	pid, err := c.spawn.Spawn(job)
	if err != nil {
		c.log.Warn("spawn failed, occurrence skipped", logx.String("tuid", e.Task.ID), logx.Err(err))
		c.publish("task.skipped", e, job.At, err.Error())
		return
	}
	if noRun {
		c.log.Info("concurrency limit reached", logx.String("tuid", e.Task.ID), logx.Int("running", e.running))
		c.publish("task.skipped", e, job.At, "max_simul")
		return
	}
	e.running++
	ch := c.children.Get()
	ch.pid = pid
	ch.entry = e
	c.kids[job.Serial] = ch
}

// Tick handles every watcher due at now and reports how many fired.
func (c *Core) Tick(now time.Time) int {
	n := 0
	for {
		e := c.watch.due(now)
		if e == nil {
			return n
		}
		cur := e.current
		c.Reschedule(e, now)
		c.Fire(e, cur)
		c.settle(e)
		n++
	}
}

// ChildExit reaps a child by its job serial. It reports false for
// children the core never counted.
func (c *Core) ChildExit(ex engine.Exit) bool {
	ch, ok := c.kids[ex.Serial]
	if !ok {
		c.log.Debug("unknown child", logx.Int("pid", ex.PID))
		return false
	}
	delete(c.kids, ex.Serial)
	e := ch.entry
	c.children.Put(ch)
	e.running--
	c.log.Debug("reaped", logx.String("tuid", ex.TaskID), logx.Int("pid", ex.PID), logx.Int("code", ex.Code),
		logx.Duration("took", ex.Duration))
	switch e.state {
	case StateRetiring:
		c.settle(e)
	case StateRemoved:
		if e.running == 0 {
			c.entries.Put(e)
		}
	}
	return true
}

// settle completes a deferred removal.
func (c *Core) settle(e *Entry) {
	if e.state == StateRetiring && e.running == 0 {
		c.remove(e, "finished")
	}
}

func (c *Core) remove(e *Entry, reason string) {
	c.watch.disarm(e)
	c.reg.Remove(e.Task.ID)
	e.state = StateRemoved
	c.markDirty(e.Task.Owner)
	c.publish("task.removed", e, time.Time{}, reason)
	c.log.Debug("removed", logx.String("tuid", e.Task.ID), logx.String("reason", reason))
	if e.running == 0 {
		c.entries.Put(e)
	}
}

func (c *Core) markDirty(uid int) {
	if c.dirty != nil {
		c.dirty.Mark(uid)
	}
}

func (c *Core) publish(typ string, e *Entry, next time.Time, reason string) {
	c.bus.Publish(eventbus.Event{Type: typ, Data: LifecycleEvent{
		TaskID: e.Task.ID, Owner: e.Task.Owner, State: e.state.String(), Next: next, Reason: reason,
	}})
}

// NextDeadline is the earliest armed watcher.
func (c *Core) NextDeadline() (time.Time, bool) { return c.watch.next() }

func (c *Core) Get(id string) (*Entry, bool) { return c.reg.Get(id) }

func (c *Core) Len() int { return c.reg.Len() }

// Each visits registered entries in no particular order.
func (c *Core) Each(fn func(*Entry) bool) {
	c.reg.Each(func(_ string, e *Entry) bool { return fn(e) })
}

// TasksOf lists the entries owned by uid, ordered by id.
func (c *Core) TasksOf(uid int) []*Entry {
	var out []*Entry
	c.Each(func(e *Entry) bool {
		if e.Task.Owner == uid {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Task.ID < out[j].Task.ID })
	return out
}

// Schedule lists what uid has armed, optionally restricted to ids,
// ordered by start.
func (c *Core) Schedule(uid int, ids []string) []Item {
	var want map[string]bool
	if len(ids) > 0 {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}
	var out []Item
	for _, e := range c.TasksOf(uid) {
		if want != nil && !want[e.Task.ID] {
			continue
		}
		out = append(out, Item{TaskID: e.Task.ID, Owner: uid, Event: e.current, State: e.state})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Event.From.Less(out[j].Event.From) })
	return out
}
