package daemon

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"echse/internal/checkpoint"
	"echse/internal/clock"
	"echse/internal/eventbus"
	"echse/internal/ical"
	"echse/internal/identity"
	"echse/internal/task/engine"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
)

var users = identity.Static{
	0:    {UID: 0, GID: 0, Dir: "/root", Shell: "/bin/sh"},
	1000: {UID: 1000, GID: 100, Dir: "/home/a", Shell: "/bin/sh"},
	1001: {UID: 1001, GID: 100, Dir: "/home/b", Shell: "/bin/sh"},
}

const hourly = "BEGIN:VCALENDAR\n" +
	"METHOD:PUBLISH\n" +
	"BEGIN:VEVENT\n" +
	"UID:job@test\n" +
	"DTSTART:20240101T010000\n" +
	"RRULE:FREQ=HOURLY;COUNT=2\n" +
	"SUMMARY:echo hi\n" +
	"END:VEVENT\n" +
	"END:VCALENDAR\n"

type rig struct {
	fs   afero.Fs
	clk  *clock.Fake
	bus  eventbus.Bus
	core *scheduler.Core
	cp   *checkpoint.Checkpointer
	eng  *engine.Service
	loop *Loop
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		fs:  afero.NewMemMapFs(),
		clk: clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		bus: eventbus.New(),
	}
	cp, err := checkpoint.New(r.fs, checkpoint.Config{Dir: "/spool"}, logx.Nop())
	if err != nil {
		t.Fatalf("checkpoint.New error: %v", err)
	}
	r.cp = cp
	r.eng = engine.New(engine.Config{Helper: "/usr/libexec/echsx", DryRun: true}, logx.Nop(), r.bus)
	t.Cleanup(r.eng.Close)
	r.core = scheduler.New(scheduler.Config{}, r.eng, users, cp, logx.Nop(), r.bus)
	r.loop = New(r.core, cp, r.eng.Exits(), r.clk, r.bus, logx.Nop())
	return r
}

func (r *rig) start(t *testing.T) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.loop.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop")
		}
	}
}

func decode(t *testing.T, doc string) ical.Instruction {
	t.Helper()
	in, err := ical.NewDecoder(strings.NewReader(doc)).Next()
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return in
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	exited, unsub := r.bus.Subscribe(8, "task.exited")
	defer unsub()
	stop := r.start(t)
	ctx := context.Background()

	alice := scheduler.Peer{UID: 1000, GID: 100}
	bob := scheduler.Peer{UID: 1001, GID: 100}

	if err := r.loop.Instruct(ctx, alice, decode(t, hourly)); err != nil {
		t.Fatalf("Instruct(schedule) = %v", err)
	}
	cancel := ical.Instruction{Verb: ical.VerbCancel, ID: "job@test"}
	if err := r.loop.Instruct(ctx, bob, cancel); !errors.Is(err, scheduler.ErrPermission) {
		t.Fatalf("foreign cancel = %v, want ErrPermission", err)
	}

	items, err := r.loop.Schedule(ctx, 1000, nil)
	if err != nil || len(items) != 1 || items[0].TaskID != "job@test" || items[0].Event.From.Hour != 1 {
		t.Fatalf("Schedule = %+v, %v", items, err)
	}
	if items, _ := r.loop.Schedule(ctx, 1001, nil); len(items) != 0 {
		t.Fatalf("Schedule(1001) = %+v, want none", items)
	}

	rc, err := r.loop.Queue(ctx, 1000)
	if err != nil || rc == nil {
		t.Fatalf("Queue(1000) = %v, %v", rc, err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if !strings.Contains(string(b), "UID:job@test") {
		t.Fatalf("queue file lacks task:\n%s", b)
	}
	if rc, err := r.loop.Queue(ctx, 1001); rc != nil || err != nil {
		t.Fatalf("Queue(1001) = %v, %v, want nil, nil", rc, err)
	}

	// Watcher plus checkpoint timer.
	r.clk.WaitForTimers(2)
	r.clk.Advance(time.Hour)
	select {
	case ev := <-exited:
		if te, ok := ev.Data.(engine.TaskEvent); !ok || te.TaskID != "job@test" {
			t.Fatalf("exit event = %+v", ev.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no child exit")
	}

	items, _ = r.loop.Schedule(ctx, 1000, nil)
	if len(items) != 1 || items[0].Event.From.Hour != 2 {
		t.Fatalf("Schedule after fire = %+v, want 02:00", items)
	}
	st, err := r.loop.Status(ctx)
	if err != nil || st.Tasks != 1 {
		t.Fatalf("Status = %+v, %v", st, err)
	}

	if err := r.loop.Instruct(ctx, alice, cancel); err != nil {
		t.Fatalf("owner cancel = %v", err)
	}
	stop()

	b, err = afero.ReadFile(r.fs, r.cp.Path(1000))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if strings.Contains(string(b), "job@test") {
		t.Fatalf("final checkpoint still lists cancelled task:\n%s", b)
	}
	if err := r.loop.Instruct(ctx, alice, cancel); !errors.Is(err, ErrStopped) {
		t.Fatalf("Instruct after stop = %v, want ErrStopped", err)
	}
}

func TestLoadQueue(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	doc := strings.Replace(hourly, "UID:job@test", "UID:kept@test", 1)
	if err := afero.WriteFile(r.fs, r.cp.Path(1000), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	orphan := strings.Replace(hourly, "UID:job@test", "UID:orphan@test", 1)
	if err := afero.WriteFile(r.fs, r.cp.Path(4242), []byte(orphan), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if err := r.loop.Load(); err != nil {
		t.Fatalf("Load = %v", err)
	}
	if r.core.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.core.Len())
	}
	e, ok := r.core.Get("kept@test")
	if !ok || e.Task.Owner != 1000 {
		t.Fatalf("kept@test = %+v, %v", e, ok)
	}
}

func TestUnsupportedDirective(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	stop := r.start(t)
	defer stop()
	err := r.loop.Instruct(context.Background(), scheduler.Root, ical.Instruction{Verb: ical.VerbReply, ID: "x"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Instruct(reply) = %v, want ErrUnsupported", err)
	}
}

func TestDoHonorsContext(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.loop.Do(ctx, func() {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v, want context.Canceled", err)
	}
}
