package client

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"echse/internal/checkpoint"
	"echse/internal/clock"
	"echse/internal/control"
	"echse/internal/daemon"
	"echse/internal/identity"
	"echse/internal/task"
	"echse/internal/task/engine"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
)

func TestReadResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		body string
		err  error
	}{
		{control.StatusOK + "a\t20240101T010000\n", "a\t20240101T010000\n", nil},
		{control.StatusOK, "", nil},
		{control.StatusForbid, "", ErrStatus},
		{control.StatusNotFound, "", ErrStatus},
		{"", "", ErrNoReply},
		{"garbage\n", "", ErrNoReply},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(strings.TrimSpace(tt.in), func(t *testing.T) {
			t.Parallel()
			got, err := readResponse(bufio.NewReader(strings.NewReader(tt.in)))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if string(got) != tt.body {
				t.Fatalf("body = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestReadRepliesEmpty(t *testing.T) {
	t.Parallel()
	if _, err := readReplies(strings.NewReader("")); !errors.Is(err, ErrNoReply) {
		t.Fatalf("err = %v, want ErrNoReply", err)
	}
}

func TestNoDaemon(t *testing.T) {
	t.Parallel()
	c := New(filepath.Join(t.TempDir(), "nobody"))
	if _, err := c.Query(context.Background(), control.Query{Route: control.RouteSched, UID: -1}); !errors.Is(err, ErrNoDaemon) {
		t.Fatalf("err = %v, want ErrNoDaemon", err)
	}
}

const job = "BEGIN:VCALENDAR\n" +
	"METHOD:PUBLISH\n" +
	"BEGIN:VEVENT\n" +
	"UID:nightly@test\n" +
	"DTSTART:20300101T030000\n" +
	"RRULE:FREQ=DAILY\n" +
	"SUMMARY:true\n" +
	"END:VEVENT\n" +
	"END:VCALENDAR\n"

func TestAgainstDaemon(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("peer credentials need linux")
	}
	t.Setenv("LISTEN_PID", "")
	uid, gid := os.Getuid(), os.Getgid()
	users := identity.Static{uid: task.Creds{UID: uid, GID: gid, Dir: "/", Shell: "/bin/sh"}}

	fs := afero.NewMemMapFs()
	cp, err := checkpoint.New(fs, checkpoint.Config{Dir: "/spool"}, logx.Nop())
	if err != nil {
		t.Fatalf("checkpoint.New error: %v", err)
	}
	eng := engine.New(engine.Config{Helper: "/bin/true", DryRun: true}, logx.Nop(), nil)
	defer eng.Close()
	core := scheduler.New(scheduler.Config{}, eng, users, cp, logx.Nop(), nil)
	loop := daemon.New(core, cp, eng.Exits(), clock.NewFake(time.Date(2029, 6, 1, 0, 0, 0, 0, time.UTC)), nil, logx.Nop())

	path := filepath.Join(t.TempDir(), "=echsd")
	ln, err := control.Listen(path)
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	srv := control.New(control.Config{}, loop, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	go func() { _ = srv.Serve(ctx, ln) }()

	c := New(path)
	replies, err := c.Send(ctx, strings.NewReader(job))
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(replies) != 1 || !replies[0].OK() || replies[0].ID != "nightly@test" {
		t.Fatalf("replies = %+v", replies)
	}

	body, err := c.Query(ctx, control.Query{Route: control.RouteSched, UID: -1})
	if err != nil {
		t.Fatalf("Query(sched) error: %v", err)
	}
	if !strings.HasPrefix(string(body), "nightly@test\t2030-01-01T03:00:00") {
		t.Fatalf("sched = %q", body)
	}
	body, err = c.Query(ctx, control.Query{Route: control.RouteQueue, UID: -1})
	if err != nil || !strings.Contains(string(body), "UID:nightly@test") {
		t.Fatalf("queue = %q, %v", body, err)
	}

	replies, err = c.Cancel(ctx, "nightly@test", "unknown@test")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if len(replies) != 2 || !replies[0].OK() || replies[1].OK() {
		t.Fatalf("cancel replies = %+v", replies)
	}
}
