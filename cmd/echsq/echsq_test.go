package main

import (
	"strings"
	"testing"
	"time"

	"echse/internal/ical"
	"echse/internal/storage"
)

func TestReport(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	ok := []ical.Instruction{{Verb: ical.VerbReply, ID: "a", Status: ical.StatusSuccess}}
	if err := report(&out, ok); err != nil {
		t.Fatalf("report = %v", err)
	}
	if out.String() != "SUCCESS\ta\n" {
		t.Fatalf("output = %q", out.String())
	}

	out.Reset()
	mixed := append(ok, ical.Instruction{Verb: ical.VerbReply, ID: "b", Status: ical.StatusFailure})
	if err := report(&out, mixed); err == nil {
		t.Fatal("report with a failure returned nil")
	}
	if out.String() != "SUCCESS\ta\nFAILURE\tb\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestPrintRuns(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	runs := []storage.RunRecord{
		{At: now.Add(-time.Hour), Kind: storage.RunExited, TaskID: "backup", PID: 42, Code: 1, TookMS: 2500},
		{At: now.Add(-2 * time.Hour), Kind: storage.RunSpawned, TaskID: "backup", PID: 41, NoRun: true},
	}
	var out strings.Builder
	printRuns(&out, runs, now)
	want := "1 hour ago\tbackup\tpid 42\texit 1 after 2.5s\n" +
		"2 hours ago\tbackup\tpid 41\tnotified\n"
	if out.String() != want {
		t.Fatalf("printRuns =\n%q\nwant\n%q", out.String(), want)
	}
}

func TestUserID(t *testing.T) {
	user = ""
	if uid, err := userID(); uid != -1 || err != nil {
		t.Fatalf("userID() = %d, %v, want -1", uid, err)
	}
	user = "1000"
	if uid, err := userID(); uid != 1000 || err != nil {
		t.Fatalf("userID(1000) = %d, %v", uid, err)
	}
	user = "alice"
	if _, err := userID(); err == nil {
		t.Fatal("non-numeric uid accepted")
	}
	user = ""
}
