package task

import (
	"fmt"
	"strings"
	"testing"

	"echse/internal/instant"
	"echse/internal/rrule"
	"echse/internal/stream"
)

func TestRegistryPutGetRemove(t *testing.T) {
	t.Parallel()
	r := NewRegistry[int](0)
	r.Put("a", 1)
	r.Put("b", 2)
	r.Put("a", 3)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if v, ok := r.Get("a"); !ok || v != 3 {
		t.Fatalf("Get(a) = %d,%v, want 3,true", v, ok)
	}
	if v, ok := r.Remove("a"); !ok || v != 3 {
		t.Fatalf("Remove(a) = %d,%v", v, ok)
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("a still present after Remove")
	}
	if _, ok := r.Remove("a"); ok {
		t.Fatal("second Remove should fail")
	}
	if v, ok := r.Get("b"); !ok || v != 2 {
		t.Fatalf("Get(b) = %d,%v, want 2,true", v, ok)
	}
}

func TestRegistryGrowKeepsEntries(t *testing.T) {
	t.Parallel()
	r := NewRegistry[int](0)
	const n = 5000
	for i := 0; i < n; i++ {
		r.Put(fmt.Sprintf("task-%d@example", i), i)
	}
	if r.Len() != n {
		t.Fatalf("Len = %d, want %d", r.Len(), n)
	}
	if r.Capacity() < n {
		t.Fatalf("Capacity = %d, want >= %d", r.Capacity(), n)
	}
	for i := 0; i < n; i++ {
		if v, ok := r.Get(fmt.Sprintf("task-%d@example", i)); !ok || v != i {
			t.Fatalf("entry %d lost (got %d,%v)", i, v, ok)
		}
	}
	seen := 0
	r.Each(func(string, int) bool { seen++; return true })
	if seen != n {
		t.Fatalf("Each visited %d, want %d", seen, n)
	}
}

func TestRegistryChurnReusesTombstones(t *testing.T) {
	t.Parallel()
	r := NewRegistry[int](64)
	for round := 0; round < 50; round++ {
		for i := 0; i < 40; i++ {
			r.Put(fmt.Sprintf("r%d-%d", round, i), i)
		}
		for i := 0; i < 40; i++ {
			if _, ok := r.Remove(fmt.Sprintf("r%d-%d", round, i)); !ok {
				t.Fatalf("round %d: entry %d missing", round, i)
			}
		}
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

type rec struct {
	id   string
	runs int
}

func TestPoolResetsOnReuse(t *testing.T) {
	t.Parallel()
	p := NewPool(func(r *rec) { *r = rec{} })
	a := p.Get()
	a.id, a.runs = "secret", 7
	p.Put(a)
	b := p.Get()
	if b.id != "" || b.runs != 0 {
		t.Fatalf("reused record leaked state: %+v", *b)
	}
	for i := 0; i < 40; i++ {
		p.Get()
	}
	if p.Total() != 16+32 {
		t.Fatalf("Total = %d, want 48", p.Total())
	}
	if p.InUse() != 41 {
		t.Fatalf("InUse = %d, want 41", p.InUse())
	}
}

func starts(s stream.Stream) string {
	var out []string
	for _, e := range stream.Collect(s, 50) {
		out = append(out, e.From.String())
	}
	return strings.Join(out, " ")
}

func TestTaskStreamComposition(t *testing.T) {
	t.Parallel()
	daily, _ := rrule.Parse("FREQ=DAILY;COUNT=3")
	tests := []struct {
		name string
		mod  func(*Task)
		want string
	}{
		{
			name: "single occurrence",
			mod:  func(*Task) {},
			want: "2024-01-01",
		},
		{
			name: "rule only",
			mod:  func(t *Task) { t.Rules = []rrule.Spec{daily} },
			want: "2024-01-01 2024-01-02 2024-01-03",
		},
		{
			name: "rule and rdates",
			mod: func(t *Task) {
				t.Rules = []rrule.Spec{daily}
				t.RDates = []instant.Instant{instant.Date(2024, 2, 1)}
			},
			want: "2024-01-01 2024-01-01 2024-01-02 2024-01-03 2024-02-01",
		},
		{
			name: "rdates with exdate",
			mod: func(t *Task) {
				t.RDates = []instant.Instant{instant.Date(2024, 1, 5), instant.Date(2024, 1, 9)}
				t.ExDates = []instant.Instant{instant.Date(2024, 1, 5)}
			},
			want: "2024-01-01 2024-01-09",
		},
		{
			name: "rule with exdate",
			mod: func(t *Task) {
				t.Rules = []rrule.Spec{daily}
				t.ExDates = []instant.Instant{instant.Date(2024, 1, 2)}
			},
			want: "2024-01-01 2024-01-03",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tk := New("x")
			tk.Proto = stream.Event{From: instant.Date(2024, 1, 1), Till: instant.Date(2024, 1, 2)}
			tt.mod(tk)
			if got := starts(tk.Stream()); got != tt.want {
				t.Fatalf("occurrences = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMailFromAndCreds(t *testing.T) {
	t.Parallel()
	tk := New("x")
	if tk.MailFrom() != "echse" {
		t.Fatalf("MailFrom = %q, want echse", tk.MailFrom())
	}
	tk.Attendees = []string{"ops@example.org", "dev@example.org"}
	if tk.MailFrom() != "ops@example.org" {
		t.Fatalf("MailFrom = %q, want first attendee", tk.MailFrom())
	}
	tk.Organizer = "boss@example.org"
	if tk.MailFrom() != "boss@example.org" {
		t.Fatalf("MailFrom = %q, want organizer", tk.MailFrom())
	}
	c := Creds{UID: NoID, GID: 20, Dir: "", Shell: "/bin/zsh"}.Merge(Creds{UID: 1000, GID: 1000, Dir: "/home/u", Shell: "/bin/sh"})
	want := Creds{UID: 1000, GID: 20, Dir: "/home/u", Shell: "/bin/zsh"}
	if c != want {
		t.Fatalf("Merge = %+v, want %+v", c, want)
	}
}
