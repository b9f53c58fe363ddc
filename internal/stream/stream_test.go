package stream

import (
	"strings"
	"testing"

	"echse/internal/instant"
)

func days(ds ...int) []instant.Instant {
	out := make([]instant.Instant, len(ds))
	for k, d := range ds {
		out[k] = instant.Date(2024, 1, d)
	}
	return out
}

func starts(evs []Event) string {
	var b strings.Builder
	for k, e := range evs {
		if k > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.From.String())
	}
	return b.String()
}

func TestArraySortsAndDedups(t *testing.T) {
	t.Parallel()
	a := NewArray(days(5, 1, 3, 1, 5), instant.Span{Days: 1}, nil)
	got := starts(Collect(a, 0))
	want := "2024-01-01 2024-01-03 2024-01-05"
	if got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
	if e := a.Next(); !e.IsNull() {
		t.Fatalf("exhausted array returned %v", e.From)
	}
}

func TestArrayValidRange(t *testing.T) {
	t.Parallel()
	a := NewArray(days(1, 2, 3, 4, 5), instant.Span{}, nil)
	a.SetValid(instant.Range{From: instant.Date(2024, 1, 2), Till: instant.Date(2024, 1, 4)})
	if got, want := starts(Collect(a, 0)), "2024-01-02 2024-01-03"; got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
	var props []string
	a.Serialize(SinkFunc(func(n, v string) { props = append(props, n+":"+v) }))
	if got, want := strings.Join(props, ","), "RDATE:20240102,RDATE:20240103"; got != want {
		t.Fatalf("Serialize = %q, want %q", got, want)
	}
}

func TestMuxOrdersAndBreaksTies(t *testing.T) {
	t.Parallel()
	a := NewArray(days(1, 4), instant.Span{}, "a")
	b := NewArray(days(1, 2, 6), instant.Span{}, "b")
	m := NewMux(a, b)
	evs := Collect(m, 0)
	if got, want := starts(evs), "2024-01-01 2024-01-01 2024-01-02 2024-01-04 2024-01-06"; got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
	if evs[0].Payload != "a" || evs[1].Payload != "b" {
		t.Fatalf("tie order = %v,%v, want a,b", evs[0].Payload, evs[1].Payload)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	m := NewMux(NewArray(days(1, 3), instant.Span{}, nil), NewArray(days(2), instant.Span{}, nil))
	m.Next()
	c := m.Clone()
	if got, want := starts(Collect(c, 0)), "2024-01-02 2024-01-03"; got != want {
		t.Fatalf("clone events = %q, want %q", got, want)
	}
	if got, want := starts(Collect(m, 0)), "2024-01-02 2024-01-03"; got != want {
		t.Fatalf("original events = %q, want %q", got, want)
	}
}

func TestFilterSuppressesOverlaps(t *testing.T) {
	t.Parallel()
	base := NewArray(days(1, 2, 3, 4, 5), instant.Span{Days: 1}, nil)
	exc := NewArray(days(2, 4), instant.Span{Days: 1}, nil)
	f := NewFilter(base, exc)
	if got, want := starts(Collect(f, 0)), "2024-01-01 2024-01-03 2024-01-05"; got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
}

func TestFilterPointEvents(t *testing.T) {
	t.Parallel()
	at := func(h int) instant.Instant { return instant.DateTime(2024, 1, 1, h, 0, 0) }
	base := NewArray([]instant.Instant{at(8), at(9), at(10)}, instant.Span{}, nil)
	exc := NewArray([]instant.Instant{at(9)}, instant.Span{}, nil)
	f := NewFilter(base, exc)
	if got, want := starts(Collect(f, 0)), "2024-01-01T08:00:00 2024-01-01T10:00:00"; got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
}

func TestFilterSerializeWritesExclusions(t *testing.T) {
	t.Parallel()
	f := NewFilter(NewArray(days(1, 2), instant.Span{}, nil), NewArray(days(2), instant.Span{}, nil))
	var props []string
	f.Serialize(SinkFunc(func(n, v string) { props = append(props, n+":"+v) }))
	if got, want := strings.Join(props, ","), "RDATE:20240101,RDATE:20240102,EXDATE:20240102"; got != want {
		t.Fatalf("Serialize = %q, want %q", got, want)
	}
}
