package rrule

import (
	"strings"
	"testing"

	"echse/internal/instant"
	"echse/internal/stream"
)

func mustSpec(t *testing.T, s string) Spec {
	t.Helper()
	sp, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", s, err)
	}
	return sp
}

func mustInstant(t *testing.T, s string) instant.Instant {
	t.Helper()
	i, err := instant.Parse(s)
	if err != nil {
		t.Fatalf("instant.Parse(%q) error: %v", s, err)
	}
	return i
}

func unroll(t *testing.T, anchor, rule string, limit int) string {
	t.Helper()
	r := NewStream(mustInstant(t, anchor), instant.Span{}, mustSpec(t, rule), nil, nil, nil)
	return join(stream.Collect(r, limit))
}

func join(evs []stream.Event) string {
	parts := make([]string, len(evs))
	for k, e := range evs {
		parts[k] = e.From.String()
	}
	return strings.Join(parts, " ")
}

func TestParseCanonical(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "FREQ=DAILY", want: "FREQ=DAILY"},
		{name: "order", in: "COUNT=3;BYMONTHDAY=-1;BYMONTH=2;FREQ=YEARLY", want: "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1;COUNT=3"},
		{name: "bypos alias", in: "FREQ=MONTHLY;BYPOS=-1;BYDAY=MO,TU;INTERVAL=2", want: "FREQ=MONTHLY;INTERVAL=2;BYDAY=MO,TU;BYSETPOS=-1"},
		{name: "ordinals", in: "freq=monthly;byday=1mo,-1FR", want: "FREQ=MONTHLY;BYDAY=1MO,-1FR"},
		{name: "until", in: "FREQ=WEEKLY;UNTIL=20250101T000000Z", want: "FREQ=WEEKLY;UNTIL=20250101T000000"},
		{name: "easter", in: "FREQ=YEARLY;BYEASTER=-2,0", want: "FREQ=YEARLY;BYEASTER=-2,0"},
		{name: "interval one", in: "FREQ=HOURLY;INTERVAL=1;BYMINUTE=0,30", want: "FREQ=HOURLY;BYMINUTE=0,30"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mustSpec(t, tt.in).String()
			if got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
			if again := mustSpec(t, got).String(); again != got {
				t.Fatalf("reparse = %q, want %q", again, got)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"", "COUNT=3", "FREQ=FORTNIGHTLY", "FREQ=DAILY;BYMONTH=13", "FREQ=DAILY;BYMONTHDAY=0",
		"FREQ=DAILY;INTERVAL=0", "FREQ=DAILY;BYDAY=XX", "FREQ=DAILY;FOO=1", "FREQ=DAILY;COUNT",
	} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}

func TestCountIsExact(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 63, 64, 65, 150} {
		s := New(Daily)
		s.Count = n
		x := NewExpander(s, instant.Date(2024, 1, 1))
		total := 0
		for k := 0; k < 10; k++ {
			b := x.Refill(nil)
			if len(b) > BatchSize {
				t.Fatalf("batch of %d exceeds %d", len(b), BatchSize)
			}
			total += len(b)
		}
		if total != n {
			t.Fatalf("COUNT=%d emitted %d", n, total)
		}
		if x.Remaining() != 0 || !x.Done() {
			t.Fatalf("COUNT=%d: remaining %d, done %v", n, x.Remaining(), x.Done())
		}
	}
}

func TestExpansion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		anchor string
		rule   string
		want   string
	}{
		{
			name: "feb 29 only in leap years", anchor: "2024-02-29", rule: "FREQ=YEARLY;COUNT=3",
			want: "2024-02-29 2028-02-29 2032-02-29",
		},
		{
			name: "last day of february", anchor: "2023-02-28", rule: "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1;COUNT=3",
			want: "2023-02-28 2024-02-28 2025-02-28",
		},
		{
			name: "last day of february with march", anchor: "2024-01-01", rule: "FREQ=YEARLY;BYMONTH=2,3;BYMONTHDAY=-1;COUNT=3",
			want: "2024-02-28 2024-03-31 2025-02-28",
		},
		{
			name: "minus 29 in february", anchor: "2023-01-01", rule: "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-29;COUNT=2",
			want: "2024-02-01 2028-02-01",
		},
		{
			name: "months by days sorted", anchor: "2024-01-01", rule: "FREQ=YEARLY;BYMONTH=6,1;BYMONTHDAY=15,1;COUNT=5",
			want: "2024-01-01 2024-01-15 2024-06-01 2024-06-15 2025-01-01",
		},
		{
			name: "monthly 31st skips short months", anchor: "2024-01-31", rule: "FREQ=MONTHLY;BYMONTHDAY=31;COUNT=4",
			want: "2024-01-31 2024-03-31 2024-05-31 2024-07-31",
		},
		{
			name: "last friday", anchor: "2024-01-01", rule: "FREQ=MONTHLY;BYDAY=-1FR;COUNT=3",
			want: "2024-01-26 2024-02-23 2024-03-29",
		},
		{
			name: "last workday", anchor: "2024-01-01", rule: "FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1;COUNT=3",
			want: "2024-01-31 2024-02-29 2024-03-29",
		},
		{
			name: "good friday and easter", anchor: "2024-01-01", rule: "FREQ=YEARLY;BYEASTER=-2,0;COUNT=4",
			want: "2024-03-29 2024-03-31 2025-04-18 2025-04-20",
		},
		{
			name: "weekly days", anchor: "2024-01-03", rule: "FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=4",
			want: "2024-01-03 2024-01-05 2024-01-08 2024-01-10",
		},
		{
			name: "hourly interval", anchor: "2024-01-01T03:00:00", rule: "FREQ=HOURLY;INTERVAL=6;COUNT=4",
			want: "2024-01-01T03:00:00 2024-01-01T09:00:00 2024-01-01T15:00:00 2024-01-01T21:00:00",
		},
		{
			name: "daily with hours", anchor: "2024-01-01T09:30:00", rule: "FREQ=DAILY;BYHOUR=9,17;COUNT=3",
			want: "2024-01-01T09:30:00 2024-01-01T17:30:00 2024-01-02T09:30:00",
		},
		{
			name: "until is inclusive", anchor: "2024-01-01", rule: "FREQ=WEEKLY;UNTIL=20240115",
			want: "2024-01-01 2024-01-08 2024-01-15",
		},
		{
			name: "candidates before anchor skipped", anchor: "2024-06-15", rule: "FREQ=YEARLY;BYMONTH=1,12;BYMONTHDAY=1;COUNT=2",
			want: "2024-12-01 2025-01-01",
		},
		{
			name: "year day", anchor: "2024-01-01", rule: "FREQ=YEARLY;BYYEARDAY=1,-1;COUNT=3",
			want: "2024-01-01 2024-12-31 2025-01-01",
		},
		{
			name: "week number", anchor: "2024-01-01", rule: "FREQ=YEARLY;BYWEEKNO=1;BYDAY=MO;COUNT=2",
			// week 1 of 2025 and 2026 starts in the previous year
			want: "2024-01-01 2027-01-04",
		},
		{
			name: "add shifts days", anchor: "2024-01-01", rule: "FREQ=MONTHLY;BYMONTHDAY=1;BYADD=1;COUNT=2",
			want: "2024-01-02 2024-02-02",
		},
		{
			name: "minutely filtered by hour", anchor: "2024-01-01T23:58:00", rule: "FREQ=MINUTELY;INTERVAL=1;BYHOUR=0;COUNT=2",
			want: "2024-01-02T00:00:00 2024-01-02T00:01:00",
		},
		{
			name: "secondly in a distant hour", anchor: "2024-01-01T10:00:00", rule: "FREQ=SECONDLY;BYHOUR=3;COUNT=3",
			want: "2024-01-02T03:00:00 2024-01-02T03:00:01 2024-01-02T03:00:02",
		},
		{
			name: "secondly in one minute", anchor: "2024-01-01T10:31:00", rule: "FREQ=SECONDLY;BYMINUTE=30;BYSECOND=0,59;COUNT=3",
			want: "2024-01-01T11:30:00 2024-01-01T11:30:59 2024-01-01T12:30:00",
		},
		{
			name: "minutely in a sparse month", anchor: "2024-01-01T00:00:00", rule: "FREQ=MINUTELY;INTERVAL=7;BYMONTH=3;BYHOUR=5;COUNT=2",
			want: "2024-03-01T05:02:00 2024-03-01T05:09:00",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := unroll(t, tt.anchor, tt.rule, 20); got != tt.want {
				t.Fatalf("occurrences = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSinglePathMatchesGeneral(t *testing.T) {
	t.Parallel()
	rules := []string{
		"FREQ=YEARLY",
		"FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1",
		"FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=29",
		"FREQ=YEARLY;BYMONTHDAY=-29",
		"FREQ=YEARLY;INTERVAL=3;BYMONTH=11;BYHOUR=8",
	}
	anchors := []string{"2023-02-28", "2024-02-29T12:00:00", "1999-12-31"}
	for _, r := range rules {
		for _, a := range anchors {
			s := mustSpec(t, r)
			s.Count = 100
			fast := NewExpander(s, mustInstant(t, a))
			slow := NewExpander(s, mustInstant(t, a))
			if !fast.single {
				t.Fatalf("%s: expected single-candidate path", r)
			}
			slow.single = false
			for k := 0; k < 3; k++ {
				f := fast.Refill(nil)
				g := slow.Refill(nil)
				if len(f) != len(g) {
					t.Fatalf("%s @%s: batch %d len %d vs %d", r, a, k, len(f), len(g))
				}
				for i := range f {
					if f[i] != g[i] {
						t.Fatalf("%s @%s: %v vs %v", r, a, f[i], g[i])
					}
				}
			}
		}
	}
}

func TestResolveDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		y, m, d int
		want    int
		ok      bool
	}{
		{2024, 2, 29, 29, true},
		{2023, 2, 29, 0, false},
		{2024, 2, -1, 28, true},
		{2024, 2, -28, 1, true},
		{2023, 2, -1, 28, true},
		{2024, 2, -29, 1, true},
		{2023, 2, -29, 0, false},
		{2023, 4, 31, 0, false},
		{2023, 4, -30, 1, true},
	}
	for _, tt := range tests {
		got, ok := ResolveDay(tt.y, tt.m, tt.d)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ResolveDay(%d, %d, %d) = %d,%v, want %d,%v", tt.y, tt.m, tt.d, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExdateSubtraction(t *testing.T) {
	t.Parallel()
	ex := []instant.Instant{instant.Date(2024, 1, 3)}
	r := NewStream(instant.Date(2024, 1, 1), instant.Span{Days: 1}, mustSpec(t, "FREQ=DAILY;COUNT=5"), ex, nil, nil)
	if got, want := join(stream.Collect(r, 0)), "2024-01-01 2024-01-02 2024-01-04 2024-01-05"; got != want {
		t.Fatalf("occurrences = %q, want %q", got, want)
	}
}

func TestAllDayExdateRemovesTimedOccurrences(t *testing.T) {
	t.Parallel()
	ex := []instant.Instant{instant.Date(2024, 1, 2)}
	r := NewStream(mustInstant(t, "2024-01-01T08:00:00"), instant.Span{}, mustSpec(t, "FREQ=DAILY;BYHOUR=8,20;COUNT=6"), ex, nil, nil)
	want := "2024-01-01T08:00:00 2024-01-01T20:00:00 2024-01-03T08:00:00 2024-01-03T20:00:00"
	if got := join(stream.Collect(r, 0)); got != want {
		t.Fatalf("occurrences = %q, want %q", got, want)
	}
}

func TestExruleSubtraction(t *testing.T) {
	t.Parallel()
	exr := []Spec{mustSpec(t, "FREQ=WEEKLY;BYDAY=SA,SU")}
	r := NewStream(instant.Date(2024, 1, 1), instant.Span{}, mustSpec(t, "FREQ=DAILY;UNTIL=20240114"), nil, exr, nil)
	evs := stream.Collect(r, 0)
	if len(evs) != 10 {
		t.Fatalf("got %d weekdays (%s), want 10", len(evs), join(evs))
	}
	for _, e := range evs {
		if wd := e.From.Weekday(); wd == instant.Saturday || wd == instant.Sunday {
			t.Fatalf("weekend occurrence %v survived", e.From)
		}
	}
}

func TestRuleCloneContinues(t *testing.T) {
	t.Parallel()
	r := NewStream(instant.Date(2024, 1, 1), instant.Span{}, mustSpec(t, "FREQ=DAILY;COUNT=4"), nil, nil, nil)
	r.Next()
	c := r.Clone()
	if got, want := join(stream.Collect(c, 0)), "2024-01-02 2024-01-03 2024-01-04"; got != want {
		t.Fatalf("clone = %q, want %q", got, want)
	}
	if got, want := join(stream.Collect(r, 0)), "2024-01-02 2024-01-03 2024-01-04"; got != want {
		t.Fatalf("original = %q, want %q", got, want)
	}
}

func TestRuleSerialize(t *testing.T) {
	t.Parallel()
	ex := []instant.Instant{instant.Date(2023, 12, 25), instant.Date(2024, 12, 25)}
	exr := []Spec{mustSpec(t, "FREQ=YEARLY;BYMONTH=1;BYMONTHDAY=1")}
	r := NewStream(instant.Date(2023, 1, 1), instant.Span{}, mustSpec(t, "FREQ=DAILY"), ex, exr, nil)
	r.SetValid(instant.Range{From: instant.Date(2024, 1, 1), Till: instant.Date(2025, 1, 1)})
	var props []string
	r.Serialize(stream.SinkFunc(func(n, v string) { props = append(props, n+":"+v) }))
	want := "RRULE:FREQ=DAILY;UNTIL=20241231,EXDATE:20241225,EXRULE:FREQ=YEARLY;BYMONTH=1;BYMONTHDAY=1"
	if got := strings.Join(props, ","); got != want {
		t.Fatalf("Serialize = %q, want %q", got, want)
	}
}

func TestValidRangeClampsRule(t *testing.T) {
	t.Parallel()
	r := NewStream(instant.Date(2024, 1, 1), instant.Span{}, mustSpec(t, "FREQ=DAILY"), nil, nil, nil)
	r.SetValid(instant.Range{From: instant.Date(2024, 1, 10), Till: instant.Date(2024, 1, 12)})
	if got, want := join(stream.Collect(r, 0)), "2024-01-10 2024-01-11"; got != want {
		t.Fatalf("occurrences = %q, want %q", got, want)
	}
}
