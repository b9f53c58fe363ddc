package instant

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) Instant {
	t.Helper()
	i, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", s, err)
	}
	return i
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "date", raw: "2024-02-29", want: "2024-02-29"},
		{name: "basic date", raw: "20240229", want: "2024-02-29"},
		{name: "datetime", raw: "2024-03-01T09:30:00", want: "2024-03-01T09:30:00"},
		{name: "space separator", raw: "2024-03-01 09:30:00", want: "2024-03-01T09:30:00"},
		{name: "basic datetime", raw: "20240301T093000", want: "2024-03-01T09:30:00"},
		{name: "utc suffix", raw: "20240301T093000Z", want: "2024-03-01T09:30:00"},
		{name: "millis", raw: "2024-03-01T09:30:00.125", want: "2024-03-01T09:30:00.125"},
		{name: "short fraction", raw: "2024-03-01T09:30:00.5", want: "2024-03-01T09:30:00.500"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mustParse(t, tt.raw)
			if got.String() != tt.want {
				t.Fatalf("String() = %q, want %q", got.String(), tt.want)
			}
			again := mustParse(t, got.String())
			if again != got {
				t.Fatalf("reparse = %#v, want %#v", again, got)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"", "2023-02-29", "2024-13-01", "1500-01-01", "5000-01-01",
		"2024-01-01T25:00:00", "2024-01-01X10:00:00", "2024-1-1", "hello",
		"2024-01-01T10:00:00.", "2024-01-01T10:00",
	} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q) expected error", raw)
		}
	}
}

func TestICalFormat(t *testing.T) {
	t.Parallel()
	if got := Date(2024, 7, 4).ICal(); got != "20240704" {
		t.Fatalf("ICal() = %q, want 20240704", got)
	}
	if got := DateTime(2024, 7, 4, 8, 5, 9).ICal(); got != "20240704T080509" {
		t.Fatalf("ICal() = %q, want 20240704T080509", got)
	}
	if got := Null().String(); got != "" {
		t.Fatalf("null String() = %q, want empty", got)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()
	a := DateTime(2024, 1, 1, 10, 0, 0)
	b := DateTime(2024, 1, 1, 11, 0, 0)
	d := Date(2024, 1, 1)
	if !a.Less(b) || b.Less(a) {
		t.Fatalf("expected %v < %v", a, b)
	}
	if !b.Less(d) {
		t.Fatalf("all-day %v should sort after timed %v", d, b)
	}
	if !d.Less(Date(2024, 1, 2)) {
		t.Fatal("day order broken")
	}
	if !Date(4095, 12, 30).Less(Max) {
		t.Fatal("Max must exceed ordinary dates")
	}
	withMs := a
	withMs.Msec = 0
	if a.Compare(withMs) != 0 {
		t.Fatal("missing sub-second part should compare as zero")
	}
}

func TestCalendarHelpers(t *testing.T) {
	t.Parallel()
	leaps := map[int]bool{1900: false, 2000: true, 2023: false, 2024: true, 2100: false}
	for y, want := range leaps {
		if IsLeap(y) != want {
			t.Fatalf("IsLeap(%d) = %v, want %v", y, !want, want)
		}
	}
	if DaysInMonth(2024, 2) != 29 || DaysInMonth(2023, 2) != 28 || DaysInMonth(2023, 4) != 30 {
		t.Fatal("DaysInMonth mismatch")
	}
	wd := []struct {
		y, m, d int
		want    Weekday
	}{
		{2024, 1, 1, Monday},
		{2000, 2, 29, Tuesday},
		{1970, 1, 1, Thursday},
		{2024, 12, 29, Sunday},
	}
	for _, tt := range wd {
		if got := WeekdayOf(tt.y, tt.m, tt.d); got != tt.want {
			t.Fatalf("WeekdayOf(%d-%d-%d) = %v, want %v", tt.y, tt.m, tt.d, got, tt.want)
		}
		got := Date(tt.y, tt.m, tt.d).Time(time.UTC).Weekday()
		if int(got+6)%7+1 != int(tt.want) {
			t.Fatalf("time.Weekday disagrees for %d-%d-%d: %v", tt.y, tt.m, tt.d, got)
		}
	}
}

func TestEaster(t *testing.T) {
	t.Parallel()
	known := map[int]Instant{
		2000: Date(2000, 4, 23),
		2008: Date(2008, 3, 23),
		2019: Date(2019, 4, 21),
		2024: Date(2024, 3, 31),
		2025: Date(2025, 4, 20),
		2038: Date(2038, 4, 25),
	}
	for y, want := range known {
		if got := Easter(y); got != want {
			t.Fatalf("Easter(%d) = %v, want %v", y, got, want)
		}
	}
}

func TestFixup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   Instant
		want Instant
	}{
		{Date(2023, 4, 32), Date(2023, 5, 2)},
		{Date(2024, 3, 0), Date(2024, 2, 29)},
		{Date(2023, 12, 32), Date(2024, 1, 1)},
		{Date(2023, 6, 15), Date(2023, 6, 15)},
	}
	for _, tt := range tests {
		if got := tt.in.Fixup(); got != tt.want {
			t.Fatalf("Fixup(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddDiff(t *testing.T) {
	t.Parallel()
	a := DateTime(2024, 2, 28, 23, 30, 0)
	s := Span{Msec: 90 * 60 * 1000}
	got := a.Add(s)
	if want := DateTime(2024, 2, 29, 1, 0, 0); got != want {
		t.Fatalf("Add = %v, want %v", got, want)
	}
	if d := Diff(a, got); d.Duration() != 90*time.Minute {
		t.Fatalf("Diff = %v, want 90m", d.Duration())
	}
	if got := Date(2023, 12, 31).AddDays(1); got != Date(2024, 1, 1) {
		t.Fatalf("AddDays = %v", got)
	}
	if got := DateTime(2024, 3, 1, 0, 15, 0).Add(Span{Msec: -30 * 60 * 1000}); got != DateTime(2024, 2, 29, 23, 45, 0) {
		t.Fatalf("negative Add = %v", got)
	}
	if d := Diff(Date(2024, 1, 1), Date(2024, 1, 3)); d != (Span{Days: 2}) {
		t.Fatalf("Diff all-day = %#v", d)
	}
}

func TestISOWeek(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       Instant
		wy, week int
	}{
		{Date(2021, 1, 3), 2020, 53},
		{Date(2021, 1, 4), 2021, 1},
		{Date(2024, 12, 30), 2025, 1},
		{Date(2026, 6, 15), 2026, 25},
	}
	for _, tt := range tests {
		y, w := tt.in.ISOWeek()
		if y != tt.wy || w != tt.week {
			t.Fatalf("ISOWeek(%v) = %d/%d, want %d/%d", tt.in, y, w, tt.wy, tt.week)
		}
	}
	if got := ISOWeekStart(2021, 1); got != Date(2021, 1, 4) {
		t.Fatalf("ISOWeekStart = %v", got)
	}
	if ISOWeeks(2020) != 53 || ISOWeeks(2021) != 52 {
		t.Fatal("ISOWeeks mismatch")
	}
}

func TestRange(t *testing.T) {
	t.Parallel()
	r := Range{From: Date(2024, 1, 1), Till: Date(2024, 2, 1)}
	if !r.Contains(Date(2024, 1, 31)) || r.Contains(Date(2024, 2, 1)) {
		t.Fatal("Contains is not half-open")
	}
	p := Range{From: Date(2024, 1, 5), Till: Date(2024, 1, 5)}
	if !p.Overlaps(p) {
		t.Fatal("empty ranges at the same start must overlap")
	}
	if !(Range{From: Date(2023, 1, 1), Till: Date(2024, 1, 1)}).Before(r) {
		t.Fatal("Before mismatch")
	}
	whole := Range{From: DateTime(2024, 1, 5, 10, 0, 0), Till: DateTime(2024, 1, 5, 10, 0, 0)}
	exact := whole
	exact.From.Msec, exact.Till.Msec = 0, 0
	if !whole.Overlaps(exact) || !exact.Overlaps(whole) {
		t.Fatal("10:00:00 and 10:00:00.000 starts must overlap")
	}
	if whole.Before(exact) || exact.Before(whole) {
		t.Fatal("10:00:00 and 10:00:00.000 starts must not order")
	}
}
