package instant

import "time"

// Reserved field values.
const (
	// AllDay in Hour marks an instant without time of day.
	AllDay = 0x1f
	// AllSec in Msec marks an instant without a sub-second part.
	AllSec = 0x3ff

	MinYear = 1583
	MaxYear = 4095
)

// Instant is a wall-clock value with optional time of day.
//
// The zero value is the null instant. It never denotes a calendar date
// because years below MinYear are rejected on input.
type Instant struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Msec   uint16
}

// Max is the effectively-infinite future instant.
var Max = Instant{Year: MaxYear, Month: 12, Day: 31, Hour: AllDay}

// Null returns the null instant.
func Null() Instant { return Instant{} }

// Date returns an all-day instant.
func Date(y, m, d int) Instant {
	return Instant{Year: uint16(y), Month: uint8(m), Day: uint8(d), Hour: AllDay}
}

// DateTime returns a timed instant without a sub-second part.
func DateTime(y, m, d, hh, mm, ss int) Instant {
	return Instant{
		Year: uint16(y), Month: uint8(m), Day: uint8(d),
		Hour: uint8(hh), Minute: uint8(mm), Second: uint8(ss),
		Msec: AllSec,
	}
}

func (i Instant) IsNull() bool   { return i == Instant{} }
func (i Instant) IsAllDay() bool { return i.Hour == AllDay }
func (i Instant) IsAllSec() bool { return i.IsAllDay() || i.Msec == AllSec }

// Compare returns -1, 0 or +1. Fields are compared in significance order,
// so an all-day instant sorts after every timed instant of its day.
func (i Instant) Compare(j Instant) int {
	switch {
	case i.Year != j.Year:
		return cmp(int(i.Year), int(j.Year))
	case i.Month != j.Month:
		return cmp(int(i.Month), int(j.Month))
	case i.Day != j.Day:
		return cmp(int(i.Day), int(j.Day))
	case i.Hour != j.Hour:
		return cmp(int(i.Hour), int(j.Hour))
	case i.Minute != j.Minute:
		return cmp(int(i.Minute), int(j.Minute))
	case i.Second != j.Second:
		return cmp(int(i.Second), int(j.Second))
	default:
		return cmp(int(i.msec()), int(j.msec()))
	}
}

func (i Instant) Less(j Instant) bool   { return i.Compare(j) < 0 }
func (i Instant) LessEq(j Instant) bool { return i.Compare(j) <= 0 }

// msec treats a missing sub-second part as zero for ordering purposes.
func (i Instant) msec() uint16 {
	if i.Msec == AllSec {
		return 0
	}
	return i.Msec
}

func cmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Valid reports whether i denotes an existing calendar date (and time)
// within the supported year span.
func (i Instant) Valid() bool {
	if i.Year < MinYear || i.Year > MaxYear {
		return false
	}
	if i.Month < 1 || i.Month > 12 {
		return false
	}
	if i.Day < 1 || int(i.Day) > DaysInMonth(int(i.Year), int(i.Month)) {
		return false
	}
	if i.IsAllDay() {
		return i.Minute == 0 && i.Second == 0 && i.Msec == 0
	}
	return i.Hour <= 23 && i.Minute <= 59 && i.Second <= 60 && (i.Msec <= 999 || i.Msec == AllSec)
}

// Fixup normalizes a day-of-month that over- or underflowed its month,
// e.g. April 32nd becomes May 2nd and March 0th the last of February.
func (i Instant) Fixup() Instant {
	d := FixupDate(int(i.Year), int(i.Month), int(i.Day))
	i.Year, i.Month, i.Day = d.Year, d.Month, d.Day
	return i
}

// FixupDate builds an all-day instant from a possibly out-of-range
// month or day, carrying into neighbouring months and years.
func FixupDate(y, m, d int) Instant {
	for m > 12 {
		m -= 12
		y++
	}
	for m < 1 {
		m += 12
		y--
	}
	for d > DaysInMonth(y, m) {
		d -= DaysInMonth(y, m)
		if m++; m > 12 {
			m = 1
			y++
		}
	}
	for d < 1 {
		if m--; m < 1 {
			m = 12
			y--
		}
		d += DaysInMonth(y, m)
	}
	return Date(y, m, d)
}

// Span is a signed distance between two instants.
type Span struct {
	Days int
	Msec int64
}

const msPerDay = 86400000

func (s Span) IsZero() bool { return s.Days == 0 && s.Msec == 0 }

// Duration converts s assuming 24-hour days.
func (s Span) Duration() time.Duration {
	return time.Duration(s.Days)*24*time.Hour + time.Duration(s.Msec)*time.Millisecond
}

// Diff returns the span from a to b, i.e. a.Add(Diff(a, b)) == b for
// instants of the same kind.
func Diff(a, b Instant) Span {
	if a.IsNull() || b.IsNull() {
		return Span{}
	}
	s := Span{Days: b.dayNum() - a.dayNum()}
	if !a.IsAllDay() || !b.IsAllDay() {
		s.Msec = b.dayMsec() - a.dayMsec()
	}
	return s
}

// Add shifts i by s. All-day instants only move by whole days.
func (i Instant) Add(s Span) Instant {
	if i.IsNull() {
		return i
	}
	days := s.Days
	if !i.IsAllDay() && s.Msec != 0 {
		ms := i.dayMsec() + s.Msec
		days += floorDiv(ms, msPerDay)
		ms = ms - int64(floorDiv(ms, msPerDay))*msPerDay
		allsec := i.Msec == AllSec && ms%1000 == 0
		i.Hour = uint8(ms / 3600000)
		i.Minute = uint8(ms / 60000 % 60)
		i.Second = uint8(ms / 1000 % 60)
		if allsec {
			i.Msec = AllSec
		} else {
			i.Msec = uint16(ms % 1000)
		}
	}
	if days != 0 {
		y, m, d := civil(i.dayNum() + days)
		i.Year, i.Month, i.Day = uint16(y), uint8(m), uint8(d)
	}
	return i
}

// AddDays shifts the date part only.
func (i Instant) AddDays(n int) Instant { return i.Add(Span{Days: n}) }

func (i Instant) dayNum() int { return dayNumber(int(i.Year), int(i.Month), int(i.Day)) }

func (i Instant) dayMsec() int64 {
	if i.IsAllDay() {
		return 0
	}
	return int64(i.Hour)*3600000 + int64(i.Minute)*60000 + int64(i.Second)*1000 + int64(i.msec())
}

func floorDiv(a, b int64) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return int(q)
}

// Time converts i into a time in loc. All-day instants map to midnight.
func (i Instant) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if i.IsAllDay() {
		return time.Date(int(i.Year), time.Month(i.Month), int(i.Day), 0, 0, 0, 0, loc)
	}
	return time.Date(int(i.Year), time.Month(i.Month), int(i.Day),
		int(i.Hour), int(i.Minute), int(i.Second), int(i.msec())*int(time.Millisecond), loc)
}

// FromTime converts t (in its own location) to a timed instant.
func FromTime(t time.Time) Instant {
	return Instant{
		Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day()),
		Hour: uint8(t.Hour()), Minute: uint8(t.Minute()), Second: uint8(t.Second()),
		Msec: uint16(t.Nanosecond() / int(time.Millisecond)),
	}
}

// WithTime returns i on the same date at hh:mm:ss, keeping the sub-second part.
func (i Instant) WithTime(hh, mm, ss int) Instant {
	if i.IsAllDay() {
		i.Msec = AllSec
	}
	i.Hour, i.Minute, i.Second = uint8(hh), uint8(mm), uint8(ss)
	return i
}

// DateOnly strips the time of day.
func (i Instant) DateOnly() Instant {
	return Instant{Year: i.Year, Month: i.Month, Day: i.Day, Hour: AllDay}
}
