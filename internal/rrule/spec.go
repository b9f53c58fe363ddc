// Package rrule expands recurrence rules into ordered instants.
package rrule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"echse/internal/instant"
)

var (
	ErrSyntax = errors.New("rrule: invalid syntax")
	ErrNoFreq = errors.New("rrule: missing FREQ")
	ErrRange  = errors.New("rrule: value out of range")
)

type Freq uint8

const (
	FreqNone Freq = iota
	Yearly
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

var freqNames = [...]string{"", "YEARLY", "MONTHLY", "WEEKLY", "DAILY", "HOURLY", "MINUTELY", "SECONDLY"}

func (f Freq) String() string {
	if int(f) < len(freqNames) {
		return freqNames[f]
	}
	return "?"
}

// Unbounded is the Count of a rule without a COUNT part.
const Unbounded = -1

// DayOrd is a BYDAY element such as MO, 2TU or -1FR. N == 0 means every
// matching weekday in the period.
type DayOrd struct {
	N   int
	Day instant.Weekday
}

func (d DayOrd) String() string {
	if d.N == 0 {
		return d.Day.String()
	}
	return strconv.Itoa(d.N) + d.Day.String()
}

// Spec is one recurrence rule.
type Spec struct {
	Freq     Freq
	Interval int
	Count    int
	Until    instant.Instant

	ByMonth    []int
	ByWeekNo   []int
	ByYearDay  []int
	ByMonthDay []int
	ByEaster   []int
	ByDay      []DayOrd
	ByAdd      []int
	BySetPos   []int
	ByHour     []int
	ByMinute   []int
	BySecond   []int
}

// New returns an unbounded rule of the given frequency.
func New(f Freq) Spec {
	return Spec{Freq: f, Interval: 1, Count: Unbounded, Until: instant.Max}
}

func (s Spec) Bounded() bool { return s.Count >= 0 }

// Parse reads the value of an RRULE or EXRULE property.
func Parse(text string) (Spec, error) {
	s := New(FreqNone)
	for _, part := range strings.Split(strings.TrimSpace(text), ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Spec{}, fmt.Errorf("%w: %q", ErrSyntax, part)
		}
		var err error
		switch strings.ToUpper(k) {
		case "FREQ":
			s.Freq = FreqNone
			for f := Yearly; f <= Secondly; f++ {
				if strings.EqualFold(v, freqNames[f]) {
					s.Freq = f
				}
			}
			if s.Freq == FreqNone {
				err = fmt.Errorf("%w: FREQ=%s", ErrSyntax, v)
			}
		case "INTERVAL":
			s.Interval, err = strconv.Atoi(v)
			if err == nil && s.Interval < 1 {
				err = fmt.Errorf("%w: INTERVAL=%s", ErrRange, v)
			}
		case "COUNT":
			s.Count, err = strconv.Atoi(v)
			if err == nil && s.Count < 0 {
				err = fmt.Errorf("%w: COUNT=%s", ErrRange, v)
			}
		case "UNTIL":
			s.Until, err = instant.Parse(v)
		case "BYMONTH":
			s.ByMonth, err = ints(v, 1, 12, false)
		case "BYWEEKNO":
			s.ByWeekNo, err = ints(v, 1, 53, true)
		case "BYYEARDAY":
			s.ByYearDay, err = ints(v, 1, 366, true)
		case "BYMONTHDAY":
			s.ByMonthDay, err = ints(v, 1, 31, true)
		case "BYEASTER":
			s.ByEaster, err = ints(v, 0, 366, true)
		case "BYADD":
			s.ByAdd, err = ints(v, 0, 366, true)
		case "BYSETPOS", "BYPOS":
			s.BySetPos, err = ints(v, 1, 366, true)
		case "BYHOUR":
			s.ByHour, err = ints(v, 0, 23, false)
		case "BYMINUTE":
			s.ByMinute, err = ints(v, 0, 59, false)
		case "BYSECOND":
			s.BySecond, err = ints(v, 0, 60, false)
		case "BYDAY":
			s.ByDay, err = days(v)
		case "WKST":
			// weeks always start on Monday
		default:
			err = fmt.Errorf("%w: unknown part %s", ErrSyntax, k)
		}
		if err != nil {
			if errors.Is(err, ErrSyntax) || errors.Is(err, ErrRange) || errors.Is(err, instant.ErrSyntax) {
				return Spec{}, err
			}
			return Spec{}, fmt.Errorf("%w: %s: %v", ErrSyntax, part, err)
		}
	}
	if s.Freq == FreqNone {
		return Spec{}, ErrNoFreq
	}
	return s, nil
}

// ints parses a comma list; signed allows negative values of the same
// magnitude range, zero is only allowed when lo is zero.
func ints(v string, lo, hi int, signed bool) ([]int, error) {
	var out []int
	for _, f := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimPrefix(f, "+"))
		if err != nil {
			return nil, err
		}
		m := n
		if signed && m < 0 {
			m = -m
		}
		if m < lo || m > hi || (n < 0 && !signed) {
			return nil, fmt.Errorf("%w: %d", ErrRange, n)
		}
		out = append(out, n)
	}
	return out, nil
}

func days(v string) ([]DayOrd, error) {
	var out []DayOrd
	for _, f := range strings.Split(v, ",") {
		f = strings.ToUpper(strings.TrimSpace(f))
		if len(f) < 2 {
			return nil, fmt.Errorf("%w: BYDAY %q", ErrSyntax, f)
		}
		wd, ok := instant.ParseWeekday(f[len(f)-2:])
		if !ok {
			return nil, fmt.Errorf("%w: BYDAY %q", ErrSyntax, f)
		}
		d := DayOrd{Day: wd}
		if p := f[:len(f)-2]; p != "" {
			n, err := strconv.Atoi(strings.TrimPrefix(p, "+"))
			if err != nil || n == 0 || n > 53 || n < -53 {
				return nil, fmt.Errorf("%w: BYDAY %q", ErrRange, f)
			}
			d.N = n
		}
		out = append(out, d)
	}
	return out, nil
}

// String prints the rule in canonical part order.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(s.Freq.String())
	if s.Interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", s.Interval)
	}
	list(&b, "BYMONTH", s.ByMonth)
	list(&b, "BYWEEKNO", s.ByWeekNo)
	list(&b, "BYYEARDAY", s.ByYearDay)
	list(&b, "BYMONTHDAY", s.ByMonthDay)
	list(&b, "BYEASTER", s.ByEaster)
	if len(s.ByDay) > 0 {
		b.WriteString(";BYDAY=")
		for k, d := range s.ByDay {
			if k > 0 {
				b.WriteByte(',')
			}
			b.WriteString(d.String())
		}
	}
	list(&b, "BYADD", s.ByAdd)
	list(&b, "BYSETPOS", s.BySetPos)
	list(&b, "BYHOUR", s.ByHour)
	list(&b, "BYMINUTE", s.ByMinute)
	list(&b, "BYSECOND", s.BySecond)
	if s.Bounded() {
		fmt.Fprintf(&b, ";COUNT=%d", s.Count)
	}
	if !s.Until.IsNull() && s.Until != instant.Max {
		b.WriteString(";UNTIL=")
		b.WriteString(s.Until.ICal())
	}
	return b.String()
}

func list(b *strings.Builder, name string, v []int) {
	if len(v) == 0 {
		return
	}
	b.WriteByte(';')
	b.WriteString(name)
	b.WriteByte('=')
	for k, n := range v {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
}
