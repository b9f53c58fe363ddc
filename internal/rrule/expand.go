package rrule

import (
	"sort"

	"echse/internal/instant"
)

// BatchSize bounds the number of instants produced per refill.
const BatchSize = 64

// maxEmpty caps consecutive periods without candidates before a rule
// that can never match again is declared exhausted.
const maxEmpty = 4096

// Expander walks the periods of one rule and hands out sorted batches.
// Count and the period cursor are consumed as batches are produced.
type Expander struct {
	spec    Spec
	anchor  instant.Instant
	period  int
	pending []instant.Instant
	done    bool
	single  bool
}

// NewExpander prepares s for expansion starting at anchor. The anchor
// supplies every unconstrained field.
func NewExpander(s Spec, anchor instant.Instant) *Expander {
	if s.Interval < 1 {
		s.Interval = 1
	}
	if s.Until.IsNull() {
		s.Until = instant.Max
	}
	if s.Freq >= Hourly && anchor.IsAllDay() {
		anchor = anchor.WithTime(0, 0, 0)
	}
	x := &Expander{spec: s, anchor: anchor}
	x.single = s.Freq == Yearly &&
		len(s.ByMonth) <= 1 && len(s.ByMonthDay) <= 1 &&
		len(s.ByDay) == 0 && len(s.ByYearDay) == 0 && len(s.ByWeekNo) == 0 &&
		len(s.ByEaster) == 0 && len(s.ByAdd) == 0 && len(s.BySetPos) == 0 &&
		len(s.ByHour) <= 1 && len(s.ByMinute) <= 1 && len(s.BySecond) <= 1
	if s.Freq == FreqNone || anchor.IsNull() || (s.Bounded() && s.Count == 0) {
		x.done = true
	}
	return x
}

func (x *Expander) Clone() *Expander {
	c := *x
	c.pending = append([]instant.Instant(nil), x.pending...)
	return &c
}

// Done reports whether the rule is exhausted.
func (x *Expander) Done() bool { return x.done && len(x.pending) == 0 }

// Remaining returns the count left, or Unbounded.
func (x *Expander) Remaining() int { return x.spec.Count }

// Refill appends the next batch of at most BatchSize sorted instants to
// buf and returns it. An empty result means the rule is exhausted.
func (x *Expander) Refill(buf []instant.Instant) []instant.Instant {
	start := len(buf)
	empty := 0
	for len(buf)-start < BatchSize {
		if len(x.pending) == 0 {
			if x.done {
				break
			}
			x.pending = x.nextPeriod()
			if len(x.pending) == 0 {
				if empty++; empty >= maxEmpty {
					x.done = true
				}
				continue
			}
			empty = 0
		}
		if x.spec.Bounded() {
			if x.spec.Count == 0 {
				x.pending, x.done = nil, true
				break
			}
			x.spec.Count--
		}
		buf = append(buf, x.pending[0])
		x.pending = x.pending[1:]
	}
	if len(buf)-start < BatchSize && x.spec.Bounded() {
		x.spec.Count = 0
		x.done = true
	}
	return buf
}

// nextPeriod returns the admissible candidates of the next period in
// chronological order and advances the cursor.
func (x *Expander) nextPeriod() []instant.Instant {
	k := x.period
	x.period++

	var c []instant.Instant
	switch x.spec.Freq {
	case Yearly:
		y := int(x.anchor.Year) + k*x.spec.Interval
		if y > instant.MaxYear {
			x.done = true
			return nil
		}
		if x.single {
			c = x.singleYear(y)
		} else {
			c = x.times(x.yearDates(y))
		}
	case Monthly:
		m0 := int(x.anchor.Year)*12 + int(x.anchor.Month) - 1 + k*x.spec.Interval
		y, m := m0/12, m0%12+1
		if y > instant.MaxYear {
			x.done = true
			return nil
		}
		c = x.times(x.monthDates(y, m))
	case Weekly:
		a := x.anchor.DateOnly()
		mon := a.AddDays(-int(a.Weekday()-instant.Monday) + 7*k*x.spec.Interval)
		if int(mon.Year) > instant.MaxYear {
			x.done = true
			return nil
		}
		c = x.times(x.weekDates(mon))
	case Daily:
		d := x.anchor.DateOnly().AddDays(k * x.spec.Interval)
		if int(d.Year) > instant.MaxYear {
			x.done = true
			return nil
		}
		if x.dateOK(d) {
			c = x.times(x.shift([]instant.Instant{d}))
		}
	case Hourly, Minutely, Secondly:
		c = x.subDaily(k)
	}
	return x.finish(c)
}

// finish sorts, de-duplicates, applies BYSETPOS and the anchor/until
// bounds. Reaching past until marks the rule done.
func (x *Expander) finish(c []instant.Instant) []instant.Instant {
	if len(c) == 0 {
		if x.periodStart().Compare(x.spec.Until) > 0 {
			x.done = true
		}
		return nil
	}
	sort.Slice(c, func(i, j int) bool { return c[i].Less(c[j]) })
	u := c[:1]
	for _, i := range c[1:] {
		if i != u[len(u)-1] {
			u = append(u, i)
		}
	}
	c = u
	if len(x.spec.BySetPos) > 0 {
		var sel []instant.Instant
		for _, p := range x.spec.BySetPos {
			idx := p - 1
			if p < 0 {
				idx = len(c) + p
			}
			if idx >= 0 && idx < len(c) {
				sel = append(sel, c[idx])
			}
		}
		sort.Slice(sel, func(i, j int) bool { return sel[i].Less(sel[j]) })
		c = sel
	}
	out := c[:0]
	for _, i := range c {
		if i.Less(x.anchor) {
			continue
		}
		if int(i.Year) > instant.MaxYear || x.spec.Until.Less(i) {
			x.done = true
			break
		}
		out = append(out, i)
	}
	return out
}

// periodStart is the first instant of the period just expanded.
func (x *Expander) periodStart() instant.Instant {
	k := x.period - 1
	a := x.anchor
	switch x.spec.Freq {
	case Yearly:
		return instant.Date(int(a.Year)+k*x.spec.Interval, 1, 1)
	case Monthly:
		m0 := int(a.Year)*12 + int(a.Month) - 1 + k*x.spec.Interval
		return instant.Date(m0/12, m0%12+1, 1)
	case Weekly:
		d := a.DateOnly()
		return d.AddDays(-int(d.Weekday()-instant.Monday) + 7*k*x.spec.Interval)
	case Daily:
		return a.DateOnly().AddDays(k * x.spec.Interval)
	default:
		return x.subDailyAt(k)
	}
}

// ResolveDay maps a possibly negative day-of-month onto month m of year
// y. Both signs resolve against the common-year length of m; February
// then admits 29 and -29 (the 1st) in leap years only.
func ResolveDay(y, m, d int) (int, bool) {
	n := instant.DaysInMonth(2001, m)
	switch {
	case d > 0 && d <= n:
		return d, true
	case d < 0 && n+1+d > 0:
		return n + 1 + d, true
	case m == 2 && instant.IsLeap(y) && d == 29:
		return 29, true
	case m == 2 && instant.IsLeap(y) && d == -29:
		return 1, true
	}
	return 0, false
}

func (x *Expander) singleYear(y int) []instant.Instant {
	m := int(x.anchor.Month)
	if len(x.spec.ByMonth) == 1 {
		m = x.spec.ByMonth[0]
	}
	d := int(x.anchor.Day)
	if len(x.spec.ByMonthDay) == 1 {
		d = x.spec.ByMonthDay[0]
	}
	dd, ok := ResolveDay(y, m, d)
	if !ok {
		return nil
	}
	return x.times([]instant.Instant{instant.Date(y, m, dd)})
}

func (x *Expander) yearDates(y int) []instant.Instant {
	s := &x.spec
	var out []instant.Instant
	switch {
	case len(s.ByEaster) > 0:
		e := instant.Easter(y)
		for _, off := range s.ByEaster {
			d := e.AddDays(off)
			if x.monthOK(d) {
				out = append(out, d)
			}
		}
	case len(s.ByYearDay) > 0:
		n := instant.DaysInYear(y)
		for _, yd := range s.ByYearDay {
			if yd < 0 {
				yd = n + 1 + yd
			}
			if yd < 1 || yd > n {
				continue
			}
			d := instant.Date(y, 1, 1).AddDays(yd - 1)
			if x.monthOK(d) && x.mdayOK(d) && x.wdayOK(d) {
				out = append(out, d)
			}
		}
	case len(s.ByWeekNo) > 0:
		nw := instant.ISOWeeks(y)
		for _, wn := range s.ByWeekNo {
			if wn < 0 {
				wn = nw + 1 + wn
			}
			if wn < 1 || wn > nw {
				continue
			}
			mon := instant.ISOWeekStart(y, wn)
			for _, wd := range x.weekdays() {
				d := mon.AddDays(int(wd - instant.Monday))
				if int(d.Year) == y && x.monthOK(d) {
					out = append(out, d)
				}
			}
		}
	case len(s.ByDay) > 0 && len(s.ByMonthDay) == 0:
		if len(s.ByMonth) == 0 {
			out = ordinals(out, instant.Date(y, 1, 1), instant.DaysInYear(y), s.ByDay)
		} else {
			for _, m := range s.ByMonth {
				out = ordinals(out, instant.Date(y, m, 1), instant.DaysInMonth(y, m), s.ByDay)
			}
		}
	default:
		months := s.ByMonth
		if len(months) == 0 {
			months = []int{int(x.anchor.Month)}
		}
		mdays := s.ByMonthDay
		if len(mdays) == 0 {
			mdays = []int{int(x.anchor.Day)}
		}
		for _, m := range months {
			for _, md := range mdays {
				dd, ok := ResolveDay(y, m, md)
				if !ok {
					continue
				}
				d := instant.Date(y, m, dd)
				if x.wdayOK(d) {
					out = append(out, d)
				}
			}
		}
	}
	return x.shift(out)
}

func (x *Expander) monthDates(y, m int) []instant.Instant {
	s := &x.spec
	if len(s.ByMonth) > 0 && !contains(s.ByMonth, m) {
		return nil
	}
	var out []instant.Instant
	if len(s.ByDay) > 0 && len(s.ByMonthDay) == 0 {
		out = ordinals(out, instant.Date(y, m, 1), instant.DaysInMonth(y, m), s.ByDay)
	} else {
		mdays := s.ByMonthDay
		if len(mdays) == 0 {
			mdays = []int{int(x.anchor.Day)}
		}
		for _, md := range mdays {
			if dd, ok := ResolveDay(y, m, md); ok {
				d := instant.Date(y, m, dd)
				if x.wdayOK(d) {
					out = append(out, d)
				}
			}
		}
	}
	return x.shift(out)
}

func (x *Expander) weekDates(mon instant.Instant) []instant.Instant {
	var out []instant.Instant
	for _, wd := range x.weekdays() {
		d := mon.AddDays(int(wd - instant.Monday))
		if x.monthOK(d) {
			out = append(out, d)
		}
	}
	return x.shift(out)
}

// ordinals expands BYDAY over the n days starting at first. Ordinals
// count occurrences of the weekday inside that span.
func ordinals(out []instant.Instant, first instant.Instant, n int, by []DayOrd) []instant.Instant {
	fw := first.Weekday()
	for _, bd := range by {
		off := (int(bd.Day) - int(fw) + 7) % 7
		switch {
		case bd.N == 0:
			for o := off; o < n; o += 7 {
				out = append(out, first.AddDays(o))
			}
		case bd.N > 0:
			if o := off + (bd.N-1)*7; o < n {
				out = append(out, first.AddDays(o))
			}
		default:
			last := off + (n-1-off)/7*7
			if o := last + (bd.N+1)*7; o >= 0 {
				out = append(out, first.AddDays(o))
			}
		}
	}
	return out
}

// subDaily handles HOURLY, MINUTELY and SECONDLY rules. Periods whose
// date fails a date filter are skipped up to the next midnight.
func (x *Expander) subDaily(k int) []instant.Instant {
	t := x.subDailyAt(k)
	if int(t.Year) > instant.MaxYear {
		x.done = true
		return nil
	}
	if !x.dateOK(t.DateOnly()) {
		x.skipTo(t, 86400000)
		return nil
	}
	s := &x.spec
	if len(s.ByHour) > 0 && !contains(s.ByHour, int(t.Hour)) {
		x.skipTo(t, 3600000)
		return nil
	}
	var mins, secs []int
	switch s.Freq {
	case Hourly:
		mins = orDefault(s.ByMinute, int(x.anchor.Minute))
		secs = orDefault(s.BySecond, int(x.anchor.Second))
	case Minutely:
		if len(s.ByMinute) > 0 && !contains(s.ByMinute, int(t.Minute)) {
			return nil
		}
		mins = []int{int(t.Minute)}
		secs = orDefault(s.BySecond, int(x.anchor.Second))
	default:
		if len(s.ByMinute) > 0 && !contains(s.ByMinute, int(t.Minute)) {
			x.skipTo(t, 60000)
			return nil
		}
		if len(s.BySecond) > 0 && !contains(s.BySecond, int(t.Second)) {
			return nil
		}
		return []instant.Instant{t}
	}
	var out []instant.Instant
	for _, mm := range mins {
		for _, ss := range secs {
			i := t
			i.Minute, i.Second = uint8(mm), uint8(ss)
			out = append(out, i)
		}
	}
	return out
}

// skipTo moves the period cursor to the first period at or after the
// next multiple of unit (a day, an hour or a minute) following t.
func (x *Expander) skipTo(t instant.Instant, unit int64) {
	step := x.step()
	into := (int64(t.Hour)*3600000 + int64(t.Minute)*60000 + int64(t.Second)*1000) % unit
	left := unit - into
	if skip := int((left+step-1)/step) - 1; skip > 0 {
		x.period += skip
	}
}

func (x *Expander) step() int64 {
	unit := int64(1000)
	switch x.spec.Freq {
	case Hourly:
		unit = 3600000
	case Minutely:
		unit = 60000
	}
	return unit * int64(x.spec.Interval)
}

func (x *Expander) subDailyAt(k int) instant.Instant {
	return x.anchor.Add(instant.Span{Msec: int64(k) * x.step()})
}

// times applies the time-of-day expansion to a set of dates.
func (x *Expander) times(dates []instant.Instant) []instant.Instant {
	if x.anchor.IsAllDay() || len(dates) == 0 {
		return dates
	}
	hs := orDefault(x.spec.ByHour, int(x.anchor.Hour))
	ms := orDefault(x.spec.ByMinute, int(x.anchor.Minute))
	ss := orDefault(x.spec.BySecond, int(x.anchor.Second))
	out := make([]instant.Instant, 0, len(dates)*len(hs)*len(ms)*len(ss))
	for _, d := range dates {
		for _, h := range hs {
			for _, m := range ms {
				for _, s := range ss {
					i := d.WithTime(h, m, s)
					i.Msec = x.anchor.Msec
					out = append(out, i)
				}
			}
		}
	}
	return out
}

func (x *Expander) shift(dates []instant.Instant) []instant.Instant {
	if len(x.spec.ByAdd) == 0 {
		return dates
	}
	out := make([]instant.Instant, 0, len(dates)*len(x.spec.ByAdd))
	for _, d := range dates {
		for _, a := range x.spec.ByAdd {
			out = append(out, d.AddDays(a))
		}
	}
	return out
}

func (x *Expander) weekdays() []instant.Weekday {
	if len(x.spec.ByDay) == 0 {
		return []instant.Weekday{x.anchor.Weekday()}
	}
	out := make([]instant.Weekday, 0, len(x.spec.ByDay))
	for _, d := range x.spec.ByDay {
		out = append(out, d.Day)
	}
	return out
}

// dateOK applies the date filters used by DAILY and finer rules.
func (x *Expander) dateOK(d instant.Instant) bool {
	if !x.monthOK(d) || !x.mdayOK(d) || !x.wdayOK(d) {
		return false
	}
	if len(x.spec.ByYearDay) > 0 {
		n := instant.DaysInYear(int(d.Year))
		yd := d.YearDay()
		ok := false
		for _, v := range x.spec.ByYearDay {
			if v == yd || n+1+v == yd {
				ok = true
				break
			}
		}
		return ok
	}
	return true
}

func (x *Expander) monthOK(d instant.Instant) bool {
	return len(x.spec.ByMonth) == 0 || contains(x.spec.ByMonth, int(d.Month))
}

func (x *Expander) mdayOK(d instant.Instant) bool {
	if len(x.spec.ByMonthDay) == 0 {
		return true
	}
	for _, md := range x.spec.ByMonthDay {
		if dd, ok := ResolveDay(int(d.Year), int(d.Month), md); ok && dd == int(d.Day) {
			return true
		}
	}
	return false
}

func (x *Expander) wdayOK(d instant.Instant) bool {
	if len(x.spec.ByDay) == 0 {
		return true
	}
	wd := d.Weekday()
	for _, bd := range x.spec.ByDay {
		if bd.Day == wd {
			return true
		}
	}
	return false
}

func contains(v []int, n int) bool {
	for _, x := range v {
		if x == n {
			return true
		}
	}
	return false
}

func orDefault(v []int, def int) []int {
	if len(v) == 0 {
		return []int{def}
	}
	return v
}
