package rrule

import (
	"sort"

	"echse/internal/instant"
	"echse/internal/stream"
)

// Rule is the event stream of one recurrence rule. EXDATE instants and
// EXRULE expansions are subtracted from every batch before it is used.
type Rule struct {
	stream.Bounds
	spec    Spec
	anchor  instant.Instant
	dur     instant.Span
	x       *Expander
	buf     []instant.Instant
	pos     int
	ended   bool
	exdates []instant.Instant
	exrules []Spec
	exc     *exceptions
	payload any
}

// NewStream builds the stream of spec anchored at anchor; every event
// lasts dur.
func NewStream(anchor instant.Instant, dur instant.Span, spec Spec, exdates []instant.Instant, exrules []Spec, payload any) *Rule {
	ex := append([]instant.Instant(nil), exdates...)
	sort.Slice(ex, func(i, j int) bool { return ex[i].Less(ex[j]) })
	r := &Rule{
		spec:    spec,
		anchor:  anchor,
		dur:     dur,
		x:       NewExpander(spec, anchor),
		exdates: ex,
		exrules: exrules,
		payload: payload,
	}
	r.exc = newExceptions(ex, exrules, anchor)
	return r
}

func (r *Rule) Spec() Spec { return r.spec }

func (r *Rule) Next() stream.Event {
	for !r.ended {
		if r.pos >= len(r.buf) {
			r.buf = r.x.Refill(r.buf[:0])
			r.pos = 0
			if len(r.buf) == 0 {
				r.ended = true
				break
			}
			r.exc.subtract(r.buf)
		}
		i := r.buf[r.pos]
		r.pos++
		if i.IsNull() {
			continue
		}
		skip, stop := r.Admit(i)
		if stop {
			r.ended = true
			break
		}
		if skip {
			continue
		}
		return stream.Event{From: i, Till: i.Add(r.dur), Payload: r.payload}
	}
	return stream.Event{}
}

func (r *Rule) Clone() stream.Stream {
	c := *r
	c.x = r.x.Clone()
	c.buf = append([]instant.Instant(nil), r.buf...)
	c.exc = r.exc.clone()
	return &c
}

// Serialize writes the rule as defined, with UNTIL narrowed to the
// validity range, followed by its exceptions.
func (r *Rule) Serialize(s stream.Sink) {
	spec := r.spec
	v := r.Valid()
	if !v.Till.IsNull() && v.Till != instant.Max && v.Till.Less(spec.Until) {
		if v.Till.IsAllDay() {
			spec.Until = v.Till.AddDays(-1)
		} else {
			spec.Until = v.Till.Add(instant.Span{Msec: -1000})
		}
	}
	s.WriteProp("RRULE", spec.String())
	for _, d := range r.exdates {
		if skip, _ := r.Admit(d); skip {
			continue
		}
		s.WriteProp("EXDATE", d.ICal())
	}
	for _, x := range r.exrules {
		s.WriteProp("EXRULE", x.String())
	}
}

// exceptions merges EXDATE instants and EXRULE expansions into one
// forward-only ordered source.
type exceptions struct {
	dates []instant.Instant
	di    int
	rules []*cursor
}

type cursor struct {
	x   *Expander
	buf []instant.Instant
	pos int
}

func (c *cursor) head() instant.Instant {
	if c.pos >= len(c.buf) {
		c.buf = c.x.Refill(c.buf[:0])
		c.pos = 0
		if len(c.buf) == 0 {
			return instant.Instant{}
		}
	}
	return c.buf[c.pos]
}

func newExceptions(dates []instant.Instant, rules []Spec, anchor instant.Instant) *exceptions {
	e := &exceptions{dates: dates}
	for _, s := range rules {
		e.rules = append(e.rules, &cursor{x: NewExpander(s, anchor)})
	}
	return e
}

func (e *exceptions) clone() *exceptions {
	c := &exceptions{dates: e.dates, di: e.di}
	for _, r := range e.rules {
		c.rules = append(c.rules, &cursor{x: r.x.Clone(), buf: append([]instant.Instant(nil), r.buf...), pos: r.pos})
	}
	return c
}

// peek returns the earliest pending exception and its source; src is -1
// for the date list.
func (e *exceptions) peek() (instant.Instant, int) {
	var best instant.Instant
	src := -2
	if e.di < len(e.dates) {
		best, src = e.dates[e.di], -1
	}
	for k, r := range e.rules {
		h := r.head()
		if h.IsNull() {
			continue
		}
		if src == -2 || h.Less(best) {
			best, src = h, k
		}
	}
	return best, src
}

func (e *exceptions) pop(src int) {
	if src == -1 {
		e.di++
		return
	}
	e.rules[src].pos++
}

// subtract nulls every instant of the sorted batch that matches an
// exception. An all-day exception removes every occurrence of its day.
func (e *exceptions) subtract(batch []instant.Instant) {
	if len(e.dates) == 0 && len(e.rules) == 0 {
		return
	}
	for k, c := range batch {
		for {
			x, src := e.peek()
			if x.IsNull() {
				return
			}
			kc, kx := c, x
			if x.IsAllDay() && !c.IsAllDay() {
				kc = c.DateOnly()
			} else if c.IsAllDay() && !x.IsAllDay() {
				kx = x.DateOnly()
			}
			n := kx.Compare(kc)
			if n < 0 {
				e.pop(src)
				continue
			}
			if n == 0 {
				batch[k] = instant.Instant{}
			}
			break
		}
	}
}
