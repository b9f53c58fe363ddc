package stream

import (
	"sort"

	"echse/internal/instant"
)

// Array replays a fixed set of instants, each lasting dur.
type Array struct {
	Bounds
	ins []instant.Instant
	dur instant.Span
	pos int
	pl  any
}

// NewArray sorts and de-duplicates ins. Null instants are dropped.
func NewArray(ins []instant.Instant, dur instant.Span, payload any) *Array {
	s := make([]instant.Instant, 0, len(ins))
	for _, i := range ins {
		if !i.IsNull() {
			s = append(s, i)
		}
	}
	sort.Slice(s, func(a, b int) bool { return s[a].Less(s[b]) })
	out := s[:0]
	for k, i := range s {
		if k > 0 && i == out[len(out)-1] {
			continue
		}
		out = append(out, i)
	}
	return &Array{ins: out, dur: dur, pl: payload}
}

func (a *Array) Len() int { return len(a.ins) }

func (a *Array) Next() Event {
	for a.pos < len(a.ins) {
		i := a.ins[a.pos]
		skip, stop := a.Admit(i)
		if stop {
			a.pos = len(a.ins)
			break
		}
		a.pos++
		if skip {
			continue
		}
		return Event{From: i, Till: i.Add(a.dur), Payload: a.pl}
	}
	return Event{}
}

func (a *Array) Clone() Stream {
	c := *a
	return &c
}

// Serialize writes every instant within the validity range as RDATE,
// regardless of the cursor.
func (a *Array) Serialize(s Sink) {
	for _, i := range a.ins {
		skip, stop := a.Admit(i)
		if stop {
			break
		}
		if !skip {
			s.WriteProp("RDATE", i.ICal())
		}
	}
}
