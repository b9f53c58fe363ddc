package stream

import "echse/internal/instant"

// Mux merges children by start time. Ties go to the lower child index.
type Mux struct {
	Bounds
	kids  []Stream
	heads []Event
	init  bool
}

func NewMux(kids ...Stream) *Mux {
	return &Mux{kids: kids, heads: make([]Event, len(kids))}
}

func (m *Mux) fill() {
	if m.init {
		return
	}
	for k, s := range m.kids {
		m.heads[k] = s.Next()
	}
	m.init = true
}

func (m *Mux) Next() Event {
	m.fill()
	for {
		best := -1
		for k, h := range m.heads {
			if h.IsNull() {
				continue
			}
			if best < 0 || h.From.Less(m.heads[best].From) {
				best = k
			}
		}
		if best < 0 {
			return Event{}
		}
		e := m.heads[best]
		m.heads[best] = m.kids[best].Next()
		skip, stop := m.Admit(e.From)
		if stop {
			for k := range m.heads {
				m.heads[k] = Event{}
			}
			return Event{}
		}
		if !skip {
			return e
		}
	}
}

func (m *Mux) Clone() Stream {
	c := &Mux{
		Bounds: m.Bounds,
		kids:   make([]Stream, len(m.kids)),
		heads:  append([]Event(nil), m.heads...),
		init:   m.init,
	}
	for k, s := range m.kids {
		c.kids[k] = s.Clone()
	}
	return c
}

func (m *Mux) Serialize(s Sink) {
	for _, k := range m.kids {
		k.Serialize(s)
	}
}

// SetValid narrows every child as well.
func (m *Mux) SetValid(r instant.Range) {
	m.Bounds.SetValid(r)
	for _, k := range m.kids {
		k.SetValid(k.Valid().Intersect(r))
	}
}
