package stream

import "echse/internal/instant"

// Filter drops base events that overlap an exception event. Both inputs
// must be time-ordered; the exception cursor only moves forward.
type Filter struct {
	Bounds
	base Stream
	exc  Stream
	cur  Event
	init bool
}

func NewFilter(base, exc Stream) *Filter {
	return &Filter{base: base, exc: exc}
}

func (f *Filter) Next() Event {
	if !f.init {
		f.cur = f.exc.Next()
		f.init = true
	}
	for {
		e := f.base.Next()
		if e.IsNull() {
			return e
		}
		skip, stop := f.Admit(e.From)
		if stop {
			return Event{}
		}
		if skip {
			continue
		}
		for !f.cur.IsNull() && f.cur.Range().Before(e.Range()) {
			f.cur = f.exc.Next()
		}
		if !f.cur.IsNull() && f.cur.Range().Overlaps(e.Range()) {
			continue
		}
		return e
	}
}

func (f *Filter) Clone() Stream {
	return &Filter{
		Bounds: f.Bounds,
		base:   f.base.Clone(),
		exc:    f.exc.Clone(),
		cur:    f.cur,
		init:   f.init,
	}
}

func (f *Filter) Serialize(s Sink) {
	f.base.Serialize(s)
	f.exc.Serialize(Exceptions(s))
}

func (f *Filter) SetValid(r instant.Range) {
	f.Bounds.SetValid(r)
	f.base.SetValid(f.base.Valid().Intersect(r))
	f.exc.SetValid(f.exc.Valid().Intersect(r))
}
