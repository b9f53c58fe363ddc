package instant

// Range is the half-open interval [From, Till).
type Range struct {
	From Instant
	Till Instant
}

// Everything spans the whole supported calendar.
var Everything = Range{From: Date(MinYear, 1, 1), Till: Max}

// Contains reports whether x lies in [From, Till). A null From is unbounded
// below and a null Till unbounded above.
func (r Range) Contains(x Instant) bool {
	if !r.From.IsNull() && x.Less(r.From) {
		return false
	}
	if !r.Till.IsNull() && !x.Less(r.Till) {
		return false
	}
	return true
}

// Overlaps reports whether r and o share a point. Ranges starting at the
// same instant always overlap, even when empty.
func (r Range) Overlaps(o Range) bool {
	if r.From.Compare(o.From) == 0 {
		return true
	}
	return r.From.Less(o.Till) && o.From.Less(r.Till)
}

// Before reports whether r lies entirely before o.
func (r Range) Before(o Range) bool {
	return r.From.Compare(o.From) != 0 && r.Till.LessEq(o.From)
}

// Intersect narrows r by o. Null bounds are unbounded.
func (r Range) Intersect(o Range) Range {
	if !o.From.IsNull() && r.From.Less(o.From) {
		r.From = o.From
	}
	if !o.Till.IsNull() && (r.Till.IsNull() || o.Till.Less(r.Till)) {
		r.Till = o.Till
	}
	return r
}

func (r Range) String() string {
	return r.From.String() + ".." + r.Till.String()
}
