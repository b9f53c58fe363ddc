package scheduler

import "time"

// Snapshot is a diagnostic view of the core.
type Snapshot struct {
	Timezone string
	Tasks    int
	Armed    int
	Retiring int
	Children int
	Next     time.Time

	// Pool accounting; totals never shrink.
	EntryPool int
	ChildPool int
	Capacity  int
}

func (c *Core) Snapshot() Snapshot {
	s := Snapshot{
		Timezone:  c.loc.String(),
		Tasks:     c.reg.Len(),
		Armed:     len(c.watch),
		Children:  len(c.kids),
		EntryPool: c.entries.Total(),
		ChildPool: c.children.Total(),
		Capacity:  c.reg.Capacity(),
	}
	c.Each(func(e *Entry) bool {
		if e.state == StateRetiring {
			s.Retiring++
		}
		return true
	})
	if next, ok := c.watch.next(); ok {
		s.Next = next
	}
	return s
}
