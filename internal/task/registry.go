package task

import (
	"fmt"
	"hash/fnv"
)

const (
	maxProbe    = 16
	minCapacity = 64
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotUsed
	slotTomb
)

type slot[V any] struct {
	key   string
	val   V
	state slotState
}

// Registry maps task ids to values using open addressing with bounded
// linear probing. Removal leaves a tombstone; a full probe sequence
// doubles the table.
type Registry[V any] struct {
	slots []slot[V]
	n     int
	tombs int
}

func NewRegistry[V any](capacity int) *Registry[V] {
	c := minCapacity
	for c < capacity {
		c <<= 1
	}
	return &Registry[V]{slots: make([]slot[V], c)}
}

func hashKey(k string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k))
	return h.Sum64()
}

func (r *Registry[V]) Len() int      { return r.n }
func (r *Registry[V]) Capacity() int { return len(r.slots) }

func (r *Registry[V]) Get(id string) (V, bool) {
	mask := uint64(len(r.slots) - 1)
	h := hashKey(id)
	for p := uint64(0); p < maxProbe; p++ {
		s := &r.slots[(h+p)&mask]
		switch s.state {
		case slotEmpty:
			var zero V
			return zero, false
		case slotUsed:
			if s.key == id {
				return s.val, true
			}
		}
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value stored under id.
func (r *Registry[V]) Put(id string, v V) {
	if r.put(id, v) {
		return
	}
	r.grow()
	if !r.put(id, v) {
		panic(fmt.Sprintf("task: registry insert of %q failed after resize to %d", id, len(r.slots)))
	}
}

func (r *Registry[V]) put(id string, v V) bool {
	mask := uint64(len(r.slots) - 1)
	h := hashKey(id)
	free := -1
	for p := uint64(0); p < maxProbe; p++ {
		idx := int((h + p) & mask)
		s := &r.slots[idx]
		switch s.state {
		case slotUsed:
			if s.key == id {
				s.val = v
				return true
			}
			continue
		case slotTomb:
			if free < 0 {
				free = idx
			}
			continue
		}
		if free < 0 {
			free = idx
		}
		break
	}
	if free < 0 {
		return false
	}
	if r.slots[free].state == slotTomb {
		r.tombs--
	}
	r.slots[free] = slot[V]{key: id, val: v, state: slotUsed}
	r.n++
	return true
}

// grow doubles the table until every live entry fits again.
func (r *Registry[V]) grow() {
	old := r.slots
	size := len(old) * 2
	for {
		r.slots = make([]slot[V], size)
		r.n, r.tombs = 0, 0
		ok := true
		for i := range old {
			if old[i].state == slotUsed && !r.put(old[i].key, old[i].val) {
				ok = false
				break
			}
		}
		if ok {
			return
		}
		size *= 2
	}
}

// Remove tombstones the slot of id.
func (r *Registry[V]) Remove(id string) (V, bool) {
	mask := uint64(len(r.slots) - 1)
	h := hashKey(id)
	for p := uint64(0); p < maxProbe; p++ {
		s := &r.slots[(h+p)&mask]
		switch s.state {
		case slotEmpty:
			var zero V
			return zero, false
		case slotUsed:
			if s.key == id {
				v := s.val
				var zero V
				*s = slot[V]{val: zero, state: slotTomb}
				r.n--
				r.tombs++
				return v, true
			}
		}
	}
	var zero V
	return zero, false
}

// Each visits live entries until fn returns false.
func (r *Registry[V]) Each(fn func(id string, v V) bool) {
	for i := range r.slots {
		if r.slots[i].state == slotUsed {
			if !fn(r.slots[i].key, r.slots[i].val) {
				return
			}
		}
	}
}
