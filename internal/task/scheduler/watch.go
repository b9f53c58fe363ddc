package scheduler

import (
	"container/heap"
	"time"
)

// watchers is a min-heap of armed entries ordered by deadline.
type watchers []*Entry

func (w watchers) Len() int { return len(w) }

func (w watchers) Less(i, j int) bool {
	if w[i].deadline.Equal(w[j].deadline) {
		return w[i].Task.ID < w[j].Task.ID
	}
	return w[i].deadline.Before(w[j].deadline)
}

func (w watchers) Swap(i, j int) {
	w[i], w[j] = w[j], w[i]
	w[i].index = i
	w[j].index = j
}

func (w *watchers) Push(x any) {
	e := x.(*Entry)
	e.index = len(*w)
	*w = append(*w, e)
}

func (w *watchers) Pop() any {
	old := *w
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*w = old[:n-1]
	return e
}

func (w *watchers) arm(e *Entry, at time.Time) {
	e.deadline = at
	if e.index >= 0 {
		heap.Fix(w, e.index)
		return
	}
	heap.Push(w, e)
}

func (w *watchers) disarm(e *Entry) {
	if e.index >= 0 {
		heap.Remove(w, e.index)
	}
}

// due pops the earliest entry if its deadline is not after now.
func (w *watchers) due(now time.Time) *Entry {
	if len(*w) == 0 || (*w)[0].deadline.After(now) {
		return nil
	}
	return heap.Pop(w).(*Entry)
}

func (w watchers) next() (time.Time, bool) {
	if len(w) == 0 {
		return time.Time{}, false
	}
	return w[0].deadline, true
}
