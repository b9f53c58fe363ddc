// Package clock abstracts wall-clock time so the scheduler can be driven
// deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package the daemon depends on.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) *Timer
}

// Timer mirrors time.Timer.
type Timer struct {
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

func (t *Timer) Stop() bool { return t.stop() }

func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stop: t.Stop, reset: t.Reset}
}

// Fake is a manually advanced Clock. It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
	active   bool
}

func NewFake(initial time.Time) *Fake {
	f := &Fake{now: initial}
	f.changed = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) *Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1)}
	f.arm(w, d)
	return &Timer{
		C: w.ch,
		stop: func() bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			was := w.active
			w.active = false
			return was
		},
		reset: func(d time.Duration) bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			was := w.active
			f.arm(w, d)
			return was
		},
	}
}

// arm must be called with f.mu held.
func (f *Fake) arm(w *waiter, d time.Duration) {
	w.deadline = f.now.Add(d)
	if d <= 0 {
		w.active = false
		select {
		case w.ch <- f.now:
		default:
		}
		return
	}
	listed := false
	for _, x := range f.waiters {
		if x == w {
			listed = true
			break
		}
	}
	if !listed {
		f.waiters = append(f.waiters, w)
	}
	w.active = true
	f.changed.Broadcast()
}

// Advance moves time forward and fires every timer that came due, in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due, keep []*waiter
	for _, w := range f.waiters {
		switch {
		case !w.active:
		case !w.deadline.After(now):
			due = append(due, w)
		default:
			keep = append(keep, w)
		}
	}
	f.waiters = keep
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		w.active = false
		select {
		case w.ch <- now:
		default:
		}
	}
	f.mu.Unlock()
}

// Pending counts armed timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if w.active {
			n++
		}
	}
	return n
}

// WaitForTimers blocks until at least n timers are armed.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		c := 0
		for _, w := range f.waiters {
			if w.active {
				c++
			}
		}
		if c >= n {
			return
		}
		f.changed.Wait()
	}
}
