// Package clock abstracts time so debounce deadlines and heartbeats can be
// driven by a test without real timers.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a revocable scheduled call.
type Timer interface {
	// Stop prevents the call from firing. It returns false if the call has
	// already fired or was already stopped.
	Stop() bool
}

// Clock provides the current time and deferred calls.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a Clock that only moves when told to. Calls scheduled with
// AfterFunc run synchronously inside Advance or Set, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	clock *Manual
	id    uint64
	at    time.Time
	f     func()
}

// NewManual creates a Manual clock starting at now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now, timers: make(map[uint64]*manualTimer)}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock reaches Now()+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{clock: m, id: m.seq, at: m.now.Add(d), f: f}
	m.timers[t.id] = t
	return t
}

// Pending returns the number of scheduled calls that have not fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d and fires every call that became due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.Set(target)
}

// Set moves the clock to t and fires every call that became due. Moving
// backwards only changes Now.
func (m *Manual) Set(t time.Time) {
	for {
		m.mu.Lock()
		due := m.dueLocked(t)
		if due == nil {
			m.now = t
			m.mu.Unlock()
			return
		}
		delete(m.timers, due.id)
		if due.at.After(m.now) {
			m.now = due.at
		}
		m.mu.Unlock()

		// Run outside the lock; f may schedule or stop other timers.
		due.f()
	}
}

func (m *Manual) dueLocked(t time.Time) *manualTimer {
	var ready []*manualTimer
	for _, tm := range m.timers {
		if !tm.at.After(t) {
			ready = append(ready, tm)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].at.Equal(ready[j].at) {
			return ready[i].id < ready[j].id
		}
		return ready[i].at.Before(ready[j].at)
	})
	return ready[0]
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}
