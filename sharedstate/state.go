// Package sharedstate holds the cross-goroutine state the IMU alarm
// loop and the main control loop both touch: the current RTC time and
// last-known position. A single mutex guards it; a separate atomic
// mirror, Count, lets either side read a coarse seconds-since-epoch
// value without taking that lock at all.
package sharedstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/s2"
)

// epoch is the RTC's boot value before any GPS fix has set the real
// time. Starting in 2020 keeps every timestamp positive.
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// State is the shared RTC + position state.
type State struct {
	mu            sync.Mutex
	clk           clock.Clock
	offset        time.Duration // clk.Now() + offset == the simulated RTC time
	positionTimeS uint32
	pos           s2.LatLng

	// Count mirrors Now() as a Unix-seconds value, updated on every
	// SetTime/UpdateCount call, and is safe to read without the mutex.
	Count atomic.Int64
}

// New constructs a State seeded at the 2020-01-01 epoch, driven by clk.
func New(clk clock.Clock) *State {
	if clk == nil {
		clk = clock.New()
	}
	s := &State{clk: clk}
	s.SetTime(epoch)
	return s
}

// Now returns the current simulated RTC time.
func (s *State) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Add(s.offset)
}

// SetTime sets the RTC to t (e.g. after a GPS fix resolves the clock).
func (s *State) SetTime(t time.Time) {
	s.mu.Lock()
	s.offset = t.Sub(s.clk.Now())
	s.mu.Unlock()
	s.Count.Store(t.Unix())
}

// SetPosition records the most recent known position and the time (in
// RTC seconds) it was acquired at.
func (s *State) SetPosition(positionTimeS uint32, pos s2.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionTimeS = positionTimeS
	s.pos = pos
}

// UpdateCount refreshes the atomic Count mirror from the current RTC
// time without mutating anything else. The alarm goroutine calls it
// every tick regardless of whether a GPS fix changed the RTC this
// cycle.
func (s *State) UpdateCount() {
	s.Count.Store(s.Now().Unix())
}

// Get returns a consistent snapshot of (now, positionTimeS, position).
func (s *State) Get() (time.Time, uint32, s2.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Add(s.offset), s.positionTimeS, s.pos
}
