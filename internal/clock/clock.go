// Package clock abstracts time so the OTP state machine and token codec can be
// driven by a fixed clock in tests.
package clock

import (
	"sync"
	"time"
)

// Clocker reports the current time.
type Clocker interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// New returns the production clock.
func New() System {
	return System{}
}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set pins the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
