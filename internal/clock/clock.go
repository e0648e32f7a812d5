// Package clock supplies the current time to the batch engine so elapsed
// time and freshness decisions can be controlled in tests.
package clock

import (
	"sync"
	"time"
)

// Source returns the current time.
type Source interface {
	Now() time.Time
}

type system struct{}

func (system) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Source backed by the wall clock, in UTC.
func System() Source {
	return system{}
}

// Manual is a Source that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

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
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
