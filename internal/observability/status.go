package observability

import (
	"sync"
	"time"
)

// Status is the last known state of the tour runner, fed by engine
// transitions and read by the status line.
type Status struct {
	mu         sync.RWMutex
	tour       string
	state      string
	step       int
	completed  int
	cancelled  int
	lastChange time.Time
}

// StatusSnapshot is a copy of Status at one instant.
type StatusSnapshot struct {
	Tour       string
	State      string
	Step       int // 1-based, 0 when no tour has run
	Completed  int
	Cancelled  int
	LastChange time.Time
}

func NewStatus() *Status {
	return &Status{state: "idle", lastChange: time.Now()}
}

// Set records that tour moved to state at step index.
func (s *Status) Set(tour, state string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tour = tour
	s.state = state
	s.step = index + 1
	s.lastChange = time.Now()
	switch state {
	case "completed":
		s.completed++
	case "cancelled":
		s.cancelled++
	}
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{
		Tour:       s.tour,
		State:      s.state,
		Step:       s.step,
		Completed:  s.completed,
		Cancelled:  s.cancelled,
		LastChange: s.lastChange,
	}
}
