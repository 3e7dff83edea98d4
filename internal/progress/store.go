// Package progress is the process-wide record of tour completion, step
// position and the single pending cross-page resume.
package progress

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/rahul/trailhead/internal/tour"
)

// Record is the stored state of one tour name.
type Record struct {
	Completed   bool `json:"completed"`
	CurrentStep int  `json:"current_step"`
	TotalSteps  int  `json:"total_steps"`
}

// Progress is a Record's position plus the derived percentage.
type Progress struct {
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`
	Percentage  int `json:"percentage"`
}

// PendingNavigation is a tour waiting for the router to reach Destination.
type PendingNavigation struct {
	Destination string
	Definition  *tour.Definition
	CreatedAt   time.Time
}

// Sink durably records completion flags. Writes are fire-and-forget.
type Sink interface {
	SaveStatus(ctx context.Context, tourName string, completed bool) error
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	pending *PendingNavigation
	now     func() time.Time

	outbox chan statusWrite
	stop   chan struct{}
	wg     sync.WaitGroup

	// OnPersistError is called when the sink rejects a write.
	OnPersistError func(tourName string, err error)
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

type statusWrite struct {
	name      string
	completed bool
}

const outboxSize = 64

// WithSink forwards every UpdateStatus to sink from a single background
// worker, so writes reach the sink in the order they were made. Call Close
// to stop the worker.
func (s *Store) WithSink(sink Sink) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox != nil {
		return s
	}
	s.outbox = make(chan statusWrite, outboxSize)
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go s.drain(sink, s.outbox, stop)
	return s
}

// Close flushes queued writes and stops the sink worker.
func (s *Store) Close() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}

func (s *Store) drain(sink Sink, outbox <-chan statusWrite, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case w := <-outbox:
			s.persist(sink, w)
		case <-stop:
			for {
				select {
				case w := <-outbox:
					s.persist(sink, w)
				default:
					return
				}
			}
		}
	}
}

// WithClock sets the time source used to stamp pending entries.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Status reports whether the tour is completed.
func (s *Store) Status(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[name].Completed
}

// Progress returns the current position of the tour, zeroed when unknown.
func (s *Store) Progress(name string) Progress {
	s.mu.RLock()
	rec, ok := s.records[name]
	s.mu.RUnlock()
	if !ok {
		return Progress{}
	}
	return Progress{
		CurrentStep: rec.CurrentStep,
		TotalSteps:  rec.TotalSteps,
		Percentage:  Percentage(rec.CurrentStep, rec.TotalSteps),
	}
}

// Record returns the raw record and whether one exists.
func (s *Store) Record(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	return rec, ok
}

// Snapshot copies every record.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// UpdateStatus overwrites the completed flag.
func (s *Store) UpdateStatus(name string, completed bool) {
	s.mu.Lock()
	rec := s.records[name]
	rec.Completed = completed
	s.records[name] = rec
	if s.outbox != nil && s.stop != nil {
		select {
		case s.outbox <- statusWrite{name: name, completed: completed}:
		default:
			log.Printf("Warning: tour status outbox full, dropping %s=%v", name, completed)
		}
	}
	s.mu.Unlock()
}

func (s *Store) persist(sink Sink, w statusWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.SaveStatus(ctx, w.name, w.completed); err != nil {
		log.Printf("Warning: failed to persist tour status %s=%v: %v", w.name, w.completed, err)
		if s.OnPersistError != nil {
			s.OnPersistError(w.name, err)
		}
	}
}

// UpdateProgress overwrites the step position.
func (s *Store) UpdateProgress(name string, currentStep, totalSteps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.CurrentStep = currentStep
	rec.TotalSteps = totalSteps
	s.records[name] = rec
}

// ResetStatus re-arms a completed tour for a retake, keeping its position.
func (s *Store) ResetStatus(name string) {
	s.UpdateStatus(name, false)
}

// SetPending replaces any pending navigation.
func (s *Store) SetPending(destination string, def *tour.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &PendingNavigation{Destination: destination, Definition: def, CreatedAt: s.now()}
}

// Pending returns a copy of the pending entry, if any.
func (s *Store) Pending() (PendingNavigation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return PendingNavigation{}, false
	}
	return *s.pending, true
}

// ClearPending drops the pending entry.
func (s *Store) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// TakePending removes and returns the pending entry when its destination is
// path. Concurrent callers cannot both take the same entry.
func (s *Store) TakePending(path string) (PendingNavigation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.Destination != path {
		return PendingNavigation{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

// DropPending removes the pending entry only if it is the one stamped
// createdAt, leaving a newer entry alone.
func (s *Store) DropPending(createdAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || !s.pending.CreatedAt.Equal(createdAt) {
		return false
	}
	s.pending = nil
	return true
}

// Percentage is currentStep/totalSteps as a rounded percent, 0 when there
// are no steps.
func Percentage(currentStep, totalSteps int) int {
	if totalSteps <= 0 {
		return 0
	}
	return int(math.Round(float64(currentStep) / float64(totalSteps) * 100))
}
