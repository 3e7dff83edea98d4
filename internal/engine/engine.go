// Package engine drives one tour at a time through its steps.
//
// A run moves Idle → Advancing → ShowingStep(i) → Advancing → … and ends in
// Completed or Cancelled. Advancing covers the time the step's target is
// being resolved; ShowingStep means the step has been handed to the
// Renderer. Starting a tour while another is live completes the old one
// first, so at most one run is live at any time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/trailhead/internal/observability"
	"github.com/rahul/trailhead/internal/progress"
	"github.com/rahul/trailhead/internal/resolver"
	"github.com/rahul/trailhead/internal/tour"
)

// DefaultAutoAdvanceDelay is how long a navigating step past the first one
// stays readable before the tour moves to the destination page.
const DefaultAutoAdvanceDelay = 2 * time.Second

// ErrNotLive is returned by transitions on a run that already ended.
var ErrNotLive = errors.New("tour run is not live")

type State int

const (
	StateIdle State = iota
	StateAdvancing
	StateShowingStep
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvancing:
		return "advancing"
	case StateShowingStep:
		return "showing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Resolver waits for a step target. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, selector string) resolver.Result
}

// Controls lists the buttons a rendered step offers.
type Controls struct {
	Back        bool `json:"back"`
	Next        bool `json:"next"`
	Finish      bool `json:"finish"`
	Skip        bool `json:"skip"`
	AutoAdvance bool `json:"auto_advance"`
}

// View is everything a Renderer needs to draw one step.
type View struct {
	RunID     string         `json:"run_id"`
	Tour      string         `json:"tour"`
	Index     int            `json:"index"`
	Position  int            `json:"position"`
	Total     int            `json:"total"`
	Content   tour.Content   `json:"content"`
	Placement tour.Placement `json:"placement"`
	Anchored  bool           `json:"anchored"`
	Controls  Controls       `json:"controls"`
}

// Renderer draws step popovers on the host page.
type Renderer interface {
	Show(ctx context.Context, v View) error
	Hide(ctx context.Context) error
}

// Navigator moves a tour to another page. *bridge.Bridge satisfies it.
type Navigator interface {
	NavigateAndResume(ctx context.Context, destination string, continuation *tour.Definition) error
}

// Transition is reported to Options.OnTransition after every state change.
type Transition struct {
	RunID string
	Tour  string
	From  State
	To    State
	Index int
}

type Options struct {
	AutoAdvanceDelay time.Duration
	Logger           *observability.Logger
	// OnTransition runs outside the engine lock, in transition order. It
	// must not call back into the engine synchronously.
	OnTransition func(Transition)
}

type Engine struct {
	mu        sync.Mutex
	store     *progress.Store
	resolver  Resolver
	renderer  Renderer
	navigator Navigator
	logger    *observability.Logger
	delay     time.Duration
	current   *Run

	hookMu sync.Mutex
	onTr   func(Transition)
	queue  []Transition
}

func New(store *progress.Store, res Resolver, renderer Renderer, opts Options) *Engine {
	if opts.AutoAdvanceDelay <= 0 {
		opts.AutoAdvanceDelay = DefaultAutoAdvanceDelay
	}
	return &Engine{
		store:    store,
		resolver: res,
		renderer: renderer,
		logger:   opts.Logger,
		delay:    opts.AutoAdvanceDelay,
		onTr:     opts.OnTransition,
	}
}

// SetNavigator binds the cross-page navigation handler. Without one,
// navigating steps behave as plain steps.
func (e *Engine) SetNavigator(n Navigator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigator = n
}

// Current returns the live run, or nil when idle.
func (e *Engine) Current() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// State is the state of the live run, or StateIdle.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return StateIdle
	}
	return e.current.state
}

// Start begins def at step resumeFrom. An invalid definition is rejected
// before anything changes: a live run keeps running.
func (e *Engine) Start(ctx context.Context, def *tour.Definition, resumeFrom int) (*Run, error) {
	if err := def.Validate(); err != nil {
		log.Printf("Warning: refusing to start tour: %v", err)
		e.logger.LogTourRejected(nameOf(def), err)
		return nil, err
	}
	if resumeFrom < 0 || resumeFrom >= len(def.Steps) {
		err := fmt.Errorf("%w %q: resume step %d out of range [0,%d)", tour.ErrInvalidDefinition, def.Name, resumeFrom, len(def.Steps))
		log.Printf("Warning: refusing to start tour: %v", err)
		e.logger.LogTourRejected(def.Name, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{
		e:      e,
		id:     uuid.NewString(),
		def:    def,
		state:  StateIdle,
		live:   true,
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.logger.LogTourStart(run.id, def.Name, resumeFrom, def.TotalSteps())
	log.Printf("Starting tour: %s", def.Name)

	e.mu.Lock()
	if prev := e.current; prev != nil && prev.live {
		// A remainder of the same tour carries it on; it is not finished
		// yet. Anything else, a restart included, finishes prev.
		remainder := def.Offset > 0 && prev.def.Name == def.Name
		prev.finishLocked(StateCompleted, !remainder)
	}
	e.current = run
	e.store.UpdateProgress(def.Name, def.Offset+resumeFrom+1, def.TotalSteps())
	e.store.UpdateStatus(def.Name, false)
	run.showStepLocked(resumeFrom)
	e.mu.Unlock()
	e.dispatch()
	return run, nil
}

func (e *Engine) transitionLocked(r *Run, to State) {
	from := r.state
	r.state = to
	if e.onTr != nil {
		e.queue = append(e.queue, Transition{RunID: r.id, Tour: r.def.Name, From: from, To: to, Index: r.index})
	}
}

func (e *Engine) dispatch() {
	if e.onTr == nil {
		return
	}
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.mu.Lock()
	q := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, tr := range q {
		e.onTr(tr)
	}
}

func (e *Engine) hide(ctx context.Context) {
	if err := e.renderer.Hide(ctx); err != nil {
		log.Printf("Warning: failed to hide tour popover: %v", err)
	}
}

func nameOf(def *tour.Definition) string {
	if def == nil {
		return ""
	}
	return def.Name
}
