package engine

import (
	"context"
	"log"
	"time"

	"github.com/rahul/trailhead/internal/tour"
)

// Run is one traversal of a tour definition. All fields are guarded by the
// owning engine's mutex.
type Run struct {
	e      *Engine
	id     string
	def    *tour.Definition
	index  int
	state  State
	live   bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// gen changes on every step entry; async work for an older entry is
	// dropped.
	gen        uint64
	stepCancel context.CancelFunc
	timer      *time.Timer
	handedOff  bool
	// anchored is whether the current step's target resolved.
	anchored bool
}

func (r *Run) ID() string                   { return r.id }
func (r *Run) Definition() *tour.Definition { return r.def }

// Done is closed when the run completes or is cancelled.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) State() State {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	return r.state
}

func (r *Run) Index() int {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	return r.index
}

func (r *Run) Live() bool {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	return r.live
}

// Next advances one step, completes on the last step, or hands a navigating
// step over to the navigator.
func (r *Run) Next() error {
	e := r.e
	e.mu.Lock()
	if !r.live {
		e.mu.Unlock()
		return ErrNotLive
	}
	if r.handedOff {
		e.mu.Unlock()
		return nil
	}
	if _, ok := r.def.Steps[r.index].(tour.NavigatingStep); ok && e.navigator != nil {
		gen := r.gen
		e.mu.Unlock()
		return r.handOff(gen)
	}
	if r.index == len(r.def.Steps)-1 {
		r.finishLocked(StateCompleted, true)
		e.mu.Unlock()
		e.dispatch()
		e.hide(context.WithoutCancel(r.ctx))
		return nil
	}
	r.showStepLocked(r.index + 1)
	e.mu.Unlock()
	e.dispatch()
	return nil
}

// Back returns to the previous step. It does nothing on the first step.
func (r *Run) Back() error {
	e := r.e
	e.mu.Lock()
	if !r.live {
		e.mu.Unlock()
		return ErrNotLive
	}
	if r.index == 0 || r.handedOff {
		e.mu.Unlock()
		return nil
	}
	r.showStepLocked(r.index - 1)
	e.mu.Unlock()
	e.dispatch()
	return nil
}

// Cancel dismisses the tour without marking it completed.
func (r *Run) Cancel() error {
	return r.end(StateCancelled)
}

// Complete finishes the tour and marks it completed.
func (r *Run) Complete() error {
	return r.end(StateCompleted)
}

func (r *Run) end(state State) error {
	e := r.e
	e.mu.Lock()
	if !r.live {
		e.mu.Unlock()
		return ErrNotLive
	}
	r.finishLocked(state, true)
	e.mu.Unlock()
	e.dispatch()
	e.hide(context.WithoutCancel(r.ctx))
	return nil
}

func (r *Run) finishLocked(state State, markCompleted bool) {
	e := r.e
	r.cancelStepLocked()
	r.live = false
	e.transitionLocked(r, state)
	if e.current == r {
		e.current = nil
	}
	if state == StateCompleted && markCompleted {
		e.store.UpdateStatus(r.def.Name, true)
	}
	r.cancel()
	close(r.done)

	e.logger.LogTourEnd(r.id, r.def.Name, state == StateCompleted, r.index)
	log.Printf("Tour %s %s", r.def.Name, state)
}

func (r *Run) cancelStepLocked() {
	if r.stepCancel != nil {
		r.stepCancel()
		r.stepCancel = nil
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// showStepLocked enters step i: progress is recorded right away, the
// target is resolved in the background and the step is rendered once it
// resolves or the resolver gives up.
func (r *Run) showStepLocked(i int) {
	e := r.e
	r.cancelStepLocked()
	r.index = i
	r.anchored = false
	r.gen++
	gen := r.gen
	e.transitionLocked(r, StateAdvancing)
	e.store.UpdateProgress(r.def.Name, r.def.Offset+i+1, r.def.TotalSteps())

	step := r.def.Steps[i]
	if _, ok := step.(tour.NavigatingStep); ok && e.navigator == nil {
		msg := "navigation step shown without a router binding; treating it as a plain step"
		log.Printf("Warning: tour %s step %d: %s", r.def.Name, i, msg)
		e.logger.LogConfigWarning(r.def.Name, msg)
	}

	stepCtx, cancel := context.WithCancel(r.ctx)
	r.stepCancel = cancel
	target := step.StepContent().Target

	go func() {
		res := e.resolver.Resolve(stepCtx, target)
		if res.Canceled {
			return
		}

		e.mu.Lock()
		if !r.live || r.gen != gen {
			e.mu.Unlock()
			return
		}
		r.anchored = res.Found
		view := r.viewLocked(res.Found)
		e.transitionLocked(r, StateShowingStep)
		if view.Controls.AutoAdvance {
			r.timer = time.AfterFunc(e.delay, func() {
				if err := r.handOff(gen); err != nil {
					log.Printf("Warning: auto-advance of tour %s failed: %v", r.def.Name, err)
				}
			})
		}
		e.mu.Unlock()
		e.dispatch()

		if err := e.renderer.Show(stepCtx, view); err != nil && stepCtx.Err() == nil {
			log.Printf("Warning: failed to render tour %s step %d: %v", r.def.Name, i, err)
		}
		e.logger.LogStep(r.id, r.def.Name, i, res.Found, res.TimedOut)
	}()
}

func (r *Run) viewLocked(anchored bool) View {
	e := r.e
	i := r.index
	content := r.def.Steps[i].StepContent()
	last := i == len(r.def.Steps)-1

	ctl := Controls{Skip: true, Back: i > 0}
	_, navigating := r.def.Steps[i].(tour.NavigatingStep)
	switch {
	case navigating && e.navigator != nil && i == 0:
		// The first step lets the user bail out before leaving the page.
		ctl.Next = true
	case navigating && e.navigator != nil:
		ctl.AutoAdvance = true
	case last:
		ctl.Finish = true
	default:
		ctl.Next = true
	}

	placement := content.Position()
	if !anchored {
		placement = tour.PlacementCenter
	}
	return View{
		RunID:     r.id,
		Tour:      r.def.Name,
		Index:     i,
		Position:  r.def.Offset + i + 1,
		Total:     r.def.TotalSteps(),
		Content:   content,
		Placement: placement,
		Anchored:  anchored,
		Controls:  ctl,
	}
}

// handOff delegates the navigating step entered at generation gen to the
// navigator. The run stays live until the destination page starts the
// continuation, which supersedes it.
func (r *Run) handOff(gen uint64) error {
	e := r.e
	e.mu.Lock()
	if !r.live || r.gen != gen || r.handedOff {
		e.mu.Unlock()
		return nil
	}
	nav, ok := r.def.Steps[r.index].(tour.NavigatingStep)
	navigator := e.navigator
	if !ok || navigator == nil {
		e.mu.Unlock()
		return nil
	}
	cont, ok := r.def.ContinuationAt(r.index)
	if !ok {
		e.mu.Unlock()
		log.Printf("Warning: tour %s step %d has nothing to continue with on %s", r.def.Name, r.index, nav.Destination)
		return nil
	}
	r.handedOff = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	// The continuation supersedes this run, possibly before the router
	// call returns; that must not abort the navigation.
	ctx := context.WithoutCancel(r.ctx)
	e.mu.Unlock()

	e.hide(ctx)
	if err := navigator.NavigateAndResume(ctx, nav.Destination, cont); err != nil {
		e.mu.Lock()
		stillHere := r.live && r.gen == gen
		if stillHere {
			r.handedOff = false
		}
		view := r.viewLocked(r.anchored)
		view.Controls.AutoAdvance = false
		view.Controls.Next = true
		e.mu.Unlock()
		if stillHere {
			if serr := e.renderer.Show(ctx, view); serr != nil {
				log.Printf("Warning: failed to restore tour %s step: %v", r.def.Name, serr)
			}
		}
		return err
	}
	return nil
}
