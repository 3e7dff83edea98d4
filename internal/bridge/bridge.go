// Package bridge carries a tour across a client-side route change.
//
// The page that leaves records a pending entry and asks the router to move;
// the destination consumes the entry from its route-change effect and
// starts the continuation.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/trailhead/internal/engine"
	"github.com/rahul/trailhead/internal/governance"
	"github.com/rahul/trailhead/internal/observability"
	"github.com/rahul/trailhead/internal/progress"
	"github.com/rahul/trailhead/internal/tour"
)

const (
	DefaultMountSettle = 150 * time.Millisecond
	DefaultPendingTTL  = 30 * time.Second
)

// ErrRouteDenied is returned when the route policy refuses a destination.
var ErrRouteDenied = errors.New("navigation denied by route policy")

// Router is the host application's client-side router.
type Router interface {
	CurrentPath(ctx context.Context) (string, error)
	Navigate(ctx context.Context, path string) error
}

// Starter starts the continuation. *engine.Engine satisfies it.
type Starter interface {
	Start(ctx context.Context, def *tour.Definition, resumeFrom int) (*engine.Run, error)
}

type Options struct {
	MountSettle time.Duration
	// PendingTTL bounds how long an unconsumed entry may wait for its
	// destination.
	PendingTTL time.Duration
	Policy     governance.PolicyEngine
	Logger     *observability.Logger
	Now        func() time.Time
}

type Bridge struct {
	store   *progress.Store
	router  Router
	starter Starter
	settle  time.Duration
	ttl     time.Duration
	policy  governance.PolicyEngine
	logger  *observability.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

func New(store *progress.Store, router Router, starter Starter, opts Options) *Bridge {
	if opts.MountSettle < 0 {
		opts.MountSettle = 0
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		store:   store,
		router:  router,
		starter: starter,
		settle:  opts.MountSettle,
		ttl:     opts.PendingTTL,
		policy:  opts.Policy,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// NavigateAndResume records continuation as pending for destination,
// replacing any earlier entry, and requests the route change. It does not
// wait for the destination to mount.
func (b *Bridge) NavigateAndResume(ctx context.Context, destination string, continuation *tour.Definition) error {
	if continuation == nil {
		return fmt.Errorf("%w: no continuation for %s", tour.ErrInvalidDefinition, destination)
	}
	if b.policy != nil {
		res, err := b.policy.Evaluate(ctx, governance.Request{Tour: continuation.Name, Path: destination})
		if err != nil {
			return fmt.Errorf("route policy: %w", err)
		}
		if res.Effect == governance.EffectDeny {
			log.Printf("Warning: tour %s may not navigate to %s: %s", continuation.Name, destination, res.Reason)
			return fmt.Errorf("%w: %s", ErrRouteDenied, res.Reason)
		}
	}

	b.store.SetPending(destination, continuation)
	b.logger.LogNavigation(observability.EventTypeNavPending, continuation.Name, destination)
	log.Printf("Navigating to %s for tour %s", destination, continuation.Name)

	if err := b.router.Navigate(ctx, destination); err != nil {
		b.store.TakePending(destination)
		return fmt.Errorf("failed to navigate to %s: %w", destination, err)
	}
	return nil
}

// OnRouteChange is the mount effect of every page: when a pending entry
// targets path it starts the continuation after the settle delay. It
// reports whether a resume was scheduled.
func (b *Bridge) OnRouteChange(ctx context.Context, path string) bool {
	p, ok := b.store.Pending()
	if !ok || p.Destination != path {
		return false
	}
	if b.expired(p) {
		if b.store.DropPending(p.CreatedAt) {
			log.Printf("Discarding stale pending tour %s for %s", nameOf(p.Definition), path)
		}
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if b.settle > 0 {
			t := time.NewTimer(b.settle)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}

		if cur, err := b.router.CurrentPath(ctx); err == nil && cur != path {
			// left before the page mounted; the entry waits for a later visit
			return
		}
		taken, ok := b.store.TakePending(path)
		if !ok || b.expired(taken) {
			return
		}

		log.Printf("Continuing tour %s on %s", nameOf(taken.Definition), path)
		b.logger.LogNavigation(observability.EventTypeNavResume, nameOf(taken.Definition), path)
		if _, err := b.starter.Start(ctx, taken.Definition, 0); err != nil {
			log.Printf("Warning: failed to resume tour on %s: %v", path, err)
		}
	}()
	return true
}

// ResumeCurrent runs the mount effect for whatever page is showing now.
func (b *Bridge) ResumeCurrent(ctx context.Context) bool {
	path, err := b.router.CurrentPath(ctx)
	if err != nil {
		log.Printf("Warning: failed to read current route: %v", err)
		return false
	}
	return b.OnRouteChange(ctx, path)
}

// Wait blocks until scheduled resumes have finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) expired(p progress.PendingNavigation) bool {
	return b.now().Sub(p.CreatedAt) > b.ttl
}

func nameOf(def *tour.Definition) string {
	if def == nil {
		return ""
	}
	return def.Name
}
