// Package resolver waits for a tour step's target element to exist before
// the step is rendered.
package resolver

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultSettle       = 400 * time.Millisecond
)

// Page is the live document a selector is probed against.
type Page interface {
	Exists(ctx context.Context, selector string) (bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
}

// Result describes how a resolution ended. Exactly one of the flags is set.
type Result struct {
	Selector string
	Found    bool
	Skipped  bool // no selector, nothing to wait for
	TimedOut bool
	Canceled bool
	Elapsed  time.Duration
}

type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Settle       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	return o
}

type Resolver struct {
	page Page
	opts Options
}

func New(page Page, opts Options) *Resolver {
	return &Resolver{page: page, opts: opts.withDefaults()}
}

// Resolve polls for selector until it exists, the timeout elapses or ctx is
// canceled. It never fails: a missing element yields TimedOut and the caller
// renders the step unanchored.
func (r *Resolver) Resolve(ctx context.Context, selector string) Result {
	start := time.Now()
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Result{Skipped: true}
	}

	res := Result{Selector: selector}
	deadline := time.NewTimer(r.opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		if r.probe(ctx, selector) {
			break
		}
		select {
		case <-ctx.Done():
			res.Canceled = true
			res.Elapsed = time.Since(start)
			return res
		case <-deadline.C:
			log.Printf("Element %s not found after %v, proceeding anyway", selector, r.opts.Timeout)
			res.TimedOut = true
			res.Elapsed = time.Since(start)
			return res
		case <-ticker.C:
		}
	}

	if err := r.page.ScrollIntoView(ctx, selector); err != nil {
		log.Printf("Warning: failed to scroll %s into view: %v", selector, err)
	}

	if r.opts.Settle > 0 {
		settle := time.NewTimer(r.opts.Settle)
		defer settle.Stop()
		select {
		case <-ctx.Done():
			res.Canceled = true
			res.Elapsed = time.Since(start)
			return res
		case <-settle.C:
		}
	}

	res.Found = true
	res.Elapsed = time.Since(start)
	return res
}

func (r *Resolver) probe(ctx context.Context, selector string) bool {
	if ctx.Err() != nil {
		return false
	}
	ok, err := r.page.Exists(ctx, selector)
	if err != nil {
		log.Printf("Warning: probe for %s failed: %v", selector, err)
		return false
	}
	return ok
}
