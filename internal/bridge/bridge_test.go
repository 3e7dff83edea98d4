package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/trailhead/internal/engine"
	"github.com/rahul/trailhead/internal/governance"
	"github.com/rahul/trailhead/internal/progress"
	"github.com/rahul/trailhead/internal/resolver"
	"github.com/rahul/trailhead/internal/tour"
)

type fakeRouter struct {
	mu        sync.Mutex
	path      string
	navigated []string
	err       error
	// onNavigate plays the part of the destination page mounting.
	onNavigate func(path string)
}

func (r *fakeRouter) CurrentPath(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, nil
}

func (r *fakeRouter) Navigate(ctx context.Context, path string) error {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return r.err
	}
	r.path = path
	r.navigated = append(r.navigated, path)
	hook := r.onNavigate
	r.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return nil
}

func (r *fakeRouter) setPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

func (r *fakeRouter) visits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.navigated...)
}

type fakeStarter struct {
	mu     sync.Mutex
	starts []*tour.Definition
}

func (s *fakeStarter) Start(ctx context.Context, def *tour.Definition, from int) (*engine.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, def)
	return nil, nil
}

func (s *fakeStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func continuation(name string) *tour.Definition {
	return &tour.Definition{Name: name, Steps: []tour.Step{
		tour.PlainStep{Content: tour.Content{Title: "Here"}},
	}}
}

func TestNavigateAndResume_StartsContinuationOnce(t *testing.T) {
	store := progress.NewStore()
	router := &fakeRouter{path: "/"}
	starter := &fakeStarter{}
	b := New(store, router, starter, Options{MountSettle: 5 * time.Millisecond})

	cont := continuation("inventory")
	require.NoError(t, b.NavigateAndResume(context.Background(), "/inventory", cont))
	assert.Equal(t, []string{"/inventory"}, router.visits())

	p, ok := store.Pending()
	require.True(t, ok)
	assert.Equal(t, "/inventory", p.Destination)

	// the page mounts twice, as it does in development builds
	assert.True(t, b.OnRouteChange(context.Background(), "/inventory"))
	b.OnRouteChange(context.Background(), "/inventory")
	b.Wait()

	require.Equal(t, 1, starter.count())
	assert.Same(t, cont, starter.starts[0])
	_, ok = store.Pending()
	assert.False(t, ok)

	assert.False(t, b.OnRouteChange(context.Background(), "/inventory"))
	b.Wait()
	assert.Equal(t, 1, starter.count())
}

func TestOnRouteChange_UnrelatedPathStartsNothing(t *testing.T) {
	store := progress.NewStore()
	starter := &fakeStarter{}
	b := New(store, &fakeRouter{path: "/sales"}, starter, Options{})

	assert.False(t, b.OnRouteChange(context.Background(), "/sales"))

	store.SetPending("/inventory", continuation("inventory"))
	assert.False(t, b.OnRouteChange(context.Background(), "/sales"))
	b.Wait()

	assert.Zero(t, starter.count())
	_, ok := store.Pending()
	assert.True(t, ok, "entry for another page is kept")
}

func TestOnRouteChange_LeavingBeforeSettleKeepsEntry(t *testing.T) {
	store := progress.NewStore()
	router := &fakeRouter{path: "/inventory"}
	starter := &fakeStarter{}
	b := New(store, router, starter, Options{MountSettle: 30 * time.Millisecond})

	store.SetPending("/inventory", continuation("inventory"))
	require.True(t, b.OnRouteChange(context.Background(), "/inventory"))
	router.setPath("/sales")
	b.Wait()

	assert.Zero(t, starter.count())
	_, ok := store.Pending()
	assert.True(t, ok)

	router.setPath("/inventory")
	require.True(t, b.ResumeCurrent(context.Background()))
	b.Wait()
	assert.Equal(t, 1, starter.count())
}

func TestOnRouteChange_DiscardsExpiredEntry(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := progress.NewStore().WithClock(c.now)
	starter := &fakeStarter{}
	b := New(store, &fakeRouter{path: "/inventory"}, starter, Options{PendingTTL: 30 * time.Second, Now: c.now})

	store.SetPending("/inventory", continuation("inventory"))
	c.advance(31 * time.Second)

	assert.False(t, b.OnRouteChange(context.Background(), "/inventory"))
	b.Wait()
	assert.Zero(t, starter.count())
	_, ok := store.Pending()
	assert.False(t, ok)
}

func TestOnRouteChange_ContextCancelledDuringSettle(t *testing.T) {
	store := progress.NewStore()
	starter := &fakeStarter{}
	b := New(store, &fakeRouter{path: "/inventory"}, starter, Options{MountSettle: time.Second})

	store.SetPending("/inventory", continuation("inventory"))
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, b.OnRouteChange(ctx, "/inventory"))
	cancel()
	b.Wait()

	assert.Zero(t, starter.count())
	_, ok := store.Pending()
	assert.True(t, ok)
}

func TestNavigateAndResume_PolicyDenied(t *testing.T) {
	store := progress.NewStore()
	router := &fakeRouter{path: "/"}
	policy := governance.NewRoutePolicy()
	policy.AllowPrefix("/inventory")
	b := New(store, router, &fakeStarter{}, Options{Policy: policy})

	err := b.NavigateAndResume(context.Background(), "/admin/backups", continuation("admin"))
	assert.ErrorIs(t, err, ErrRouteDenied)
	assert.Empty(t, router.visits())
	_, ok := store.Pending()
	assert.False(t, ok)
}

func TestNavigateAndResume_RouterFailureClearsEntry(t *testing.T) {
	store := progress.NewStore()
	router := &fakeRouter{path: "/", err: errors.New("router detached")}
	b := New(store, router, &fakeStarter{}, Options{})

	err := b.NavigateAndResume(context.Background(), "/inventory", continuation("inventory"))
	assert.Error(t, err)
	_, ok := store.Pending()
	assert.False(t, ok)
}

func TestNavigateAndResume_RequiresContinuation(t *testing.T) {
	b := New(progress.NewStore(), &fakeRouter{}, &fakeStarter{}, Options{})
	err := b.NavigateAndResume(context.Background(), "/inventory", nil)
	assert.ErrorIs(t, err, tour.ErrInvalidDefinition)
}

type instantResolver struct{}

func (instantResolver) Resolve(ctx context.Context, selector string) resolver.Result {
	if selector == "" {
		return resolver.Result{Skipped: true}
	}
	return resolver.Result{Selector: selector, Found: true}
}

type viewRenderer struct {
	views chan engine.View
}

func (r *viewRenderer) Show(ctx context.Context, v engine.View) error {
	select {
	case r.views <- v:
	default:
	}
	return nil
}

func (r *viewRenderer) Hide(ctx context.Context) error { return nil }

func (r *viewRenderer) next(t *testing.T) engine.View {
	t.Helper()
	select {
	case v := <-r.views:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no step was rendered")
	}
	return engine.View{}
}

// A tour whose second step moves to /x finishes on /x with the
// continuation, and the entry is consumed.
func TestCrossPageTour_EndToEnd(t *testing.T) {
	store := progress.NewStore()
	renderer := &viewRenderer{views: make(chan engine.View, 16)}
	eng := engine.New(store, instantResolver{}, renderer, engine.Options{AutoAdvanceDelay: 10 * time.Millisecond})

	router := &fakeRouter{path: "/"}
	b := New(store, router, eng, Options{MountSettle: 5 * time.Millisecond})
	eng.SetNavigator(b)
	router.onNavigate = func(path string) { b.OnRouteChange(context.Background(), path) }

	cont := &tour.Definition{Name: "x-tour", Steps: []tour.Step{
		tour.PlainStep{Content: tour.Content{Target: "#c", Title: "Step C"}},
	}}
	def := &tour.Definition{Name: "T", Steps: []tour.Step{
		tour.PlainStep{Content: tour.Content{Target: "#a", Title: "Step A"}},
		tour.NavigatingStep{Content: tour.Content{Title: "Step B"}, Destination: "/x", Continuation: cont},
	}}

	run, err := eng.Start(context.Background(), def, 0)
	require.NoError(t, err)
	assert.Equal(t, "Step A", renderer.next(t).Content.Title)

	require.NoError(t, run.Next())
	vb := renderer.next(t)
	assert.Equal(t, "Step B", vb.Content.Title)
	assert.True(t, vb.Controls.AutoAdvance)

	vc := renderer.next(t)
	assert.Equal(t, "Step C", vc.Content.Title)
	assert.Equal(t, "x-tour", vc.Tour)
	b.Wait()

	assert.Equal(t, []string{"/x"}, router.visits())
	_, ok := store.Pending()
	assert.False(t, ok)
	assert.True(t, store.Status("T"))
	assert.Equal(t, progress.Progress{CurrentStep: 1, TotalSteps: 1, Percentage: 100}, store.Progress("x-tour"))

	select {
	case <-run.Done():
	default:
		t.Fatal("original run still live after the continuation started")
	}
	cur := eng.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "x-tour", cur.Definition().Name)
}

// An implicit continuation keeps the tour name and its step numbering.
func TestCrossPageTour_ImplicitContinuation(t *testing.T) {
	store := progress.NewStore()
	renderer := &viewRenderer{views: make(chan engine.View, 16)}
	eng := engine.New(store, instantResolver{}, renderer, engine.Options{})

	router := &fakeRouter{path: "/"}
	b := New(store, router, eng, Options{MountSettle: time.Millisecond})
	eng.SetNavigator(b)
	router.onNavigate = func(path string) { b.OnRouteChange(context.Background(), path) }

	def := &tour.Definition{Name: "admin", Steps: []tour.Step{
		tour.NavigatingStep{Content: tour.Content{Title: "Inventory"}, Destination: "/inventory"},
		tour.PlainStep{Content: tour.Content{Title: "Stock"}},
		tour.PlainStep{Content: tour.Content{Title: "Reorder"}},
	}}
	run, err := eng.Start(context.Background(), def, 0)
	require.NoError(t, err)
	renderer.next(t)

	require.NoError(t, run.Next())
	v := renderer.next(t)
	b.Wait()

	assert.Equal(t, "Stock", v.Content.Title)
	assert.Equal(t, "admin", v.Tour)
	assert.Equal(t, 2, v.Position)
	assert.Equal(t, 3, v.Total)
	assert.False(t, store.Status("admin"))
	assert.Equal(t, 2, store.Progress("admin").CurrentStep)
}
