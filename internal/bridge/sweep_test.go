package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rahul/trailhead/internal/progress"
)

func TestSweep_DropsOnlyExpiredEntry(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := progress.NewStore().WithClock(c.now)
	b := New(store, &fakeRouter{path: "/"}, &fakeStarter{}, Options{PendingTTL: 30 * time.Second, Now: c.now})

	assert.False(t, b.sweepOnce())

	store.SetPending("/inventory", continuation("inventory"))
	c.advance(10 * time.Second)
	assert.False(t, b.sweepOnce())
	_, ok := store.Pending()
	assert.True(t, ok)

	c.advance(21 * time.Second)
	assert.True(t, b.sweepOnce())
	_, ok = store.Pending()
	assert.False(t, ok)
}

func TestSweep_StopsWithContext(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := progress.NewStore().WithClock(c.now)
	b := New(store, &fakeRouter{path: "/"}, &fakeStarter{}, Options{PendingTTL: time.Second, Now: c.now})

	store.SetPending("/inventory", continuation("inventory"))
	c.advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Sweep(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, ok := store.Pending()
		return !ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sweep did not return after cancel")
	}
}
