package bridge

import (
	"context"
	"log"
	"time"
)

// Sweep drops the pending entry once it outlives the TTL, checking every
// interval until ctx is done. Without it a stale entry is only noticed when
// its destination mounts.
func (b *Bridge) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = b.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Bridge) sweepOnce() bool {
	p, ok := b.store.Pending()
	if !ok || !b.expired(p) {
		return false
	}
	if !b.store.DropPending(p.CreatedAt) {
		return false
	}
	log.Printf("Discarding stale pending tour %s for %s", nameOf(p.Definition), p.Destination)
	return true
}
