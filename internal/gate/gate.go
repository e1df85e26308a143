// Package gate implements the three independently-bounded resource pools
// that coordinate the archiver's concurrent work: upstream API calls, media
// processing (transcoder subprocesses), and webhook deliveries.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is a single counting semaphore with a fixed capacity. A task acquires
// a permit immediately before the guarded call and releases it immediately
// after. Upstream permits are taken inside each single upstream call, so a
// task never holds an upstream permit while awaiting a processing or webhook
// permit. A processing permit, by contrast, stays held across the upstream
// calls made while a track is processed (track fetch, rendition resolves),
// so a task may await an upstream permit while holding a processing one.
type Gate struct {
	sem *semaphore.Weighted
}

// New creates a Gate with the given capacity. A non-positive capacity is
// treated as 1 so misconfiguration never deadlocks every acquirer.
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity))}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a permit to the pool.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do acquires a permit, runs fn, and releases the permit before returning.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// Gates bundles the three pools the concurrency model names in spec.md §5.
type Gates struct {
	Upstream   *Gate
	Processing *Gate
	Webhook    *Gate
}

// NewGates builds the three pools from their configured capacities.
func NewGates(upstream, processing, webhook int) *Gates {
	return &Gates{
		Upstream:   New(upstream),
		Processing: New(processing),
		Webhook:    New(webhook),
	}
}
