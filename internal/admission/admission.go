// Package admission bounds the number of concurrently running sandboxes and
// enforces at most one active session per identity.
package admission

import (
	"context"
	"sync"
)

// Controller is a counting semaphore over sandbox slots plus the set of
// identities with a session in flight. Safe for concurrent use.
type Controller struct {
	slots chan struct{}

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a controller admitting at most maxConcurrent sessions.
func New(maxConcurrent int) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Controller{
		slots:  make(chan struct{}, maxConcurrent),
		active: make(map[string]struct{}),
	}
}

// TryAdmit reports whether the budget currently has free capacity. It never
// consumes a slot; callers that see false must reject without queuing.
func (c *Controller) TryAdmit() bool {
	return len(c.slots) < cap(c.slots)
}

// Acquire blocks the calling session until a slot is free or ctx is done.
// Use only after TryAdmit has passed, so rejections cannot race admission.
func (c *Controller) Acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees one slot. Called unconditionally during teardown; releasing
// with no slot held is a no-op.
func (c *Controller) Release() {
	select {
	case <-c.slots:
	default:
	}
}

// InUse returns the number of currently held slots.
func (c *Controller) InUse() int {
	return len(c.slots)
}

// MarkActive records an identity as running. Returns false if the identity
// already has a session in flight, in which case nothing is recorded.
func (c *Controller) MarkActive(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[identity]; ok {
		return false
	}
	c.active[identity] = struct{}{}
	return true
}

// MarkInactive removes the identity from the active set.
func (c *Controller) MarkInactive(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, identity)
}

// IsActive reports whether the identity currently has a running session.
func (c *Controller) IsActive(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[identity]
	return ok
}
