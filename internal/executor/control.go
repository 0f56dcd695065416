package executor

import (
	"context"
	"sync"
)

// runControl carries the cooperative pause/cancel signals for one run.
// Pause takes effect at the next stage boundary; tasks already
// dispatched always run to completion.
type runControl struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	cancelFn context.CancelFunc
	done     bool
}

func newRunControl(cancel context.CancelFunc) *runControl {
	return &runControl{cancelFn: cancel}
}

// Pause requests a pause at the next stage boundary. Idempotent.
func (c *runControl) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.done {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume releases a paused run. Idempotent.
func (c *runControl) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = nil
}

// Cancel aborts the run's context. A paused run is released first so
// the stage loop can observe the cancellation.
func (c *runControl) Cancel() {
	c.mu.Lock()
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = nil
	}
	c.done = true
	cancel := c.cancelFn
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Paused reports whether a pause is pending or active.
func (c *runControl) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// waitIfPaused blocks while the run is paused. Returns the context
// error when the run is cancelled while waiting.
func (c *runControl) waitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		ch := c.resumeCh
		paused := c.paused
		c.mu.Unlock()

		if !paused {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// finish marks the run terminal so later Pause calls are no-ops.
func (c *runControl) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = nil
	}
}
