// Package shutdown provides the process-wide cooperative shutdown signal.
package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
)

// Coordinator is a one-shot shutdown signal.
// It is observed cooperatively: nothing is interrupted when it is requested,
// components poll [Coordinator.Requested] or wait on [Coordinator.Done].
type Coordinator struct {
	requested atomic.Bool

	once   sync.Once
	doneCh chan struct{}
}

func New() *Coordinator {
	return &Coordinator{
		doneCh: make(chan struct{}),
	}
}

// Request marks the shutdown as requested. It is idempotent.
func (c *Coordinator) Request() {
	c.once.Do(func() {
		c.requested.Store(true)
		close(c.doneCh)
	})
}

// Requested reports whether the shutdown has been requested.
func (c *Coordinator) Requested() bool {
	return c.requested.Load()
}

// Done returns a channel closed once the shutdown has been requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.doneCh
}

// WatchContext requests the shutdown when ctx is done.
// The returned function stops watching, it reports whether it did so
// before the shutdown was requested.
func (c *Coordinator) WatchContext(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, c.Request)
}
