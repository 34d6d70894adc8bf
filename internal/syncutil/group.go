// Package syncutil provides concurrency utilities.
package syncutil

import (
	"context"
	"sync"
)

// Group runs goroutines that share a context and are stopped together.
// Stop is safe to call more than once and from any goroutine outside the
// group.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup creates a new Group derived from ctx.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the group's context. It is done once Stop is called or
// the parent is cancelled.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go launches fn within the group. fn must return when its context is
// done.
func (g *Group) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
}

// Wait blocks until every goroutine has returned without cancelling
// the context.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop cancels the group context and waits for all goroutines to finish.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
}
