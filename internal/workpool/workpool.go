// Package workpool bounds the number of concurrent delegated calls per
// fetcher kind, so blocking upstream invocations cannot pile up
// without limit.
package workpool

import (
	"context"
)

// Pool is a counting semaphore with context-aware acquisition.
type Pool struct {
	slots chan struct{}
}

// New creates a pool allowing up to size concurrent calls. A
// non-positive size falls back to 1.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn once a slot is available. If ctx is cancelled while
// waiting, fn never runs and the context error is returned. The slot is
// released when fn returns.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	return fn(ctx)
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int {
	return len(p.slots)
}
