package com

import (
	"context"
	"sync"
)

// Cond is a broadcastable condition "variable" similar to sync.Cond,
// but exposes channels so that it composes with select statements.
type Cond struct {
	mu    sync.Mutex
	ready chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewCond returns a new Cond that becomes done once ctx is done or Close is called.
func NewCond(ctx context.Context) *Cond {
	c := &Cond{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			c.doClose()
		case <-c.done:
		}
	}()

	return c
}

// Wait returns a channel that is closed the next time Broadcast is called.
// Each call may return a different channel, so callers must re-call Wait()
// after it fires if they want to wait for the next broadcast as well.
func (c *Cond) Wait() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ready
}

// Broadcast wakes all current waiters and arms a new generation for future ones.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.ready)
	c.ready = make(chan struct{})
}

// Done returns a channel that is closed once the Cond's context is done or Close is called.
func (c *Cond) Done() <-chan struct{} {
	return c.done
}

// Close releases resources associated with the Cond. It is safe to call multiple times.
func (c *Cond) Close() error {
	c.doClose()
	return nil
}

func (c *Cond) doClose() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
