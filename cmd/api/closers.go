package main

import (
	"sync"

	"go.uber.org/zap"
)

// closerList collects cleanup for collaborators that connect in the
// background, possibly after shutdown has begun.
type closerList struct {
	mu     sync.Mutex
	fns    []func() error
	closed bool
	logger *zap.Logger
}

func newCloserList(logger *zap.Logger) *closerList {
	return &closerList{logger: logger}
}

// add registers fn. Once the list is closed fn runs immediately and add
// reports false so the caller stops using the resource.
func (c *closerList) add(fn func() error) bool {
	c.mu.Lock()
	if !c.closed {
		c.fns = append(c.fns, fn)
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.logger.Warn("close failed", zap.Error(err))
	}
	return false
}

// closeAll runs the registered functions in reverse order.
func (c *closerList) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			c.logger.Warn("close failed", zap.Error(err))
		}
	}
	c.fns = nil
}
