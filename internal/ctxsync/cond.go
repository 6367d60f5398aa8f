// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ctxsync provides a condition variable whose Wait is bounded
// by a context. It backs the blocking primitives of packages kv and
// background, where waits must be abandonable: a task waiting on a
// never-published key has no other way out.
package ctxsync

import (
	"context"
	"sync"
)

// A Cond is a condition variable with a context-aware Wait. There is
// no Signal: a broadcast wakes every waiter, and waiters re-check
// their condition under the lock.
type Cond struct {
	l    sync.Locker
	genc chan struct{}
}

// NewCond returns a cond guarded by l.
func NewCond(l sync.Locker) *Cond {
	return &Cond{l: l}
}

// Broadcast wakes all current waiters. The cond's lock must be held.
func (c *Cond) Broadcast() {
	if c.genc != nil {
		close(c.genc)
		c.genc = nil
	}
}

// Wait blocks until the next Broadcast, reacquiring the lock before
// returning. The cond's lock must be held on entry. If ctx ends first,
// Wait returns the context's error; the caller then holds the lock but
// must not assume anything about the guarded state.
func (c *Cond) Wait(ctx context.Context) error {
	if c.genc == nil {
		c.genc = make(chan struct{})
	}
	genc := c.genc
	c.l.Unlock()
	var err error
	select {
	case <-genc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.l.Lock()
	return err
}
