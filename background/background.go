// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package background runs a unit of work on its own goroutine and
// captures its result for later inspection by the owner. It is used
// by tasklets so that the main line of control stays free to service
// the stop barrier while the work runs, and so that a failure in the
// work is observed by the supervising loop instead of being lost with
// the goroutine.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn/internal/ctxsync"
)

// A Handle supervises one unit of work. The worker goroutine writes
// its success-or-error result exactly once; the owner reads it with
// Wait and decides whether to propagate it.
type Handle struct {
	mu   sync.Mutex
	cond *ctxsync.Cond
	done bool
	err  error
}

// Go starts fn on a new goroutine and returns its handle. A panic in
// fn is captured as a fatal error rather than crashing the process,
// so that the supervising loop can report it through the job's
// lifecycle machinery.
func Go(fn func() error) *Handle {
	h := new(Handle)
	h.cond = ctxsync.NewCond(&h.mu)
	go func() {
		err := run(fn)
		h.mu.Lock()
		h.err = err
		h.done = true
		h.cond.Broadcast()
		h.mu.Unlock()
	}()
	return h
}

func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.E(errors.Fatal, fmt.Sprintf("background: panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return fn()
}

// Wait blocks until the work has finished and returns its result.
// Successive calls return the same result. If ctx ends first, Wait
// returns the context's error; the work itself keeps running.
func (h *Handle) Wait(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.done {
		if err := h.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return h.err
}

// Done tells whether the work has finished, without blocking.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Err returns the work's result if it has finished, and nil
// otherwise. Use Wait to distinguish a nil result from unfinished
// work.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		return nil
	}
	return h.err
}
