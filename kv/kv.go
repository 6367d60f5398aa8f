// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package kv defines the key-value coordination service on which the
// rendezvous barriers are built, together with an etcd-backed
// implementation for real jobs and an in-process implementation for
// tests and local runs.
//
// The service exposes exactly two primitives. Publish writes a value
// under a key with first-writer-wins semantics: the first published
// value for a key is permanent. Republishing an identical value is a
// no-op; publishing a conflicting value is an integrity error. Wait
// blocks until a value is published under a key and returns it. Waits
// are unbounded: callers bound them, if at all, through the context.
package kv

import "context"

// Store is the coordination service. Publish must be safe to call
// concurrently from unrelated processes; the first-writer-wins
// discipline means there is no read-modify-write contention to
// resolve.
type Store interface {
	// Publish writes value under key. The first write wins: a
	// republish of the same value returns nil, while a conflicting
	// value returns an error of kind errors.Integrity.
	Publish(ctx context.Context, key, value string) error

	// Wait blocks until a value has been published under key and
	// returns it. If the store becomes unreachable mid-wait, Wait
	// returns an error of kind errors.Unavailable; the wait is not
	// retried internally.
	Wait(ctx context.Context, key string) (string, error)
}
