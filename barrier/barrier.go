// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package barrier implements the two rendezvous barriers through
// which a job's task processes coordinate, built on the publish/wait
// primitives of package kv.
//
// The init barrier assembles the cluster spec: each task publishes
// its own endpoint under its slot and then waits for the endpoints of
// every required peer, so that no task proceeds with a partial
// address table. The stop barrier compensates for roles that have no
// natural termination point: each finite task publishes a completion
// marker when its unit of work is done, and param-holders wait for
// all of them before allowing themselves to be torn down.
//
// Barrier waits are unbounded by default, bounded only by the
// caller's context: if the resource manager never schedules a peer,
// its key is never published and the wait blocks. Callers that want a
// deadline set WaitTimeout.
package barrier

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/tfyarn"
	"github.com/grailbio/tfyarn/kv"
	"golang.org/x/sync/errgroup"
)

// A Phase names one of the two barriers of a job run.
type Phase string

const (
	// Init is the rendezvous at which tasks exchange endpoints.
	Init Phase = "init"
	// Stop is the rendezvous at which finite tasks signal completion.
	Stop Phase = "stop"
)

// done is the completion marker published on the stop barrier.
const done = "done"

// A Barrier coordinates the tasks of a single job run. All tasks of a
// run construct barriers with the same store and namespace; the
// namespace (typically the job name) keeps concurrent runs apart in a
// shared store.
type Barrier struct {
	store     kv.Store
	namespace string

	// WaitTimeout, if nonzero, bounds each individual wait. The zero
	// value leaves waits unbounded, matching the base protocol.
	WaitTimeout time.Duration
}

// New returns a barrier for the job run named by namespace.
func New(store kv.Store, namespace string) *Barrier {
	return &Barrier{store: store, namespace: namespace}
}

// Key returns the store key of a task's slot in a phase. A slot is
// published at most once per run.
func (b *Barrier) Key(phase Phase, role tfyarn.Role, index int) string {
	return fmt.Sprintf("%s/%s/%s:%d", b.namespace, phase, role, index)
}

// Publish writes value under the task's slot in the given phase.
// Publication is first-writer-wins; see kv.Store.
func (b *Barrier) Publish(ctx context.Context, phase Phase, role tfyarn.Role, index int, value string) error {
	return b.store.Publish(ctx, b.Key(phase, role, index), value)
}

// Wait blocks until a value is published under the task's slot in the
// given phase and returns it, applying the barrier's wait timeout if
// one is configured.
func (b *Barrier) Wait(ctx context.Context, phase Phase, role tfyarn.Role, index int) (string, error) {
	if b.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.WaitTimeout)
		defer cancel()
	}
	return b.store.Wait(ctx, b.Key(phase, role, index))
}

// SignalInit publishes the task's endpoint on the init barrier.
func (b *Barrier) SignalInit(ctx context.Context, role tfyarn.Role, index int, endpoint tfyarn.Endpoint) error {
	return b.Publish(ctx, Init, role, index, endpoint.String())
}

// SignalStop publishes the task's completion marker on the stop
// barrier. Only finite roles signal: param-holders never complete on
// their own.
func (b *Barrier) SignalStop(ctx context.Context, role tfyarn.Role, index int) error {
	return b.Publish(ctx, Stop, role, index, done)
}

// AwaitStop blocks until every finite task of the run has published
// its completion marker: the coordinator, counts.Workers workers, and
// the evaluator if one was requested. Param-holders call this before
// exiting so that the shared state they serve outlives every task
// that reads it.
func (b *Barrier) AwaitStop(ctx context.Context, counts tfyarn.Counts) error {
	g, ctx := errgroup.WithContext(ctx)
	wait := func(role tfyarn.Role, index int) {
		g.Go(func() error {
			_, err := b.Wait(ctx, Stop, role, index)
			return err
		})
	}
	wait(tfyarn.Coordinator, 0)
	for i := 0; i < counts.Workers; i++ {
		wait(tfyarn.Worker, i)
	}
	if counts.Evaluators > 0 {
		wait(tfyarn.Evaluator, 0)
	}
	return g.Wait()
}
