// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package barrier

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
)

// SpecFromBarrier resolves a job's cluster spec from the endpoints
// published on b's init barrier. Slots are resolved in a fixed order,
// coordinator:0 first, then each param-holder and each worker in
// index order; the order matters only for determinism and
// debuggability, since each slot is an independent key. The call
// blocks until every required slot has been published: past it, no
// task can hold a partial address table. A slot whose task was never
// scheduled blocks forever unless the caller bounds the wait.
func SpecFromBarrier(ctx context.Context, b *Barrier, counts tfyarn.Counts) (tfyarn.ClusterSpec, error) {
	return buildSpec(counts, func(role tfyarn.Role, index int) (tfyarn.Endpoint, error) {
		value, err := b.Wait(ctx, Init, role, index)
		if err != nil {
			return tfyarn.Endpoint{}, err
		}
		endpoint, err := tfyarn.ParseEndpoint(value)
		if err != nil {
			return tfyarn.Endpoint{}, errors.E(
				fmt.Sprintf("barrier: bad endpoint under %s", b.Key(Init, role, index)), err)
		}
		return endpoint, nil
	})
}

// SpecFromSeq builds a cluster spec of the same shape from a sequence
// of pre-reserved endpoints, assigning them in resolution order. It
// is used when all tasks run in one process and draw from a single
// port reservation.
func SpecFromSeq(counts tfyarn.Counts, next func() (tfyarn.Endpoint, error)) (tfyarn.ClusterSpec, error) {
	return buildSpec(counts, func(tfyarn.Role, int) (tfyarn.Endpoint, error) {
		return next()
	})
}

func buildSpec(counts tfyarn.Counts, resolve func(tfyarn.Role, int) (tfyarn.Endpoint, error)) (tfyarn.ClusterSpec, error) {
	spec := make(tfyarn.ClusterSpec)
	add := func(role tfyarn.Role, index int) error {
		endpoint, err := resolve(role, index)
		if err != nil {
			return err
		}
		spec[role] = append(spec[role], endpoint)
		return nil
	}
	if err := add(tfyarn.Coordinator, 0); err != nil {
		return nil, err
	}
	for i := 0; i < counts.ParamHolders; i++ {
		if err := add(tfyarn.ParamHolder, i); err != nil {
			return nil, err
		}
	}
	for i := 0; i < counts.Workers; i++ {
		if err := add(tfyarn.Worker, i); err != nil {
			return nil, err
		}
	}
	return spec, nil
}
