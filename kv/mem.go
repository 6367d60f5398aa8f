// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn/internal/ctxsync"
)

// Mem is an in-process Store. It is used by tests and by local,
// single-process runs where all tasklets share an address space.
type Mem struct {
	mu     sync.Mutex
	cond   *ctxsync.Cond
	values map[string]string
}

var _ Store = (*Mem)(nil)

// NewMem returns an empty in-process store.
func NewMem() *Mem {
	m := &Mem{values: make(map[string]string)}
	m.cond = ctxsync.NewCond(&m.mu)
	return m
}

// Publish implements Store.
func (m *Mem) Publish(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.values[key]; ok {
		if prev == value {
			return nil
		}
		return errors.E(errors.Integrity,
			fmt.Sprintf("kv: publish %s: conflicting value %q, have %q", key, value, prev))
	}
	m.values[key] = value
	m.cond.Broadcast()
	return nil
}

// Wait implements Store.
func (m *Mem) Wait(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if value, ok := m.values[key]; ok {
			return value, nil
		}
		if err := m.cond.Wait(ctx); err != nil {
			return "", errors.E(fmt.Sprintf("kv: wait %s", key), err)
		}
	}
}
