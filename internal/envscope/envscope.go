// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package envscope sets process environment variables exclusively and
// reversibly for the duration of a task's execution. The process
// environment is global state, so at most one scope is live at a time:
// Push blocks until the live scope, if any, is popped.
package envscope

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
)

// mu serializes scopes; it is held from Push to Pop.
var mu sync.Mutex

// A Scope records the variables it set so that Pop can remove exactly
// those.
type Scope struct {
	keys []string
}

// Push sets every variable in vars, failing before setting any if one
// of the names is already present in the environment: a collision
// means two components claim the same channel, which is a logic
// error, not a race to resolve. Variables are set in sorted order so
// failures are deterministic.
func Push(vars map[string]string) (*Scope, error) {
	mu.Lock()
	keys := make([]string, 0, len(vars))
	for key := range vars {
		if _, ok := os.LookupEnv(key); ok {
			mu.Unlock()
			return nil, errors.E(errors.Exists, fmt.Sprintf("envscope: %s already set in environment", key))
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	scope := &Scope{}
	for _, key := range keys {
		if err := os.Setenv(key, vars[key]); err != nil {
			scope.Pop()
			return nil, errors.E(fmt.Sprintf("envscope: set %s", key), err)
		}
		scope.keys = append(scope.keys, key)
	}
	return scope, nil
}

// Pop removes every variable the scope set and releases the scope. A
// variable found missing was removed behind the scope's back; that
// breaks the exclusivity contract and is reported rather than ignored.
// Pop removes the remaining variables regardless and returns the first
// inconsistency. Callers defer Pop so removal happens on every exit
// path.
func (s *Scope) Pop() error {
	defer mu.Unlock()
	var err error
	for _, key := range s.keys {
		if _, ok := os.LookupEnv(key); !ok {
			if err == nil {
				err = errors.E(errors.Integrity, fmt.Sprintf("envscope: %s missing from environment", key))
			}
			continue
		}
		os.Unsetenv(key)
	}
	s.keys = nil
	return err
}
