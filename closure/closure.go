// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package closure transports units of work between the submitting
// process and the job's task processes. Since Go cannot serialize
// code, work functions are registered by name in every binary of the
// job; what travels is an Invocation naming a registered function
// together with its arguments, gob-encoded and base64-armored so it
// is safe to place in an environment variable or command-line
// argument.
//
// Funcs must be registered before any invocation is encoded or
// decoded, and under the same names in the submitting binary and the
// task binary. Registering them as package-level variables satisfies
// this:
//
//	var train = closure.Register("train", func(ctx context.Context, task closure.Task, args []interface{}) error {
//		...
//	})
//
// Argument values of non-basic types must be registered with
// encoding/gob by the caller, per normal gob usage.
package closure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
)

// A Task identifies the task process on which an invocation runs and
// carries the resolved cluster spec it should use to reach its peers.
type Task struct {
	Role  tfyarn.Role
	Index int
	Spec  tfyarn.ClusterSpec
}

// A Func is a unit of work, invocable on any task process of a job.
// The returned error is the task's result: nil reports success to the
// stop barrier.
type Func func(ctx context.Context, task Task, args []interface{}) error

var (
	mu    sync.Mutex
	funcs = make(map[string]Func)
)

// Register registers fn under name and returns it. It panics if the
// name is empty or already taken: names identify funcs across process
// boundaries, so a collision is a program error.
func Register(name string, fn Func) Func {
	if name == "" {
		panic("closure.Register: empty name")
	}
	if fn == nil {
		panic("closure.Register: nil func")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := funcs[name]; ok {
		panic(fmt.Sprintf("closure.Register: duplicate func %q", name))
	}
	funcs[name] = fn
	return fn
}

func lookup(name string) (Func, bool) {
	mu.Lock()
	defer mu.Unlock()
	fn, ok := funcs[name]
	return fn, ok
}

// An Invocation represents a registered func applied to a set of
// arguments. Invocations can be transmitted across process boundaries
// and invoked by remote task processes.
type Invocation struct {
	Name string
	Args []interface{}
}

// Invoke runs the invocation's func on the current process. It
// returns an error of kind errors.NotExist if the func is not
// registered in this binary.
func (inv Invocation) Invoke(ctx context.Context, task Task) error {
	fn, ok := lookup(inv.Name)
	if !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("closure: func %q not registered", inv.Name))
	}
	return fn(ctx, task, inv.Args)
}

// Encode serializes the invocation into a plain-text string safe for
// transport through an environment variable. Encoding fails if the
// invocation's func is not registered, or if an argument cannot be
// serialized (a value capturing a live resource, such as a channel or
// a func, has no wire form).
func Encode(inv Invocation) (string, error) {
	if _, ok := lookup(inv.Name); !ok {
		return "", errors.E(errors.NotExist, fmt.Sprintf("closure: encode: func %q not registered", inv.Name))
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(inv); err != nil {
		return "", errors.E(errors.Invalid, fmt.Sprintf("closure: encode %q", inv.Name), err)
	}
	return base64.StdEncoding.EncodeToString(b.Bytes()), nil
}

// Decode is the exact inverse of Encode.
func Decode(s string) (Invocation, error) {
	p, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Invocation{}, errors.E(errors.Invalid, "closure: decode: bad base64", err)
	}
	var inv Invocation
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&inv); err != nil {
		return Invocation{}, errors.E(errors.Invalid, "closure: decode", err)
	}
	if _, ok := lookup(inv.Name); !ok {
		return Invocation{}, errors.E(errors.NotExist, fmt.Sprintf("closure: decode: func %q not registered", inv.Name))
	}
	return inv, nil
}
