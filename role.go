// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tfyarn

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Role names a category of task process within a distributed job.
// Roles are scheduled as groups of identical containers; a task's
// identity is its role together with its index within the role.
type Role string

const (
	// Coordinator drives the computation. Every job has exactly one
	// coordinator task.
	Coordinator Role = "coordinator"
	// Worker performs a share of the computation. A job may have any
	// number of workers, including none.
	Worker Role = "worker"
	// ParamHolder serves shared state to the other tasks. Param-holder
	// tasks have no natural termination point: they are torn down once
	// every finite role has completed.
	ParamHolder Role = "param-holder"
	// Evaluator evaluates the computation's output as it progresses.
	// A job has at most one evaluator.
	Evaluator Role = "evaluator"
)

// Roles enumerates all valid roles.
var Roles = []Role{Coordinator, ParamHolder, Worker, Evaluator}

// ClusterRoles enumerates the roles that appear in a cluster spec, in
// resolution order. The evaluator is excluded: it discovers the
// cluster through the spec but is not addressed by other tasks.
var ClusterRoles = []Role{Coordinator, ParamHolder, Worker}

// FiniteRoles enumerates the roles whose units of work terminate on
// their own. Their completion gates the teardown of param-holders.
var FiniteRoles = []Role{Coordinator, Worker, Evaluator}

// Valid tells whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case Coordinator, Worker, ParamHolder, Evaluator:
		return true
	}
	return false
}

// Finite tells whether r's unit of work terminates on its own.
func (r Role) Finite() bool {
	return r != ParamHolder
}

// ParseRole parses s as a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", errors.E(errors.Invalid, fmt.Sprintf("invalid role %q", s))
	}
	return r, nil
}
