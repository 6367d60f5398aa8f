// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tfyarn

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// An Outcome is the resource manager's view of a job's final status.
// A job starts Undefined and moves, one way, to exactly one of the
// terminal outcomes.
type Outcome int

const (
	// Undefined means the job has not reached a terminal state, or
	// that no authoritative status could be read.
	Undefined Outcome = iota
	// Succeeded means the job completed normally.
	Succeeded
	// Failed means the job completed with an error.
	Failed
	// Killed means the job was terminated from outside.
	Killed
)

var outcomes = [...]string{
	Undefined: "UNDEFINED",
	Succeeded: "SUCCEEDED",
	Failed:    "FAILED",
	Killed:    "KILLED",
}

// String returns the outcome's status label, as exchanged with the
// resource manager.
func (o Outcome) String() string {
	return outcomes[o]
}

// Terminal tells whether the outcome is final.
func (o Outcome) Terminal() bool {
	return o != Undefined
}

// ParseOutcome parses a status label reported by the resource
// manager.
func ParseOutcome(s string) (Outcome, error) {
	for o, label := range outcomes {
		if s == label {
			return Outcome(o), nil
		}
	}
	return Undefined, errors.E(errors.Invalid, fmt.Sprintf("invalid outcome %q", s))
}

// A ContainerRecord is the last observed state of one of a job's
// containers, together with the address of its logs. Records are
// accumulated by container ID over the lifetime of a job and never
// discarded: a torn-down container may not be reported again.
type ContainerRecord struct {
	ID          string
	State       string
	LogsAddress string
}
