// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tfyarn

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Flavor selects the accelerator class of a task's containers.
type Flavor string

const (
	// CPU requests plain CPU containers.
	CPU Flavor = "cpu"
	// GPU requests GPU-enabled containers.
	GPU Flavor = "gpu"
)

// A TaskSpec describes the resources requested for each instance of a
// role, and how many instances to schedule.
type TaskSpec struct {
	// Memory is the container memory request, in MiB.
	Memory int
	// VCores is the container CPU request, in virtual cores.
	VCores int
	// Instances is the number of containers to schedule for the role.
	Instances int
	// Flavor selects the accelerator class. The zero value is CPU.
	Flavor Flavor
	// NodeLabel restricts placement to nodes carrying the label.
	// Empty means no restriction.
	NodeLabel string
}

// A JobSpec describes a distributed job: the per-role resource
// requests and instance counts, the launch command, and the file set
// and environment shipped to every container. A JobSpec is built once
// at submission time and never mutated after submit.
type JobSpec struct {
	// Name identifies the job to the resource manager. It also
	// namespaces the job's keys in the coordination service, so it
	// must be unique among concurrently running jobs.
	Name string
	// Queue is the resource manager queue to submit to.
	Queue string
	// Tasks maps each requested role to its task spec. Coordinator is
	// required with exactly one instance; evaluator admits at most
	// one.
	Tasks map[Role]TaskSpec
	// Command is the launch command run in every container. The
	// task's role assignment and encoded unit of work reach the
	// command through environment variables; see package tasklet.
	Command []string
	// Files maps container-relative target paths to local sources
	// uploaded alongside the job. Packaging is the resource manager
	// adapter's concern.
	Files map[string]string
	// Env is the environment forwarded to every container.
	Env map[string]string
}

// Counts gives the number of instances per role beyond the
// coordinator, which is always exactly one. Counts size the cluster
// spec and the barriers.
type Counts struct {
	Workers      int
	ParamHolders int
	Evaluators   int
}

// Counts returns the instance counts requested by the spec.
func (j JobSpec) Counts() Counts {
	return Counts{
		Workers:      j.Tasks[Worker].Instances,
		ParamHolders: j.Tasks[ParamHolder].Instances,
		Evaluators:   j.Tasks[Evaluator].Instances,
	}
}

// Validate checks the spec's invariants. It is called by exec.Submit
// before any call to the resource manager, so that malformed specs
// are rejected locally.
func (j JobSpec) Validate() error {
	if j.Name == "" {
		return errors.E(errors.Invalid, "job spec: missing name")
	}
	for role, task := range j.Tasks {
		if !role.Valid() {
			return errors.E(errors.Invalid, fmt.Sprintf("job spec: unknown role %q", role))
		}
		if task.Instances < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("job spec: role %s: negative instance count %d", role, task.Instances))
		}
		switch task.Flavor {
		case "", CPU, GPU:
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("job spec: role %s: unknown flavor %q", role, task.Flavor))
		}
	}
	if n := j.Tasks[Coordinator].Instances; n != 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("job spec: coordinator requires exactly 1 instance, got %d", n))
	}
	if n := j.Tasks[Evaluator].Instances; n > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("job spec: evaluator admits at most 1 instance, got %d", n))
	}
	return nil
}
