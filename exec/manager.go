// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	"github.com/grailbio/tfyarn"
)

// A Report is one observation of a job from the resource manager: its
// outcome so far (Undefined while the job is still running) and the
// states of the containers the manager currently reports. Containers
// already torn down may be absent; callers merge reports over time.
type Report struct {
	Outcome    tfyarn.Outcome
	Containers []tfyarn.ContainerRecord
}

// ResourceManager is the external service that schedules and reports
// on a job's task processes. Implementations translate these three
// calls onto the manager's own API; see SkeinClient for the HTTP
// gateway adapter.
//
// Connectivity failures must be returned as errors of kind errors.Net
// or errors.Unavailable (or be temporary per errors.IsTemporary):
// the launcher treats those as best-effort during monitoring and
// shutdown, and as fatal at submission.
type ResourceManager interface {
	// Submit submits the job spec for scheduling and returns the
	// job's ID. The spec has been validated by the caller.
	Submit(ctx context.Context, spec tfyarn.JobSpec) (string, error)

	// Report returns the job's current report.
	Report(ctx context.Context, jobID string) (Report, error)

	// Shutdown asks the manager to terminate the job with the given
	// status label.
	Shutdown(ctx context.Context, jobID string, outcome tfyarn.Outcome) error
}
