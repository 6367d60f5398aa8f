// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package tfyarn launches distributed training jobs onto a cluster
	resource manager and coordinates the participating task processes.
	A job comprises a set of named roles (a coordinator, workers,
	param-holders, and optionally an evaluator), each scheduled as a
	group of identical containers. The processes are started
	independently and without a leader; they agree on a shared address
	table (the cluster spec) through a rendezvous barrier built on a
	key-value coordination service, and synchronize their completion
	through a second barrier so that roles without a natural
	termination point can be torn down safely.

	The root package defines the data model: roles, task and job
	specifications, endpoints, cluster specs, and job outcomes.
	Package exec implements the submitting side: it validates and
	submits a job spec, polls the resource manager until the job is
	terminal, and guarantees that a terminal status is always
	communicated back, classifying interruptions as KILLED and
	escaping errors as FAILED. Package tasklet implements the task
	side: each process reserves a port, publishes it on the init
	barrier, reconstructs the cluster spec from its peers' published
	addresses, runs its unit of work, and signals the stop barrier.

	Because Go cannot serialize closures, units of work are registered
	by name with package closure and transported between processes as
	encoded invocations (see closure.Register and closure.Invocation).
	All work functions must be registered before a job is submitted or
	a tasklet is started; registering them as package-level variables
	satisfies this.
*/
package tfyarn
