// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tasklet implements the task side of a tfyarn job: the code
// that runs inside every scheduled container. A tasklet reserves a
// local TCP endpoint, publishes it on the init barrier, reconstructs
// the cluster spec from its peers' published endpoints, runs its unit
// of work, and synchronizes on the stop barrier so that param-holder
// tasks outlive every task that depends on them.
//
// A task process receives its assignment exclusively through
// environment variables (see the Env constants): its role, its index
// within the role, the per-role instance counts that size the cluster
// spec, the coordination service endpoints, and the encoded unit of
// work.
package tasklet

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/tfyarn"
	"github.com/grailbio/tfyarn/background"
	"github.com/grailbio/tfyarn/barrier"
	"github.com/grailbio/tfyarn/closure"
	"github.com/grailbio/tfyarn/internal/envscope"
	"github.com/grailbio/tfyarn/internal/netutil"
	"github.com/grailbio/tfyarn/kv"
)

// The environment variables through which a task process receives its
// assignment. EnvRole is set per service by the resource manager
// adapter; EnvIndex is expanded per instance by the manager; the rest
// are common to the whole job and set by Configure.
const (
	EnvRole            = "TFYARN_ROLE"
	EnvIndex           = "TFYARN_INDEX"
	EnvJob             = "TFYARN_JOB"
	EnvInvocation      = "TFYARN_INVOCATION"
	EnvNumWorkers      = "TFYARN_NUM_WORKERS"
	EnvNumParamHolders = "TFYARN_NUM_PARAM_HOLDERS"
	EnvNumEvaluators   = "TFYARN_NUM_EVALUATORS"
	EnvKVEndpoints     = "TFYARN_KV_ENDPOINTS"
)

// KVPrefix is the keyspace under which all tfyarn jobs live in a
// shared coordination service; individual runs are kept apart below
// it by the job name.
const KVPrefix = "/tfyarn/"

// The variables a running tasklet exposes to its unit of work.
const (
	// EnvClusterSpec carries the resolved cluster spec, JSON-encoded,
	// for work that reads its configuration from the environment.
	EnvClusterSpec = "TFYARN_CLUSTER_SPEC"
	// EnvTask carries the task's own identity as "role:index".
	EnvTask = "TFYARN_TASK"
)

// A Config is a task process's assignment, as decoded from its
// environment.
type Config struct {
	// Job names the job run; it namespaces the job's barrier keys.
	Job string
	// Role and Index identify the task within the job.
	Role  tfyarn.Role
	Index int
	// Counts are the per-role instance counts of the job, sizing the
	// cluster spec and the stop barrier.
	Counts tfyarn.Counts
	// KVEndpoints are the coordination service's addresses.
	KVEndpoints []string
	// Invocation is the encoded unit of work.
	Invocation string
}

// Configure writes the job-wide assignment variables into spec's
// environment, encoding the invocation for transport. Keys already
// present in the environment are a logic error — two components
// claiming the same channel — and make Configure fail before any key
// is written.
func Configure(spec *tfyarn.JobSpec, inv closure.Invocation, kvEndpoints []string) error {
	encoded, err := closure.Encode(inv)
	if err != nil {
		return err
	}
	counts := spec.Counts()
	vars := map[string]string{
		EnvJob:             spec.Name,
		EnvInvocation:      encoded,
		EnvNumWorkers:      strconv.Itoa(counts.Workers),
		EnvNumParamHolders: strconv.Itoa(counts.ParamHolders),
		EnvNumEvaluators:   strconv.Itoa(counts.Evaluators),
		EnvKVEndpoints:     strings.Join(kvEndpoints, ","),
	}
	if spec.Env == nil {
		spec.Env = make(map[string]string, len(vars))
	}
	for key := range vars {
		if _, ok := spec.Env[key]; ok {
			return errors.E(errors.Exists, fmt.Sprintf("tasklet: %s already set in job environment", key))
		}
	}
	for key, value := range vars {
		spec.Env[key] = value
	}
	return nil
}

// ConfigFromEnv decodes the task's assignment from the process
// environment.
func ConfigFromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)
	role, err := tfyarn.ParseRole(os.Getenv(EnvRole))
	if err != nil {
		return Config{}, errors.E(fmt.Sprintf("tasklet: %s", EnvRole), err)
	}
	cfg.Role = role
	if cfg.Index, err = intFromEnv(EnvIndex); err != nil {
		return Config{}, err
	}
	if cfg.Job = os.Getenv(EnvJob); cfg.Job == "" {
		return Config{}, errors.E(errors.Invalid, fmt.Sprintf("tasklet: %s not set", EnvJob))
	}
	if cfg.Invocation = os.Getenv(EnvInvocation); cfg.Invocation == "" {
		return Config{}, errors.E(errors.Invalid, fmt.Sprintf("tasklet: %s not set", EnvInvocation))
	}
	if cfg.Counts.Workers, err = intFromEnv(EnvNumWorkers); err != nil {
		return Config{}, err
	}
	if cfg.Counts.ParamHolders, err = intFromEnv(EnvNumParamHolders); err != nil {
		return Config{}, err
	}
	if cfg.Counts.Evaluators, err = intFromEnv(EnvNumEvaluators); err != nil {
		return Config{}, err
	}
	if s := os.Getenv(EnvKVEndpoints); s != "" {
		cfg.KVEndpoints = strings.Split(s, ",")
	}
	return cfg, nil
}

func intFromEnv(key string) (int, error) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("tasklet: bad %s value %q", key, os.Getenv(key)))
	}
	return n, nil
}

// Run executes the task described by cfg against the provided
// coordination store. It blocks until the task's part in the job is
// over: for finite roles, until the unit of work completes and its
// completion marker is published; for param-holders, until every
// finite task of the job has signaled completion, since a
// param-holder's work has no termination point of its own.
//
// The unit of work runs on a supervised background goroutine so the
// main line of control remains free to service the stop barrier.
func Run(ctx context.Context, cfg Config, store kv.Store) error {
	reservations := netutil.Reserve("")
	defer reservations.Close()
	endpoint, err := reservations.Next()
	if err != nil {
		return err
	}

	b := barrier.New(store, cfg.Job)
	if err := b.SignalInit(ctx, cfg.Role, cfg.Index, endpoint); err != nil {
		return err
	}
	log.Printf("tasklet: %s:%d published %s, waiting for peers", cfg.Role, cfg.Index, endpoint)
	spec, err := barrier.SpecFromBarrier(ctx, b, cfg.Counts)
	if err != nil {
		return err
	}
	if err := spec.Validate(cfg.Counts); err != nil {
		return err
	}
	log.Printf("tasklet: %s:%d cluster spec: %s", cfg.Role, cfg.Index, spec)

	inv, err := closure.Decode(cfg.Invocation)
	if err != nil {
		return err
	}
	// The published port must be bindable by the work itself, so the
	// reservation is released here. The window between release and the
	// work's own bind is the same best-effort gap documented on
	// netutil.Reservations.
	reservations.Close()
	work, err := startWork(ctx, cfg, inv, spec)
	if err != nil {
		return err
	}

	if cfg.Role.Finite() {
		err := work.Wait(ctx)
		// The marker is published on failure too: peers gate their
		// shutdown on completion, not success, and the job's outcome
		// is the launcher's concern.
		if serr := b.SignalStop(ctx, cfg.Role, cfg.Index); serr != nil && err == nil {
			err = serr
		}
		return err
	}
	// Param-holders are torn down only after every finite task is
	// done; the work itself never completes. Should it fail early,
	// that failure is the task's result.
	if err := b.AwaitStop(ctx, cfg.Counts); err != nil {
		return err
	}
	return work.Err()
}

func startWork(ctx context.Context, cfg Config, inv closure.Invocation, spec tfyarn.ClusterSpec) (*background.Handle, error) {
	specJSON, err := spec.MarshalJSON()
	if err != nil {
		return nil, err
	}
	// The spec is exposed to the work through the environment for the
	// duration of its execution; the scope detects collisions and is
	// popped however the work exits.
	scope, err := envscope.Push(map[string]string{
		EnvClusterSpec: string(specJSON),
		EnvTask:        fmt.Sprintf("%s:%d", cfg.Role, cfg.Index),
	})
	if err != nil {
		return nil, err
	}
	task := closure.Task{Role: cfg.Role, Index: cfg.Index, Spec: spec}
	return background.Go(func() error {
		defer func() {
			if err := scope.Pop(); err != nil {
				log.Error.Printf("tasklet: %s:%d: %v", cfg.Role, cfg.Index, err)
			}
		}()
		return inv.Invoke(ctx, task)
	}), nil
}

// Main is the entry point for a task container: it decodes the
// assignment from the environment, dials the coordination service,
// and runs the task, exiting the process with a nonzero status on
// failure.
func Main(ctx context.Context) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	store, err := kv.DialEtcd(cfg.KVEndpoints, KVPrefix)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := Run(ctx, cfg, store); err != nil {
		log.Fatal(err)
	}
}
