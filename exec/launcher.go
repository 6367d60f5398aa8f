// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements the submitting side of a tfyarn job: it
// validates and submits job specs to the resource manager, monitors
// the job until it reaches a terminal state, and guarantees that a
// terminal status is always communicated back to the manager, however
// control leaves the monitoring loop.
package exec

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/tfyarn"
)

// DefaultPollInterval is the default period at which the launcher
// polls the resource manager for the job's status.
const DefaultPollInterval = 10 * time.Second

// shutdownTimeout bounds the final status call: by the time it is
// made, the manager side may already be gone.
const shutdownTimeout = 30 * time.Second

// ErrInterrupted is returned by Monitor when an external interruption
// signal (or context cancellation) ends the monitoring loop. The job
// is reported KILLED in that case.
var ErrInterrupted = errors.New("job monitoring interrupted")

// A Launcher submits jobs to a resource manager and supervises their
// lifecycle.
type Launcher struct {
	manager ResourceManager
	poll    time.Duration
}

// An Option configures a launcher.
type Option func(*Launcher)

// PollInterval sets the period between status polls.
func PollInterval(d time.Duration) Option {
	if d <= 0 {
		panic("exec.PollInterval: d <= 0")
	}
	return func(l *Launcher) {
		l.poll = d
	}
}

// New returns a launcher that submits to the provided manager.
func New(manager ResourceManager, options ...Option) *Launcher {
	l := &Launcher{manager: manager, poll: DefaultPollInterval}
	for _, option := range options {
		option(l)
	}
	return l
}

// Submit validates spec and submits it for scheduling, returning the
// job's ID. Malformed specs are rejected locally, before any call to
// the manager; manager connectivity failures at submission are fatal.
func (l *Launcher) Submit(ctx context.Context, spec tfyarn.JobSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return l.manager.Submit(ctx, spec)
}

// Run submits spec and monitors the job to completion. It returns the
// job's outcome and the accumulated container records.
func (l *Launcher) Run(ctx context.Context, spec tfyarn.JobSpec) (tfyarn.Outcome, []tfyarn.ContainerRecord, error) {
	jobID, err := l.Submit(ctx, spec)
	if err != nil {
		return tfyarn.Undefined, nil, err
	}
	log.Printf("tfyarn: job %s submitted to queue %q", jobID, spec.Queue)
	outcome, containers, err := l.Monitor(ctx, jobID)
	log.Printf("tfyarn: job %s finished with status %s", jobID, outcome)
	for _, c := range containers {
		log.Printf("tfyarn: %16s %s %s", c.ID, c.State, c.LogsAddress)
	}
	return outcome, containers, err
}

// Monitor polls the manager until the job reaches a terminal state,
// merging container records from each report; records are accumulated
// by container ID and never discarded, since torn-down containers may
// stop being reported. On every exit path — normal completion, an
// external interruption, or an escaping error — the manager is told
// to terminate the job with a status classifying the cause:
// interruption maps to KILLED, an escaping error to FAILED, and a
// clean return to SUCCEEDED.
//
// A manager connectivity error while polling is treated as "the job
// is likely already torn down": the loop exits with the last known
// outcome and a logged caveat, since no authoritative final read is
// available. A connectivity error during the final status call is
// likewise swallowed, with a caveat that the outcome was not
// confirmed.
func (l *Launcher) Monitor(ctx context.Context, jobID string) (outcome tfyarn.Outcome, containers []tfyarn.ContainerRecord, err error) {
	records := make(map[string]tfyarn.ContainerRecord)
	// Interruption must reach the final status call as KILLED, so
	// signal delivery is taken over for the duration of the loop.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	var interrupted bool
	defer func() {
		label := tfyarn.Succeeded
		switch {
		case interrupted:
			label = tfyarn.Killed
		case err != nil:
			label = tfyarn.Failed
		}
		if serr := l.shutdown(jobID, label); serr != nil && err == nil {
			err = serr
		}
	}()
	for !outcome.Terminal() {
		select {
		case <-time.After(l.poll):
		case <-sigc:
			interrupted = true
			return outcome, sortRecords(records), ErrInterrupted
		case <-ctx.Done():
			interrupted = true
			return outcome, sortRecords(records), ctx.Err()
		}
		report, rerr := l.manager.Report(ctx, jobID)
		if rerr != nil {
			if connectivity(rerr) {
				log.Printf("tfyarn: job %s: lost contact with resource manager, assuming torn down; last known status %s: %v",
					jobID, outcome, rerr)
				return outcome, sortRecords(records), nil
			}
			return outcome, sortRecords(records), rerr
		}
		for _, c := range report.Containers {
			records[c.ID] = c
		}
		outcome = report.Outcome
	}
	return outcome, sortRecords(records), nil
}

func (l *Launcher) shutdown(jobID string, label tfyarn.Outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := l.manager.Shutdown(ctx, jobID, label); err != nil {
		if connectivity(err) {
			// The manager side is assumed already down. The outcome
			// stands, but was not acknowledged.
			log.Printf("tfyarn: job %s: outcome %s not confirmed by resource manager: %v", jobID, label, err)
			return nil
		}
		return err
	}
	return nil
}

func connectivity(err error) bool {
	return errors.Is(errors.Net, err) || errors.Is(errors.Unavailable, err) || errors.IsTemporary(err)
}

func sortRecords(records map[string]tfyarn.ContainerRecord) []tfyarn.ContainerRecord {
	sorted := make([]tfyarn.ContainerRecord, 0, len(records))
	for _, c := range records {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
