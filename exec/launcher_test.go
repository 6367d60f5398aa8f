// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
)

// fakeManager scripts the resource manager's report sequence and
// records every call made against it.
type fakeManager struct {
	mu        sync.Mutex
	responses []func() (Report, error)
	submits   int
	polls     int
	shutdowns []tfyarn.Outcome
}

func (m *fakeManager) Submit(ctx context.Context, spec tfyarn.JobSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits++
	return "application_0001", nil
}

func (m *fakeManager) Report(ctx context.Context, jobID string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if len(m.responses) == 0 {
		return Report{}, nil
	}
	next := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return next()
}

func (m *fakeManager) Shutdown(ctx context.Context, jobID string, outcome tfyarn.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns = append(m.shutdowns, outcome)
	return nil
}

func report(outcome tfyarn.Outcome, containers ...tfyarn.ContainerRecord) func() (Report, error) {
	return func() (Report, error) {
		return Report{Outcome: outcome, Containers: containers}, nil
	}
}

func reportErr(err error) func() (Report, error) {
	return func() (Report, error) { return Report{}, err }
}

func launcher(m *fakeManager) *Launcher {
	return New(m, PollInterval(time.Millisecond))
}

// TestSubmitValidates verifies that a malformed spec is rejected
// locally, before any call reaches the resource manager.
func TestSubmitValidates(t *testing.T) {
	m := new(fakeManager)
	spec := tfyarn.JobSpec{
		Name: "bad",
		Tasks: map[tfyarn.Role]tfyarn.TaskSpec{
			tfyarn.Coordinator: {Instances: 2},
		},
	}
	_, err := launcher(m).Submit(context.Background(), spec)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid error, got %v", err)
	}
	if got, want := m.submits, 0; got != want {
		t.Errorf("got %d submits, want %d", got, want)
	}
}

func TestMonitorSuccess(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Undefined),
		report(tfyarn.Undefined),
		report(tfyarn.Succeeded),
	}}
	outcome, _, err := launcher(m).Monitor(context.Background(), "application_0001")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := outcome, tfyarn.Succeeded; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The loop exits exactly on the poll that observes the terminal
	// state.
	if got, want := m.polls, 3; got != want {
		t.Errorf("got %d polls, want %d", got, want)
	}
	if got, want := m.shutdowns, []tfyarn.Outcome{tfyarn.Succeeded}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestMonitorInterrupted verifies that an external interruption still
// reaches shutdown, which reports the job KILLED even though the
// manager never observed a terminal status.
func TestMonitorInterrupted(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Undefined),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	outcome, _, err := launcher(m).Monitor(ctx, "application_0001")
	if err == nil {
		t.Fatal("expected error")
	}
	if got, want := outcome, tfyarn.Undefined; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m.shutdowns, []tfyarn.Outcome{tfyarn.Killed}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMonitorFailure(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Undefined),
		reportErr(errors.E(errors.Invalid, "malformed report")),
	}}
	_, _, err := launcher(m).Monitor(context.Background(), "application_0001")
	if err == nil {
		t.Fatal("expected error")
	}
	if got, want := m.shutdowns, []tfyarn.Outcome{tfyarn.Failed}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestMonitorConnectivity verifies the best-effort path: losing the
// manager mid-poll exits the loop with the last known outcome and no
// error, and the final status call still classifies a clean exit.
func TestMonitorConnectivity(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Undefined),
		reportErr(errors.E(errors.Net, "connection refused")),
	}}
	outcome, _, err := launcher(m).Monitor(context.Background(), "application_0001")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := outcome, tfyarn.Undefined; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m.shutdowns, []tfyarn.Outcome{tfyarn.Succeeded}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestMonitorMergesContainers verifies that container records
// accumulate across polls: a container that stops being reported is
// not forgotten.
func TestMonitorMergesContainers(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Undefined,
			tfyarn.ContainerRecord{ID: "container_01", State: "RUNNING"},
			tfyarn.ContainerRecord{ID: "container_02", State: "RUNNING"},
		),
		report(tfyarn.Succeeded,
			tfyarn.ContainerRecord{ID: "container_02", State: "COMPLETE"},
		),
	}}
	_, containers, err := launcher(m).Monitor(context.Background(), "application_0001")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(containers), 2; got != want {
		t.Fatalf("got %d containers, want %d", got, want)
	}
	if got, want := containers[0].ID, "container_01"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := containers[1].State, "COMPLETE"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRun(t *testing.T) {
	m := &fakeManager{responses: []func() (Report, error){
		report(tfyarn.Succeeded),
	}}
	spec := tfyarn.JobSpec{
		Name:  "test-job",
		Queue: "default",
		Tasks: map[tfyarn.Role]tfyarn.TaskSpec{
			tfyarn.Coordinator: {Memory: 1024, VCores: 1, Instances: 1},
		},
		Command: []string{"tfyarn", "task"},
	}
	outcome, _, err := launcher(m).Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := outcome, tfyarn.Succeeded; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m.submits, 1; got != want {
		t.Errorf("got %d submits, want %d", got, want)
	}
}
