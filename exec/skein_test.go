// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
	"github.com/grailbio/tfyarn/tasklet"
)

func testSpec() tfyarn.JobSpec {
	return tfyarn.JobSpec{
		Name:  "mnist",
		Queue: "ml",
		Tasks: map[tfyarn.Role]tfyarn.TaskSpec{
			tfyarn.Coordinator: {Memory: 2048, VCores: 2, Instances: 1},
			tfyarn.Worker:      {Memory: 4096, VCores: 4, Instances: 2, Flavor: tfyarn.GPU, NodeLabel: "gpu"},
			tfyarn.Evaluator:   {Instances: 0},
		},
		Command: []string{"./job", "task"},
		Env:     map[string]string{"TFYARN_JOB": "mnist"},
	}
}

func TestSkeinSubmit(t *testing.T) {
	var submission skeinSubmission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Method, "POST"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if got, want := r.URL.Path, "/v1/applications"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "application_0042"})
	}))
	defer server.Close()

	jobID, err := NewSkeinClient(server.URL).Submit(context.Background(), testSpec())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := jobID, "application_0042"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := submission.Name, "mnist"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Zero-instance roles are not scheduled.
	if got, want := len(submission.Services), 2; got != want {
		t.Fatalf("got %d services, want %d", got, want)
	}
	if _, ok := submission.Services["evaluator"]; ok {
		t.Error("evaluator scheduled despite zero instances")
	}
	worker, ok := submission.Services["worker"]
	if !ok {
		t.Fatal("no worker service")
	}
	if got, want := worker.Instances, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := worker.Resources.Memory, 4096; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := worker.NodeLabel, "gpu"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := worker.Commands, []string{"./job task"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("got %v, want %v", got, want)
	}
	// Each service carries its role assignment; shared variables come
	// through untouched.
	if got, want := worker.Env[tasklet.EnvRole], "worker"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := worker.Env["TFYARN_JOB"], "mnist"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := submission.Services["coordinator"].Env[tasklet.EnvRole], "coordinator"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSkeinReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Path, "/v1/applications/application_0042"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		json.NewEncoder(w).Encode(skeinReport{
			FinalStatus: "SUCCEEDED",
			Containers: []skeinContainer{
				{ID: "container_01", State: "COMPLETE", LogsAddress: "http://node0:8042"},
			},
		})
	}))
	defer server.Close()

	report, err := NewSkeinClient(server.URL).Report(context.Background(), "application_0042")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := report.Outcome, tfyarn.Succeeded; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(report.Containers), 1; got != want {
		t.Fatalf("got %d containers, want %d", got, want)
	}
	if got, want := report.Containers[0].LogsAddress, "http://node0:8042"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSkeinReportBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(skeinReport{FinalStatus: "BOGUS"})
	}))
	defer server.Close()
	if _, err := NewSkeinClient(server.URL).Report(context.Background(), "application_0042"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSkeinShutdown(t *testing.T) {
	var body struct {
		FinalStatus string `json:"final_status"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Path, "/v1/applications/application_0042/shutdown"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
	}))
	defer server.Close()

	err := NewSkeinClient(server.URL).Shutdown(context.Background(), "application_0042", tfyarn.Killed)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := body.FinalStatus, "KILLED"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestSkeinErrors verifies the error classification: gateway rejections
// are remote errors, gateway outages are connectivity errors.
func TestSkeinErrors(t *testing.T) {
	for _, c := range []struct {
		status int
		kind   errors.Kind
	}{
		// 501 is not retried, so the test stays fast.
		{http.StatusNotFound, errors.Remote},
		{http.StatusNotImplemented, errors.Unavailable},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		_, err := NewSkeinClient(server.URL).Report(context.Background(), "application_0042")
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if !errors.Is(c.kind, err) {
			t.Errorf("status %d: expected %v error, got %v", c.status, c.kind, err)
		}
	}
}
