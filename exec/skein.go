// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
	"github.com/grailbio/tfyarn/tasklet"
	"github.com/hashicorp/go-retryablehttp"
)

// SkeinClient is a ResourceManager backed by a skein-style HTTP
// gateway in front of the cluster resource manager. The gateway
// schedules one service per role and expands per-instance variables
// (in particular tasklet.EnvIndex) into each container's environment.
type SkeinClient struct {
	base   string
	client *http.Client
}

var _ ResourceManager = (*SkeinClient)(nil)

// NewSkeinClient returns a client for the gateway at the given base
// URL. Transient transport failures are retried with backoff; errors
// that survive the retries surface as connectivity errors.
func NewSkeinClient(base string) *SkeinClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &SkeinClient{
		base:   strings.TrimRight(base, "/"),
		client: rc.StandardClient(),
	}
}

// The gateway's wire formats.
type (
	skeinResources struct {
		Memory int `json:"memory"`
		VCores int `json:"vcores"`
	}
	skeinService struct {
		Commands  []string          `json:"commands"`
		Resources skeinResources    `json:"resources"`
		Instances int               `json:"instances"`
		NodeLabel string            `json:"node_label,omitempty"`
		Files     map[string]string `json:"files,omitempty"`
		Env       map[string]string `json:"env,omitempty"`
	}
	skeinSubmission struct {
		Name     string                  `json:"name"`
		Queue    string                  `json:"queue"`
		Services map[string]skeinService `json:"services"`
	}
	skeinContainer struct {
		ID          string `json:"id"`
		State       string `json:"state"`
		LogsAddress string `json:"logs_address"`
	}
	skeinReport struct {
		FinalStatus string           `json:"final_status"`
		Containers  []skeinContainer `json:"containers"`
	}
)

// Submit implements ResourceManager.
func (c *SkeinClient) Submit(ctx context.Context, spec tfyarn.JobSpec) (string, error) {
	submission := skeinSubmission{
		Name:     spec.Name,
		Queue:    spec.Queue,
		Services: make(map[string]skeinService),
	}
	for role, task := range spec.Tasks {
		if task.Instances == 0 {
			continue
		}
		env := make(map[string]string, len(spec.Env)+1)
		for key, value := range spec.Env {
			env[key] = value
		}
		// The role assignment is per service; the gateway fills in
		// tasklet.EnvIndex per instance.
		env[tasklet.EnvRole] = string(role)
		submission.Services[string(role)] = skeinService{
			Commands:  []string{strings.Join(spec.Command, " ")},
			Resources: skeinResources{Memory: task.Memory, VCores: task.VCores},
			Instances: task.Instances,
			NodeLabel: task.NodeLabel,
			Files:     spec.Files,
			Env:       env,
		}
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "POST", "/v1/applications", submission, &resp); err != nil {
		return "", errors.E(fmt.Sprintf("skein: submit %s", spec.Name), err)
	}
	return resp.ID, nil
}

// Report implements ResourceManager.
func (c *SkeinClient) Report(ctx context.Context, jobID string) (Report, error) {
	var resp skeinReport
	if err := c.call(ctx, "GET", "/v1/applications/"+jobID, nil, &resp); err != nil {
		return Report{}, errors.E(fmt.Sprintf("skein: report %s", jobID), err)
	}
	outcome, err := tfyarn.ParseOutcome(resp.FinalStatus)
	if err != nil {
		return Report{}, err
	}
	report := Report{Outcome: outcome}
	for _, container := range resp.Containers {
		report.Containers = append(report.Containers, tfyarn.ContainerRecord{
			ID:          container.ID,
			State:       container.State,
			LogsAddress: container.LogsAddress,
		})
	}
	return report, nil
}

// Shutdown implements ResourceManager.
func (c *SkeinClient) Shutdown(ctx context.Context, jobID string, outcome tfyarn.Outcome) error {
	body := struct {
		FinalStatus string `json:"final_status"`
	}{outcome.String()}
	if err := c.call(ctx, "POST", "/v1/applications/"+jobID+"/shutdown", body, nil); err != nil {
		return errors.E(fmt.Sprintf("skein: shutdown %s", jobID), err)
	}
	return nil
}

func (c *SkeinClient) call(ctx context.Context, method, path string, body, reply interface{}) error {
	var reader io.Reader
	if body != nil {
		p, err := json.Marshal(body)
		if err != nil {
			return errors.E(errors.Invalid, "marshal request", err)
		}
		reader = bytes.NewReader(p)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.E(errors.Invalid, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.E(errors.Net, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return errors.E(errors.Unavailable, fmt.Sprintf("%s %s: %s", method, path, resp.Status))
	case resp.StatusCode >= 300:
		return errors.E(errors.Remote, fmt.Sprintf("%s %s: %s", method, path, resp.Status))
	}
	if reply == nil {
		return nil
	}
	p, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.E(errors.Net, err)
	}
	if err := json.Unmarshal(p, reply); err != nil {
		return errors.E(errors.Invalid, "unmarshal reply", err)
	}
	return nil
}
