// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tfyarn

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
)

// A ClusterSpec is the resolved address table of a job: for each
// cluster role, the endpoints of its tasks in index order, so that a
// task's position in the slice is its index within the role. Each
// task process constructs its own ClusterSpec from the values
// published through the init barrier; the processes agree on its
// contents only through agreement on those published values.
//
// A ClusterSpec always has exactly one coordinator endpoint.
type ClusterSpec map[Role][]Endpoint

// Validate checks that the spec has exactly one coordinator endpoint
// and exactly the requested number of endpoints for each cluster role.
func (c ClusterSpec) Validate(counts Counts) error {
	want := map[Role]int{
		Coordinator: 1,
		ParamHolder: counts.ParamHolders,
		Worker:      counts.Workers,
	}
	for _, role := range ClusterRoles {
		if got := len(c[role]); got != want[role] {
			return errors.E(errors.Invalid,
				fmt.Sprintf("cluster spec: role %s has %d endpoints, want %d", role, got, want[role]))
		}
	}
	return nil
}

// Addrs returns the spec as a map from role name to "host:port"
// strings, the form consumed by training frameworks and used for the
// environment transport. Roles with no endpoints are omitted.
func (c ClusterSpec) Addrs() map[string][]string {
	addrs := make(map[string][]string, len(c))
	for role, endpoints := range c {
		if len(endpoints) == 0 {
			continue
		}
		ss := make([]string, len(endpoints))
		for i, e := range endpoints {
			ss[i] = e.String()
		}
		addrs[string(role)] = ss
	}
	return addrs
}

// MarshalJSON encodes the spec in its role→addresses form.
func (c ClusterSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Addrs())
}

// UnmarshalJSON decodes a spec encoded by MarshalJSON.
func (c *ClusterSpec) UnmarshalJSON(p []byte) error {
	var addrs map[string][]string
	if err := json.Unmarshal(p, &addrs); err != nil {
		return err
	}
	spec := make(ClusterSpec, len(addrs))
	for name, ss := range addrs {
		role, err := ParseRole(name)
		if err != nil {
			return err
		}
		endpoints := make([]Endpoint, len(ss))
		for i, s := range ss {
			if endpoints[i], err = ParseEndpoint(s); err != nil {
				return err
			}
		}
		spec[role] = endpoints
	}
	*c = spec
	return nil
}

// String returns a deterministic, human-readable rendering of the
// spec, used in logs.
func (c ClusterSpec) String() string {
	roles := make([]string, 0, len(c))
	for role := range c {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	s := ""
	for _, role := range roles {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", role, c[Role(role)])
	}
	return s
}
