// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tfyarn

import (
	"fmt"
	"net"
	"strconv"

	"github.com/grailbio/base/errors"
)

// An Endpoint is a task's network address, as published through the
// init barrier. Endpoints are immutable once published.
type Endpoint struct {
	Host string
	Port int
}

// String returns the endpoint in "host:port" form, the format in
// which endpoints travel through the coordination service.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses an endpoint from its "host:port" form.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portstr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, errors.E(errors.Invalid, fmt.Sprintf("invalid endpoint %q", s), err)
	}
	port, err := strconv.Atoi(portstr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, errors.E(errors.Invalid, fmt.Sprintf("invalid endpoint port %q", portstr))
	}
	return Endpoint{Host: host, Port: port}, nil
}
