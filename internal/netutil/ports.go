// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package netutil reserves local TCP endpoints for task processes.
package netutil

import (
	"net"
	"os"
	"syscall"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
)

// Reservations draws endpoints whose ports are held open by live
// listeners, so that no two draws from the same Reservations can
// collide, and a concurrent process on the same host cannot bind a
// drawn port while the reservation is held. This reduces, but does
// not eliminate, the chance of collision with processes on other
// hosts; it is a best-effort measure, not a correctness guarantee.
//
// Reservations are process-local and not safe for concurrent use.
// Callers must Close the reservations when the drawn endpoints are in
// use (or abandoned), releasing every held socket; defer makes this
// hold on all exit paths.
type Reservations struct {
	host string
	held []net.Listener
}

// Reserve returns an empty set of reservations whose endpoints carry
// the given host name. If host is empty, the process's host name is
// used.
func Reserve(host string) *Reservations {
	if host == "" {
		host, _ = os.Hostname()
	}
	return &Reservations{host: host}
}

// Next draws the next endpoint, binding a fresh listener on an
// OS-assigned port. Transient "address in use" races are retried
// silently; any other bind failure is returned as an error of kind
// errors.Net. Held listeners guarantee that draws within one
// Reservations are pairwise distinct.
func (r *Reservations) Next() (tfyarn.Endpoint, error) {
	for {
		listener, err := net.Listen("tcp", ":0")
		if err != nil {
			if addrInUse(err) {
				continue
			}
			return tfyarn.Endpoint{}, errors.E(errors.Net, "netutil: reserve port", err)
		}
		r.held = append(r.held, listener)
		port := listener.Addr().(*net.TCPAddr).Port
		return tfyarn.Endpoint{Host: r.host, Port: port}, nil
	}
}

// Close releases every held listener. The drawn ports become
// available for reuse, by this process or any other.
func (r *Reservations) Close() {
	for _, listener := range r.held {
		listener.Close()
	}
	r.held = nil
}

func addrInUse(err error) bool {
	opErr, ok := err.(*net.OpError)
	if !ok {
		return false
	}
	sysErr, ok := opErr.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	return sysErr.Err == syscall.EADDRINUSE
}
