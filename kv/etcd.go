// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const dialTimeout = 5 * time.Second

// Etcd is a Store backed by an etcd cluster reachable by every task
// process of a job. Keys are placed under a common prefix so that
// multiple jobs can share one cluster.
type Etcd struct {
	client *clientv3.Client
	prefix string
}

var _ Store = (*Etcd)(nil)

// DialEtcd connects to the etcd cluster at the provided endpoints and
// returns a store whose keys live under prefix.
func DialEtcd(endpoints []string, prefix string) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("kv: dial etcd %v", endpoints), err)
	}
	return &Etcd{client: client, prefix: prefix}, nil
}

// Close releases the store's connection to etcd.
func (e *Etcd) Close() error {
	return e.client.Close()
}

func (e *Etcd) key(key string) string {
	return e.prefix + key
}

// Publish implements Store. First-writer-wins is enforced by a
// transaction on the key's create revision, so it is safe under
// concurrent publishes from unrelated processes.
func (e *Etcd) Publish(ctx context.Context, key, value string) error {
	k := e.key(key)
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, value)).
		Else(clientv3.OpGet(k)).
		Commit()
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("kv: publish %s", key), err)
	}
	if resp.Succeeded {
		return nil
	}
	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		// The key was created and then deleted out from under us.
		// Nothing deletes barrier keys during a run, so treat this as
		// corruption rather than retrying.
		return errors.E(errors.Integrity, fmt.Sprintf("kv: publish %s: key deleted during publish", key))
	}
	if prev := string(kvs[0].Value); prev != value {
		return errors.E(errors.Integrity,
			fmt.Sprintf("kv: publish %s: conflicting value %q, have %q", key, value, prev))
	}
	return nil
}

// Wait implements Store. The value is read directly if already
// published; otherwise Wait watches the key from the revision of the
// read, so no publish can slip between the two.
func (e *Etcd) Wait(ctx context.Context, key string) (string, error) {
	k := e.key(key)
	resp, err := e.client.Get(ctx, k)
	if err != nil {
		return "", errors.E(errors.Unavailable, fmt.Sprintf("kv: wait %s", key), err)
	}
	if len(resp.Kvs) > 0 {
		return string(resp.Kvs[0].Value), nil
	}
	watch := e.client.Watch(ctx, k, clientv3.WithRev(resp.Header.Revision+1))
	for wresp := range watch {
		if err := wresp.Err(); err != nil {
			return "", errors.E(errors.Unavailable, fmt.Sprintf("kv: wait %s", key), err)
		}
		for _, event := range wresp.Events {
			if event.Type == clientv3.EventTypePut {
				return string(event.Kv.Value), nil
			}
		}
	}
	// The watch channel closes when the context ends or the client
	// loses its connection for good.
	if err := ctx.Err(); err != nil {
		return "", errors.E(fmt.Sprintf("kv: wait %s", key), err)
	}
	return "", errors.E(errors.Unavailable, fmt.Sprintf("kv: wait %s: watch closed", key))
}
