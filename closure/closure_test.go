// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package closure

import (
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/tfyarn"
)

type trainParams struct {
	LearningRate float64
	BatchSize    int
	Labels       []string
}

func init() {
	gob.Register(trainParams{})
}

// echo records exactly how it was invoked, so tests can compare an
// invocation against its decoded copy.
var echoed []interface{}

var _ = Register("test.echo", func(ctx context.Context, task Task, args []interface{}) error {
	echoed = append([]interface{}{string(task.Role), task.Index}, args...)
	return nil
})

var _ = Register("test.fail", func(ctx context.Context, task Task, args []interface{}) error {
	return errors.New("planned failure")
})

func task() Task {
	return Task{
		Role:  tfyarn.Worker,
		Index: 1,
		Spec: tfyarn.ClusterSpec{
			tfyarn.Coordinator: {{Host: "a", Port: 1}},
			tfyarn.Worker:      {{Host: "b", Port: 2}, {Host: "c", Port: 3}},
		},
	}
}

// TestRoundTrip verifies that decoding an encoded invocation yields a
// unit of work that behaves identically to the original.
func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	inv := Invocation{
		Name: "test.echo",
		Args: []interface{}{42, "steps", trainParams{LearningRate: 0.1, BatchSize: 64, Labels: []string{"a", "b"}}},
	}

	echoed = nil
	if err := inv.Invoke(ctx, task()); err != nil {
		t.Fatal(err)
	}
	direct := echoed

	encoded, err := Encode(inv)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	echoed = nil
	if err := decoded.Invoke(ctx, task()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(echoed, direct) {
		t.Errorf("got %v, want %v", echoed, direct)
	}
}

func TestRoundTripFuzz(t *testing.T) {
	// gob omits zero-valued fields, so an empty slice would decode as
	// nil and fail the comparison; fuzz at least one element.
	fz := fuzz.New().NilChance(0).NumElements(1, 8)
	for i := 0; i < 100; i++ {
		var params trainParams
		fz.Fuzz(&params)
		inv := Invocation{Name: "test.echo", Args: []interface{}{params}}
		encoded, err := Encode(inv)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(decoded, inv) {
			t.Errorf("got %v, want %v", decoded, inv)
		}
	}
}

func TestInvokeError(t *testing.T) {
	err := Invocation{Name: "test.fail"}.Invoke(context.Background(), task())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeUnregistered(t *testing.T) {
	_, err := Encode(Invocation{Name: "test.unregistered"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected NotExist error, got %v", err)
	}
}

// TestEncodeUnserializable verifies that a unit of work capturing a
// live resource fails at encode time: a channel has no wire form.
func TestEncodeUnserializable(t *testing.T) {
	inv := Invocation{Name: "test.echo", Args: []interface{}{make(chan int)}}
	if _, err := Encode(inv); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeBad(t *testing.T) {
	for _, bad := range []string{"", "!!!not base64!!!", "aGVsbG8="} {
		if _, err := Decode(bad); err == nil {
			t.Errorf("expected error decoding %q", bad)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Register("test.echo", func(context.Context, Task, []interface{}) error { return nil })
}

func TestRegisterMany(t *testing.T) {
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("test.many%d", i)
		Register(name, func(context.Context, Task, []interface{}) error { return nil })
		if _, ok := lookup(name); !ok {
			t.Errorf("func %s not registered", name)
		}
	}
}
