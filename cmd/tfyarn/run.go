// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/tfyarn"
	"github.com/grailbio/tfyarn/closure"
	"github.com/grailbio/tfyarn/exec"
	"github.com/grailbio/tfyarn/tasklet"
)

func runCmd(ctx context.Context, args []string) {
	var (
		flags        = flag.NewFlagSet("run", flag.ExitOnError)
		name         = flags.String("name", "", "job name; must be unique among running jobs")
		queue        = flags.String("queue", "default", "resource manager queue")
		manager      = flags.String("manager", "http://localhost:8080", "resource manager gateway address")
		kvEndpoints  = flags.String("kv", "localhost:2379", "comma-separated coordination service endpoints")
		workers      = flags.Int("workers", 0, "number of worker tasks")
		paramHolders = flags.Int("ps", 0, "number of param-holder tasks")
		evaluator    = flags.Bool("evaluator", false, "schedule an evaluator task")
		memory       = flags.Int("memory", 1024, "container memory, in MiB")
		vcores       = flags.Int("vcores", 1, "container virtual cores")
		gpu          = flags.Bool("gpu", false, "request GPU containers for workers")
		poll         = flags.Duration("poll", exec.DefaultPollInterval, "status poll interval")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: tfyarn run [flags] <func> [args]

Run submits a job whose tasks execute the registered work function
named by <func>, then monitors the job until it terminates.
`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() == 0 {
		flags.Usage()
	}
	if *name == "" {
		*name = fmt.Sprintf("tfyarn-%d", time.Now().Unix())
	}

	flavor := tfyarn.CPU
	if *gpu {
		flavor = tfyarn.GPU
	}
	spec := tfyarn.JobSpec{
		Name:  *name,
		Queue: *queue,
		Tasks: map[tfyarn.Role]tfyarn.TaskSpec{
			tfyarn.Coordinator: {Memory: *memory, VCores: *vcores, Instances: 1},
			tfyarn.Worker:      {Memory: *memory, VCores: *vcores, Instances: *workers, Flavor: flavor},
			tfyarn.ParamHolder: {Memory: *memory, VCores: *vcores, Instances: *paramHolders},
		},
		Command: []string{os.Args[0], "task"},
	}
	if *evaluator {
		spec.Tasks[tfyarn.Evaluator] = tfyarn.TaskSpec{Memory: *memory, VCores: *vcores, Instances: 1}
	}

	inv := closure.Invocation{Name: flags.Arg(0)}
	for _, arg := range flags.Args()[1:] {
		inv.Args = append(inv.Args, arg)
	}
	if err := tasklet.Configure(&spec, inv, strings.Split(*kvEndpoints, ",")); err != nil {
		log.Fatal(err)
	}

	launcher := exec.New(exec.NewSkeinClient(*manager), exec.PollInterval(*poll))
	outcome, _, err := launcher.Run(ctx, spec)
	if err != nil {
		log.Fatal(err)
	}
	if outcome != tfyarn.Succeeded {
		os.Exit(1)
	}
}
