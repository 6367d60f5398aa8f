// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Tfyarn launches and supervises distributed jobs on a cluster.

Usage:

	tfyarn <command> [arguments]

The commands are:

	run     submit a job and monitor it to completion
	task    run as a task process inside a scheduled container
`)
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("tfyarn: ")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}

	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "run":
		runCmd(ctx, args)
	case "task":
		taskCmd(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "tfyarn: unknown command %q\n", cmd)
		flag.Usage()
	}
}
