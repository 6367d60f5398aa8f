// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/grailbio/tfyarn/tasklet"
)

// taskCmd runs inside a scheduled container. The task's assignment
// arrives exclusively through the environment, so there are no flags
// to parse.
func taskCmd(ctx context.Context, args []string) {
	_ = args
	tasklet.Main(ctx)
}
