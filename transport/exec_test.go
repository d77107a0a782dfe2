// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"testing"
)

func TestExecStartRefusesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Exec{}
	if _, err := e.Start(ctx, []string{"tmux", "-C"}); err == nil {
		t.Fatal("Start with a cancelled context succeeded")
	}
}

func TestExecStartRejectsEmptyCommand(t *testing.T) {
	e := &Exec{}
	if _, err := e.Start(context.Background(), nil); err == nil {
		t.Fatal("Start with no command succeeded")
	}
}
