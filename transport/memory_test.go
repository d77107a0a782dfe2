// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bureau-foundation/remux/lib/testutil"
)

const testTimeout = 5 * time.Second

func TestMemoryRoundTrip(t *testing.T) {
	mem := NewMemory()
	conn, err := mem.Start(context.Background(), []string{"tmux", "-C"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	started := testutil.RequireReceive(t, mem.Starts(), testTimeout, "waiting for start notification")
	if started != mem.LastConn() {
		t.Error("Starts delivered a different connection than LastConn")
	}

	if _, err := conn.Write([]byte("list-windows\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := string(started.ReadInput()); got != "list-windows\n" {
		t.Errorf("ReadInput = %q", got)
	}

	read := make(chan string)
	go func() {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		testutil.RequireSend(t, read, string(buf[:n]), testTimeout, "delivering read result")
	}()
	started.FeedOutput([]byte("%begin 1700000000 0 1\n"))
	if got := testutil.RequireReceive(t, read, testTimeout, "waiting for read"); got != "%begin 1700000000 0 1\n" {
		t.Errorf("Read = %q", got)
	}
}

func TestMemoryExitUnblocksEverything(t *testing.T) {
	mem := NewMemory()
	conn, err := mem.Start(context.Background(), []string{"tmux"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	memConn := mem.LastConn()

	waited := make(chan struct{})
	go func() {
		conn.Wait()
		close(waited)
	}()

	if err := conn.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	testutil.RequireClosed(t, waited, testTimeout, "waiting for Wait to unblock")
	if !memConn.Killed() {
		t.Error("Killed() = false after Kill")
	}

	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read after exit = %v, want EOF", err)
	}
	// Exit is idempotent.
	memConn.Exit(nil)
}

func TestMemoryStartCountsConnections(t *testing.T) {
	mem := NewMemory()
	for i := 0; i < 3; i++ {
		if _, err := mem.Start(context.Background(), []string{"tmux"}); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
	}
	if mem.StartCount() != 3 {
		t.Errorf("StartCount = %d, want 3", mem.StartCount())
	}
	if mem.Conn(2) != mem.LastConn() {
		t.Error("Conn(2) != LastConn()")
	}
}
