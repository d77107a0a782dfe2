// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	t.Parallel()
	start := time.Unix(1000000000, 0)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(5 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(5*time.Second))
	}
}

func TestFakeAfterFires(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	ch := c.After(3 * time.Second)

	select {
	case <-ch:
		t.Fatal("After channel fired before Advance")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After channel did not fire after Advance")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeAfterFuncSynchronous(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	if fired {
		t.Fatal("callback fired before Advance")
	}
	c.Advance(time.Second)
	if !fired {
		t.Fatal("callback did not fire during Advance")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on pending timer should return true")
	}
	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("second Stop should return false")
	}
}

func TestFakeAfterFuncReset(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	var fireCount int
	timer := c.AfterFunc(time.Second, func() { fireCount++ })

	c.Advance(time.Second)
	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1", fireCount)
	}

	// Reset after firing re-arms the timer.
	if timer.Reset(2 * time.Second) {
		t.Error("Reset on fired timer should return false")
	}
	c.Advance(2 * time.Second)
	if fireCount != 2 {
		t.Fatalf("fireCount after reset = %d, want 2", fireCount)
	}
}

func TestFakeDeadlineOrder(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()
	c := Fake(time.Unix(0, 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Sleep(time.Second)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)
	wg.Wait()

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}
