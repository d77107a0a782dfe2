// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	window, err := parseWindow("@3 %7 editor with spaces")
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	want := Window{ID: "@3", ActivePaneID: "%7", Name: "editor with spaces"}
	if window != want {
		t.Errorf("window = %+v, want %+v", window, want)
	}

	if _, err := parseWindow("@3"); err == nil {
		t.Error("parseWindow accepted a line without a pane id")
	}
}

func TestParsePane(t *testing.T) {
	pane, err := parsePane("%7 1 41 0 39 24")
	if err != nil {
		t.Fatalf("parsePane: %v", err)
	}
	want := Pane{ID: "%7", Active: true, Left: 41, Top: 0, Width: 39, Height: 24}
	if pane != want {
		t.Errorf("pane = %+v, want %+v", pane, want)
	}

	for _, line := range []string{"", "%7 1 41 0 39", "%7 1 x 0 39 24"} {
		if _, err := parsePane(line); err == nil {
			t.Errorf("parsePane(%q) accepted a malformed line", line)
		}
	}
}

func TestParsePaneModes(t *testing.T) {
	modes, err := parsePaneModes("12 5 1 0 1 0 1 1 0 1 0 1 340 2 19 24")
	if err != nil {
		t.Fatalf("parsePaneModes: %v", err)
	}
	want := PaneModes{
		CursorX:               12,
		CursorY:               5,
		CursorVisible:         true,
		MouseButton:           true,
		MouseSGR:              true,
		ApplicationCursorKeys: true,
		Wrap:                  true,
		AlternateScreen:       true,
		HistorySize:           340,
		ScrollRegionUpper:     2,
		ScrollRegionLower:     19,
		Height:                24,
	}
	if modes != want {
		t.Errorf("modes = %+v, want %+v", modes, want)
	}

	if _, err := parsePaneModes("12 5 1"); err == nil {
		t.Error("parsePaneModes accepted a truncated line")
	}
}

// commandRecorder wraps a scripted handler and records every command
// line the session wrote.
type commandRecorder struct {
	mu       sync.Mutex
	commands []string
}

func (r *commandRecorder) record(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
}

func (r *commandRecorder) find(prefix string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, command := range r.commands {
		if strings.HasPrefix(command, prefix) {
			return command, true
		}
	}
	return "", false
}

func TestTypedCommandWireFormats(t *testing.T) {
	recorder := &commandRecorder{}
	session, _, _ := startConnectedSession(t, SessionConfig{}, func(command string) *blockReply {
		recorder.record(command)
		switch {
		case strings.HasPrefix(command, "list-windows"):
			return reply("@1 %1 shell")
		case strings.HasPrefix(command, "list-panes"):
			return reply("%1 1 0 0 80 24", "%2 0 0 13 80 10")
		case strings.HasPrefix(command, "new-window"):
			return reply("@4")
		case strings.HasPrefix(command, "split-window"):
			return reply("%9")
		case strings.HasPrefix(command, "capture-pane"):
			return reply("line one", "line two")
		default:
			return reply()
		}
	})
	defer session.Destroy(time.Millisecond)
	nextEvent(t, session)
	ctx := context.Background()

	panes, err := session.ListPanes(ctx, "@1")
	if err != nil {
		t.Fatalf("ListPanes: %v", err)
	}
	if len(panes) != 2 || panes[1].Top != 13 || panes[1].Height != 10 {
		t.Errorf("panes = %+v", panes)
	}
	if command, _ := recorder.find("list-panes"); !strings.Contains(command, "-t @1") {
		t.Errorf("list-panes command = %q, want window target", command)
	}

	if err := session.SendKeys(ctx, "%1", "ls\n"); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	if command, ok := recorder.find("send-keys"); !ok || command != "send-keys -H -t %1 6c 73 0a" {
		t.Errorf("send-keys command = %q", command)
	}

	if err := session.RefreshClient(ctx, 120, 40); err != nil {
		t.Fatalf("RefreshClient: %v", err)
	}
	if command, ok := recorder.find("refresh-client"); !ok || command != "refresh-client -C 120,40" {
		t.Errorf("refresh-client command = %q", command)
	}

	windowID, err := session.NewWindow(ctx, "build")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if windowID != "@4" {
		t.Errorf("NewWindow returned %q, want @4", windowID)
	}

	paneID, err := session.SplitWindow(ctx, "%1", true)
	if err != nil {
		t.Fatalf("SplitWindow: %v", err)
	}
	if paneID != "%9" {
		t.Errorf("SplitWindow returned %q, want %%9", paneID)
	}
	if command, _ := recorder.find("split-window"); !strings.Contains(command, "-h") {
		t.Errorf("split-window command = %q, want horizontal flag", command)
	}

	lines, err := session.CapturePane(ctx, "%1", -50, -1)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"line one", "line two"}) {
		t.Errorf("capture = %v", lines)
	}
	if command, _ := recorder.find("capture-pane"); !strings.Contains(command, "-S -50 -E -1") {
		t.Errorf("capture-pane command = %q, want explicit range", command)
	}
}

func TestSendKeysSkipsEmptyPayload(t *testing.T) {
	recorder := &commandRecorder{}
	session, _, _ := startConnectedSession(t, SessionConfig{}, func(command string) *blockReply {
		recorder.record(command)
		return defaultHandler(command)
	})
	defer session.Destroy(time.Millisecond)
	nextEvent(t, session)

	if err := session.SendKeys(context.Background(), "%1", ""); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	if _, ok := recorder.find("send-keys"); ok {
		t.Error("empty payload still produced a send-keys command")
	}
}
