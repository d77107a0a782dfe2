// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

// modeLine renders a display-message response for the given modes.
func modeLine(m PaneModes) string {
	flag := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	return fmt.Sprintf("%d %d %d %d %d %d %d %d %d %d %d %d %d %d %d %d",
		m.CursorX, m.CursorY, flag(m.CursorVisible),
		flag(m.MouseStandard), flag(m.MouseButton), flag(m.MouseAll), flag(m.MouseSGR),
		flag(m.ApplicationCursorKeys), flag(m.ApplicationKeypad),
		flag(m.Wrap), flag(m.Insert),
		flag(m.AlternateScreen), m.HistorySize,
		m.ScrollRegionUpper, m.ScrollRegionLower, m.Height)
}

func TestCapturePaneStateNormalScreen(t *testing.T) {
	modes := PaneModes{
		CursorX: 3, CursorY: 10, CursorVisible: true, Wrap: true,
		HistorySize: 500, ScrollRegionLower: 23, Height: 24,
	}
	recorder := &commandRecorder{}
	session, _, _ := startConnectedSession(t, SessionConfig{}, func(command string) *blockReply {
		recorder.record(command)
		switch {
		case strings.HasPrefix(command, "list-windows"):
			return reply("@1 %1 shell")
		case strings.HasPrefix(command, "display-message"):
			return reply(modeLine(modes))
		case strings.Contains(command, "-S -200 -E -1"):
			return reply("old line")
		case strings.HasPrefix(command, "capture-pane"):
			return reply("visible line")
		default:
			return reply()
		}
	})
	defer session.Destroy(time.Millisecond)
	nextEvent(t, session)

	// A history limit below the pane's actual scrollback bounds the
	// history range.
	state, err := session.CapturePaneState(context.Background(), "%1", 200)
	if err != nil {
		t.Fatalf("CapturePaneState: %v", err)
	}
	if !reflect.DeepEqual(state.History, []string{"old line"}) {
		t.Errorf("history = %v", state.History)
	}
	if !reflect.DeepEqual(state.Screen, []string{"visible line"}) {
		t.Errorf("screen = %v", state.Screen)
	}
	if state.Modes != modes {
		t.Errorf("modes = %+v, want %+v", state.Modes, modes)
	}
	if _, ok := recorder.find("capture-pane -p -e -t %1 -S -200 -E -1"); !ok {
		t.Errorf("history capture missing, commands: %v", recorder.commands)
	}
}

func TestCapturePaneStateAlternateScreen(t *testing.T) {
	modes := PaneModes{
		CursorVisible: false, AlternateScreen: true, MouseAll: true, MouseSGR: true,
		HistorySize: 900, ScrollRegionLower: 23, Height: 24,
	}
	recorder := &commandRecorder{}
	session, _, _ := startConnectedSession(t, SessionConfig{}, func(command string) *blockReply {
		recorder.record(command)
		switch {
		case strings.HasPrefix(command, "list-windows"):
			return reply("@1 %1 shell")
		case strings.HasPrefix(command, "display-message"):
			return reply(modeLine(modes))
		case strings.HasPrefix(command, "capture-pane"):
			return reply("fullscreen app")
		default:
			return reply()
		}
	})
	defer session.Destroy(time.Millisecond)
	nextEvent(t, session)

	state, err := session.CapturePaneState(context.Background(), "%1", 2000)
	if err != nil {
		t.Fatalf("CapturePaneState: %v", err)
	}
	// The alternate screen has no scrollback: no history range may be
	// requested no matter how much the normal screen has accumulated.
	if len(state.History) != 0 {
		t.Errorf("history = %v, want none on the alternate screen", state.History)
	}
	if command, _ := recorder.find("capture-pane"); strings.Contains(command, "-S") {
		t.Errorf("alternate-screen capture used a range: %q", command)
	}
	if !reflect.DeepEqual(state.Screen, []string{"fullscreen app"}) {
		t.Errorf("screen = %v", state.Screen)
	}
}

func TestReplaySequenceContentThenCursorThenModes(t *testing.T) {
	state := PaneState{
		History: []string{"one", "two"},
		Screen:  []string{"three", "four"},
		Modes: PaneModes{
			CursorX: 4, CursorY: 1, CursorVisible: true, Wrap: true,
			MouseButton: true, MouseSGR: true, ApplicationCursorKeys: true,
			ScrollRegionLower: 23, Height: 24,
		},
	}
	got := state.ReplaySequence()

	wantPrefix := "one\r\ntwo\r\nthree\r\nfour"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("replay = %q, want content prefix %q", got, wantPrefix)
	}
	rest := strings.TrimPrefix(got, wantPrefix)
	if !strings.HasPrefix(rest, "\x1b[2;5H") {
		t.Errorf("cursor sequence = %q, want row 2 column 5", rest)
	}
	for _, mode := range []string{"\x1b[?1002h", "\x1b[?1006h", "\x1b[?1h"} {
		if !strings.Contains(rest, mode) {
			t.Errorf("replay missing mode sequence %q", mode)
		}
	}
	for _, absent := range []string{"\x1b[?25l", "\x1b[?7l", "\x1b[?1000h", "\x1b[?1003h", "\x1b[4h", "\x1b="} {
		if strings.Contains(rest, absent) {
			t.Errorf("replay contains %q for a mode that is not set", absent)
		}
	}
	if strings.Contains(got, "\x1b[1;24r") {
		t.Error("default full-height scroll region should not be emitted")
	}
}

func TestReplaySequenceScrollRegionBeforeCursor(t *testing.T) {
	state := PaneState{
		Screen: []string{"x"},
		Modes: PaneModes{
			CursorX: 0, CursorY: 5, CursorVisible: true, Wrap: true,
			ScrollRegionUpper: 2, ScrollRegionLower: 19, Height: 24,
		},
	}
	got := state.ReplaySequence()

	region := strings.Index(got, "\x1b[3;20r")
	cursor := strings.Index(got, "\x1b[6;1H")
	if region < 0 {
		t.Fatalf("replay = %q, missing scroll region", got)
	}
	if cursor < 0 {
		t.Fatalf("replay = %q, missing cursor position", got)
	}
	// Setting the region homes the cursor, so the region must come
	// first or the final cursor position would be lost.
	if region > cursor {
		t.Error("scroll region emitted after cursor position")
	}
}

func TestReplaySequenceHiddenCursorAndKeypad(t *testing.T) {
	state := PaneState{
		Screen: []string{"app"},
		Modes: PaneModes{
			CursorVisible: false, ApplicationKeypad: true, Insert: true,
			ScrollRegionLower: 23, Height: 24,
		},
	}
	got := state.ReplaySequence()
	for _, mode := range []string{"\x1b[?25l", "\x1b=", "\x1b[4h", "\x1b[?7l"} {
		if !strings.Contains(got, mode) {
			t.Errorf("replay missing %q", mode)
		}
	}
}
