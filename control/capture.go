// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"strings"
)

// PaneState is a point-in-time snapshot of a pane: content, cursor,
// and mode flags. Captured when a client attaches to an existing pane
// so the local terminal can be brought up to date before live output
// resumes.
type PaneState struct {
	PaneID string

	// History is scrollback above the visible screen, oldest first.
	// Empty for panes on the alternate screen, which has none.
	History []string

	// Screen is the visible content, top to bottom, with embedded
	// escape sequences preserved.
	Screen []string

	Modes PaneModes

	// snapshotSeq is the session emit count when the visible screen
	// was captured. Output events at or before this position were on
	// the wire ahead of the capture, so the screen already shows them.
	snapshotSeq uint64
}

// CapturePaneState snapshots a pane. The capture strategy depends on
// the screen the pane is on: the alternate screen has no scrollback,
// so only the visible content is captured; the normal screen gets two
// non-overlapping ranges, history (bounded by historyLimit) and the
// visible screen.
//
// Modes are queried first so the alternate-screen decision and the
// history bound reflect the same moment as the content. Output
// arriving between the queries can still skew the snapshot slightly;
// live output replayed afterwards converges it.
func (s *Session) CapturePaneState(ctx context.Context, paneID string, historyLimit int) (PaneState, error) {
	modes, err := s.QueryPaneModes(ctx, paneID)
	if err != nil {
		return PaneState{}, fmt.Errorf("capture state of %s: %w", paneID, err)
	}

	state := PaneState{PaneID: paneID, Modes: modes}

	if modes.AlternateScreen {
		screen, emitSeq, err := s.capturePane(ctx, paneID, 0, 0)
		if err != nil {
			return PaneState{}, fmt.Errorf("capture state of %s: %w", paneID, err)
		}
		state.Screen = screen
		state.snapshotSeq = emitSeq
		return state, nil
	}

	historyLines := modes.HistorySize
	if historyLimit > 0 && historyLines > historyLimit {
		historyLines = historyLimit
	}
	if historyLines > 0 {
		history, err := s.CapturePane(ctx, paneID, -historyLines, -1)
		if err != nil {
			return PaneState{}, fmt.Errorf("capture state of %s: %w", paneID, err)
		}
		state.History = history
	}

	screen, emitSeq, err := s.capturePane(ctx, paneID, 0, 0)
	if err != nil {
		return PaneState{}, fmt.Errorf("capture state of %s: %w", paneID, err)
	}
	state.Screen = screen
	state.snapshotSeq = emitSeq
	return state, nil
}

// ReplaySequence renders the snapshot as a byte sequence for a fresh
// local terminal: content first, then cursor position, then the mode
// flags interactive programs depend on. Feeding the result to an
// empty terminal reproduces the remote pane.
func (state PaneState) ReplaySequence() string {
	var b strings.Builder

	lines := make([]string, 0, len(state.History)+len(state.Screen))
	lines = append(lines, state.History...)
	lines = append(lines, state.Screen...)
	// No newline after the last line: a full screen would otherwise
	// scroll one row.
	b.WriteString(strings.Join(lines, "\r\n"))

	modes := state.Modes

	// DECSTBM homes the cursor, so a non-default scroll region must
	// be set before the cursor is positioned.
	if modes.ScrollRegionUpper != 0 || (modes.Height > 0 && modes.ScrollRegionLower != modes.Height-1) {
		fmt.Fprintf(&b, "\x1b[%d;%dr", modes.ScrollRegionUpper+1, modes.ScrollRegionLower+1)
	}

	// Cursor position is row;column, one-based.
	fmt.Fprintf(&b, "\x1b[%d;%dH", modes.CursorY+1, modes.CursorX+1)

	if !modes.CursorVisible {
		b.WriteString("\x1b[?25l")
	}
	if modes.MouseStandard {
		b.WriteString("\x1b[?1000h")
	}
	if modes.MouseButton {
		b.WriteString("\x1b[?1002h")
	}
	if modes.MouseAll {
		b.WriteString("\x1b[?1003h")
	}
	if modes.MouseSGR {
		b.WriteString("\x1b[?1006h")
	}
	if modes.ApplicationCursorKeys {
		b.WriteString("\x1b[?1h")
	}
	if modes.ApplicationKeypad {
		b.WriteString("\x1b=")
	}
	if !modes.Wrap {
		b.WriteString("\x1b[?7l")
	}
	if modes.Insert {
		b.WriteString("\x1b[4h")
	}

	return b.String()
}
