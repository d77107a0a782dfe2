// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Window is one remote window as reported by enumeration.
type Window struct {
	// ID is the server-assigned window id ("@3").
	ID string

	// ActivePaneID is the window's currently active pane ("%7").
	ActivePaneID string

	// Name is the window name. May contain spaces.
	Name string
}

// Pane is one remote pane with its geometry inside its window.
type Pane struct {
	// ID is the server-assigned pane id ("%7").
	ID string

	// Active reports whether this is the window's active pane.
	Active bool

	// Left and Top are the pane's cell offset within the window.
	Left int
	Top  int

	// Width and Height are the pane's size in cells, excluding
	// border cells.
	Width  int
	Height int
}

// PaneModes is the terminal state of a pane beyond its content:
// cursor position and the mode flags a replaying client must restore
// for interactive programs to keep working.
type PaneModes struct {
	CursorX int
	CursorY int

	CursorVisible bool

	// Mouse reporting modes. SGR is the extended coordinate
	// encoding, orthogonal to which events are reported.
	MouseStandard bool
	MouseButton   bool
	MouseAll      bool
	MouseSGR      bool

	ApplicationCursorKeys bool
	ApplicationKeypad     bool

	Wrap   bool
	Insert bool

	// AlternateScreen reports whether the pane is on the alternate
	// screen (full-screen program active). It decides the capture
	// strategy.
	AlternateScreen bool

	// HistorySize is the number of scrollback lines above the
	// visible screen.
	HistorySize int

	// ScrollRegionUpper and ScrollRegionLower are the DECSTBM
	// margins, zero-based inclusive.
	ScrollRegionUpper int
	ScrollRegionLower int

	// Height is the pane height in rows, needed to decide whether
	// the scroll region is the default full-screen one.
	Height int
}

const (
	windowFormat    = "#{window_id} #{pane_id} #{window_name}"
	paneFormat      = "#{pane_id} #{pane_active} #{pane_left} #{pane_top} #{pane_width} #{pane_height}"
	paneModesFormat = "#{cursor_x} #{cursor_y} #{cursor_flag} " +
		"#{mouse_standard_flag} #{mouse_button_flag} #{mouse_all_flag} #{mouse_sgr_flag} " +
		"#{keypad_cursor_flag} #{keypad_flag} #{wrap_flag} #{insert_flag} " +
		"#{alternate_on} #{history_size} " +
		"#{scroll_region_upper} #{scroll_region_lower} #{pane_height}"
)

// ListWindows enumerates the session's windows with their active
// panes and names.
func (s *Session) ListWindows(ctx context.Context) ([]Window, error) {
	lines, _, err := s.do(ctx, fmt.Sprintf("list-windows -F '%s'", windowFormat))
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	windows := make([]Window, 0, len(lines))
	for _, line := range lines {
		window, err := parseWindow(line)
		if err != nil {
			return nil, fmt.Errorf("list windows: %w", err)
		}
		windows = append(windows, window)
	}
	return windows, nil
}

// ListPanes enumerates a window's panes with their geometry.
func (s *Session) ListPanes(ctx context.Context, windowID string) ([]Pane, error) {
	lines, _, err := s.do(ctx, fmt.Sprintf("list-panes -t %s -F '%s'", windowID, paneFormat))
	if err != nil {
		return nil, fmt.Errorf("list panes of %s: %w", windowID, err)
	}
	panes := make([]Pane, 0, len(lines))
	for _, line := range lines {
		pane, err := parsePane(line)
		if err != nil {
			return nil, fmt.Errorf("list panes of %s: %w", windowID, err)
		}
		panes = append(panes, pane)
	}
	return panes, nil
}

// SendKeys delivers raw bytes to a pane as keyboard input. The
// payload is hex-encoded on the wire, so any byte sequence — control
// characters, escape sequences, UTF-8 — passes through without
// quoting hazards.
func (s *Session) SendKeys(ctx context.Context, paneID string, data string) error {
	if data == "" {
		return nil
	}
	_, _, err := s.do(ctx, fmt.Sprintf("send-keys -H -t %s %s", paneID, EncodeHex(data)))
	if err != nil {
		return fmt.Errorf("send keys to %s: %w", paneID, err)
	}
	return nil
}

// RefreshClient announces the local client size to the remote server,
// which reflows every window to fit.
func (s *Session) RefreshClient(ctx context.Context, columns, rows int) error {
	_, _, err := s.do(ctx, fmt.Sprintf("refresh-client -C %d,%d", columns, rows))
	if err != nil {
		return fmt.Errorf("refresh client to %dx%d: %w", columns, rows, err)
	}
	return nil
}

// NewWindow creates a window, optionally named, and returns its id.
func (s *Session) NewWindow(ctx context.Context, name string) (string, error) {
	command := "new-window -P -F '#{window_id}'"
	if name != "" {
		command = fmt.Sprintf("new-window -n '%s' -P -F '#{window_id}'", escapeSingleQuotes(name))
	}
	lines, _, err := s.do(ctx, command)
	if err != nil {
		return "", fmt.Errorf("new window: %w", err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("new window: empty response")
	}
	return strings.TrimSpace(lines[0]), nil
}

// KillWindow destroys a window and every pane in it.
func (s *Session) KillWindow(ctx context.Context, windowID string) error {
	if _, _, err := s.do(ctx, "kill-window -t "+windowID); err != nil {
		return fmt.Errorf("kill window %s: %w", windowID, err)
	}
	return nil
}

// RenameWindow sets a window's name.
func (s *Session) RenameWindow(ctx context.Context, windowID, name string) error {
	command := fmt.Sprintf("rename-window -t %s '%s'", windowID, escapeSingleQuotes(name))
	if _, _, err := s.do(ctx, command); err != nil {
		return fmt.Errorf("rename window %s: %w", windowID, err)
	}
	return nil
}

// SplitWindow splits a pane and returns the new pane's id. With
// horizontal set the new pane appears to the right, otherwise below.
func (s *Session) SplitWindow(ctx context.Context, paneID string, horizontal bool) (string, error) {
	command := fmt.Sprintf("split-window -t %s -P -F '#{pane_id}'", paneID)
	if horizontal {
		command = fmt.Sprintf("split-window -h -t %s -P -F '#{pane_id}'", paneID)
	}
	lines, _, err := s.do(ctx, command)
	if err != nil {
		return "", fmt.Errorf("split %s: %w", paneID, err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("split %s: empty response", paneID)
	}
	return strings.TrimSpace(lines[0]), nil
}

// SelectPane makes a pane its window's active pane.
func (s *Session) SelectPane(ctx context.Context, paneID string) error {
	if _, _, err := s.do(ctx, "select-pane -t "+paneID); err != nil {
		return fmt.Errorf("select pane %s: %w", paneID, err)
	}
	return nil
}

// KillPane destroys a single pane.
func (s *Session) KillPane(ctx context.Context, paneID string) error {
	if _, _, err := s.do(ctx, "kill-pane -t "+paneID); err != nil {
		return fmt.Errorf("kill pane %s: %w", paneID, err)
	}
	return nil
}

// CapturePane captures pane content with embedded escape sequences
// preserved. A zero start and end captures the visible screen only;
// otherwise they are signed line offsets (negative rows are history
// above the visible screen, inclusive on both ends).
func (s *Session) CapturePane(ctx context.Context, paneID string, start, end int) ([]string, error) {
	lines, _, err := s.capturePane(ctx, paneID, start, end)
	return lines, err
}

// capturePane additionally returns the response's emit count, which
// marks the capture's position relative to output notifications.
func (s *Session) capturePane(ctx context.Context, paneID string, start, end int) ([]string, uint64, error) {
	command := fmt.Sprintf("capture-pane -p -e -t %s", paneID)
	if start != 0 || end != 0 {
		command = fmt.Sprintf("capture-pane -p -e -t %s -S %d -E %d", paneID, start, end)
	}
	lines, emitSeq, err := s.do(ctx, command)
	if err != nil {
		return nil, 0, fmt.Errorf("capture pane %s: %w", paneID, err)
	}
	return lines, emitSeq, nil
}

// QueryPaneModes reads a pane's cursor position and mode flags in a
// single round trip.
func (s *Session) QueryPaneModes(ctx context.Context, paneID string) (PaneModes, error) {
	command := fmt.Sprintf("display-message -p -t %s '%s'", paneID, paneModesFormat)
	lines, _, err := s.do(ctx, command)
	if err != nil {
		return PaneModes{}, fmt.Errorf("query modes of %s: %w", paneID, err)
	}
	if len(lines) == 0 {
		return PaneModes{}, fmt.Errorf("query modes of %s: empty response", paneID)
	}
	modes, err := parsePaneModes(lines[0])
	if err != nil {
		return PaneModes{}, fmt.Errorf("query modes of %s: %w", paneID, err)
	}
	return modes, nil
}

func parseWindow(line string) (Window, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return Window{}, fmt.Errorf("malformed window line %q", line)
	}
	window := Window{ID: fields[0], ActivePaneID: fields[1]}
	if len(fields) == 3 {
		window.Name = fields[2]
	}
	return window, nil
}

func parsePane(line string) (Pane, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Pane{}, fmt.Errorf("malformed pane line %q", line)
	}
	numbers := make([]int, 4)
	for i, field := range fields[2:] {
		value, err := strconv.Atoi(field)
		if err != nil {
			return Pane{}, fmt.Errorf("malformed pane line %q: %w", line, err)
		}
		numbers[i] = value
	}
	return Pane{
		ID:     fields[0],
		Active: fields[1] == "1",
		Left:   numbers[0],
		Top:    numbers[1],
		Width:  numbers[2],
		Height: numbers[3],
	}, nil
}

func parsePaneModes(line string) (PaneModes, error) {
	fields := strings.Fields(line)
	if len(fields) != 16 {
		return PaneModes{}, fmt.Errorf("malformed mode line %q", line)
	}
	numbers := make([]int, len(fields))
	for i, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil {
			return PaneModes{}, fmt.Errorf("malformed mode line %q: %w", line, err)
		}
		numbers[i] = value
	}
	return PaneModes{
		CursorX:               numbers[0],
		CursorY:               numbers[1],
		CursorVisible:         numbers[2] == 1,
		MouseStandard:         numbers[3] == 1,
		MouseButton:           numbers[4] == 1,
		MouseAll:              numbers[5] == 1,
		MouseSGR:              numbers[6] == 1,
		ApplicationCursorKeys: numbers[7] == 1,
		ApplicationKeypad:     numbers[8] == 1,
		Wrap:                  numbers[9] == 1,
		Insert:                numbers[10] == 1,
		AlternateScreen:       numbers[11] == 1,
		HistorySize:           numbers[12],
		ScrollRegionUpper:     numbers[13],
		ScrollRegionLower:     numbers[14],
		Height:                numbers[15],
	}, nil
}

// escapeSingleQuotes makes a value safe inside a single-quoted
// command argument.
func escapeSingleQuotes(value string) string {
	return strings.ReplaceAll(value, "'", `'\''`)
}
