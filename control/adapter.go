// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"log/slog"
)

// EventType classifies enriched events produced by an Adapter.
type EventType int

const (
	// Connected carries connection info plus the full window set
	// with per-window pane geometry.
	Connected EventType = iota
	// Output carries decoded pane output.
	Output
	// WindowAdded carries a new window with its panes already
	// resolved.
	WindowAdded
	// WindowClosed reports a closed window.
	WindowClosed
	// LayoutChanged carries a window's refreshed pane geometry.
	LayoutChanged
	// ActivePaneChanged reports a window's new active pane.
	ActivePaneChanged
	// Disconnected reports the end of the connection.
	Disconnected
)

// WindowDetail is a window together with its panes.
type WindowDetail struct {
	Window
	Panes []Pane
}

// Event is one enriched occurrence. Which fields are meaningful
// depends on Type.
type Event struct {
	Type    EventType
	Info    ConnectionInfo
	Windows []WindowDetail

	// States holds the captured state of every pane at connect, keyed
	// by pane id. Only set on Connected.
	States map[string]PaneState

	Window   WindowDetail
	WindowID string
	PaneID   string
	Text     string
	Reason   string
}

// Adapter sits between a Session and its consumer. The wire protocol
// announces structural changes with bare ids; the adapter turns each
// announcement into a self-contained event by re-querying the server
// for the details, so the consumer never parses layout grammar or
// chases follow-up lookups.
//
// Enrichment queries run sequentially on the adapter's own goroutine,
// which keeps draining the session's event stream while a query is in
// flight. A query can lose the race against the change it describes — a
// window may close between its add notification and the lookup; the
// adapter swallows such events with a warning, trusting the follow-up
// close notification to keep the consumer consistent.
type Adapter struct {
	session      *Session
	historyLimit int
	logger       *slog.Logger
	events       chan Event

	// backlog holds session events that arrived while an enrichment
	// query was in flight. Only touched on the run goroutine.
	backlog []SessionEvent

	// snapshotSeqs marks, per pane, where in the event stream the
	// connect-time capture was taken. Output at or before the mark is
	// part of the captured screen and must not be replayed again.
	snapshotSeqs map[string]uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Session *Session

	// HistoryLimit bounds the scrollback captured per pane during
	// connect enrichment. Zero means unbounded.
	HistoryLimit int

	Logger *slog.Logger
}

// NewAdapter wraps a session. Call Start to begin event processing.
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		session:      cfg.Session,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
		events:       make(chan Event, 256),
		snapshotSeqs: make(map[string]uint64),
		done:         make(chan struct{}),
	}
}

// Events returns the enriched event stream.
func (a *Adapter) Events() <-chan Event { return a.events }

// Start begins consuming session events on a background goroutine.
func (a *Adapter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.run(ctx)
}

// Stop halts event processing and blocks until the goroutine exits.
// It does not touch the session.
func (a *Adapter) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	for {
		if len(a.backlog) > 0 {
			event := a.backlog[0]
			a.backlog = a.backlog[1:]
			a.handle(ctx, event)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case event := <-a.session.Events():
			a.handle(ctx, event)
		}
	}
}

// query runs one enrichment lookup on its own goroutine while the
// adapter keeps consuming session events into the backlog. A pane
// flooding output can therefore never starve the lookup's response.
func query[T any](ctx context.Context, a *Adapter, lookup func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := lookup(ctx)
		done <- outcome{value: value, err: err}
	}()
	for {
		select {
		case result := <-done:
			return result.value, result.err
		case event := <-a.session.Events():
			a.backlog = append(a.backlog, event)
		}
	}
}

func (a *Adapter) handle(ctx context.Context, event SessionEvent) {
	switch event.Type {
	case SessionConnected:
		a.handleConnected(ctx, event)
	case SessionOutput:
		if a.duplicatesSnapshot(event) {
			return
		}
		a.emit(ctx, Event{Type: Output, PaneID: event.PaneID, Text: event.Text})
	case SessionWindowAdd:
		a.handleWindowAdd(ctx, event.WindowID)
	case SessionWindowClose:
		a.emit(ctx, Event{Type: WindowClosed, WindowID: event.WindowID})
	case SessionLayoutChanged:
		a.handleLayoutChanged(ctx, event.WindowID)
	case SessionWindowPaneChanged:
		a.emit(ctx, Event{
			Type:     ActivePaneChanged,
			WindowID: event.WindowID,
			PaneID:   event.PaneID,
		})
	case SessionDisconnected:
		a.emit(ctx, Event{Type: Disconnected, Reason: event.Reason})
	default:
		a.logger.Error("unhandled session event", "type", event.Type)
	}
}

// handleConnected resolves pane geometry and captures pane state for
// every window, one query at a time (concurrent queries would break
// FIFO attribution), then emits a single consolidated Connected
// event. Multi-pane windows additionally get a LayoutChanged right
// after, so consumers that lay panes out on layout events need no
// special connect path.
//
// Session events keep flowing into the backlog while the queries run.
// Output a pane produced before its capture is dropped afterwards —
// the captured screen already shows it — and output from after the
// capture is delivered following the Connected event, in order, so
// replay is at-most-once and nothing is lost.
func (a *Adapter) handleConnected(ctx context.Context, event SessionEvent) {
	a.snapshotSeqs = make(map[string]uint64)
	details := make([]WindowDetail, 0, len(event.Windows))
	states := make(map[string]PaneState)
	for _, window := range event.Windows {
		windowID := window.ID
		panes, err := query(ctx, a, func(ctx context.Context) ([]Pane, error) {
			return a.session.ListPanes(ctx, windowID)
		})
		if err != nil {
			// The window vanished between enumeration and lookup; a
			// close notification is already on its way.
			a.logger.Warn("window disappeared during connect enumeration",
				"window", windowID, "error", err)
			continue
		}
		for _, pane := range panes {
			paneID := pane.ID
			state, err := query(ctx, a, func(ctx context.Context) (PaneState, error) {
				return a.session.CapturePaneState(ctx, paneID, a.historyLimit)
			})
			if err != nil {
				a.logger.Warn("pane disappeared during connect capture",
					"pane", paneID, "error", err)
				continue
			}
			states[paneID] = state
			a.snapshotSeqs[paneID] = state.snapshotSeq
		}
		details = append(details, WindowDetail{Window: window, Panes: panes})
	}
	a.emit(ctx, Event{Type: Connected, Info: event.Info, Windows: details, States: states})

	for _, detail := range details {
		if len(detail.Panes) > 1 {
			a.emit(ctx, Event{Type: LayoutChanged, WindowID: detail.ID, Window: detail})
		}
	}
}

// duplicatesSnapshot reports whether an output event describes content
// a connect-time capture already delivered. Output notifications and
// response blocks share one ordered stream, so output emitted at or
// before the capture's position is part of the captured screen.
func (a *Adapter) duplicatesSnapshot(event SessionEvent) bool {
	snapshotSeq, ok := a.snapshotSeqs[event.PaneID]
	if !ok {
		return false
	}
	if event.emitSeq > snapshotSeq {
		// Live output has caught up past the capture point; the mark
		// has served its purpose.
		delete(a.snapshotSeqs, event.PaneID)
		return false
	}
	return true
}

// handleWindowAdd resolves the new window's name and panes. Either
// lookup losing the race against a close swallows the event.
func (a *Adapter) handleWindowAdd(ctx context.Context, windowID string) {
	windows, err := query(ctx, a, func(ctx context.Context) ([]Window, error) {
		return a.session.ListWindows(ctx)
	})
	if err != nil {
		a.logger.Warn("window lookup failed after add notification",
			"window", windowID, "error", err)
		return
	}
	var window Window
	found := false
	for _, candidate := range windows {
		if candidate.ID == windowID {
			window = candidate
			found = true
			break
		}
	}
	if !found {
		a.logger.Warn("window closed before add could be resolved", "window", windowID)
		return
	}
	panes, err := query(ctx, a, func(ctx context.Context) ([]Pane, error) {
		return a.session.ListPanes(ctx, windowID)
	})
	if err != nil {
		a.logger.Warn("window closed before its panes could be resolved",
			"window", windowID, "error", err)
		return
	}
	a.emit(ctx, Event{Type: WindowAdded, Window: WindowDetail{Window: window, Panes: panes}})
}

// handleLayoutChanged re-queries a window's geometry.
func (a *Adapter) handleLayoutChanged(ctx context.Context, windowID string) {
	panes, err := query(ctx, a, func(ctx context.Context) ([]Pane, error) {
		return a.session.ListPanes(ctx, windowID)
	})
	if err != nil {
		a.logger.Warn("window closed before layout change could be resolved",
			"window", windowID, "error", err)
		return
	}
	a.emit(ctx, Event{
		Type:     LayoutChanged,
		WindowID: windowID,
		Window:   WindowDetail{Window: Window{ID: windowID}, Panes: panes},
	})
}

func (a *Adapter) emit(ctx context.Context, event Event) {
	select {
	case a.events <- event:
	case <-ctx.Done():
	}
}

// connected reports whether the underlying session is live.
func (a *Adapter) connected() bool {
	return a.session.State() == StateConnected
}

// SendKeys forwards keystrokes. A disconnected session drops them:
// input typed during a disconnect has nowhere meaningful to go.
func (a *Adapter) SendKeys(ctx context.Context, paneID, data string) error {
	if !a.connected() {
		a.logger.Debug("dropping keys, not connected", "pane", paneID)
		return nil
	}
	return a.session.SendKeys(ctx, paneID, data)
}

// RefreshClient forwards a client resize. Dropped when disconnected;
// the next connect announces the size at attach.
func (a *Adapter) RefreshClient(ctx context.Context, columns, rows int) error {
	if !a.connected() {
		return nil
	}
	return a.session.RefreshClient(ctx, columns, rows)
}

// SelectPane forwards an active-pane change. Dropped when
// disconnected.
func (a *Adapter) SelectPane(ctx context.Context, paneID string) error {
	if !a.connected() {
		return nil
	}
	return a.session.SelectPane(ctx, paneID)
}

// NewWindow creates a window. Unlike fire-and-forget input, creation
// has a result the caller needs, so a disconnected session is an
// error rather than a silent drop.
func (a *Adapter) NewWindow(ctx context.Context, name string) (string, error) {
	if !a.connected() {
		return "", fmt.Errorf("not connected")
	}
	return a.session.NewWindow(ctx, name)
}

// SplitWindow splits a pane and returns the new pane id.
func (a *Adapter) SplitWindow(ctx context.Context, paneID string, horizontal bool) (string, error) {
	if !a.connected() {
		return "", fmt.Errorf("not connected")
	}
	return a.session.SplitWindow(ctx, paneID, horizontal)
}

// KillWindow destroys a window. Dropped when disconnected.
func (a *Adapter) KillWindow(ctx context.Context, windowID string) error {
	if !a.connected() {
		return nil
	}
	return a.session.KillWindow(ctx, windowID)
}

// KillPane destroys a pane. Dropped when disconnected.
func (a *Adapter) KillPane(ctx context.Context, paneID string) error {
	if !a.connected() {
		return nil
	}
	return a.session.KillPane(ctx, paneID)
}

// CapturePaneState snapshots a pane for replay into a fresh widget.
func (a *Adapter) CapturePaneState(ctx context.Context, paneID string, historyLimit int) (PaneState, error) {
	if !a.connected() {
		return PaneState{}, fmt.Errorf("not connected")
	}
	return a.session.CapturePaneState(ctx, paneID, historyLimit)
}
