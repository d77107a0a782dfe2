// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/remux/control"
	"github.com/bureau-foundation/remux/lib/clock"
)

// resizeDebounce coalesces bursts of container resizes into one
// client-size announcement.
const resizeDebounce = 200 * time.Millisecond

// Commander is the subset of adapter operations the engine issues.
type Commander interface {
	SendKeys(ctx context.Context, paneID, data string) error
	RefreshClient(ctx context.Context, columns, rows int) error
	SelectPane(ctx context.Context, paneID string) error
}

// Config configures an Engine.
type Config struct {
	Commander Commander
	Factory   WidgetFactory

	// Events is the enriched event stream consumed by Run.
	Events <-chan control.Event

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine reconciles remote window and pane structure into local
// widgets. Each remote window is a tab; each pane in it is a widget
// positioned by percentage. The engine owns which widget exists,
// where it sits, what size the remote client is told to be, and where
// pane output and local input flow. It draws nothing itself.
type Engine struct {
	commander Commander
	factory   WidgetFactory
	events    <-chan control.Event
	clock     clock.Clock
	logger    *slog.Logger

	mu               sync.Mutex
	connected        bool
	disconnectReason string

	windows map[string]*windowState
	order   []string
	active  string

	// pendingOutput queues output for panes whose widget does not
	// exist yet, flushed in order on creation.
	pendingOutput map[string][]string

	lastSentColumns int
	lastSentRows    int
	resizeTimer     *clock.Timer
}

// windowState is one remote window: its authoritative pane list and
// the widgets rendering those panes.
type windowState struct {
	id         string
	name       string
	panes      []control.Pane
	widgets    map[string]Widget
	activePane string
}

// New creates an Engine. Call Run to start consuming events.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		commander:     cfg.Commander,
		factory:       cfg.Factory,
		events:        cfg.Events,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		windows:       make(map[string]*windowState),
		pendingOutput: make(map[string][]string),
	}
}

// Run consumes events until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.events:
			e.Handle(event)
		}
	}
}

// Handle applies one enriched event.
func (e *Engine) Handle(event control.Event) {
	switch event.Type {
	case control.Connected:
		e.handleConnected(event)
	case control.Output:
		e.handleOutput(event.PaneID, event.Text)
	case control.WindowAdded:
		e.handleWindowAdded(event.Window)
	case control.WindowClosed:
		e.handleWindowClosed(event.WindowID)
	case control.LayoutChanged:
		e.handleLayoutChanged(event.WindowID, event.Window.Panes)
	case control.ActivePaneChanged:
		e.handleActivePaneChanged(event.WindowID, event.PaneID)
	case control.Disconnected:
		e.handleDisconnected(event.Reason)
	default:
		e.logger.Error("unhandled adapter event", "type", event.Type)
	}
}

// Connected reports whether a connection is live.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// DisconnectReason returns the reason of the most recent disconnect,
// empty while connected or before any connection.
func (e *Engine) DisconnectReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnectReason
}

// ActiveWindow returns the id of the active window, empty when none.
func (e *Engine) ActiveWindow() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Windows returns window ids in order.
func (e *Engine) Windows() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

// ActivePane returns a window's active pane id, empty when unknown.
func (e *Engine) ActivePane(windowID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	window, ok := e.windows[windowID]
	if !ok {
		return ""
	}
	return window.activePane
}

// WindowName returns a window's name, empty when unknown.
func (e *Engine) WindowName(windowID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	window, ok := e.windows[windowID]
	if !ok {
		return ""
	}
	return window.name
}

// WindowPanes returns a window's current pane ids, in layout order.
func (e *Engine) WindowPanes(windowID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	window, ok := e.windows[windowID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(window.panes))
	for _, pane := range window.panes {
		ids = append(ids, pane.ID)
	}
	return ids
}

func (e *Engine) handleConnected(event control.Event) {
	e.mu.Lock()
	e.disposeAllLocked()
	e.connected = true
	e.disconnectReason = ""

	for _, detail := range event.Windows {
		e.addWindowLocked(detail, event.States)
	}
	if len(e.order) > 0 {
		e.active = e.order[0]
	}
	for _, id := range e.order {
		e.setWindowVisibleLocked(e.windows[id], id == e.active)
	}
	e.focusActivePaneLocked()
	e.mu.Unlock()

	e.negotiateClientSize()
}

func (e *Engine) handleOutput(paneID, text string) {
	e.mu.Lock()
	widget := e.findWidgetLocked(paneID)
	if widget == nil {
		// The pane's widget is not built yet (its window-add is still
		// being enriched, or a connect snapshot is mid-flight). Queue
		// in arrival order.
		e.pendingOutput[paneID] = append(e.pendingOutput[paneID], text)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	widget.Write([]byte(text))
}

func (e *Engine) handleWindowAdded(detail control.WindowDetail) {
	e.mu.Lock()
	if window, ok := e.windows[detail.ID]; ok {
		// Already built from a layout announcement that outran the
		// add; adopt the name and active pane the layout lacked.
		window.name = detail.Name
		e.applyLayoutLocked(window, detail.Panes)
		for _, pane := range detail.Panes {
			if pane.Active {
				window.activePane = pane.ID
			}
		}
		e.mu.Unlock()
		return
	}
	e.addWindowLocked(detail, nil)
	window := e.windows[detail.ID]
	if e.active == "" {
		e.active = detail.ID
	}
	e.setWindowVisibleLocked(window, e.active == detail.ID)
	active := e.active == detail.ID
	e.mu.Unlock()

	if active {
		e.negotiateClientSize()
	}
}

func (e *Engine) handleWindowClosed(windowID string) {
	e.mu.Lock()
	window, ok := e.windows[windowID]
	if !ok {
		e.mu.Unlock()
		return
	}
	for _, widget := range window.widgets {
		widget.Dispose()
	}
	delete(e.windows, windowID)
	for i, id := range e.order {
		if id == windowID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}

	wasActive := e.active == windowID
	if wasActive {
		e.active = ""
		if len(e.order) > 0 {
			e.active = e.order[0]
			e.setWindowVisibleLocked(e.windows[e.active], true)
		}
		e.focusActivePaneLocked()
	}
	e.mu.Unlock()

	if wasActive && e.ActiveWindow() != "" {
		e.negotiateClientSize()
	}
}

func (e *Engine) handleLayoutChanged(windowID string, panes []control.Pane) {
	if len(panes) == 0 {
		return
	}
	e.mu.Lock()
	window, ok := e.windows[windowID]
	if !ok {
		// A window created moments ago can announce its layout before
		// the add has been enriched. Build it from the layout itself
		// rather than dropping the geometry.
		e.logger.Info("layout change for unknown window, creating it", "window", windowID)
		e.addWindowLocked(control.WindowDetail{
			Window: control.Window{ID: windowID},
			Panes:  panes,
		}, nil)
		window = e.windows[windowID]
		e.setWindowVisibleLocked(window, e.active == windowID)
		if e.active == "" {
			e.active = windowID
			e.setWindowVisibleLocked(window, true)
		}
	}
	e.applyLayoutLocked(window, panes)
	active := e.active == windowID
	e.mu.Unlock()

	if active {
		e.negotiateClientSize()
	}
}

func (e *Engine) handleActivePaneChanged(windowID, paneID string) {
	e.mu.Lock()
	window, ok := e.windows[windowID]
	if !ok {
		e.mu.Unlock()
		return
	}
	window.activePane = paneID
	var widget Widget
	if e.active == windowID {
		widget = window.widgets[paneID]
	}
	e.mu.Unlock()
	if widget != nil {
		widget.Focus()
	}
}

func (e *Engine) handleDisconnected(reason string) {
	e.mu.Lock()
	e.connected = false
	e.disconnectReason = reason
	e.disposeAllLocked()
	e.mu.Unlock()
	e.logger.Info("engine stopped routing", "reason", reason)
}

// ActivateWindow switches the visible tab. The previous window's
// widgets hide but keep their state; the new window re-fits the
// client size and restores focus to its last active pane.
func (e *Engine) ActivateWindow(windowID string) {
	e.mu.Lock()
	window, ok := e.windows[windowID]
	if !ok || e.active == windowID {
		e.mu.Unlock()
		return
	}
	if previous, ok := e.windows[e.active]; ok {
		e.setWindowVisibleLocked(previous, false)
	}
	e.active = windowID
	e.setWindowVisibleLocked(window, true)
	e.focusActivePaneLocked()
	activePane := window.activePane
	e.mu.Unlock()

	e.negotiateClientSize()
	if activePane != "" {
		e.command(func(ctx context.Context) error {
			return e.commander.SelectPane(ctx, activePane)
		}, "select pane")
	}
}

// SetContainerSize reacts to the host container resizing. The
// announcement to the remote side is debounced: drag-resizing emits a
// storm of sizes and only the last one matters.
func (e *Engine) SetContainerSize(columns, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resizeTimer == nil {
		e.resizeTimer = e.clock.AfterFunc(resizeDebounce, e.negotiateClientSize)
		return
	}
	e.resizeTimer.Reset(resizeDebounce)
}

// addWindowLocked builds a window's state and widgets. Pane states,
// when present, are replayed into the fresh widgets; output queued
// for a pane is flushed after.
func (e *Engine) addWindowLocked(detail control.WindowDetail, states map[string]control.PaneState) {
	window := &windowState{
		id:      detail.ID,
		name:    detail.Name,
		panes:   detail.Panes,
		widgets: make(map[string]Widget),
	}
	bounds := paneBounds(detail.Panes)
	for _, pane := range detail.Panes {
		widget := e.buildWidgetLocked(window, pane, bounds[pane.ID], states[pane.ID])
		window.widgets[pane.ID] = widget
		if pane.Active {
			window.activePane = pane.ID
		}
	}
	if window.activePane == "" && len(detail.Panes) > 0 {
		window.activePane = detail.Panes[0].ID
	}
	e.windows[detail.ID] = window
	e.order = append(e.order, detail.ID)
}

// buildWidgetLocked creates and initializes one widget: sized to the
// remote pane, placed, state replayed, queued output flushed.
func (e *Engine) buildWidgetLocked(window *windowState, pane control.Pane, bounds Rect, state control.PaneState) Widget {
	paneID := pane.ID
	widget := e.factory.New(paneID, func(data string) {
		e.sendInput(paneID, data)
	})
	widget.Resize(pane.Width, pane.Height)
	widget.SetBounds(bounds)
	if len(state.Screen) > 0 || len(state.History) > 0 {
		widget.Write([]byte(state.ReplaySequence()))
	}
	for _, text := range e.pendingOutput[paneID] {
		widget.Write([]byte(text))
	}
	delete(e.pendingOutput, paneID)
	return widget
}

// applyLayoutLocked converges a window onto an authoritative pane
// list: widgets for vanished panes are disposed, missing ones
// created, survivors resized and repositioned.
func (e *Engine) applyLayoutLocked(window *windowState, panes []control.Pane) {
	current := make(map[string]control.Pane, len(panes))
	for _, pane := range panes {
		current[pane.ID] = pane
	}
	for paneID, widget := range window.widgets {
		if _, ok := current[paneID]; !ok {
			widget.Dispose()
			delete(window.widgets, paneID)
		}
	}

	visible := e.active == window.id
	bounds := paneBounds(panes)
	for _, pane := range panes {
		widget, ok := window.widgets[pane.ID]
		if !ok {
			widget = e.buildWidgetLocked(window, pane, bounds[pane.ID], control.PaneState{})
			window.widgets[pane.ID] = widget
			if visible {
				widget.Show()
			} else {
				widget.Hide()
			}
			continue
		}
		widget.Resize(pane.Width, pane.Height)
		widget.SetBounds(bounds[pane.ID])
	}

	window.panes = panes
	if _, ok := window.widgets[window.activePane]; !ok {
		window.activePane = ""
		for _, pane := range panes {
			if pane.Active {
				window.activePane = pane.ID
				break
			}
		}
		if window.activePane == "" && len(panes) > 0 {
			window.activePane = panes[0].ID
		}
	}
}

func (e *Engine) setWindowVisibleLocked(window *windowState, visible bool) {
	for _, widget := range window.widgets {
		if visible {
			widget.Show()
		} else {
			widget.Hide()
		}
	}
}

func (e *Engine) focusActivePaneLocked() {
	window, ok := e.windows[e.active]
	if !ok {
		return
	}
	if widget, ok := window.widgets[window.activePane]; ok {
		widget.Focus()
	}
}

func (e *Engine) findWidgetLocked(paneID string) Widget {
	for _, window := range e.windows {
		if widget, ok := window.widgets[paneID]; ok {
			return widget
		}
	}
	return nil
}

func (e *Engine) disposeAllLocked() {
	for _, window := range e.windows {
		for _, widget := range window.widgets {
			widget.Dispose()
		}
	}
	e.windows = make(map[string]*windowState)
	e.order = nil
	e.active = ""
	e.pendingOutput = make(map[string][]string)
	e.lastSentColumns = 0
	e.lastSentRows = 0
}

// sendInput forwards local keystrokes to the pane that produced them.
// Input during a disconnect is dropped.
func (e *Engine) sendInput(paneID, data string) {
	e.mu.Lock()
	connected := e.connected
	e.mu.Unlock()
	if !connected {
		return
	}
	e.command(func(ctx context.Context) error {
		return e.commander.SendKeys(ctx, paneID, data)
	}, "send keys")
}

// negotiateClientSize computes the combined size of the active
// window's widgets and announces it, deduplicated against the last
// value sent.
func (e *Engine) negotiateClientSize() {
	e.mu.Lock()
	window, ok := e.windows[e.active]
	if !ok || !e.connected {
		e.mu.Unlock()
		return
	}
	extents := make([]paneExtent, 0, len(window.panes))
	for _, pane := range window.panes {
		widget, ok := window.widgets[pane.ID]
		if !ok {
			continue
		}
		columns, rows := widget.Size()
		extents = append(extents, paneExtent{
			left:    pane.Left,
			top:     pane.Top,
			columns: columns,
			rows:    rows,
		})
	}
	columns, rows := combinedClientSize(extents)
	if columns <= 0 || rows <= 0 {
		e.mu.Unlock()
		return
	}
	if columns == e.lastSentColumns && rows == e.lastSentRows {
		e.mu.Unlock()
		return
	}
	e.lastSentColumns = columns
	e.lastSentRows = rows
	e.mu.Unlock()

	e.command(func(ctx context.Context) error {
		return e.commander.RefreshClient(ctx, columns, rows)
	}, "refresh client")
}

// command runs one remote operation off the engine's lock and logs
// failures; engine state never depends on a command succeeding.
func (e *Engine) command(op func(context.Context) error, name string) {
	if err := op(context.Background()); err != nil {
		e.logger.Warn("remote command failed", "op", name, "error", err)
	}
}
