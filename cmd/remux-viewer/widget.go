// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/remux/engine"
)

// maxWidgetLines bounds the text a widget retains per pane.
const maxWidgetLines = 5000

// textWidget is the viewer's pane surface: it accumulates decoded
// pane output as lines of text for the viewport to display. It is not
// a real terminal emulator — cursor motion is reduced to newline and
// carriage-return handling, and styling sequences are stripped at
// render time.
type textWidget struct {
	mu      sync.Mutex
	paneID  string
	onInput func(string)
	notify  func()

	lines   []string
	current string

	columns int
	rows    int
	bounds  engine.Rect
	visible bool
}

func (w *textWidget) Write(data []byte) {
	w.mu.Lock()
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, r := range text {
		switch r {
		case '\n':
			w.lines = append(w.lines, w.current)
			w.current = ""
		case '\r':
			// Progress-style redraws overwrite the current line.
			w.current = ""
		default:
			w.current += string(r)
		}
	}
	if overflow := len(w.lines) - maxWidgetLines; overflow > 0 {
		w.lines = w.lines[overflow:]
	}
	w.mu.Unlock()
	w.notify()
}

func (w *textWidget) Resize(columns, rows int) {
	w.mu.Lock()
	w.columns, w.rows = columns, rows
	w.mu.Unlock()
}

func (w *textWidget) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.columns, w.rows
}

// fit resizes the widget to its share of a container, using the
// percentage bounds the engine assigned.
func (w *textWidget) fit(columns, rows int) {
	w.mu.Lock()
	width, height := w.bounds.Width, w.bounds.Height
	if width <= 0 || height <= 0 {
		width, height = 100, 100
	}
	w.columns = int(float64(columns) * width / 100)
	w.rows = int(float64(rows) * height / 100)
	w.mu.Unlock()
}

func (w *textWidget) SetBounds(bounds engine.Rect) {
	w.mu.Lock()
	w.bounds = bounds
	w.mu.Unlock()
}

func (w *textWidget) Show() { w.mu.Lock(); w.visible = true; w.mu.Unlock(); w.notify() }
func (w *textWidget) Hide() { w.mu.Lock(); w.visible = false; w.mu.Unlock() }

func (w *textWidget) Focus() { w.notify() }

func (w *textWidget) Dispose() {
	w.mu.Lock()
	w.lines = nil
	w.current = ""
	w.mu.Unlock()
	w.notify()
}

// content renders the accumulated text with styling sequences
// stripped, ready for the viewport.
func (w *textWidget) content() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b strings.Builder
	for _, line := range w.lines {
		b.WriteString(ansi.Strip(line))
		b.WriteByte('\n')
	}
	b.WriteString(ansi.Strip(w.current))
	return b.String()
}

// send forwards local keystrokes to the pane this widget renders.
func (w *textWidget) send(data string) {
	w.onInput(data)
}

// widgetFactory builds textWidgets and keeps them addressable by pane
// id for the model's rendering path.
type widgetFactory struct {
	mu      sync.Mutex
	widgets map[string]*textWidget
	notify  func()
}

func newWidgetFactory(notify func()) *widgetFactory {
	return &widgetFactory{
		widgets: make(map[string]*textWidget),
		notify:  notify,
	}
}

func (f *widgetFactory) New(paneID string, onInput func(data string)) engine.Widget {
	widget := &textWidget{
		paneID:  paneID,
		onInput: onInput,
		notify:  f.notify,
	}
	f.mu.Lock()
	f.widgets[paneID] = widget
	f.mu.Unlock()
	return widget
}

func (f *widgetFactory) get(paneID string) *textWidget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.widgets[paneID]
}
