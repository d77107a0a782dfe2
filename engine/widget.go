// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

// Widget is one local terminal emulator surface rendering one remote
// pane. The engine consumes the host's windowing and terminal
// emulation purely through this interface; it never draws anything
// itself.
//
// Widgets must be safe for concurrent use: output writes arrive on
// the engine's event goroutine while Show/Hide/Resize/Focus can come
// from host entry points such as ActivateWindow and SetContainerSize.
type Widget interface {
	// Write feeds bytes to the emulator.
	Write(data []byte)

	// Resize sets the emulator grid size in cells.
	Resize(columns, rows int)

	// Size returns the current grid size in cells.
	Size() (columns, rows int)

	// SetBounds positions the widget within its container, in
	// percentages.
	SetBounds(bounds Rect)

	Show()
	Hide()

	// Focus directs keyboard input to this widget.
	Focus()

	// Dispose releases the widget. No other method may be called
	// afterwards.
	Dispose()
}

// WidgetFactory creates widgets. The onInput callback delivers local
// keystrokes destined for the pane the widget renders; it may be
// invoked from any goroutine the host uses for input.
type WidgetFactory interface {
	New(paneID string, onInput func(data string)) Widget
}
