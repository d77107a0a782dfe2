// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/bureau-foundation/remux/control"
)

func TestCombinedClientSizeSideBySide(t *testing.T) {
	columns, rows := combinedClientSize([]paneExtent{
		{left: 0, top: 0, columns: 60, rows: 24},
		{left: 61, top: 0, columns: 59, rows: 23},
	})
	if columns != 120 {
		t.Errorf("columns = %d, want widths plus one border column", columns)
	}
	if rows != 24 {
		t.Errorf("rows = %d, want the tallest pane", rows)
	}
}

func TestCombinedClientSizeStacked(t *testing.T) {
	columns, rows := combinedClientSize([]paneExtent{
		{left: 0, top: 0, columns: 80, rows: 12},
		{left: 0, top: 13, columns: 78, rows: 11},
	})
	if columns != 80 {
		t.Errorf("columns = %d, want the widest pane", columns)
	}
	if rows != 24 {
		t.Errorf("rows = %d, want heights plus one border row", rows)
	}
}

func TestCombinedClientSizeIrregularFallsBackToBoundingBox(t *testing.T) {
	columns, rows := combinedClientSize([]paneExtent{
		{left: 0, top: 0, columns: 40, rows: 24},
		{left: 41, top: 0, columns: 39, rows: 11},
		{left: 41, top: 12, columns: 39, rows: 12},
	})
	if columns != 80 {
		t.Errorf("columns = %d, want bounding box width", columns)
	}
	if rows != 24 {
		t.Errorf("rows = %d, want bounding box height", rows)
	}
}

func TestCombinedClientSizeSinglePane(t *testing.T) {
	columns, rows := combinedClientSize([]paneExtent{{columns: 100, rows: 40}})
	if columns != 100 || rows != 40 {
		t.Errorf("size = %dx%d, want the pane's own size", columns, rows)
	}
}

func TestPaneBoundsEqualSplit(t *testing.T) {
	bounds := paneBounds([]control.Pane{
		{ID: "%1", Left: 0, Top: 0, Width: 60, Height: 24},
		{ID: "%2", Left: 61, Top: 0, Width: 59, Height: 24},
	})

	left, right := bounds["%1"], bounds["%2"]
	if left.X != 0 || left.Y != 0 {
		t.Errorf("left pane origin = (%v, %v)", left.X, left.Y)
	}
	if left.X+left.Width > right.X+0.001 {
		t.Errorf("panes overlap: left ends at %v, right starts at %v", left.X+left.Width, right.X)
	}
	for id, rect := range bounds {
		if rect.X+rect.Width > 100.001 || rect.Y+rect.Height > 100.001 {
			t.Errorf("pane %s exceeds the container: %+v", id, rect)
		}
	}
	if right.X+right.Width < 99.999 {
		t.Errorf("right pane ends at %v, want the container edge", right.X+right.Width)
	}
}

func TestPaneBoundsSinglePaneFillsContainer(t *testing.T) {
	bounds := paneBounds([]control.Pane{{ID: "%1", Width: 80, Height: 24}})
	if bounds["%1"] != fullRect {
		t.Errorf("bounds = %+v, want the full container", bounds["%1"])
	}
}
