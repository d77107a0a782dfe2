// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/bureau-foundation/remux/control"
)

// Rect is a widget placement in container percentages.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// fullRect places a single widget over the whole container.
var fullRect = Rect{X: 0, Y: 0, Width: 100, Height: 100}

// paneBounds converts remote pane geometry to percentage placements.
// Percentages are normalized against the maximum right and bottom
// extent of the pane list rather than any reported window size, so
// border cells between panes are absorbed proportionally and the
// placements always tile the full container.
func paneBounds(panes []control.Pane) map[string]Rect {
	if len(panes) == 1 {
		return map[string]Rect{panes[0].ID: fullRect}
	}

	maxRight, maxBottom := 0, 0
	for _, pane := range panes {
		if right := pane.Left + pane.Width; right > maxRight {
			maxRight = right
		}
		if bottom := pane.Top + pane.Height; bottom > maxBottom {
			maxBottom = bottom
		}
	}
	bounds := make(map[string]Rect, len(panes))
	if maxRight == 0 || maxBottom == 0 {
		return bounds
	}
	for _, pane := range panes {
		bounds[pane.ID] = Rect{
			X:      float64(pane.Left) / float64(maxRight) * 100,
			Y:      float64(pane.Top) / float64(maxBottom) * 100,
			Width:  float64(pane.Width) / float64(maxRight) * 100,
			Height: float64(pane.Height) / float64(maxBottom) * 100,
		}
	}
	return bounds
}

// paneExtent is a pane's position from the remote layout paired with
// the local widget size rendering it, the inputs to client-size
// negotiation.
type paneExtent struct {
	left    int
	top     int
	columns int
	rows    int
}

// combinedClientSize computes the client size to announce to the
// remote server so that its panes match the local widgets. Side by
// side panes (identical top) sum widths plus one border column per
// gap; stacked panes (identical left) sum heights plus one border row
// per gap. Irregular layouts fall back to the bounding box of offset
// plus local size.
func combinedClientSize(panes []paneExtent) (columns, rows int) {
	if len(panes) == 0 {
		return 0, 0
	}
	if len(panes) == 1 {
		return panes[0].columns, panes[0].rows
	}

	sameTop, sameLeft := true, true
	for _, pane := range panes[1:] {
		if pane.top != panes[0].top {
			sameTop = false
		}
		if pane.left != panes[0].left {
			sameLeft = false
		}
	}

	switch {
	case sameTop:
		for _, pane := range panes {
			columns += pane.columns
			if pane.rows > rows {
				rows = pane.rows
			}
		}
		columns += len(panes) - 1
	case sameLeft:
		for _, pane := range panes {
			rows += pane.rows
			if pane.columns > columns {
				columns = pane.columns
			}
		}
		rows += len(panes) - 1
	default:
		for _, pane := range panes {
			if right := pane.left + pane.columns; right > columns {
				columns = right
			}
			if bottom := pane.top + pane.rows; bottom > rows {
				rows = bottom
			}
		}
	}
	return columns, rows
}
