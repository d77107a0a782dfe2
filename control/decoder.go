// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"strconv"
	"strings"
)

// DecoderEventType classifies a decoded protocol line. The adapter
// switches exhaustively over these values; adding a type here requires
// handling it there.
type DecoderEventType int

const (
	// DecoderOutput is pane output: PaneID and octal-decoded Text.
	DecoderOutput DecoderEventType = iota

	// DecoderWindowAdd announces a new window: WindowID only. The
	// notification carries no name or pane — enrichment re-queries.
	DecoderWindowAdd

	// DecoderWindowClose announces a closed window: WindowID. Covers
	// both %window-close and %unlinked-window-close.
	DecoderWindowClose

	// DecoderLayoutChanged is a pure invalidation signal for WindowID.
	// The notification's inline layout grammar is deliberately never
	// parsed; consumers re-query the pane list instead.
	DecoderLayoutChanged

	// DecoderWindowPaneChanged reports the active pane of WindowID
	// moving to PaneID.
	DecoderWindowPaneChanged

	// DecoderBlock is a completed successful command-response block:
	// Sequence and payload Lines.
	DecoderBlock

	// DecoderBlockError is a completed failed command-response block.
	DecoderBlockError

	// DecoderExit reports the end of the control stream, with Reason.
	DecoderExit
)

// DecoderEvent is one decoded protocol occurrence. Which fields are
// meaningful depends on Type.
type DecoderEvent struct {
	Type     DecoderEventType
	PaneID   string
	WindowID string
	Text     string
	Sequence int
	Lines    []string
	Reason   string
}

// Decoder frames the control-mode byte stream into notifications and
// command-response blocks. It accepts arbitrary-sized chunks — the
// transport gives no framing guarantee — and buffers partial lines
// across Feed calls.
//
// Events are delivered synchronously to the handler, in arrival order,
// on the goroutine calling Feed. The Decoder itself is not safe for
// concurrent Feed calls; the session's single read loop is the only
// caller.
type Decoder struct {
	handler func(DecoderEvent)

	partial []byte

	// Block state. At most one response block is open at a time; every
	// line received while it is open is payload, never a notification.
	inBlock    bool
	blockSeq   int
	blockLines []string

	// exitReason is recorded from a %exit notification so the Exit
	// event emitted at stream end can carry it.
	exitReason string

	closed bool
}

// NewDecoder returns a Decoder delivering events to handler.
func NewDecoder(handler func(DecoderEvent)) *Decoder {
	return &Decoder{handler: handler}
}

// Feed consumes a chunk of the control stream. Complete lines are
// classified and emitted; a trailing partial line is buffered until
// the next chunk completes it.
func (d *Decoder) Feed(data []byte) {
	if d.closed {
		return
	}
	d.partial = append(d.partial, data...)
	for {
		newline := bytes.IndexByte(d.partial, '\n')
		if newline < 0 {
			return
		}
		line := string(d.partial[:newline])
		d.partial = d.partial[newline+1:]
		line = strings.TrimSuffix(line, "\r")
		d.handleLine(line)
	}
}

// Close marks the end of the control stream and emits exactly one Exit
// event. A reason recorded from a %exit notification takes precedence
// over the (usually generic) reason supplied by the transport layer.
func (d *Decoder) Close(reason string) {
	if d.closed {
		return
	}
	d.closed = true
	if d.exitReason != "" {
		reason = d.exitReason
	}
	d.handler(DecoderEvent{Type: DecoderExit, Reason: reason})
}

// handleLine classifies one complete line.
func (d *Decoder) handleLine(line string) {
	// Block markers take precedence over everything, but payload
	// swallowing comes before marker detection for begin: a nested
	// %begin cannot occur (tmux serializes responses), so while a
	// block is open only %end/%error close it.
	if d.inBlock {
		if seq, ok := parseBlockMarker(line, "%end "); ok {
			d.finishBlock(DecoderBlock, seq)
			return
		}
		if seq, ok := parseBlockMarker(line, "%error "); ok {
			d.finishBlock(DecoderBlockError, seq)
			return
		}
		d.blockLines = append(d.blockLines, line)
		return
	}

	if seq, ok := parseBlockMarker(line, "%begin "); ok {
		d.inBlock = true
		d.blockSeq = seq
		d.blockLines = nil
		return
	}

	switch {
	case strings.HasPrefix(line, "%output "):
		rest := strings.TrimPrefix(line, "%output ")
		paneID, payload, ok := strings.Cut(rest, " ")
		if !ok || paneID == "" {
			return
		}
		d.handler(DecoderEvent{
			Type:   DecoderOutput,
			PaneID: paneID,
			Text:   DecodeOctal(payload),
		})

	case strings.HasPrefix(line, "%extended-output "):
		// %extended-output <pane> <age> ... : <payload>. Only the pane
		// and payload matter; the age and flag tokens are skipped.
		rest := strings.TrimPrefix(line, "%extended-output ")
		paneID, tail, ok := strings.Cut(rest, " ")
		if !ok || paneID == "" {
			return
		}
		if _, payload, found := strings.Cut(tail, " : "); found {
			tail = payload
		} else if _, payload, found := strings.Cut(tail, " "); found {
			tail = payload
		}
		d.handler(DecoderEvent{
			Type:   DecoderOutput,
			PaneID: paneID,
			Text:   DecodeOctal(tail),
		})

	case strings.HasPrefix(line, "%window-add "):
		if windowID := firstToken(line, "%window-add "); windowID != "" {
			d.handler(DecoderEvent{Type: DecoderWindowAdd, WindowID: windowID})
		}

	case strings.HasPrefix(line, "%window-close "):
		if windowID := firstToken(line, "%window-close "); windowID != "" {
			d.handler(DecoderEvent{Type: DecoderWindowClose, WindowID: windowID})
		}

	case strings.HasPrefix(line, "%unlinked-window-close "):
		if windowID := firstToken(line, "%unlinked-window-close "); windowID != "" {
			d.handler(DecoderEvent{Type: DecoderWindowClose, WindowID: windowID})
		}

	case strings.HasPrefix(line, "%layout-change "):
		if windowID := firstToken(line, "%layout-change "); windowID != "" {
			d.handler(DecoderEvent{Type: DecoderLayoutChanged, WindowID: windowID})
		}

	case strings.HasPrefix(line, "%window-pane-changed "):
		rest := strings.TrimPrefix(line, "%window-pane-changed ")
		windowID, paneID, ok := strings.Cut(rest, " ")
		if !ok || windowID == "" || paneID == "" {
			return
		}
		d.handler(DecoderEvent{
			Type:     DecoderWindowPaneChanged,
			WindowID: windowID,
			PaneID:   strings.TrimSpace(paneID),
		})

	case strings.HasPrefix(line, "%exit"):
		d.exitReason = strings.TrimSpace(strings.TrimPrefix(line, "%exit"))

	default:
		// Other session-level notices (%session-changed,
		// %session-renamed, %pane-mode-changed, ...) are ignored.
	}
}

// finishBlock emits the completed block and resets block state. The
// closing marker's sequence number wins over the opening one if they
// disagree — the session validates both against its expectations.
func (d *Decoder) finishBlock(eventType DecoderEventType, seq int) {
	lines := d.blockLines
	d.inBlock = false
	d.blockLines = nil
	d.handler(DecoderEvent{Type: eventType, Sequence: seq, Lines: lines})
}

// parseBlockMarker parses "%begin/%end/%error <timestamp> <seq> <flags>"
// and returns the sequence number. A marker with a malformed sequence
// field is not a marker.
func parseBlockMarker(line, prefix string) (int, bool) {
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) < 2 {
		return 0, false
	}
	seq, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// firstToken returns the first space-delimited token after prefix.
func firstToken(line, prefix string) string {
	rest := strings.TrimPrefix(line, prefix)
	token, _, _ := strings.Cut(rest, " ")
	return strings.TrimSpace(token)
}
