// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"reflect"
	"testing"
)

// collectEvents returns a decoder plus a pointer to the slice of
// events it has emitted.
func collectEvents() (*Decoder, *[]DecoderEvent) {
	var events []DecoderEvent
	decoder := NewDecoder(func(event DecoderEvent) {
		events = append(events, event)
	})
	return decoder, &events
}

func TestDecoderNotifications(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%output %3 hi\\015\\012\n" +
		"%window-add @2\n" +
		"%window-close @2\n" +
		"%unlinked-window-close @3\n" +
		"%layout-change @1 b25d,80x24,0,0,0 b25d,80x24,0,0,0 *\n" +
		"%window-pane-changed @1 %5\n" +
		"%session-changed $1 work\n"))

	want := []DecoderEvent{
		{Type: DecoderOutput, PaneID: "%3", Text: "hi\r\n"},
		{Type: DecoderWindowAdd, WindowID: "@2"},
		{Type: DecoderWindowClose, WindowID: "@2"},
		{Type: DecoderWindowClose, WindowID: "@3"},
		{Type: DecoderLayoutChanged, WindowID: "@1"},
		{Type: DecoderWindowPaneChanged, WindowID: "@1", PaneID: "%5"},
	}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

func TestDecoderChunkBoundaries(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()

	// One notification delivered a byte at a time.
	line := "%output %1 chunked\n"
	for i := 0; i < len(line); i++ {
		decoder.Feed([]byte{line[i]})
	}

	want := []DecoderEvent{{Type: DecoderOutput, PaneID: "%1", Text: "chunked"}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

func TestDecoderOutputPreservesPayloadSpaces(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%output %1   indented  text \n"))

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	if got := (*events)[0].Text; got != "  indented  text " {
		t.Errorf("Text = %q, want %q", got, "  indented  text ")
	}
}

func TestDecoderResponseBlocks(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%begin 1363006971 2 1\n" +
		"@0 %0 main\n" +
		"@1 %1 logs\n" +
		"%end 1363006971 2 1\n"))

	want := []DecoderEvent{{
		Type:     DecoderBlock,
		Sequence: 2,
		Lines:    []string{"@0 %0 main", "@1 %1 logs"},
	}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

func TestDecoderBlockError(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%begin 1363006971 7 1\nno such window: @9\n%error 1363006971 7 1\n"))

	want := []DecoderEvent{{
		Type:     DecoderBlockError,
		Sequence: 7,
		Lines:    []string{"no such window: @9"},
	}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

// TestDecoderBlockSwallowsNotificationLookalikes verifies that lines
// inside an open block are payload even when they look exactly like
// notifications.
func TestDecoderBlockSwallowsNotificationLookalikes(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%begin 100 3 1\n" +
		"%output %1 not a notification\n" +
		"%window-add @7\n" +
		"%end 100 3 1\n"))

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1 block event", len(*events))
	}
	block := (*events)[0]
	if block.Type != DecoderBlock || len(block.Lines) != 2 {
		t.Errorf("block = %+v", block)
	}
}

func TestDecoderEmptyBlock(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%begin 100 1 1\n%end 100 1 1\n"))

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	if block := (*events)[0]; block.Type != DecoderBlock || len(block.Lines) != 0 {
		t.Errorf("block = %+v, want empty successful block", block)
	}
}

func TestDecoderInterleavedNotificationsAndBlocks(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%output %0 before\n" +
		"%begin 100 1 1\npayload\n%end 100 1 1\n" +
		"%output %0 after\n"))

	types := make([]DecoderEventType, len(*events))
	for i, event := range *events {
		types[i] = event.Type
	}
	want := []DecoderEventType{DecoderOutput, DecoderBlock, DecoderOutput}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("event types = %v, want %v", types, want)
	}
}

func TestDecoderExit(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%exit server exited\n"))
	decoder.Close("stream ended")

	want := []DecoderEvent{{Type: DecoderExit, Reason: "server exited"}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}

	// Close is idempotent.
	decoder.Close("again")
	if len(*events) != 1 {
		t.Errorf("second Close emitted another event")
	}
}

func TestDecoderCloseWithoutExitNotification(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Close("connection reset")

	want := []DecoderEvent{{Type: DecoderExit, Reason: "connection reset"}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

func TestDecoderCRLFLines(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%window-add @1\r\n"))

	want := []DecoderEvent{{Type: DecoderWindowAdd, WindowID: "@1"}}
	if !reflect.DeepEqual(*events, want) {
		t.Errorf("events = %+v, want %+v", *events, want)
	}
}

func TestDecoderIgnoresUnknownNotices(t *testing.T) {
	t.Parallel()
	decoder, events := collectEvents()
	decoder.Feed([]byte("%session-renamed $1 other\n" +
		"%pane-mode-changed %0\n" +
		"%client-detached /dev/pts/3\n" +
		"random junk line\n"))

	if len(*events) != 0 {
		t.Errorf("unexpected events: %+v", *events)
	}
}
