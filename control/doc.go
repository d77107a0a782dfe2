// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the client side of tmux's control-mode
// protocol: the line framing and byte codecs, the command/response
// session layer over a remote-shell transport, connect-time pane state
// capture and replay, and the enrichment adapter that turns terse
// protocol notifications into fully-populated domain events.
//
// The package is organized around the protocol data flow:
//
//   - codec.go: octal output decoding and hex input encoding
//   - decoder.go: notification vs. command-response framing
//   - session.go: transport ownership, FIFO command queue, lifecycle
//   - commands.go: typed command wrappers and response parsing
//   - capture.go: pane state snapshot and replay sequence synthesis
//   - adapter.go: enrichment of raw notifications into domain events
//
// Events flow upward (decoder → session → adapter → consumer) on a
// single ordered stream per session; commands flow downward through
// the same session's FIFO queue. Correctness of command correlation
// depends on the remote multiplexer never reordering responses, which
// the session additionally verifies via the sequence number embedded
// in every response block.
package control
