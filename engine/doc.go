// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine reconciles remote multiplexer structure into local
// terminal widgets: one tab per window, one widget per pane. It
// consumes the enriched event stream from the control package,
// routes output and input, and negotiates the remote client size
// from local widget geometry.
package engine
