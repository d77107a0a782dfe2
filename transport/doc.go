// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport abstracts how remux reaches the remote multiplexer
// process. A Transport starts the remote command (tmux in control
// mode) and hands back a Conn carrying its byte streams; everything
// above this package speaks only to the Conn.
//
// remux is not a general SSH client. The transports here are thin:
//
//   - [Exec] spawns the local ssh binary with an opaque destination,
//     inheriting the user's normal ssh configuration (hosts, keys,
//     jump hosts, agents). With an empty destination it runs the
//     command directly, which is how remux controls a tmux server on
//     the local machine and how integration tests run.
//   - [Native] is an in-process SSH client (golang.org/x/crypto/ssh)
//     for hosts configured with explicit host/port/user/key, for
//     environments where no ssh binary is available.
//   - [Memory] is an in-memory transport for tests: the test script
//     plays the role of the remote process.
//
// [FromConfig] selects between Exec and Native based on the target
// configuration.
package transport
