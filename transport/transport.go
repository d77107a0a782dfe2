// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"

	"github.com/bureau-foundation/remux/lib/config"
)

// Transport starts the remote multiplexer process. One Transport
// instance serves one connection at a time; the session layer calls
// Start again (after tearing down the previous Conn) to reconnect.
type Transport interface {
	// Start launches the given command on the target and returns the
	// connection to its byte streams. The context bounds the launch,
	// not the connection lifetime — a started Conn survives context
	// cancellation and is shut down via CloseInput/Kill.
	Start(ctx context.Context, command []string) (Conn, error)
}

// Conn is the byte-stream connection to a running remote process.
// Read returns the process's stdout (the control-mode stream); Write
// feeds its stdin (command lines and keystroke payloads).
type Conn interface {
	io.Reader
	io.Writer

	// CloseInput half-closes the connection: the remote process sees
	// EOF on stdin. For tmux control mode an input EOF (like an empty
	// detach line) ends the client without killing the server.
	CloseInput() error

	// Wait blocks until the remote process exits and returns its exit
	// error, if any. Safe to call from multiple goroutines.
	Wait() error

	// Kill force-terminates the remote process. Read unblocks with
	// EOF shortly after. Safe to call after the process has exited.
	Kill() error
}

// FromConfig selects a transport for the configured target: Native
// when an explicit host is set, Exec otherwise (opaque ssh destination,
// or local execution when the target is empty).
func FromConfig(target config.Target) Transport {
	if target.Host != "" {
		return &Native{
			Host:         target.Host,
			Port:         target.Port,
			User:         target.User,
			IdentityFile: target.IdentityFile,
		}
	}
	return &Exec{Destination: target.Destination}
}
