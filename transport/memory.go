// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Compile-time interface check.
var _ Transport = (*Memory)(nil)

// Memory is an in-memory transport for tests. The test plays the role
// of the remote tmux process: it reads what the session wrote through
// [MemoryConn.InputLines] or [MemoryConn.ReadInput], and injects
// control-mode output with [MemoryConn.FeedOutput]. Exit simulates the
// remote process ending.
//
// Each Start returns a fresh MemoryConn and records it, so tests can
// assert on reconnect behavior (how many processes were started,
// whether earlier ones were torn down).
type Memory struct {
	mu     sync.Mutex
	conns  []*MemoryConn
	starts chan *MemoryConn
}

// NewMemory returns an empty Memory transport.
func NewMemory() *Memory {
	return &Memory{starts: make(chan *MemoryConn, 16)}
}

// Starts returns a channel that receives each connection as Start
// produces it, letting tests wait for a spawn without polling.
func (m *Memory) Starts() <-chan *MemoryConn {
	return m.starts
}

// Start records the command and returns a new MemoryConn.
func (m *Memory) Start(ctx context.Context, command []string) (Conn, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	outputReader, outputWriter := io.Pipe()
	conn := &MemoryConn{
		Command:      command,
		outputReader: outputReader,
		outputWriter: outputWriter,
		input:        make(chan []byte, 256),
		exited:       make(chan struct{}),
		inputClosed:  make(chan struct{}),
	}
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	select {
	case m.starts <- conn:
	default:
	}
	return conn, nil
}

// StartCount returns how many times Start has been called.
func (m *Memory) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Conn returns the i-th connection Start produced.
func (m *Memory) Conn(i int) *MemoryConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[i]
}

// LastConn returns the most recent connection Start produced.
func (m *Memory) LastConn() *MemoryConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[len(m.conns)-1]
}

// MemoryConn is the Conn side of a Memory transport.
type MemoryConn struct {
	// Command is the argv passed to Start.
	Command []string

	outputReader *io.PipeReader
	outputWriter *io.PipeWriter

	input chan []byte

	exitOnce sync.Once
	exitErr  error
	exited   chan struct{}

	closeInputOnce sync.Once
	inputClosed    chan struct{}

	killedMu sync.Mutex
	killed   bool
}

// Read returns bytes previously injected with FeedOutput, or EOF after
// Exit/Kill.
func (c *MemoryConn) Read(p []byte) (int, error) { return c.outputReader.Read(p) }

// Write delivers session-written bytes to the test.
func (c *MemoryConn) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case c.input <- buf:
		return len(p), nil
	case <-c.exited:
		return 0, io.ErrClosedPipe
	}
}

// CloseInput marks the remote stdin closed.
func (c *MemoryConn) CloseInput() error {
	c.closeInputOnce.Do(func() { close(c.inputClosed) })
	return nil
}

// InputClosed reports whether CloseInput has been called.
func (c *MemoryConn) InputClosed() bool {
	select {
	case <-c.inputClosed:
		return true
	default:
		return false
	}
}

// Wait blocks until Exit or Kill.
func (c *MemoryConn) Wait() error {
	<-c.exited
	return c.exitErr
}

// Kill simulates force-termination: the process exits and readers see
// EOF.
func (c *MemoryConn) Kill() error {
	c.killedMu.Lock()
	c.killed = true
	c.killedMu.Unlock()
	c.Exit(nil)
	return nil
}

// Killed reports whether Kill was called.
func (c *MemoryConn) Killed() bool {
	c.killedMu.Lock()
	defer c.killedMu.Unlock()
	return c.killed
}

// Exit simulates the remote process ending with the given error.
// Readers see EOF; Wait unblocks. Idempotent.
func (c *MemoryConn) Exit(err error) {
	c.exitOnce.Do(func() {
		c.exitErr = err
		close(c.exited)
		c.outputWriter.Close()
	})
}

// FeedOutput injects remote stdout bytes. Blocks until the session's
// read loop consumes them, which gives tests a natural ordering: by
// the time FeedOutput returns, the bytes have been read (though not
// necessarily processed).
func (c *MemoryConn) FeedOutput(data []byte) {
	c.outputWriter.Write(data)
}

// ReadInput returns the next chunk the session wrote, or nil if the
// connection has exited and no input remains.
func (c *MemoryConn) ReadInput() []byte {
	select {
	case chunk := <-c.input:
		return chunk
	case <-c.exited:
		// Drain anything buffered before the exit.
		select {
		case chunk := <-c.input:
			return chunk
		default:
			return nil
		}
	}
}

// TryReadInput returns buffered session input without blocking.
func (c *MemoryConn) TryReadInput() ([]byte, bool) {
	select {
	case chunk := <-c.input:
		return chunk, true
	default:
		return nil, false
	}
}
