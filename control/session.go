// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/remux/lib/clock"
	"github.com/bureau-foundation/remux/transport"
)

// State is the session connection state.
type State int

const (
	// StateDisconnected means no transport is running.
	StateDisconnected State = iota
	// StateConnecting means the transport is up but the initial
	// enumeration has not yet succeeded.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
)

// connectProbeTimeout bounds the initial list-windows enumeration
// during Connect. A spawned-but-unresponsive remote process is treated
// as a failed connect rather than hanging forever.
const connectProbeTimeout = 15 * time.Second

// defaultDestroyTimeout is how long Destroy waits for the remote
// process to exit on its own after the detach before force-killing it.
const defaultDestroyTimeout = 3 * time.Second

// SessionEventType classifies events emitted by a Session.
type SessionEventType int

const (
	// SessionConnected carries the initial window enumeration and
	// connection info. Emitted exactly once per successful Connect.
	SessionConnected SessionEventType = iota
	// SessionOutput carries decoded pane output.
	SessionOutput
	// SessionWindowAdd is the raw window-add notification; it carries
	// only the window id. The adapter enriches it.
	SessionWindowAdd
	// SessionWindowClose reports a closed window.
	SessionWindowClose
	// SessionLayoutChanged is the raw layout invalidation for a
	// window. The adapter re-queries geometry.
	SessionLayoutChanged
	// SessionWindowPaneChanged reports the active pane of a window.
	SessionWindowPaneChanged
	// SessionDisconnected reports the end of the connection, with a
	// reason. Emitted exactly once per connection.
	SessionDisconnected
)

// SessionEvent is one occurrence on the session's event stream. Which
// fields are meaningful depends on Type.
type SessionEvent struct {
	Type     SessionEventType
	Windows  []Window
	Info     ConnectionInfo
	PaneID   string
	WindowID string
	Text     string
	Reason   string

	// emitSeq is the event's position in the session's emit order.
	// Command responses record the emit count at resolution time,
	// which lets the adapter tell output that predates a capture from
	// output that follows it.
	emitSeq uint64
}

// ConnectionInfo describes an established connection.
type ConnectionInfo struct {
	// Target is the human-readable target descriptor ("dev-box",
	// "ada@10.0.0.5", or "local").
	Target string

	// SessionName is the remote multiplexer session name.
	SessionName string

	// Columns and Rows are the initial client size announced at
	// attach.
	Columns int
	Rows    int
}

// SessionConfig configures a Session. Transport and SessionName are
// required; zero values elsewhere get defaults.
type SessionConfig struct {
	Transport transport.Transport

	// SessionName is the remote session to create or attach.
	SessionName string

	// Target is a descriptor used in logs and ConnectionInfo only.
	Target string

	// InitialColumns and InitialRows default to 80x24.
	InitialColumns int
	InitialRows    int

	// CommandTimeout, when non-zero, bounds every command issued
	// through Do. A timed-out command is rejected and logged but the
	// session stays up; its eventual response is discarded to keep
	// FIFO correlation intact.
	CommandTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns one control-mode connection: the spawned remote
// process, the decoder framing its output, and the FIFO queue
// correlating commands with response blocks.
//
// All protocol I/O for one Session flows over a single ordered byte
// channel. Callers may issue commands from any goroutine; writes are
// serialized and resolution order is determined purely by response
// arrival order.
type Session struct {
	transportImpl  transport.Transport
	sessionName    string
	target         string
	initialColumns int
	initialRows    int
	commandTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	events chan SessionEvent

	// queueMu guards the staging queue feeding events. The read loop
	// appends and a dedicated pump goroutine delivers, so a slow or
	// busy consumer can never block protocol processing or teardown.
	queueMu    sync.Mutex
	queue      []SessionEvent
	queueReady chan struct{}
	emitCount  uint64

	// writeMu serializes enqueue+write pairs so that queue order
	// always equals wire order.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	conn       transport.Conn
	generation int
	pending    []*pendingCommand

	// greetingSeen tracks the implicit response block tmux emits for
	// the attach itself, which corresponds to no client command.
	greetingSeen bool

	// lastSeq/seqValid implement response sequence validation:
	// consecutive blocks must carry consecutive sequence numbers, or
	// responses are being lost or reordered and FIFO correlation
	// would silently misattribute them.
	lastSeq  int
	seqValid bool

	disconnectOnce *sync.Once
}

// pendingCommand is one in-flight command awaiting its response block.
type pendingCommand struct {
	text string
	done chan commandResult

	// abandoned is set when the caller stopped waiting (timeout or
	// context cancellation). The entry stays in the queue so that its
	// eventual response is consumed in order and discarded.
	abandoned bool
}

type commandResult struct {
	lines []string
	err   error

	// emitSeq is the session emit count when the response block was
	// processed. Every event emitted at or before this position was
	// on the wire ahead of the response.
	emitSeq uint64
}

// NewSession creates a Session from the given configuration. The
// session starts disconnected; call Connect.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.SessionName == "" {
		return nil, fmt.Errorf("session name is required")
	}
	if cfg.InitialColumns <= 0 {
		cfg.InitialColumns = 80
	}
	if cfg.InitialRows <= 0 {
		cfg.InitialRows = 24
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Target == "" {
		cfg.Target = "local"
	}
	s := &Session{
		transportImpl:  cfg.Transport,
		sessionName:    cfg.SessionName,
		target:         cfg.Target,
		initialColumns: cfg.InitialColumns,
		initialRows:    cfg.InitialRows,
		commandTimeout: cfg.CommandTimeout,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		events:         make(chan SessionEvent, 256),
		queueReady:     make(chan struct{}, 1),
	}
	go s.pumpEvents()
	return s, nil
}

// Events returns the session's event stream. The channel is never
// closed; a SessionDisconnected event marks the end of a connection.
func (s *Session) Events() <-chan SessionEvent { return s.events }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect spawns the remote multiplexer in control mode with a
// create-or-attach for the configured session name, then probes it
// with the initial window enumeration. A spawn failure or a probe
// failure leaves no partially-connected session behind.
//
// Calling Connect on an already-connected session first tears down
// the existing transport, so reconnect never leaks a process.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() != StateDisconnected {
		s.logger.Info("tearing down existing transport before reconnect",
			"session", s.sessionName)
		s.Destroy(defaultDestroyTimeout)
	}

	s.mu.Lock()
	command := []string{
		"tmux", "-C", "new-session", "-A",
		"-s", s.sessionName,
		"-x", strconv.Itoa(s.initialColumns),
		"-y", strconv.Itoa(s.initialRows),
	}

	s.state = StateConnecting
	s.generation++
	generation := s.generation
	s.greetingSeen = false
	s.seqValid = false
	s.disconnectOnce = &sync.Once{}
	s.mu.Unlock()

	conn, err := s.transportImpl.Start(ctx, command)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("spawn control-mode client: %w", err)
	}

	s.mu.Lock()
	if s.generation != generation {
		// A concurrent Connect raced us; yield to it.
		s.mu.Unlock()
		conn.Kill()
		return fmt.Errorf("connect superseded by a newer connect")
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn, generation)

	// Probe: the first enumeration doubles as liveness detection. A
	// process that spawned but never answers is a failed connect.
	probeCtx, cancel := context.WithTimeout(ctx, connectProbeTimeout)
	defer cancel()
	windows, err := s.ListWindows(probeCtx)
	if err != nil {
		s.teardown(conn, generation, "")
		return fmt.Errorf("initial window enumeration: %w", err)
	}

	info := ConnectionInfo{
		Target:      s.target,
		SessionName: s.sessionName,
		Columns:     s.initialColumns,
		Rows:        s.initialRows,
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return fmt.Errorf("connect superseded by a newer connect")
	}
	s.state = StateConnected
	s.mu.Unlock()

	s.logger.Info("connected", "target", s.target, "session", s.sessionName,
		"windows", len(windows))
	s.emit(generation, SessionEvent{Type: SessionConnected, Windows: windows, Info: info})
	return nil
}

// Do issues one command line and blocks until its response block
// arrives. Resolution is strictly FIFO against response arrival; the
// command text is written immediately with no pipelining delay, so
// callers may issue several commands concurrently and rely on queue
// order matching write order.
//
// With a configured CommandTimeout, a command that outlives it is
// rejected here but its queue slot is kept until the response arrives,
// preserving correlation for every later command.
func (s *Session) Do(ctx context.Context, command string) ([]string, error) {
	if s.commandTimeout > 0 {
		timeoutCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		timer := s.clock.AfterFunc(s.commandTimeout, cancel)
		defer timer.Stop()
		ctx = timeoutCtx
	}
	lines, _, err := s.do(ctx, command)
	return lines, err
}

// do enqueues and writes the command, then waits. Used by Do and by
// Connect's probe (which runs in the Connecting state). The returned
// emit count marks the response's position in the event stream.
func (s *Session) do(ctx context.Context, command string) ([]string, uint64, error) {
	pending := &pendingCommand{
		text: command,
		done: make(chan commandResult, 1),
	}

	s.writeMu.Lock()
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return nil, 0, fmt.Errorf("session is not connected")
	}
	s.pending = append(s.pending, pending)
	s.mu.Unlock()

	_, writeErr := conn.Write([]byte(command + "\n"))
	s.writeMu.Unlock()

	if writeErr != nil {
		// The write failed; the read loop will notice the broken
		// transport and reject the queue, including this entry.
		return nil, 0, fmt.Errorf("write command: %w", writeErr)
	}

	select {
	case result := <-pending.done:
		if result.err != nil {
			return nil, 0, result.err
		}
		return result.lines, result.emitSeq, nil
	case <-ctx.Done():
		s.abandon(pending)
		s.logger.Warn("command abandoned before its response arrived",
			"command", command, "cause", ctx.Err())
		return nil, 0, fmt.Errorf("command %q: %w", firstWord(command), ctx.Err())
	}
}

// abandon marks a pending command as no longer awaited. If the result
// raced the cancellation and is already buffered, it is simply
// dropped.
func (s *Session) abandon(pending *pendingCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending.abandoned = true
}

// Detach sends the protocol's detach trigger — a single empty input
// line — without touching local state. The remote session persists
// for later reattachment.
func (s *Session) Detach() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session is not connected")
	}
	if _, err := conn.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write detach: %w", err)
	}
	return nil
}

// Destroy tears down the connection: detach, close input, wait up to
// timeout for a voluntary exit, force-kill otherwise. Every pending
// command is rejected with a "session destroyed" error. The remote
// multiplexer session itself survives (Destroy is a client-side
// teardown, not kill-session).
func (s *Session) Destroy(timeout time.Duration) {
	s.mu.Lock()
	conn := s.conn
	generation := s.generation
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if timeout <= 0 {
		timeout = defaultDestroyTimeout
	}

	// Best-effort graceful exit: detach then EOF on stdin.
	_, _ = conn.Write([]byte("\n"))
	_ = conn.CloseInput()

	exited := make(chan struct{})
	go func() {
		conn.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-s.clock.After(timeout):
		s.logger.Warn("remote process did not exit after detach, killing",
			"session", s.sessionName, "timeout", timeout)
		conn.Kill()
		<-exited
	}

	s.finishDisconnect(conn, generation, "session destroyed")
}

// teardown aborts a half-established connection during Connect.
func (s *Session) teardown(conn transport.Conn, generation int, reason string) {
	_ = conn.CloseInput()
	conn.Kill()
	s.finishDisconnect(conn, generation, reason)
}

// finishDisconnect transitions to Disconnected, rejects the pending
// queue, and (when reason is non-empty) emits the Disconnected event.
// Exactly one of finishDisconnect/handleExit wins per connection via
// disconnectOnce.
func (s *Session) finishDisconnect(conn transport.Conn, generation int, reason string) {
	s.mu.Lock()
	if s.generation != generation || s.conn != conn {
		s.mu.Unlock()
		return
	}
	once := s.disconnectOnce
	s.mu.Unlock()

	once.Do(func() {
		s.mu.Lock()
		s.state = StateDisconnected
		s.conn = nil
		rejected := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, pending := range rejected {
			pending.done <- commandResult{err: fmt.Errorf("session destroyed")}
		}
		if reason != "" {
			s.emit(generation, SessionEvent{Type: SessionDisconnected, Reason: reason})
		}
	})
}

// readLoop pumps transport bytes through the decoder until the stream
// ends. Runs as a goroutine per connection; a stale generation exits
// silently after a reconnect.
func (s *Session) readLoop(conn transport.Conn, generation int) {
	decoder := NewDecoder(func(event DecoderEvent) {
		s.handleDecoderEvent(conn, generation, event)
	})

	buffer := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			decoder.Feed(buffer[:n])
		}
		if err != nil {
			reason := "connection closed"
			if err != io.EOF {
				reason = err.Error()
			}
			decoder.Close(reason)
			return
		}
	}
}

// handleDecoderEvent dispatches one decoded event on the read loop
// goroutine. Notifications needing no enrichment are forwarded as-is;
// blocks resolve the FIFO queue; Exit finishes the disconnect.
func (s *Session) handleDecoderEvent(conn transport.Conn, generation int, event DecoderEvent) {
	switch event.Type {
	case DecoderOutput:
		s.emit(generation, SessionEvent{Type: SessionOutput, PaneID: event.PaneID, Text: event.Text})
	case DecoderWindowAdd:
		s.emit(generation, SessionEvent{Type: SessionWindowAdd, WindowID: event.WindowID})
	case DecoderWindowClose:
		s.emit(generation, SessionEvent{Type: SessionWindowClose, WindowID: event.WindowID})
	case DecoderLayoutChanged:
		s.emit(generation, SessionEvent{Type: SessionLayoutChanged, WindowID: event.WindowID})
	case DecoderWindowPaneChanged:
		s.emit(generation, SessionEvent{
			Type:     SessionWindowPaneChanged,
			WindowID: event.WindowID,
			PaneID:   event.PaneID,
		})
	case DecoderBlock:
		s.resolveBlock(conn, generation, event.Sequence, event.Lines, nil)
	case DecoderBlockError:
		err := fmt.Errorf("command failed: %s", joinBlockError(event.Lines))
		s.resolveBlock(conn, generation, event.Sequence, nil, err)
	case DecoderExit:
		s.handleExit(conn, generation, event.Reason)
	}
}

// resolveBlock validates the response sequence number and resolves the
// head of the FIFO queue. The first block per connection is the attach
// greeting and corresponds to no client command.
func (s *Session) resolveBlock(conn transport.Conn, generation int, seq int, lines []string, cmdErr error) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}

	if s.seqValid && seq != s.lastSeq+1 {
		s.mu.Unlock()
		s.logger.Error("response sequence mismatch, failing session",
			"expected", s.lastSeq+1, "got", seq, "session", s.sessionName)
		// Responses were lost or reordered; FIFO attribution can no
		// longer be trusted. Kill the transport — the read loop's
		// exit path rejects the queue and reports the disconnect.
		conn.Kill()
		return
	}
	s.lastSeq = seq
	s.seqValid = true

	if !s.greetingSeen {
		s.greetingSeen = true
		s.mu.Unlock()
		return
	}

	if len(s.pending) == 0 {
		s.mu.Unlock()
		s.logger.Warn("unsolicited response block", "seq", seq, "session", s.sessionName)
		return
	}
	pending := s.pending[0]
	s.pending = s.pending[1:]
	abandoned := pending.abandoned
	s.mu.Unlock()

	if abandoned {
		s.logger.Warn("discarding response for abandoned command",
			"command", pending.text, "seq", seq)
		return
	}
	s.queueMu.Lock()
	emitSeq := s.emitCount
	s.queueMu.Unlock()
	pending.done <- commandResult{lines: lines, err: cmdErr, emitSeq: emitSeq}
}

// handleExit reacts to the end of the control stream: reject the
// queue, mark disconnected, emit Disconnected exactly once.
func (s *Session) handleExit(conn transport.Conn, generation int, reason string) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	once := s.disconnectOnce
	s.mu.Unlock()

	once.Do(func() {
		s.mu.Lock()
		s.state = StateDisconnected
		s.conn = nil
		rejected := s.pending
		s.pending = nil
		s.mu.Unlock()

		s.logger.Info("disconnected", "session", s.sessionName, "reason", reason)
		for _, pending := range rejected {
			pending.done <- commandResult{err: fmt.Errorf("session disconnected: %s", reason)}
		}
		s.emit(generation, SessionEvent{Type: SessionDisconnected, Reason: reason})
	})
}

// emit stages an event for delivery unless it belongs to a superseded
// connection. Staging never blocks: the read loop and Destroy must
// make progress even when nothing drains the events channel.
func (s *Session) emit(generation int, event SessionEvent) {
	s.mu.Lock()
	stale := s.generation != generation
	s.mu.Unlock()
	if stale {
		return
	}
	s.queueMu.Lock()
	s.emitCount++
	event.emitSeq = s.emitCount
	s.queue = append(s.queue, event)
	s.queueMu.Unlock()
	select {
	case s.queueReady <- struct{}{}:
	default:
	}
}

// pumpEvents moves staged events to the consumer channel, in order.
// Runs for the life of the Session on its own goroutine; a consumer
// that stalls only grows the staging queue.
func (s *Session) pumpEvents() {
	for range s.queueReady {
		for {
			s.queueMu.Lock()
			if len(s.queue) == 0 {
				s.queueMu.Unlock()
				break
			}
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.queueMu.Unlock()
			s.events <- event
		}
	}
}

// joinBlockError flattens error block payload lines into one message.
func joinBlockError(lines []string) string {
	if len(lines) == 0 {
		return "unknown error"
	}
	message := lines[0]
	for _, line := range lines[1:] {
		message += "; " + line
	}
	return message
}

// firstWord returns the leading token of a command line, for error
// messages that should not echo full keystroke payloads.
func firstWord(command string) string {
	for i := 0; i < len(command); i++ {
		if command[i] == ' ' {
			return command[:i]
		}
	}
	return command
}
