// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Compile-time interface check.
var _ Transport = (*Exec)(nil)

// Exec runs the remote command through the local ssh binary, or
// directly when Destination is empty. Using the ssh binary means the
// user's ~/.ssh/config, agents, and jump hosts all apply without remux
// reimplementing any of it.
type Exec struct {
	// Destination is the ssh destination ("dev-box", "user@host").
	// Empty means run the command locally without ssh.
	Destination string

	// SSHPath overrides the ssh binary. Defaults to "ssh".
	SSHPath string
}

// Start spawns the process with piped stdin/stdout. The child is
// placed in its own process group so Kill can take down the whole
// remote-shell pipeline, not just the top-level ssh process.
func (e *Exec) Start(ctx context.Context, command []string) (Conn, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	// The context gates the launch only. exec.CommandContext would
	// kill an established connection on cancellation, but a started
	// Conn must outlive the context and shut down via CloseInput/Kill.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start aborted: %w", err)
	}

	var argv []string
	if e.Destination != "" {
		sshPath := e.SSHPath
		if sshPath == "" {
			sshPath = "ssh"
		}
		// -T: no PTY. Control mode is a line protocol; a PTY would
		// mangle it with echo and CR translation.
		argv = append([]string{sshPath, "-T", e.Destination}, command...)
	} else {
		argv = command
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	conn := &execConn{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
	}
	// Reap the process as soon as it exits so Wait callers never see
	// a zombie, and so stdout reads return EOF promptly.
	go conn.reap()
	return conn, nil
}

// execConn is the Conn for a spawned subprocess.
type execConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeInputOnce sync.Once

	waitOnce sync.Once
	waitErr  error
}

func (c *execConn) reap() {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
}

func (c *execConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *execConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

// CloseInput half-closes the child's stdin. Idempotent: the session
// layer closes input both on detach and during destroy.
func (c *execConn) CloseInput() error {
	var err error
	c.closeInputOnce.Do(func() { err = c.stdin.Close() })
	return err
}

// Wait blocks until the child exits. The underlying cmd.Wait runs in
// the reap goroutine; this just waits for its result.
func (c *execConn) Wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
	return c.waitErr
}

// Kill sends SIGKILL to the child's process group. The negative PID
// targets the group created by Setpgid, covering any shell children
// ssh spawned on our side. ESRCH means the group is already gone.
func (c *execConn) Kill() error {
	pgid := c.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("kill process group %d: %w", pgid, err)
	}
	return nil
}
