// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Compile-time interface check.
var _ Transport = (*Native)(nil)

// Native is an in-process SSH client for targets configured with an
// explicit host. It performs public-key authentication with the
// configured identity file and verifies the host key against the
// user's known_hosts unless InsecureHostKey is set.
//
// Native deliberately does not read ~/.ssh/config — targets that need
// ssh configuration should use [Exec] with a destination instead.
type Native struct {
	Host         string
	Port         int // 0 means 22
	User         string
	IdentityFile string

	// KnownHostsFile overrides the host key database. Defaults to
	// ~/.ssh/known_hosts.
	KnownHostsFile string

	// InsecureHostKey disables host key verification. Only for
	// explicitly trusted test environments.
	InsecureHostKey bool
}

// Start dials the target and runs the command over a single SSH
// session without a PTY (control mode is a line protocol).
func (n *Native) Start(ctx context.Context, command []string) (Conn, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if n.User == "" {
		return nil, fmt.Errorf("ssh user is required for native transport")
	}

	signer, err := n.loadIdentity()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := n.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	port := n.Port
	if port == 0 {
		port = 22
	}
	address := net.JoinHostPort(n.Host, strconv.Itoa(port))

	clientConfig := &ssh.ClientConfig{
		User:            n.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}

	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	sshConn, channels, requests, err := ssh.NewClientConn(netConn, address, clientConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", address, err)
	}
	client := ssh.NewClient(sshConn, channels, requests)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open ssh session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := session.Start(shellJoin(command)); err != nil {
		client.Close()
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	return &nativeConn{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// loadIdentity reads and parses the configured private key.
func (n *Native) loadIdentity() (ssh.Signer, error) {
	path := n.IdentityFile
	if path == "" {
		return nil, fmt.Errorf("identity_file is required for native transport")
	}
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return signer, nil
}

// hostKeyCallback builds the host key verifier: known_hosts by
// default, or the insecure callback when explicitly opted in.
func (n *Native) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if n.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := n.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

// nativeConn is the Conn for an x/crypto/ssh session.
type nativeConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	closeInputOnce sync.Once

	waitOnce sync.Once
	waitErr  error
}

func (c *nativeConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *nativeConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *nativeConn) CloseInput() error {
	var err error
	c.closeInputOnce.Do(func() { err = c.stdin.Close() })
	return err
}

func (c *nativeConn) Wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.session.Wait()
		c.client.Close()
	})
	return c.waitErr
}

// Kill tears down the SSH connection. The remote sshd delivers SIGHUP
// to the command; there is no reliable remote SIGKILL over the SSH
// protocol, so closing the connection is the strongest lever we have.
func (c *nativeConn) Kill() error {
	c.session.Signal(ssh.SIGKILL)
	return c.client.Close()
}

// shellJoin quotes and joins arguments into a shell command string.
// The SSH exec channel takes a shell string, not argv.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t\n\"'\\$`!#&|;(){}[]<>?*~") {
			quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}
