// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// remux-attach is a passthrough client for a remote tmux session: it
// puts the local terminal in raw mode and bridges the session's
// active pane to stdin/stdout over the control-mode protocol. It is
// the minimal way to reach a remux-managed session from a plain
// terminal, without the widget engine.
//
// Usage:
//
//	remux-attach [--config FILE] [--session NAME] [--destination DEST]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/bureau-foundation/remux/control"
	"github.com/bureau-foundation/remux/lib/config"
	"github.com/bureau-foundation/remux/lib/process"
	"github.com/bureau-foundation/remux/lib/version"
	"github.com/bureau-foundation/remux/transport"
)

const destroyTimeout = 3 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var sessionName string
	var destination string

	flagSet := pflag.NewFlagSet("remux-attach", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the remux configuration file")
	flagSet.StringVar(&sessionName, "session", "", "override the configured session name")
	flagSet.StringVar(&destination, "destination", "", "override the configured ssh destination")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("remux-attach")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if sessionName != "" {
		cfg.Session = sessionName
	}
	if destination != "" {
		cfg.Target = config.Target{Destination: destination}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	session, err := control.NewSession(control.SessionConfig{
		Transport:      transport.FromConfig(cfg.Target),
		SessionName:    cfg.Session,
		Target:         describeTarget(cfg.Target),
		InitialColumns: cfg.InitialColumns,
		InitialRows:    cfg.InitialRows,
		CommandTimeout: cfg.CommandTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Destroy(destroyTimeout)

	return bridge(ctx, session)
}

// bridge runs the passthrough loop until detach or disconnect.
func bridge(ctx context.Context, session *control.Session) error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	previous, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(stdinFd, previous)

	// One goroutine owns which pane input and output bind to.
	var paneMu sync.Mutex
	activePane := ""
	setActive := func(paneID string) {
		paneMu.Lock()
		activePane = paneID
		paneMu.Unlock()
	}
	getActive := func() string {
		paneMu.Lock()
		defer paneMu.Unlock()
		return activePane
	}

	announceSize := func() {
		columns, rows, err := term.GetSize(stdinFd)
		if err != nil {
			return
		}
		if err := session.RefreshClient(ctx, columns, rows); err != nil {
			fmt.Fprintf(os.Stderr, "refresh-client: %v\r\n", err)
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			announceSize()
		}
	}()

	// Stdin to the active pane. Raw bytes, no interpretation: the
	// remote applications handle their own line discipline.
	go func() {
		buffer := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buffer)
			if n > 0 {
				if paneID := getActive(); paneID != "" {
					if err := session.SendKeys(ctx, paneID, string(buffer[:n])); err != nil {
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for event := range session.Events() {
		switch event.Type {
		case control.SessionConnected:
			if len(event.Windows) > 0 {
				setActive(event.Windows[0].ActivePaneID)
			}
			announceSize()
		case control.SessionOutput:
			if event.PaneID == getActive() {
				os.Stdout.WriteString(event.Text)
			}
		case control.SessionWindowPaneChanged:
			setActive(event.PaneID)
		case control.SessionDisconnected:
			term.Restore(stdinFd, previous)
			reason := event.Reason
			if reason == "" {
				reason = "connection closed"
			}
			fmt.Printf("\ndetached: %s\n", reason)
			return nil
		}
	}
	return nil
}

// loadConfig resolves the configuration: an explicit --config path,
// then $REMUX_CONFIG, then built-in defaults (a local session).
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// describeTarget renders a target for logs and status output.
func describeTarget(target config.Target) string {
	switch {
	case target.Destination != "":
		return target.Destination
	case target.Host != "" && target.User != "":
		return target.User + "@" + target.Host
	case target.Host != "":
		return target.Host
	default:
		return "local"
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `remux-attach — bridge a remote tmux session to this terminal.

Connects over the target configured in the remux configuration file
(or $%s), announces the real terminal size, and mirrors the
session's active pane. Detach by ending the remote session or
closing the connection.

Usage:
  remux-attach [flags]

Flags:
`, config.EnvVar)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
