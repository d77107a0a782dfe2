// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// remux-viewer is a terminal UI over a remote tmux session: one tab
// per remote window, the focused pane's replicated text in a
// scrollable viewport, keystrokes forwarded to the remote pane.
// Window and pane structure follows the remote server live via the
// control-mode protocol.
//
// Usage:
//
//	remux-viewer [--config FILE] [--session NAME] [--destination DEST]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/remux/control"
	"github.com/bureau-foundation/remux/engine"
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

	flagSet := pflag.NewFlagSet("remux-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the remux configuration file")
	flagSet.StringVar(&sessionName, "session", "", "override the configured session name")
	flagSet.StringVar(&destination, "destination", "", "override the configured ssh destination")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("remux-viewer")
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

	if err := session.Connect(context.Background()); err != nil {
		return err
	}
	defer session.Destroy(destroyTimeout)

	adapter := control.NewAdapter(control.AdapterConfig{
		Session:      session,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})
	adapter.Start()
	defer adapter.Stop()

	// A single buffered token channel wakes the TUI on any change;
	// coalescing is fine, the model re-reads all state per wakeup.
	refresh := make(chan struct{}, 1)
	notify := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}

	factory := newWidgetFactory(notify)
	eng := engine.New(engine.Config{
		Commander: adapter,
		Factory:   factory,
		Logger:    logger,
	})
	go func() {
		for event := range adapter.Events() {
			eng.Handle(event)
			notify()
		}
	}()

	info := control.ConnectionInfo{
		Target:      describeTarget(cfg.Target),
		SessionName: cfg.Session,
		Columns:     cfg.InitialColumns,
		Rows:        cfg.InitialRows,
	}
	program := tea.NewProgram(
		newModel(session, adapter, eng, factory, info, refresh),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return err
	}
	if reason := eng.DisconnectReason(); reason != "" {
		fmt.Printf("disconnected: %s\n", reason)
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

// describeTarget renders a target for the status line.
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
	fmt.Fprintf(os.Stderr, `remux-viewer — terminal UI over a remote tmux session.

One tab per remote window; the focused pane's text replicates into a
scrollable viewport, and typed keys forward to the remote pane.
Configuration comes from --config or $%s; with neither, a
local session named "remux" is created or attached.

Usage:
  remux-viewer [flags]

Keys:
  Tab / Shift-Tab   next / previous window
  Ctrl-o            next pane
  Ctrl-q            detach (session keeps running)
  Ctrl-c            quit

Flags:
`, config.EnvVar)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
