// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable that names the configuration file
// for [Load].
const EnvVar = "REMUX_CONFIG"

// Config is the master configuration for a remux connection.
type Config struct {
	// Target describes the remote host running the tmux server.
	Target Target `yaml:"target"`

	// Session is the logical tmux session name. Connect issues a
	// create-or-attach for this name, so the same value reattaches to
	// a session that survived a previous disconnect. Required.
	Session string `yaml:"session"`

	// InitialColumns and InitialRows are the client size announced to
	// the remote multiplexer at attach time, before the first
	// refresh-client from the reconciliation engine.
	InitialColumns int `yaml:"initial_columns"`
	InitialRows    int `yaml:"initial_rows"`

	// HistoryLimit bounds the number of scrollback lines captured per
	// pane during connect-time state reconstruction. Large limits make
	// reconnects slower; the visible screen is always captured in full.
	HistoryLimit int `yaml:"history_limit"`

	// CommandTimeout is the optional per-command timeout. Zero means
	// commands may wait indefinitely for the remote to respond; the
	// only cancellation primitive is then destroying the session.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Target identifies the remote host. Either Destination (an opaque ssh
// destination resolved through the user's ssh configuration) or an
// explicit Host with optional Port/User/IdentityFile — never both.
// When neither is set, remux controls a tmux server on the local
// machine directly.
type Target struct {
	// Destination is an opaque ssh destination ("dev-box",
	// "user@host"). It is passed verbatim to the ssh binary, which
	// applies normal host/user/key/config resolution.
	Destination string `yaml:"destination"`

	// Host, Port, User, and IdentityFile configure the in-process SSH
	// client. Used when Destination is empty and Host is set.
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	IdentityFile string `yaml:"identity_file"`
}

// Default returns a Config with development defaults: local tmux
// control, an 80x24 initial size, and a 2000-line history capture.
func Default() *Config {
	return &Config{
		Session:        "remux",
		InitialColumns: 80,
		InitialRows:    24,
		HistoryLimit:   2000,
	}
}

// Load reads the configuration file named by the REMUX_CONFIG
// environment variable. Returns an error if the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s is not set", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from the given path, applies
// defaults for unset fields, expands variables in path fields, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Target.IdentityFile = expand(cfg.Target.IdentityFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Session == "" {
		return fmt.Errorf("session name is required")
	}
	if c.Target.Destination != "" && c.Target.Host != "" {
		return fmt.Errorf("target.destination and target.host are mutually exclusive")
	}
	if c.InitialColumns <= 0 || c.InitialRows <= 0 {
		return fmt.Errorf("initial size must be positive, got %dx%d",
			c.InitialColumns, c.InitialRows)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be non-negative, got %d", c.HistoryLimit)
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must be non-negative, got %v", c.CommandTimeout)
	}
	return nil
}

// variablePattern matches ${VAR} and ${VAR:-default}.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expand substitutes ${VAR} and ${VAR:-default} patterns with
// environment variable values. Unset variables without a default
// expand to the empty string.
func expand(value string) string {
	return variablePattern.ReplaceAllStringFunc(value, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}
