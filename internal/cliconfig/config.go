// Package cliconfig loads daemonkit CLI configuration from flags,
// environment variables, and a TOML file, in that order of precedence.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// maxSocketPathLen is a conservative bound for unix socket paths; sun_path
// is 104 bytes on the BSDs and 108 on Linux.
const maxSocketPathLen = 104

// Config holds CLI configuration for daemonkit.
type Config struct {
	SocketPath      string
	PIDFile         string
	ShutdownTimeout time.Duration
	LogLevel        string
}

// DefaultConfig returns a Config with default values rooted under
// ~/.daemonkit.
func DefaultConfig() Config {
	dir := defaultRuntimeDir()
	return Config{
		SocketPath:      filepath.Join(dir, "daemonkit.sock"),
		PIDFile:         filepath.Join(dir, "daemonkit.pid"),
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// defaultRuntimeDir returns ~/.daemonkit, falling back to the working
// directory when the home directory cannot be determined.
func defaultRuntimeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".daemonkit")
	}
	return "."
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}
	if len(c.SocketPath) > maxSocketPathLen {
		return fmt.Errorf("socket path exceeds %d bytes: %s", maxSocketPathLen, c.SocketPath)
	}
	if c.PIDFile == "" {
		return fmt.Errorf("pid file path is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Logger returns a console zerolog logger at the given level, defaulting to
// info when the level string is empty or invalid.
func Logger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't been
// explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
