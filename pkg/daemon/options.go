package daemon

import (
	"os"

	"github.com/bft-labs/daemonkit/pkg/log"
)

// Option configures optional behavior of a Daemon.
type Option func(*Daemon)

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used.
func WithLogger(logger log.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// WithSignals replaces the set of OS signals that trigger Stop. The default
// is SIGINT and SIGTERM. Passing no signals disables signal handling
// entirely, which is mainly useful in tests.
func WithSignals(signals ...os.Signal) Option {
	return func(d *Daemon) {
		d.signals = signals
	}
}

// WithStalePIDCheck makes Start probe the process recorded in an existing
// PID file. If that process is no longer alive, the file is treated as a
// leftover from a crash and cleared instead of blocking the start.
//
// Off by default: without it, the mere existence of the PID file means
// "already running", and a stale file from a crashed instance must be
// removed by the operator.
func WithStalePIDCheck() Option {
	return func(d *Daemon) {
		d.stalePIDCheck = true
	}
}
