package daemon

import "errors"

// Lifecycle errors returned by the public API. Wrapped causes can be
// checked with errors.Is.
var (
	// ErrAlreadyRunning is returned by Start when the daemon is not stopped
	// or another instance's PID file exists.
	ErrAlreadyRunning = errors.New("daemon: already running")

	// ErrNotRunning is returned by Stop when the daemon is not running.
	ErrNotRunning = errors.New("daemon: not running")

	// ErrShutdownTimeout is returned by Stop when the shutdown handlers did
	// not all finish within the configured budget.
	ErrShutdownTimeout = errors.New("daemon: shutdown timeout")

	// ErrPIDFile wraps filesystem failures writing or removing the PID file.
	ErrPIDFile = errors.New("daemon: pid file error")

	// ErrStartFailed wraps any other failure during the start sequence.
	ErrStartFailed = errors.New("daemon: start failed")
)
