package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/bft-labs/daemonkit/pkg/log"
)

// DefaultShutdownTimeout bounds total shutdown-handler execution when
// Config.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 5 * time.Second

// ShutdownHandler releases one resource during graceful termination. The
// context carries the remaining shutdown budget.
type ShutdownHandler func(ctx context.Context) error

// Config holds the configuration for a Daemon.
type Config struct {
	// PIDFile is the path where the process id is recorded while running.
	// Its existence is the duplicate-instance signal checked by Start.
	PIDFile string

	// ShutdownTimeout is the wall-clock budget for draining all shutdown
	// handlers. Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Daemon supervises a background process: it owns the PID file, reacts to
// termination signals, and drains registered shutdown handlers in order
// when stopping.
//
// All methods are safe for concurrent use.
type Daemon struct {
	cfg           Config
	logger        log.Logger
	signals       []os.Signal
	stalePIDCheck bool

	mu       sync.RWMutex
	state    State
	handlers []ShutdownHandler
	sigCh    chan os.Signal
	sigDone  chan struct{}
}

// New creates a Daemon in StateStopped. Call Start to claim the PID file
// and begin running.
func New(cfg Config, opts ...Option) *Daemon {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  log.NewNoopLogger(),
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		state:   StateStopped,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// IsRunning reports whether the daemon is in StateRunning.
func (d *Daemon) IsRunning() bool {
	return d.State() == StateRunning
}

// OnShutdown appends a handler to the ordered shutdown list. Handlers run
// in registration order during Stop. Registrations after shutdown has begun
// are ignored and logged; register resources before or while running.
func (d *Daemon) OnShutdown(handler ShutdownHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateStopping {
		d.logger.Warn("shutdown handler registered during shutdown, ignored")
		return
	}
	d.handlers = append(d.handlers, handler)
}

// Start transitions the daemon from stopped to running: it claims the PID
// file, installs signal handlers that invoke Stop, and records the current
// process id. Returns ErrAlreadyRunning if the daemon is not stopped or a
// PID file already exists, ErrPIDFile on filesystem failures, and
// ErrStartFailed for anything else on the start path. On failure the
// daemon is back in StateStopped with no PID file left behind.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.state != StateStopped {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.state = StateStarting
	d.mu.Unlock()

	d.logger.Info("daemon starting", log.String("pid_file", d.cfg.PIDFile))

	if err := d.claimPIDFile(); err != nil {
		d.setState(StateStopped)
		return err
	}

	d.mu.Lock()
	d.sigCh = make(chan os.Signal, 1)
	d.sigDone = make(chan struct{})
	if len(d.signals) > 0 {
		signal.Notify(d.sigCh, d.signals...)
	}
	go d.watchSignals(d.sigCh, d.sigDone)
	d.state = StateRunning
	d.mu.Unlock()

	d.logger.Info("daemon running", log.Int("pid", os.Getpid()))
	return nil
}

// Stop transitions the daemon from running to stopped. Shutdown handlers
// run in registration order, each awaited, under the configured budget; on
// budget exhaustion the remaining handlers are abandoned and
// ErrShutdownTimeout is returned, but the PID file is still removed and
// signal handlers deregistered so a later Start is not blocked by leftover
// state. Returns ErrNotRunning if the daemon is not running.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.state = StateStopping
	handlers := append([]ShutdownHandler(nil), d.handlers...)
	sigCh, sigDone := d.sigCh, d.sigDone
	d.mu.Unlock()

	d.logger.Info("daemon stopping",
		log.Int("shutdown_handlers", len(handlers)),
		log.Duration("timeout", d.cfg.ShutdownTimeout),
	)

	err := d.drainHandlers(handlers)

	signal.Stop(sigCh)
	close(sigDone)

	if rmErr := removePIDFile(d.cfg.PIDFile); rmErr != nil {
		d.logger.Error("pid file removal failed", log.Err(rmErr))
		if err == nil {
			err = fmt.Errorf("%w: remove %s: %v", ErrPIDFile, d.cfg.PIDFile, rmErr)
		}
	}

	d.setState(StateStopped)
	d.logger.Info("daemon stopped")
	return err
}

// claimPIDFile establishes this process as the single running instance.
func (d *Daemon) claimPIDFile() error {
	if pidFileExists(d.cfg.PIDFile) {
		stale, err := d.pidFileIsStale()
		if err != nil {
			return fmt.Errorf("%w: probe pid file %s: %v", ErrStartFailed, d.cfg.PIDFile, err)
		}
		if !stale {
			return ErrAlreadyRunning
		}

		d.logger.Warn("clearing stale pid file", log.String("pid_file", d.cfg.PIDFile))
		if err := removePIDFile(d.cfg.PIDFile); err != nil {
			return fmt.Errorf("%w: remove stale %s: %v", ErrPIDFile, d.cfg.PIDFile, err)
		}
	}

	if err := writePIDFile(d.cfg.PIDFile, os.Getpid()); err != nil {
		// Best effort: never strand a partial file for a process that
		// failed to start.
		_ = removePIDFile(d.cfg.PIDFile)
		return fmt.Errorf("%w: write %s: %v", ErrPIDFile, d.cfg.PIDFile, err)
	}
	return nil
}

// pidFileIsStale reports whether the existing PID file refers to a process
// that is no longer alive. Without WithStalePIDCheck the file is never
// considered stale: existence alone means another instance is running.
func (d *Daemon) pidFileIsStale() (bool, error) {
	if !d.stalePIDCheck {
		return false, nil
	}

	pid, err := readPIDFile(d.cfg.PIDFile)
	if err != nil {
		// Unreadable or garbled content cannot belong to a live instance
		// we wrote; treat it as stale.
		return true, nil
	}

	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false, err
	}
	return !alive, nil
}

// drainHandlers runs the handlers sequentially in a worker goroutine and
// races it against the shutdown budget.
func (d *Daemon) drainHandlers(handlers []ShutdownHandler) error {
	if len(handlers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, handler := range handlers {
			if ctx.Err() != nil {
				return
			}
			if err := handler(ctx); err != nil {
				d.logger.Error("shutdown handler failed",
					log.Int("index", i),
					log.Err(err),
				)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown timeout, abandoning remaining handlers",
			log.Duration("timeout", d.cfg.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

// watchSignals invokes Stop on the first termination signal. sigDone breaks
// the wait when Stop is called directly.
func (d *Daemon) watchSignals(sigCh chan os.Signal, sigDone chan struct{}) {
	select {
	case sig := <-sigCh:
		d.logger.Info("received signal", log.String("signal", sig.String()))
		if err := d.Stop(); err != nil {
			d.logger.Error("shutdown on signal failed", log.Err(err))
		}
	case <-sigDone:
	}
}

// setState transitions to s under the lock.
func (d *Daemon) setState(s State) {
	d.mu.Lock()
	old := d.state
	d.state = s
	d.mu.Unlock()

	d.logger.Debug("state transition",
		log.String("from", old.String()),
		log.String("to", s.String()),
	)
}
