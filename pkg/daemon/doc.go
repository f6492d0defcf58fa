// Package daemon manages the lifecycle of a long-running background
// process: PID-file ownership, signal-driven shutdown, and ordered draining
// of shutdown handlers under a wall-clock budget.
//
// A Daemon moves through four states:
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//
// Start claims the PID file and installs signal handlers; Stop runs every
// registered shutdown handler in registration order, then removes the PID
// file. Resources such as an IPC server are released by registering their
// close functions with OnShutdown.
//
//	d := daemon.New(daemon.Config{PIDFile: pidPath})
//	d.OnShutdown(func(ctx context.Context) error { return srv.Close() })
//	if err := d.Start(); err != nil {
//	    return err
//	}
package daemon
