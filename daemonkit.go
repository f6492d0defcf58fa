// Package daemonkit provides building blocks for long-running background
// processes: a PID-file-backed lifecycle with graceful shutdown, and
// request/response IPC over a unix domain socket.
//
// Example usage:
//
//	d := daemonkit.NewDaemon(daemonkit.DaemonConfig{PIDFile: "/run/app/app.pid"})
//	srv := daemonkit.NewServer("/run/app/app.sock")
//	srv.OnMessage(func(ctx context.Context, payload json.RawMessage) (any, error) {
//	    return map[string]any{"ok": true}, nil
//	})
//	d.OnShutdown(func(ctx context.Context) error { return srv.Close() })
//	if err := d.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Listen(); err != nil {
//	    log.Fatal(err)
//	}
package daemonkit

import (
	"github.com/bft-labs/daemonkit/pkg/daemon"
	"github.com/bft-labs/daemonkit/pkg/ipc"
)

// Daemon supervises a background process's lifecycle.
type Daemon = daemon.Daemon

// DaemonConfig holds the configuration for a Daemon.
type DaemonConfig = daemon.Config

// State represents the lifecycle state of a Daemon.
type State = daemon.State

// ShutdownHandler releases one resource during graceful termination.
type ShutdownHandler = daemon.ShutdownHandler

// Server accepts IPC connections on a unix domain socket.
type Server = ipc.Server

// Client exchanges correlated request/response messages with a Server.
type Client = ipc.Client

// Handler processes one request payload on the server side.
type Handler = ipc.Handler

// NewDaemon creates a Daemon in the stopped state.
func NewDaemon(cfg daemon.Config, opts ...daemon.Option) *daemon.Daemon {
	return daemon.New(cfg, opts...)
}

// NewServer creates an IPC server for the given socket path.
func NewServer(socketPath string, opts ...ipc.ServerOption) *ipc.Server {
	return ipc.NewServer(socketPath, opts...)
}

// NewClient creates an IPC client for the given socket path.
func NewClient(socketPath string, opts ...ipc.ClientOption) *ipc.Client {
	return ipc.NewClient(socketPath, opts...)
}
