package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/daemonkit/internal/cliconfig"
	"github.com/bft-labs/daemonkit/pkg/daemon"
	"github.com/bft-labs/daemonkit/pkg/ipc"
	"github.com/bft-labs/daemonkit/pkg/log"
	"github.com/bft-labs/daemonkit/plugins/configreload"
)

const helpDescription = `
Run and talk to a supervised background process over a local socket.

Highlights:
  - PID-file ownership with graceful, timeout-bounded shutdown.
  - Newline-delimited JSON over a unix domain socket, correlated by request id.
  - Configure via file ($HOME/.daemonkit/config.toml), DAEMONKIT_* env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  daemonkit run
  daemonkit status
  daemonkit call '{"command":"ping"}'
  daemonkit stop
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// loadConfig resolves the effective configuration: defaults, then config
// file, then environment, with explicitly set flags winning over all.
func loadConfig(cmd *cobra.Command, cfgPath string) (cliconfig.Config, error) {
	cfg := cliconfig.DefaultConfig()

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newCommandHandler routes requests by the "command" field of the payload.
// All routing lives here because the server carries a single handler.
func newCommandHandler(d *daemon.Daemon, socketPath string, startedAt time.Time) ipc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("malformed request payload: %v", err)
		}

		switch req.Command {
		case "ping":
			return map[string]any{"pong": true}, nil

		case "status":
			return map[string]any{
				"state":  d.State().String(),
				"pid":    os.Getpid(),
				"socket": socketPath,
				"uptime": time.Since(startedAt).Round(time.Millisecond).String(),
			}, nil

		case "stop":
			// Stop drains shutdown handlers, one of which closes this
			// server; run it outside the handler so the reply gets out.
			go func() { _ = d.Stop() }()
			return map[string]any{"stopping": true}, nil

		default:
			return nil, fmt.Errorf("unknown command %q", req.Command)
		}
	}
}

// runDaemon hosts the daemon until it stops, via signal or the stop command.
func runDaemon(cfg cliconfig.Config, cfgPath string, clearStalePID bool) error {
	logger := cliconfig.Logger(cfg.LogLevel)
	adapter := log.NewZerologAdapterWithLogger(logger)

	opts := []daemon.Option{daemon.WithLogger(adapter)}
	if clearStalePID {
		opts = append(opts, daemon.WithStalePIDCheck())
	}
	d := daemon.New(daemon.Config{
		PIDFile:         cfg.PIDFile,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, opts...)

	srv := ipc.NewServer(cfg.SocketPath, ipc.WithServerLogger(adapter))
	srv.OnMessage(newCommandHandler(d, cfg.SocketPath, time.Now()))

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	var watcher *configreload.Watcher
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		watcher = configreload.New(cfgFile, configreload.DefaultConfig(), adapter, func(path string) {
			logger.Info().Str("path", path).Msg("config changed on disk; restart to apply")
		})
	}

	// Shutdown order: stop watching config first, then tear down the socket.
	if watcher != nil {
		d.OnShutdown(watcher.Stop)
	}
	d.OnShutdown(func(ctx context.Context) error { return srv.Close() })

	if err := d.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := srv.Listen(); err != nil {
		_ = d.Stop()
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}

	if watcher != nil {
		if err := watcher.Start(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("config reload watcher failed to start")
			watcher = nil
		}
	}

	logger.Info().Str("socket", cfg.SocketPath).Str("pid_file", cfg.PIDFile).Msg("daemon ready")

	// The daemon's own signal handling drives Stop; wait for it to land
	// back in Stopped.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if d.State() == daemon.StateStopped {
			return nil
		}
	}
	return nil
}

// sendCommand connects a short-lived client and issues one built-in command.
func sendCommand(cfg cliconfig.Config, timeout time.Duration, payload any) (json.RawMessage, error) {
	cli := ipc.NewClient(cfg.SocketPath)
	if err := cli.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s (is the daemon running?): %w", cfg.SocketPath, err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return cli.Send(ctx, payload)
}

func printReply(reply json.RawMessage) {
	var buf map[string]any
	if err := json.Unmarshal(reply, &buf); err == nil {
		if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
			fmt.Println(string(pretty))
			return
		}
	}
	fmt.Println(string(reply))
}

func main() {
	var (
		cfgPath       string
		clearStalePID bool
		callTimeout   time.Duration
	)

	root := &cobra.Command{
		Use:     "daemonkit",
		Short:   "Run and talk to a supervised background process over a local socket",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.daemonkit/config.toml)")
	root.PersistentFlags().String("socket", "", "unix socket path (default: $HOME/.daemonkit/daemonkit.sock)")
	root.PersistentFlags().String("pid-file", "", "pid file path (default: $HOME/.daemonkit/daemonkit.pid)")
	root.PersistentFlags().Duration("shutdown-timeout", 0, "total budget for draining shutdown handlers")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	// Persistent string/duration flags bind through the changed-flags map
	// rather than direct variables, so subcommands share one resolver.
	resolve := func(cmd *cobra.Command) (cliconfig.Config, error) {
		cfg, err := loadConfig(cmd, cfgPath)
		if err != nil {
			return cfg, err
		}
		if v, _ := cmd.Flags().GetString("socket"); v != "" {
			cfg.SocketPath = v
		}
		if v, _ := cmd.Flags().GetString("pid-file"); v != "" {
			cfg.PIDFile = v
		}
		if v, _ := cmd.Flags().GetDuration("shutdown-timeout"); v > 0 {
			cfg.ShutdownTimeout = v
		}
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			cfg.LogLevel = v
		}
		return cfg, cfg.Validate()
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cfg, cfgPath, clearStalePID)
		},
	}
	runCmd.Flags().BoolVar(&clearStalePID, "clear-stale-pid", false, "probe the pid recorded in an existing pid file and clear it if the process is dead")

	callCmd := &cobra.Command{
		Use:   "call <json-payload>",
		Short: "Send a raw JSON payload to the daemon and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			var payload json.RawMessage
			if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}
			reply, err := sendCommand(cfg, callTimeout, payload)
			if err != nil {
				return err
			}
			printReply(reply)
			return nil
		},
	}
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 5*time.Second, "per-request timeout")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			reply, err := sendCommand(cfg, 5*time.Second, map[string]string{"command": "status"})
			if err != nil {
				return err
			}
			printReply(reply)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd)
			if err != nil {
				return err
			}
			reply, err := sendCommand(cfg, 5*time.Second, map[string]string{"command": "stop"})
			if err != nil {
				return err
			}
			printReply(reply)
			return nil
		},
	}

	root.AddCommand(runCmd, callCmd, statusCmd, stopCmd)

	if err := root.Execute(); err != nil {
		log := cliconfig.Logger("")
		log.Error().Err(err).Msg("daemonkit")
		os.Exit(1)
	}
}
