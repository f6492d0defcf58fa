package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (DAEMONKIT_*). It respects flags that have been explicitly set (changed
// map). Returns an error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("socket", os.Getenv("DAEMONKIT_SOCKET"), &cfg.SocketPath)
	s.setString("pid-file", os.Getenv("DAEMONKIT_PID_FILE"), &cfg.PIDFile)
	s.setString("log-level", os.Getenv("DAEMONKIT_LOG_LEVEL"), &cfg.LogLevel)

	return s.setDuration("shutdown-timeout", os.Getenv("DAEMONKIT_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout)
}
