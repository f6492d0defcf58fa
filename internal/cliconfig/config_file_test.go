package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeTempConfig(t, `
socket_path = "/run/app/app.sock"
pid_file = "/run/app/app.pid"
shutdown_timeout = "10s"
log_level = "debug"
`)

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	if fc.SocketPath != "/run/app/app.sock" {
		t.Errorf("SocketPath = %q", fc.SocketPath)
	}
	if fc.ShutdownTimeout != "10s" {
		t.Errorf("ShutdownTimeout = %q", fc.ShutdownTimeout)
	}
	if fc.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", fc.LogLevel)
	}
}

func TestLoadFileConfig_Invalid(t *testing.T) {
	path := writeTempConfig(t, "socket_path = [broken")

	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig() error = nil for invalid TOML")
	}
}

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name     string
		fc       FileConfig
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all values",
			fc: FileConfig{
				SocketPath:      "/file/app.sock",
				PIDFile:         "/file/app.pid",
				ShutdownTimeout: "7s",
				LogLevel:        "warn",
			},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			expected: Config{
				SocketPath:      "/file/app.sock",
				PIDFile:         "/file/app.pid",
				ShutdownTimeout: 7 * time.Second,
				LogLevel:        "warn",
			},
		},
		{
			name: "explicit flags win over file values",
			fc: FileConfig{
				SocketPath: "/file/app.sock",
				LogLevel:   "warn",
			},
			changed: map[string]bool{"socket": true},
			initial: Config{
				SocketPath:      "/flag/app.sock",
				PIDFile:         "/flag/app.pid",
				ShutdownTimeout: time.Second,
				LogLevel:        "info",
			},
			expected: Config{
				SocketPath:      "/flag/app.sock",
				PIDFile:         "/flag/app.pid",
				ShutdownTimeout: time.Second,
				LogLevel:        "warn",
			},
		},
		{
			name:    "invalid duration errors",
			fc:      FileConfig{ShutdownTimeout: "soon"},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fc, tt.changed)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestFileExists(t *testing.T) {
	path := writeTempConfig(t, "")

	if !FileExists(path) {
		t.Error("FileExists() = false for present file")
	}
	if FileExists(filepath.Join(t.TempDir(), "absent.toml")) {
		t.Error("FileExists() = true for missing file")
	}
}
