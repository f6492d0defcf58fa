package configreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/daemonkit/pkg/log"
)

func TestWatcher_ReportsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 1)
	w := New(path, Config{DebounceDelay: 10 * time.Millisecond}, log.NewNoopLogger(), func(p string) {
		select {
		case changed <- p:
		default:
		}
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	// Give the watch a moment to arm before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != path {
			t.Errorf("callback path = %q, want %q", got, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change never reported")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 1)
	w := New(path, DefaultConfig(), log.NewNoopLogger(), func(p string) {
		select {
		case changed <- p:
		default:
		}
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		t.Errorf("callback fired for sibling file: %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := New("/nonexistent/config.toml", DefaultConfig(), nil, nil)

	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() without Start error = %v", err)
	}
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w := New("/nonexistent-dir-daemonkit/config.toml", DefaultConfig(), nil, nil)

	if err := w.Start(context.Background()); err == nil {
		defer w.Stop(context.Background())
		t.Error("Start() error = nil for missing directory")
	}
}
