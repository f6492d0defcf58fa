package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writePIDFile records pid as the entire content of the file at path,
// creating parent directories as needed.
func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

// readPIDFile parses the process id recorded at path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// removePIDFile deletes the file at path. A missing file is not an error.
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pidFileExists reports whether a PID file is present at path.
func pidFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
