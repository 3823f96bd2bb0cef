// Package pidfile keeps a single agentd instance per PID file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Acquire when a live process owns the file.
var ErrRunning = errors.New("another instance is running")

// Pidfile is a PID file owned by the current process.
type Pidfile struct {
	path string
	pid  int
}

// Acquire writes the current PID to path. A file left by a process that is
// no longer running is replaced.
func Acquire(path string) (*Pidfile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	self := os.Getpid()
	if pid, err := Read(path); err == nil && pid != self && isProcessRunning(pid) {
		return nil, fmt.Errorf("%w (pid %d, %s)", ErrRunning, pid, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write pidfile: %w", err)
	}
	return &Pidfile{path: path, pid: self}, nil
}

// Read returns the PID stored in path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s", path)
	}
	return pid, nil
}

// Path returns the file location.
func (p *Pidfile) Path() string { return p.path }

// Release removes the file unless another process has since taken it over.
func (p *Pidfile) Release() error {
	if pid, err := Read(p.path); err != nil || pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}
