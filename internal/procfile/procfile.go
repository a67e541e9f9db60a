// Package procfile guards daemon-mode against a second instance starting
// against the same PID file, in the style of beads' daemonrunner lock:
// an exclusive non-blocking flock on the PID file itself, held for the
// process lifetime and released (and the file removed) on shutdown.
package procfile

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned when another process already holds the
// PID file's lock.
var ErrAlreadyRunning = fmt.Errorf("confd is already running (pid file locked)")

// Lock is a held PID file; Release unlocks and removes it.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if needed) the PID file at path, takes an
// exclusive non-blocking flock, and writes the calling process's PID.
// A lock already held by a live daemon is reported as ErrAlreadyRunning.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid file directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteString(fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("sync pid file: %w", err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks the PID file and removes it from disk.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}
