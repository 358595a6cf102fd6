// Package lockfile guards a state directory so only one assistant process uses it.
//
// The lock is an flock(2) on a file inside the directory; the kernel drops it when the
// holding process exits, so a crash never leaves the directory locked.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "pyoots.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir.
// A *LockError is returned when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("Lockfile.AcquireLock: state directory is locked", "lock_path", lockPath, "holder", holder)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	// Truncate only once the lock is ours so a failed attempt never wipes the holder's pid.
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteString(fmt.Sprintf("pid=%d\n", os.Getpid()))
		if err != nil {
			slog.Warn("Lockfile.AcquireLock: failed to record pid", "error", err)
		}
	}

	slog.Info("Lockfile.AcquireLock: acquired", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lockfile.Release: unlock failed", "error", err, "lock_path", l.path)
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	slog.Debug("Lockfile.Release: released", "lock_path", l.path)
	return closeErr
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another assistant instance is already using this state directory (lock file: %s", e.LockPath)
	if e.Holder != "" {
		msg += ", holder: " + e.Holder
	}
	return msg + "); stop it or choose a different state directory"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the pid recorded in an existing lock file.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("pid %d (not running)", pid)
}

func parsePID(content string) int {
	line := strings.TrimSpace(content)
	pid, err := strconv.Atoi(strings.TrimPrefix(line, "pid="))
	if err != nil {
		return 0
	}
	return pid
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
