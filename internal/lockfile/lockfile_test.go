package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	want := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != want {
		t.Errorf("Lock file content = %q, want %q", content, want)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got %T", err)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("Error message should contain the lock path: %s", err)
	}
	if !strings.Contains(lockErr.Holder, fmt.Sprintf("pid %d", os.Getpid())) {
		t.Errorf("Expected holder to name our pid, got %q", lockErr.Holder)
	}
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("Lock file should be removed after release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Reacquire failed: %v", err)
	}
	again.Release()
}

func TestParsePID(t *testing.T) {
	if got := parsePID("pid=4242\n"); got != 4242 {
		t.Errorf("parsePID() = %d, want 4242", got)
	}
	if got := parsePID("garbage"); got != 0 {
		t.Errorf("parsePID(garbage) = %d, want 0", got)
	}
}
