package executor

import (
	"os"
	"path/filepath"
	"testing"

	"hatchet/internal/core/coreerr"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err=%v", err)
	}
}

func TestAcquireRejectsWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	_, err = Acquire(dir)
	if coreerr.KindOf(err) != coreerr.StorageIO {
		t.Fatalf("expected StorageIO, got %v", err)
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	// A PID astronomically unlikely to be alive.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("expected stale lock reclaim, got: %v", err)
	}
	defer lock.Release()
}
