package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hatchet/internal/core/coreerr"
)

// LockFileName is the working-directory single-owner lock that hatchetctl's
// run and resume commands acquire before starting the loop (C9) and release
// on exit (§4.9, §7).
const LockFileName = "loop.lock"

// DirLock guards a working directory against a second concurrent run.
// Grounded on the teacher's PID-file discipline (readPIDFile/isProcessAlive)
// adapted from tracking a named daemon to a single exclusive lock.
type DirLock struct {
	path string
}

// Acquire creates dir/loop.lock containing the current PID, failing with
// StorageIO if a live process already holds it. A lock file left behind by
// a dead process is reclaimed automatically.
func Acquire(dir string) (*DirLock, error) {
	path := filepath.Join(dir, LockFileName)

	if pid, err := readLockPID(path); err == nil {
		if processAlive(pid) {
			return nil, coreerr.New(coreerr.StorageIO,
				fmt.Sprintf("working directory locked by running process %d", pid), nil)
		}
		_ = os.Remove(path) // stale lock from a dead process
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, coreerr.New(coreerr.StorageIO, "lock file exists: "+path, err)
		}
		return nil, coreerr.New(coreerr.StorageIO, "create lock file", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return nil, coreerr.New(coreerr.StorageIO, "write lock file", err)
	}

	return &DirLock{path: path}, nil
}

// Release removes the lock file. Safe to call once per successful Acquire.
func (l *DirLock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
