package lc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by a non-blocking acquire when another process
// holds the lock.
var ErrLocked = errors.New("lock held by another process")

// FileLock is an advisory flock on a file inside the repository. The kernel
// releases it automatically when the last descriptor for the open file
// description is closed, including on SIGKILL of the holder.
type FileLock struct {
	f    *os.File
	path string
}

// acquireLock takes an exclusive flock on path, creating the file if
// needed. With wait=false a held lock yields ErrLocked immediately.
func acquireLock(path string, wait bool) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	how := unix.LOCK_EX
	if !wait {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &FileLock{f: f, path: path}, nil
}

// Release unlocks and closes the lock file.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

// File exposes the underlying descriptor so a detached child can inherit
// the lock (the flock survives as long as any duplicate stays open).
func (l *FileLock) File() *os.File {
	return l.f
}

// DropHandle closes this process's descriptor without unlocking. A child
// holding a duplicate of the descriptor keeps the flock; an explicit
// LOCK_UN here would strip it from the shared open file description.
func (l *FileLock) DropHandle() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// acquireBuildLock serializes artifact + index mutation for one repository.
// It blocks, so manual builds queue up behind each other.
func acquireBuildLock(repoDir string) (*FileLock, error) {
	return acquireLock(filepath.Join(repoDir, BuildLockName), true)
}

// tryAcquireBusy is the trigger controller's admission gate. Non-blocking:
// a busy repository rejects the event instead of queueing it.
func tryAcquireBusy(repoDir string) (*FileLock, error) {
	return acquireLock(filepath.Join(repoDir, BusyLockName), false)
}
