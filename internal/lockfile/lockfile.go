// Package lockfile provides a cross-process advisory exclusive lock backed
// by a regular file, used to guard the KV store's per-collection writes
// against concurrent writers from other forge processes.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrAlreadyLocked indicates the lock is held by another process.
	ErrAlreadyLocked = errors.New("lock already held")
)

type Lock struct {
	path string
	f    *os.File
}

func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Best-effort: write pid for troubleshooting.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// AcquireWait retries Acquire with a short sleep until it succeeds or
// timeout elapses. KV store writers are short-lived, so a small
// fixed backoff is enough to ride out a concurrent writer from another
// process without a full blocking syscall-level lock.
func AcquireWait(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		lock, err := Acquire(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrAlreadyLocked) {
			return nil, err
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Unlock first; close always.
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
