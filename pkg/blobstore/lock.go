package blobstore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/avolokita/fileholder/pkg/models"
)

// LockMode selects between shared (many readers) and exclusive (single
// writer) advisory locks.
type LockMode int

const (
	// LockShared allows concurrent holders; compatible with other shared
	// locks but not with an exclusive one.
	LockShared LockMode = iota

	// LockExclusive allows a single holder; incompatible with any other
	// lock on the same id.
	LockExclusive
)

func (m LockMode) String() string {
	if m == LockExclusive {
		return "exclusive"
	}
	return "shared"
}

// lockRetryInterval is how often a blocked acquisition retries the
// non-blocking flock before the session timeout expires.
const lockRetryInterval = 100 * time.Millisecond

// fileLock is a held advisory lock backed by an open side file
// "<root>/<id>.lock". flock(2) locks the inode, so the lock is visible to
// every process touching the same directory, which recover() relies on.
type fileLock struct {
	file *os.File
	mode LockMode
}

// acquireLock opens the lock side file for id and polls flock with LOCK_NB
// until it succeeds or timeout expires. The side file persists across
// sessions; only the flock held on its descriptor carries meaning.
func acquireLock(path string, mode LockMode, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file: %v", models.ErrBlobStoreUnavailable, err)
	}

	how := unix.LOCK_SH
	if mode == LockExclusive {
		how = unix.LOCK_EX
	}

	deadline := time.Now().Add(timeout)
	for {
		err := flockRetryEINTR(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: f, mode: mode}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: flock: %v", models.ErrBlobStoreUnavailable, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: could not acquire %s lock on %s within %s",
				models.ErrLockTimeout, mode, path, timeout)
		}
		time.Sleep(lockRetryInterval)
	}
}

// release unlocks and closes the lock file. Closing the descriptor releases
// the flock anyway; the explicit unlock keeps the intent obvious.
func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	unlockErr := flockRetryEINTR(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}

// flockRetryEINTR wraps flock, retrying when the syscall is interrupted by
// a signal. Capped so a pathological signal storm cannot spin forever.
func flockRetryEINTR(fd int, how int) error {
	const maxRetries = 10000

	var err error
	for i := 0; i < maxRetries; i++ {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}
