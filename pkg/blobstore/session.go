// Package blobstore implements a transactional session over a flat blob
// directory. Writes are staged in memory, flushed to pending files and
// promoted by atomic rename on commit; per-blob advisory file locks make
// sessions safe against concurrent requests and other processes sharing
// the directory.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/models"
)

const (
	// DefaultPendingPrefix marks staging files awaiting promotion.
	DefaultPendingPrefix = "pending_"

	// DefaultLockTimeout bounds how long a session waits for a blob lock.
	DefaultLockTimeout = 10 * time.Second

	lockFileSuffix = ".lock"
)

// Config holds configuration for blob sessions against one directory.
type Config struct {
	// Root is the blob storage directory. Created if missing.
	Root string

	// PendingPrefix is prepended to staging file names.
	// Default: "pending_"
	PendingPrefix string

	// LockTimeout bounds lock acquisition. Default: 10s.
	LockTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PendingPrefix == "" {
		c.PendingPrefix = DefaultPendingPrefix
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
}

// Session is a single-writer view of the blob directory for the lifetime of
// one request. It is not safe for concurrent use; every request gets its
// own session.
//
// Lifecycle of a staged id:
//
//	Add -> staged in memory -> Flush -> staged on disk -> Commit -> committed
//
// Rollback at any point removes staging and releases all locks.
type Session struct {
	root    string
	prefix  string
	timeout time.Duration

	pending map[string][]byte
	locks   map[string]*fileLock
}

// NewSession creates a session against cfg.Root, creating the directory if
// it does not exist.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Root == "" {
		return nil, errors.New("blob storage root is required")
	}
	cfg.applyDefaults()

	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating storage root: %v", models.ErrBlobStoreUnavailable, err)
	}

	return &Session{
		root:    cfg.Root,
		prefix:  cfg.PendingPrefix,
		timeout: cfg.LockTimeout,
		pending: make(map[string][]byte),
		locks:   make(map[string]*fileLock),
	}, nil
}

func (s *Session) finalPath(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Session) stagingPath(id string) string {
	return filepath.Join(s.root, s.prefix+id)
}

func (s *Session) lockPath(id string) string {
	return filepath.Join(s.root, id+lockFileSuffix)
}

// lock acquires a lock on id in the given mode, reusing a lock already held
// by this session when compatible. A shared lock is upgraded to exclusive
// by release and re-acquire; not atomic, but a session serves exactly one
// request and is single-threaded.
func (s *Session) lock(id string, mode LockMode) error {
	if held, ok := s.locks[id]; ok {
		if held.mode == LockExclusive || held.mode == mode {
			return nil
		}
		if err := s.unlock(id); err != nil {
			logger.Warn("failed to release lock for upgrade", "id", id, "error", err)
		}
	}

	l, err := acquireLock(s.lockPath(id), mode, s.timeout)
	if err != nil {
		return err
	}
	s.locks[id] = l
	return nil
}

func (s *Session) unlock(id string) error {
	l, ok := s.locks[id]
	if !ok {
		return nil
	}
	delete(s.locks, id)
	return l.release()
}

// releaseAll drops every lock held by the session. Errors are logged, not
// returned: release runs on commit, rollback and failure paths alike.
func (s *Session) releaseAll() {
	for id, l := range s.locks {
		if err := l.release(); err != nil {
			logger.Warn("failed to release blob lock", "id", id, "error", err)
		}
		delete(s.locks, id)
	}
}

// Add stages a write for id. The bytes stay in memory until Flush or
// Commit. A later Add for the same id overwrites the staged bytes. The
// exclusive lock taken here is held until commit or rollback.
func (s *Session) Add(id string, data []byte) error {
	if err := s.lock(id, LockExclusive); err != nil {
		return err
	}
	s.pending[id] = data
	return nil
}

// Get reads the committed bytes for id under a shared lock. The lock is
// released before returning unless the session already held it for a
// pending write.
func (s *Session) Get(id string) ([]byte, error) {
	_, heldBefore := s.locks[id]
	if err := s.lock(id, LockShared); err != nil {
		return nil, err
	}
	if !heldBefore {
		defer func() {
			if err := s.unlock(id); err != nil {
				logger.Warn("failed to release read lock", "id", id, "error", err)
			}
		}()
	}

	data, err := os.ReadFile(s.finalPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrBlobMissing, id)
		}
		return nil, fmt.Errorf("%w: reading blob %s: %v", models.ErrBlobStoreUnavailable, id, err)
	}
	return data, nil
}

// Delete removes the committed blob for id under an exclusive lock.
// Returns false without error if the blob does not exist.
func (s *Session) Delete(id string) (bool, error) {
	_, heldBefore := s.locks[id]
	if err := s.lock(id, LockExclusive); err != nil {
		return false, err
	}
	if !heldBefore {
		defer func() {
			if err := s.unlock(id); err != nil {
				logger.Warn("failed to release delete lock", "id", id, "error", err)
			}
		}()
	}

	err := os.Remove(s.finalPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: deleting blob %s: %v", models.ErrBlobStoreUnavailable, id, err)
	}
	return true, nil
}

// Exists is a best-effort existence check without locking.
func (s *Session) Exists(id string) bool {
	_, err := os.Stat(s.finalPath(id))
	return err == nil
}

// List enumerates committed blob ids, skipping staging and lock side files.
func (s *Session) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing storage: %v", models.ErrBlobStoreUnavailable, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, s.prefix) || strings.HasSuffix(name, lockFileSuffix) {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// Flush writes every pending entry to its staging path. Idempotent and
// restartable: Commit rewrites staging files anyway, so a partial flush is
// harmless.
func (s *Session) Flush() error {
	for id, data := range s.pending {
		if err := os.WriteFile(s.stagingPath(id), data, 0o644); err != nil {
			return fmt.Errorf("%w: flushing blob %s: %v", models.ErrBlobWriteFailed, id, err)
		}
	}
	return nil
}

// Commit durably promotes every pending write: stage to the pending file,
// remove any previous final file, then atomically rename staging to final.
// Locks are released and the pending map cleared regardless of outcome; a
// failure after the first successful rename leaves a partially committed
// directory that the reconciliation pass repairs.
func (s *Session) Commit() error {
	defer func() {
		s.releaseAll()
		s.pending = make(map[string][]byte)
	}()

	for id, data := range s.pending {
		staging := s.stagingPath(id)
		final := s.finalPath(id)

		if err := os.WriteFile(staging, data, 0o644); err != nil {
			return fmt.Errorf("%w: staging blob %s: %v", models.ErrBlobWriteFailed, id, err)
		}
		if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: replacing blob %s: %v", models.ErrBlobWriteFailed, id, err)
		}
		// POSIX rename: the final path flips to the new content atomically.
		if err := os.Rename(staging, final); err != nil {
			return fmt.Errorf("%w: promoting blob %s: %v", models.ErrBlobWriteFailed, id, err)
		}
	}
	return nil
}

// Rollback discards every pending write, removing staging files that Flush
// already wrote. Never fails: cleanup problems are logged and swallowed so
// rollback is safe on any error path.
func (s *Session) Rollback() {
	for id := range s.pending {
		if err := os.Remove(s.stagingPath(id)); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove staging file during rollback", "id", id, "error", err)
		}
	}
	s.releaseAll()
	s.pending = make(map[string][]byte)
}

// Recover removes orphan staging files left behind by a crash. For each
// "<prefix><id>" file it takes the exclusive lock on id first, so staging
// files belonging to a live session in another process are skipped rather
// than destroyed. Runs once at startup, before any request processing.
func (s *Session) Recover() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("%w: scanning storage for recovery: %v", models.ErrBlobStoreUnavailable, err)
	}

	recovered := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.prefix) {
			continue
		}
		id := strings.TrimPrefix(name, s.prefix)

		if err := s.lock(id, LockExclusive); err != nil {
			logger.Warn("skipping orphan staging file: lock held elsewhere", "id", id, "error", err)
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove orphan staging file", "id", id, "error", err)
		} else {
			recovered++
		}
		if err := s.unlock(id); err != nil {
			logger.Warn("failed to release recovery lock", "id", id, "error", err)
		}
	}

	if recovered > 0 {
		logger.Info("recovered orphan staging files", "count", recovered, "root", s.root)
	}
	return nil
}
