// Package uow binds one metadata transaction and one blob session to a
// single request and enforces coordinated commit and rollback across them.
package uow

import (
	"context"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/blobstore"
	"github.com/avolokita/fileholder/pkg/metastore"
)

// Factory creates units of work from the long-lived store and the blob
// directory configuration.
type Factory struct {
	Meta *metastore.Store
	Blob blobstore.Config
}

// Begin opens a fresh metadata transaction and blob session pair.
func (f *Factory) Begin(ctx context.Context) (*UnitOfWork, error) {
	blobs, err := blobstore.NewSession(f.Blob)
	if err != nil {
		return nil, err
	}
	meta, err := f.Meta.Begin(ctx)
	if err != nil {
		blobs.Rollback()
		return nil, err
	}
	return &UnitOfWork{Meta: meta, Blobs: blobs}, nil
}

// UnitOfWork owns one metastore session and one blobstore session for the
// lifetime of a request. It is the only entity allowed to commit or roll
// them back. The intended pattern is:
//
//	u, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer u.Rollback()
//	// ... business handler ...
//	return u.Commit()
type UnitOfWork struct {
	Meta  *metastore.Session
	Blobs *blobstore.Session

	committed bool
}

// Commit commits the metadata transaction first, then the blob session.
//
// The metadata row is the source of truth: if the database commit fails,
// the staged blobs are discarded and nothing happened. If the database
// commit succeeds but the blob commit fails, the error is surfaced and the
// resulting drift is left for the reconciliation pass to repair.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.Meta.Commit(); err != nil {
		u.Blobs.Rollback()
		return err
	}
	u.committed = true

	if err := u.Blobs.Commit(); err != nil {
		logger.Error("blob commit failed after metadata commit; reconciliation advised",
			"error", err)
		return err
	}
	return nil
}

// Rollback aborts both sessions. It never fails: rollback errors are logged
// and swallowed so the call is safe on every error path, and it is a no-op
// after a successful metadata commit.
func (u *UnitOfWork) Rollback() {
	if u.committed {
		return
	}
	if err := u.Meta.Rollback(); err != nil {
		logger.Warn("metadata rollback failed", "error", err)
	}
	u.Blobs.Rollback()
}
