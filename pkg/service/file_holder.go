// Package service implements the business orchestration above the unit of
// work: uniqueness checks, identifier allocation and cross-store
// reconciliation.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/models"
	"github.com/avolokita/fileholder/pkg/uow"
)

// FileHolder orchestrates metadata and blob operations within one unit of
// work. Construct one per request; commit remains owned by the caller.
type FileHolder struct {
	u *uow.UnitOfWork
}

// New binds a FileHolder to the active unit of work.
func New(u *uow.UnitOfWork) *FileHolder {
	return &FileHolder{u: u}
}

// CreateRequest carries the metadata for a new file.
type CreateRequest struct {
	Filename  string `validate:"filename"`
	Extension string `validate:"fileext"`
	Path      string `validate:"filepath"`
	Comment   *string
}

// CreateFile validates the request, rejects duplicates of the
// (path, filename, extension) triple, allocates a fresh id, inserts the
// metadata row and stages the blob write. Commit is owned by the unit of
// work.
func (s *FileHolder) CreateFile(data []byte, req CreateRequest) (*models.FileMeta, error) {
	if err := models.Validator().Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	existing, err := s.u.Meta.GetByTriple(req.Path, req.Filename, req.Extension)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s%s.%s", models.ErrAlreadyExists, req.Path, req.Filename, req.Extension)
	}

	meta := &models.FileMeta{
		ID:        uuid.New().String(),
		Filename:  req.Filename,
		Extension: req.Extension,
		Path:      req.Path,
		Size:      int64(len(data)),
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.u.Meta.Save(meta); err != nil {
		return nil, err
	}
	if err := s.u.Blobs.Add(meta.ID, data); err != nil {
		return nil, err
	}
	return meta, nil
}

// GetFileMeta returns the metadata record for id.
func (s *FileHolder) GetFileMeta(id string) (*models.FileMeta, error) {
	return s.u.Meta.GetByID(id)
}

// GetFileMetaByTriple returns the metadata record matching the uniqueness
// triple.
func (s *FileHolder) GetFileMetaByTriple(path, filename, extension string) (*models.FileMeta, error) {
	return s.u.Meta.GetByTriple(path, filename, extension)
}

// GetFileBytes resolves the metadata for id and reads the blob. A missing
// blob for an existing row surfaces as ErrNotFound; that drift is repaired
// by the next reconciliation pass.
func (s *FileHolder) GetFileBytes(id string) (*models.FileMeta, []byte, error) {
	meta, err := s.u.Meta.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.u.Blobs.Get(meta.ID)
	if err != nil {
		if errors.Is(err, models.ErrBlobMissing) {
			return nil, nil, fmt.Errorf("%w: blob missing for %s", models.ErrNotFound, id)
		}
		return nil, nil, err
	}
	return meta, data, nil
}

// GetFileBytesByTriple is GetFileBytes keyed by (path, filename, extension).
func (s *FileHolder) GetFileBytesByTriple(path, filename, extension string) (*models.FileMeta, []byte, error) {
	meta, err := s.u.Meta.GetByTriple(path, filename, extension)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.u.Blobs.Get(meta.ID)
	if err != nil {
		if errors.Is(err, models.ErrBlobMissing) {
			return nil, nil, fmt.Errorf("%w: blob missing for %s", models.ErrNotFound, meta.ID)
		}
		return nil, nil, err
	}
	return meta, data, nil
}

// DeleteFile stages the removal of both the blob and the metadata row.
// Returns ErrNotFound when the id is unknown; a second delete of the same
// id therefore fails without touching the blob store.
func (s *FileHolder) DeleteFile(id string) error {
	meta, err := s.u.Meta.GetByID(id)
	if err != nil {
		return err
	}
	if _, err := s.u.Blobs.Delete(meta.ID); err != nil {
		return err
	}
	return s.u.Meta.Delete(meta)
}

// ListFiles returns metadata rows with trivial pagination.
func (s *FileHolder) ListFiles(limit, offset int) ([]*models.FileMeta, error) {
	return s.u.Meta.List(limit, offset)
}

// SearchByPathPrefix normalizes the prefix to end with "/" and returns all
// rows whose path starts with it. An empty prefix returns no rows.
func (s *FileHolder) SearchByPathPrefix(prefix string) ([]*models.FileMeta, error) {
	if prefix == "" {
		return []*models.FileMeta{}, nil
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return s.u.Meta.GetByPathPrefix(prefix)
}

// UpdateFileMeta applies a partial change set to the row for id. An empty
// change set returns the row as-is; a change that collides with another
// row's triple fails with ErrAlreadyExists.
func (s *FileHolder) UpdateFileMeta(id string, changes models.FileUpdate) (*models.FileMeta, error) {
	if err := models.ValidateUpdate(changes); err != nil {
		return nil, err
	}

	meta, err := s.u.Meta.GetByID(id)
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		return meta, nil
	}

	// Detect the collision before writing so the error is deterministic
	// even on databases where the constraint fires only at commit.
	path, filename, extension := meta.Path, meta.Filename, meta.Extension
	if changes.Path != nil {
		path = *changes.Path
	}
	if changes.Filename != nil {
		filename = *changes.Filename
	}
	if changes.Extension != nil {
		extension = *changes.Extension
	}
	other, err := s.u.Meta.GetByTriple(path, filename, extension)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if other != nil && other.ID != meta.ID {
		return nil, fmt.Errorf("%w: %s%s.%s", models.ErrAlreadyExists, path, filename, extension)
	}

	return s.u.Meta.Update(meta, changes)
}

// SyncStorageWithDB reconciles the two stores: blobs without a metadata row
// are deleted, rows without a blob are removed. Both edits land in the same
// unit of work, so a later commit applies them together.
func (s *FileHolder) SyncStorageWithDB() error {
	metas, err := s.u.Meta.List(0, 0)
	if err != nil {
		return err
	}
	blobIDs, err := s.u.Blobs.List()
	if err != nil {
		return err
	}

	known := make(map[string]*models.FileMeta, len(metas))
	for _, m := range metas {
		known[m.ID] = m
	}
	onDisk := make(map[string]struct{}, len(blobIDs))
	for _, id := range blobIDs {
		onDisk[id] = struct{}{}
	}

	var orphanBlobs, danglingRows int
	for _, id := range blobIDs {
		if _, ok := known[id]; ok {
			continue
		}
		// Absence on delete is not an error: another request may have
		// removed the blob since List.
		if _, err := s.u.Blobs.Delete(id); err != nil {
			return err
		}
		orphanBlobs++
	}
	for id, m := range known {
		if _, ok := onDisk[id]; ok {
			continue
		}
		if err := s.u.Meta.Delete(m); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		danglingRows++
	}

	if orphanBlobs > 0 || danglingRows > 0 {
		logger.Info("storage reconciliation removed drift",
			"orphan_blobs", orphanBlobs, "dangling_rows", danglingRows)
	}
	return nil
}
