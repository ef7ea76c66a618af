package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avolokita/fileholder/pkg/models"
)

// Session is one metadata transaction. Nothing is visible to other sessions
// until Commit; the owning unit of work decides when that happens.
type Session struct {
	tx   *gorm.DB
	done bool
}

// Begin opens a transaction on the store.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", models.ErrMetaStore, tx.Error)
	}
	return &Session{tx: tx}, nil
}

// Commit commits the transaction.
func (s *Session) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrMetaStore, err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit; it becomes a
// no-op then.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback().Error; err != nil {
		return fmt.Errorf("%w: rollback: %v", models.ErrMetaStore, err)
	}
	return nil
}

// Save inserts a new row. Returns ErrAlreadyExists when the id or the
// (path, filename, extension) triple collides with an existing row.
func (s *Session) Save(meta *models.FileMeta) error {
	if err := s.tx.Create(meta).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("%w: saving metadata: %v", models.ErrMetaStore, err)
	}
	return nil
}

// GetByID looks a row up by primary key. Returns ErrNotFound for unknown
// ids.
func (s *Session) GetByID(id string) (*models.FileMeta, error) {
	var meta models.FileMeta
	if err := s.tx.Where("id = ?", id).First(&meta).Error; err != nil {
		return nil, convertNotFound(err)
	}
	return &meta, nil
}

// GetByTriple looks a row up by the uniqueness triple.
func (s *Session) GetByTriple(path, filename, extension string) (*models.FileMeta, error) {
	var meta models.FileMeta
	err := s.tx.
		Where("path = ? AND filename = ? AND extension = ?", path, filename, extension).
		First(&meta).Error
	if err != nil {
		return nil, convertNotFound(err)
	}
	return &meta, nil
}

// GetByPathPrefix returns all rows whose path starts with prefix, using the
// path index. Results are ordered by created_at, then id, for stable output.
func (s *Session) GetByPathPrefix(prefix string) ([]*models.FileMeta, error) {
	var metas []*models.FileMeta
	err := s.tx.
		Where("path LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("created_at, id").
		Find(&metas).Error
	if err != nil {
		return nil, fmt.Errorf("%w: prefix search: %v", models.ErrMetaStore, err)
	}
	return metas, nil
}

// List returns rows ordered by created_at, then id. A non-positive limit
// means no limit.
func (s *Session) List(limit, offset int) ([]*models.FileMeta, error) {
	q := s.tx.Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var metas []*models.FileMeta
	if err := q.Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("%w: listing metadata: %v", models.ErrMetaStore, err)
	}
	return metas, nil
}

// Update applies the fields present in the change set and refreshes
// updated_at. An empty change set returns the row unchanged without
// touching updated_at. Triple collisions surface as ErrAlreadyExists.
func (s *Session) Update(meta *models.FileMeta, changes models.FileUpdate) (*models.FileMeta, error) {
	if changes.Empty() {
		return meta, nil
	}

	if changes.Filename != nil {
		meta.Filename = *changes.Filename
	}
	if changes.Extension != nil {
		meta.Extension = *changes.Extension
	}
	if changes.Path != nil {
		meta.Path = *changes.Path
	}
	if changes.HasComment() {
		// A present-and-nil comment clears the column to NULL; Select below
		// forces the nil through to the UPDATE.
		meta.Comment = changes.Comment
	}
	now := time.Now().UTC()
	meta.UpdatedAt = &now

	err := s.tx.
		Model(meta).
		Select("Filename", "Extension", "Path", "Comment", "UpdatedAt").
		Updates(meta).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: updating metadata: %v", models.ErrMetaStore, err)
	}
	return meta, nil
}

// Delete marks the row for deletion inside the current transaction.
func (s *Session) Delete(meta *models.FileMeta) error {
	result := s.tx.Delete(meta)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting metadata: %v", models.ErrMetaStore, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func convertNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%w: %v", models.ErrMetaStore, err)
}

// escapeLike escapes LIKE metacharacters so a literal prefix cannot widen
// the match.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
