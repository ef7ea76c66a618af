// Package models defines the persistent metadata model and the domain
// error taxonomy shared by the stores, the service layer and the API.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileMeta describes one stored blob. The blob bytes themselves live in the
// blob store under the string form of ID; FileMeta is the authoritative
// record of the blob's existence.
//
// The triple (Path, Filename, Extension) is unique across all rows, enforced
// by a composite unique index. Path is purely logical and never maps to the
// on-disk layout of the blob directory.
type FileMeta struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Filename  string     `gorm:"size:255;index;uniqueIndex:idx_file_meta_triple,priority:2" json:"filename"`
	Extension string     `gorm:"size:10;index;uniqueIndex:idx_file_meta_triple,priority:3" json:"file_extension"`
	Path      string     `gorm:"size:1024;index;uniqueIndex:idx_file_meta_triple,priority:1" json:"path"`
	Size      int64      `json:"size"`
	Comment   *string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`

	// Stamped by the update path itself; stays nil until the first update.
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for FileMeta.
func (FileMeta) TableName() string {
	return "file_meta"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&FileMeta{},
	}
}

// FileUpdate is a partial change set for a FileMeta row. Nil fields leave
// the existing value untouched. Comment is the one nullable column: an
// explicit JSON null clears it, which is why its presence is tracked
// separately from its value.
type FileUpdate struct {
	Filename  *string `json:"filename,omitempty"`
	Extension *string `json:"file_extension,omitempty"`
	Path      *string `json:"path,omitempty"`
	Comment   *string `json:"comment,omitempty"`

	// CommentSet records that the comment key was present in the request
	// body, so {"comment": null} is distinguishable from an absent field.
	CommentSet bool `json:"-"`
}

// UnmarshalJSON decodes the change set while keeping track of whether the
// comment key appeared at all. Unknown keys are rejected here because the
// custom decoder bypasses json.Decoder's DisallowUnknownFields.
func (u *FileUpdate) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for key := range fields {
		switch key {
		case "filename", "file_extension", "path", "comment":
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}

	type plain FileUpdate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = FileUpdate(p)
	_, u.CommentSet = fields["comment"]
	return nil
}

// HasComment reports whether the change set carries a comment change,
// including an explicit null.
func (u FileUpdate) HasComment() bool {
	return u.CommentSet || u.Comment != nil
}

// Empty reports whether the change set contains no fields.
func (u FileUpdate) Empty() bool {
	return u.Filename == nil && u.Extension == nil && u.Path == nil && !u.HasComment()
}
