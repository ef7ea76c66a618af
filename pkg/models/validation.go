package models

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Field constraints for FileMeta attributes. Filenames carry no extension
// and paths are logical: they must start and end with "/".
var (
	filenameRe  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	extensionRe = regexp.MustCompile(`^[A-Za-z0-9]*$`)
	pathRe      = regexp.MustCompile(`^/[A-Za-z0-9._/-]*$`)
)

// ValidFilename reports whether s is a valid filename stem (1-255 chars,
// letters, digits, dot, underscore, dash).
func ValidFilename(s string) bool {
	return len(s) >= 1 && len(s) <= 255 && filenameRe.MatchString(s)
}

// ValidExtension reports whether s is a valid extension (0-10 alphanumeric
// chars, no leading dot).
func ValidExtension(s string) bool {
	return len(s) <= 10 && extensionRe.MatchString(s)
}

// ValidPath reports whether s is a valid virtual path: 1-1024 chars,
// starting and ending with "/".
func ValidPath(s string) bool {
	return len(s) >= 1 && len(s) <= 1024 &&
		pathRe.MatchString(s) && strings.HasSuffix(s, "/")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance with the fileholder
// custom rules registered: "filename", "fileext" and "filepath".
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Registration only fails for empty tag names.
		_ = validate.RegisterValidation("filename", func(fl validator.FieldLevel) bool {
			return ValidFilename(fl.Field().String())
		})
		_ = validate.RegisterValidation("fileext", func(fl validator.FieldLevel) bool {
			return ValidExtension(fl.Field().String())
		})
		_ = validate.RegisterValidation("filepath", func(fl validator.FieldLevel) bool {
			return ValidPath(fl.Field().String())
		})
	})
	return validate
}

// ValidateUpdate checks the fields present in a change set against the
// FileMeta constraints.
func ValidateUpdate(u FileUpdate) error {
	if u.Filename != nil && !ValidFilename(*u.Filename) {
		return fmt.Errorf("%w: invalid filename %q", ErrValidation, *u.Filename)
	}
	if u.Extension != nil && !ValidExtension(*u.Extension) {
		return fmt.Errorf("%w: invalid extension %q", ErrValidation, *u.Extension)
	}
	if u.Path != nil && !ValidPath(*u.Path) {
		return fmt.Errorf("%w: invalid path %q", ErrValidation, *u.Path)
	}
	return nil
}
