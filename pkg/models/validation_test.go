package models

import (
	"errors"
	"strings"
	"testing"
)

func TestValidFilename(t *testing.T) {
	valid := []string{"a", "report", "my-file_v2", "archive.tar", strings.Repeat("x", 255)}
	for _, s := range valid {
		if !ValidFilename(s) {
			t.Errorf("ValidFilename(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "a/b", "a b", "a\\b", "ümlaut", strings.Repeat("x", 256)}
	for _, s := range invalid {
		if ValidFilename(s) {
			t.Errorf("ValidFilename(%q) = true, want false", s)
		}
	}
}

func TestValidExtension(t *testing.T) {
	valid := []string{"", "txt", "tar", "PDF", "7z", strings.Repeat("x", 10)}
	for _, s := range valid {
		if !ValidExtension(s) {
			t.Errorf("ValidExtension(%q) = false, want true", s)
		}
	}

	invalid := []string{".txt", "t.xt", "tar gz", strings.Repeat("x", 11)}
	for _, s := range invalid {
		if ValidExtension(s) {
			t.Errorf("ValidExtension(%q) = true, want false", s)
		}
	}
}

func TestValidPath(t *testing.T) {
	valid := []string{"/", "/docs/", "/a/b/c/", "/my-dir_2/.hidden/"}
	for _, s := range valid {
		if !ValidPath(s) {
			t.Errorf("ValidPath(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"docs/",
		"/docs",
		"/a b/",
		"/" + strings.Repeat("x/", 512), // over 1024 chars
	}
	for _, s := range invalid {
		if ValidPath(s) {
			t.Errorf("ValidPath(%q) = true, want false", s)
		}
	}
}

func TestValidatorCustomTags(t *testing.T) {
	type subject struct {
		Filename  string `validate:"filename"`
		Extension string `validate:"fileext"`
		Path      string `validate:"filepath"`
	}

	if err := Validator().Struct(subject{Filename: "ok", Extension: "txt", Path: "/ok/"}); err != nil {
		t.Errorf("valid subject rejected: %v", err)
	}
	if err := Validator().Struct(subject{Filename: "no/pe", Extension: "txt", Path: "/ok/"}); err == nil {
		t.Errorf("invalid filename accepted")
	}
}

func TestValidateUpdate(t *testing.T) {
	good := "fine"
	bad := "not ok"
	path := "/p/"

	if err := ValidateUpdate(FileUpdate{}); err != nil {
		t.Errorf("empty change set rejected: %v", err)
	}
	if err := ValidateUpdate(FileUpdate{Filename: &good, Path: &path}); err != nil {
		t.Errorf("valid change set rejected: %v", err)
	}
	if err := ValidateUpdate(FileUpdate{Filename: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid filename error = %v, want ErrValidation", err)
	}
	if err := ValidateUpdate(FileUpdate{Comment: &bad}); err != nil {
		t.Errorf("comment is free-form, got %v", err)
	}
}

func TestFileUpdateEmpty(t *testing.T) {
	if !(FileUpdate{}).Empty() {
		t.Error("zero FileUpdate not Empty")
	}
	s := ""
	if (FileUpdate{Comment: &s}).Empty() {
		t.Error("FileUpdate with comment reported Empty")
	}
}
