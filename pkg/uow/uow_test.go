package uow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolokita/fileholder/pkg/blobstore"
	"github.com/avolokita/fileholder/pkg/metastore"
	"github.com/avolokita/fileholder/pkg/models"
)

func newTestFactory(t *testing.T) (*Factory, string) {
	t.Helper()

	store, err := metastore.Open(metastore.Config{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		Retries:    1,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("opening metadata store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	root := t.TempDir()
	return &Factory{
		Meta: store,
		Blob: blobstore.Config{Root: root, LockTimeout: 2 * time.Second},
	}, root
}

func testMeta() *models.FileMeta {
	return &models.FileMeta{
		ID:        uuid.New().String(),
		Filename:  "file",
		Extension: "txt",
		Path:      "/t/",
		Size:      3,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCommitAppliesBothStores(t *testing.T) {
	factory, root := newTestFactory(t)
	ctx := context.Background()

	u, err := factory.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer u.Rollback()

	meta := testMeta()
	if err := u.Meta.Save(meta); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := u.Blobs.Add(meta.ID, []byte("abc")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, meta.ID)); err != nil {
		t.Errorf("blob missing after commit: %v", err)
	}

	check, err := factory.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer check.Rollback()
	if _, err := check.Meta.GetByID(meta.ID); err != nil {
		t.Errorf("metadata missing after commit: %v", err)
	}
}

func TestRollbackDiscardsBothStores(t *testing.T) {
	factory, root := newTestFactory(t)
	ctx := context.Background()

	u, err := factory.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}

	meta := testMeta()
	if err := u.Meta.Save(meta); err != nil {
		t.Fatal(err)
	}
	if err := u.Blobs.Add(meta.ID, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := u.Blobs.Flush(); err != nil {
		t.Fatal(err)
	}
	u.Rollback()

	if _, err := os.Stat(filepath.Join(root, meta.ID)); !os.IsNotExist(err) {
		t.Errorf("blob exists after rollback")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() == blobstore.DefaultPendingPrefix+meta.ID {
			t.Errorf("staging file survived rollback")
		}
	}

	check, err := factory.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer check.Rollback()
	if _, err := check.Meta.GetByID(meta.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("metadata visible after rollback: %v", err)
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	factory, _ := newTestFactory(t)
	ctx := context.Background()

	u, err := factory.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}

	meta := testMeta()
	if err := u.Meta.Save(meta); err != nil {
		t.Fatal(err)
	}
	if err := u.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	u.Rollback() // the deferred rollback pattern must not undo a commit

	check, err := factory.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer check.Rollback()
	if _, err := check.Meta.GetByID(meta.ID); err != nil {
		t.Errorf("commit undone by rollback: %v", err)
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	factory, _ := newTestFactory(t)

	u, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	u.Rollback()
	u.Rollback()
}

func TestBeginFailsWithoutStorageRoot(t *testing.T) {
	factory, _ := newTestFactory(t)
	factory.Blob.Root = ""

	if _, err := factory.Begin(context.Background()); err == nil {
		t.Errorf("Begin succeeded with empty storage root")
	}
}
