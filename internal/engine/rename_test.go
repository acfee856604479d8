package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/angel2rider/tgcloud/internal/models"
)

func newTestEngineForMetadataOps() (*Engine, *fakeMetaStore) {
	blob := newFakeBlobTier()
	meta := newFakeMetaStore()
	bots := newFakeBotManager(models.Bot{BotID: "bot-1", Token: "tok-1"})
	return New(blob, meta, bots, 1234, Config{}, fixedID("unused")), meta
}

func TestRenameFileUpdatesName(t *testing.T) {
	e, meta := newTestEngineForMetadataOps()
	meta.files["old"] = models.FileMetadata{FileID: "f1", Name: "old"}

	if err := e.RenameFile(context.Background(), "old", "new"); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	if _, err := meta.GetFileByName(context.Background(), "old"); err == nil {
		t.Fatal("old name should no longer resolve")
	}
	if _, err := meta.GetFileByName(context.Background(), "new"); err != nil {
		t.Fatalf("new name should resolve: %v", err)
	}
}

func TestRenameFileRejectsExistingDestination(t *testing.T) {
	e, meta := newTestEngineForMetadataOps()
	meta.files["old"] = models.FileMetadata{FileID: "f1", Name: "old"}
	meta.files["taken"] = models.FileMetadata{FileID: "f2", Name: "taken"}

	err := e.RenameFile(context.Background(), "old", "taken")
	var existsErr *AlreadyExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("want *AlreadyExistsError, got %T: %v", err, err)
	}
}

func TestRenameFileUnknownSourceIsNotFound(t *testing.T) {
	e, _ := newTestEngineForMetadataOps()

	err := e.RenameFile(context.Background(), "missing", "new")
	var notFound *FileNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want *FileNotFoundError, got %T: %v", err, err)
	}
}
