package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/angel2rider/tgcloud/internal/models"
)

func TestDownloadFileRoundTripsUploadedContent(t *testing.T) {
	content := make([]byte, 3*1024*1024+17) // spans multiple chunks plus a remainder
	for i := range content {
		content[i] = byte(i % 251)
	}
	srcPath := writeTempFile(t, content)

	blob := newFakeBlobTier()
	meta := newFakeMetaStore()
	bots := newFakeBotManager(
		models.Bot{BotID: "bot-1", Token: "tok-1"},
		models.Bot{BotID: "bot-2", Token: "tok-2"},
	)
	e := New(blob, meta, bots, 1234, Config{ChunkSize: 1024 * 1024}, fixedID("file-1"))

	if err := e.UploadFile(context.Background(), srcPath, nil); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "restored")
	sink := make(chan models.DownloadEvent, 16)
	if err := e.DownloadFile(context.Background(), srcPath, outPath, sink); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}

	var events []models.DownloadEvent
	for ev := range sink {
		events = append(events, ev)
	}
	if len(events) == 0 || events[len(events)-1].Kind != models.DownloadCompleted {
		t.Fatalf("want a terminal DownloadCompleted event, got %+v", events)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("downloaded content does not match the uploaded content")
	}
}

func TestDownloadFileUnknownNameIsNotFound(t *testing.T) {
	blob := newFakeBlobTier()
	meta := newFakeMetaStore()
	bots := newFakeBotManager(models.Bot{BotID: "bot-1", Token: "tok-1"})
	e := New(blob, meta, bots, 1234, Config{}, fixedID("unused"))

	err := e.DownloadFile(context.Background(), "does-not-exist", filepath.Join(t.TempDir(), "out"), nil)
	var notFound *FileNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want *FileNotFoundError, got %T: %v", err, err)
	}
}

func TestDownloadFileIntegrityMismatchCleansUpOutput(t *testing.T) {
	content := []byte("original content")
	srcPath := writeTempFile(t, content)

	blob := newFakeBlobTier()
	meta := newFakeMetaStore()
	bots := newFakeBotManager(models.Bot{BotID: "bot-1", Token: "tok-1"})
	e := New(blob, meta, bots, 1234, Config{ChunkSize: 1024 * 1024}, fixedID("file-1"))

	if err := e.UploadFile(context.Background(), srcPath, nil); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	// Corrupt the stored digest to simulate bit rot or a tampered chunk.
	stored, _ := meta.GetFileByName(context.Background(), srcPath)
	stored.SHA256 = "0000000000000000000000000000000000000000000000000000000000000000"
	meta.mu.Lock()
	meta.files[srcPath] = *stored
	meta.mu.Unlock()

	outPath := filepath.Join(t.TempDir(), "restored")
	err := e.DownloadFile(context.Background(), srcPath, outPath, nil)

	var integrityErr *IntegrityFailedError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("want *IntegrityFailedError, got %T: %v", err, err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatal("want the corrupted output file removed")
	}
}
