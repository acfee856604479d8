// Package models defines the persisted and in-flight shapes shared by the
// blob tier adapter, the metadata store, the bot manager, and the transfer
// engine.
package models

import (
	"time"

	"github.com/angel2rider/tgcloud/internal/progress"
)

// Chunk is one contiguous byte range of a file, uploaded as a single blob.
// Immutable once written.
type Chunk struct {
	Index   int    `bson:"index" json:"index"`
	BotID   string `bson:"bot_id" json:"bot_id"`
	BlobID  string `bson:"blob_id" json:"blob_id"`
	MsgID   int    `bson:"msg_id" json:"msg_id"`
	Size    int64  `bson:"size" json:"size"`
}

// FileMetadata is the engine's record of a logical file. Immutable except
// for Name, which rename updates in place.
type FileMetadata struct {
	FileID      string    `bson:"file_id" json:"file_id"`
	Name        string    `bson:"original_name" json:"original_name"`
	Size        int64     `bson:"size" json:"size"`
	ChunkSize   int64     `bson:"chunk_size" json:"chunk_size"`
	TotalChunks int       `bson:"total_chunks" json:"total_chunks"`
	SHA256      string    `bson:"sha256" json:"sha256"`
	Chunks      []Chunk   `bson:"chunks" json:"chunks"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Bot is an authenticated sender identity in the blob tier.
type Bot struct {
	BotID        string `bson:"bot_id" json:"bot_id"`
	Token        string `bson:"token" json:"-"`
	Active       bool   `bson:"active" json:"active"`
	UploadCount  uint64 `bson:"upload_count" json:"upload_count"`
}

// UploadEventKind enumerates the upload pipeline's state machine.
type UploadEventKind int

const (
	UploadStarted UploadEventKind = iota
	UploadHashing
	UploadHashComplete
	UploadCompleted
	UploadFailed
)

// UploadEvent is one transition in the upload state machine
// (Started -> Hashing -> HashComplete -> Completed|Failed).
type UploadEvent struct {
	Kind        UploadEventKind
	TotalSize   int64
	TotalChunks int
	// Progress is a handle to the shared atomic byte counter; a UI polls it
	// on its own cadence rather than receiving per-byte events.
	Progress  *progress.Counter
	SHA256    string
	FileID    string
	Err       error
}

// DownloadEventKind enumerates the download pipeline's state machine.
type DownloadEventKind int

const (
	DownloadStarted DownloadEventKind = iota
	DownloadMerging
	DownloadVerifying
	DownloadCompleted
	DownloadFailed
)

// DownloadEvent is one transition in the download state machine
// (Started -> Merging -> Verifying -> Completed|Failed).
type DownloadEvent struct {
	Kind        DownloadEventKind
	TotalSize   int64
	TotalChunks int
	Progress    *progress.Counter
	Path        string
	Err         error
}
