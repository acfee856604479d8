// Package engine is the Transfer Engine: the chunked, parallel, multi-bot
// upload/download pipeline with integrity verification, two-layer
// concurrency admission control, retry/backoff, and transactional rollback.
// It is the core of TGCloud (spec.md §2 component 4).
package engine

import (
	"context"
	"io"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/models"
)

// BlobTier is the subset of the Messaging Adapter the engine drives.
type BlobTier interface {
	Upload(ctx context.Context, token string, chat int64, filename string, stream io.Reader) (blobtier.Result, error)
	ResolveDownload(ctx context.Context, token, blobID string) (string, error)
	StreamDownload(ctx context.Context, url string) (io.ReadCloser, error)
	Delete(ctx context.Context, token string, chat int64, msgID int) error
}

// MetaStore is the subset of the Metadata Store the engine drives.
type MetaStore interface {
	InsertFile(ctx context.Context, f models.FileMetadata) error
	GetFileByName(ctx context.Context, name string) (*models.FileMetadata, error)
	ListFiles(ctx context.Context, prefix string) ([]models.FileMetadata, error)
	RenameFile(ctx context.Context, oldName, newName string) error
	DeleteFile(ctx context.Context, name string) error
}

// BotManager is the subset of the Bot Manager the engine drives.
type BotManager interface {
	UploadBot(ctx context.Context) (models.Bot, error)
	ActiveBots(ctx context.Context) ([]models.Bot, error)
	Token(ctx context.Context, botID string) (string, error)
	TokenMap(ctx context.Context, botIDs []string) (map[string]string, error)
	IncrementUsage(ctx context.Context, botID string) error
}

// IDGenerator produces the engine-assigned unique file_id for new uploads.
type IDGenerator func() string

// Config tunes the two admission gates and the chunk ceiling. Zero values
// are replaced with spec.md §4's defaults.
type Config struct {
	ChunkSize            int64
	MaxGlobalConcurrency int64
	MaxPerBotConcurrency int64
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxGlobalConcurrency <= 0 {
		c.MaxGlobalConcurrency = 12
	}
	if c.MaxPerBotConcurrency <= 0 {
		c.MaxPerBotConcurrency = 3
	}
	return c
}

// Engine implements upload_file, download_file, delete_file, list_files and
// rename_file over a blob tier, metadata store, and bot manager.
type Engine struct {
	blob  BlobTier
	meta  MetaStore
	bots  BotManager
	chat  int64
	cfg   Config
	newID IDGenerator
}

// New builds an Engine. chat is the destination chat id every upload goes
// to, per spec.md's telegram_chat_id configuration option.
func New(blob BlobTier, meta MetaStore, bots BotManager, chat int64, cfg Config, newID IDGenerator) *Engine {
	return &Engine{
		blob:  blob,
		meta:  meta,
		bots:  bots,
		chat:  chat,
		cfg:   cfg.withDefaults(),
		newID: newID,
	}
}
