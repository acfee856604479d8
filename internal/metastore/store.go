// Package metastore is the Metadata Store: CRUD over FileMetadata records
// keyed by file_id and original_name, plus the bot roster collection.
// Grounded on the teacher's configs/db.go and configs/indexes.go, adapted
// from its uploads/chunks schema to TGCloud's file/bot collections.
package metastore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/angel2rider/tgcloud/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by GetFileByName, RenameFile and DeleteFile when
// no file matches the given original_name.
var ErrNotFound = fmt.Errorf("metastore: not found")

// ErrAlreadyExists is returned by RenameFile when new_name is already taken.
var ErrAlreadyExists = fmt.Errorf("metastore: name already exists")

// Store is the metadata store's client. Safe for concurrent callers, per
// spec.md §5 — the underlying *mongo.Client already is.
type Store struct {
	db *mongo.Database
}

// New wraps an already-connected *mongo.Database.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials MongoDB and pings it, mirroring the teacher's
// configs.ConnectDB but parameterized instead of reading the environment
// itself.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("metastore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the files and bots collections need.
// Mirrors the teacher's configs.SetupIndexes, re-targeted at TGCloud's
// query patterns (lookup by original_name, prefix scans, bot roster scans).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	files := s.db.Collection("files")
	fileIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "original_name", Value: 1}},
			Options: options.Index().SetName("idx_original_name_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "file_id", Value: 1}},
			Options: options.Index().SetName("idx_file_id_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_created_at_desc"),
		},
	}
	if _, err := files.Indexes().CreateMany(ctx, fileIndexes); err != nil {
		return fmt.Errorf("metastore: file indexes: %w", err)
	}

	bots := s.db.Collection("bots")
	botIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bot_id", Value: 1}},
			Options: options.Index().SetName("idx_bot_id_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "active", Value: 1}},
			Options: options.Index().SetName("idx_active"),
		},
	}
	if _, err := bots.Indexes().CreateMany(ctx, botIndexes); err != nil {
		return fmt.Errorf("metastore: bot indexes: %w", err)
	}

	return nil
}

func (s *Store) files() *mongo.Collection { return s.db.Collection("files") }
func (s *Store) bots() *mongo.Collection  { return s.db.Collection("bots") }

// InsertFile performs the single atomic insert that commits a file only
// after every chunk has been accepted by the blob tier (spec.md §3
// lifecycle rule: no partially-committed metadata is ever persisted).
func (s *Store) InsertFile(ctx context.Context, f models.FileMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.files().InsertOne(ctx, f)
	if err != nil {
		return fmt.Errorf("metastore: insert file: %w", err)
	}
	return nil
}

// GetFileByName looks up a FileMetadata by its logical path.
func (s *Store) GetFileByName(ctx context.Context, name string) (*models.FileMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var f models.FileMetadata
	err := s.files().FindOne(ctx, bson.M{"original_name": name}).Decode(&f)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get file: %w", err)
	}
	return &f, nil
}

// ListFiles returns files whose original_name is anchored-prefixed by
// prefix, or every file when prefix is "root".
func (s *Store) ListFiles(ctx context.Context, prefix string) ([]models.FileMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if prefix != "" && prefix != "root" {
		filter = bson.M{"original_name": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.files().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("metastore: list files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.FileMetadata
	if err := cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("metastore: decode files: %w", err)
	}
	return files, nil
}

// RenameFile atomically updates original_name, rejecting the rename if
// new_name is already taken.
func (s *Store) RenameFile(ctx context.Context, oldName, newName string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := s.files().CountDocuments(ctx, bson.M{"original_name": newName})
	if err != nil {
		return fmt.Errorf("metastore: rename check: %w", err)
	}
	if count > 0 {
		return ErrAlreadyExists
	}

	res, err := s.files().UpdateOne(ctx,
		bson.M{"original_name": oldName},
		bson.M{"$set": bson.M{"original_name": newName}},
	)
	if err != nil {
		return fmt.Errorf("metastore: rename: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFile removes the metadata row for name.
func (s *Store) DeleteFile(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.files().DeleteOne(ctx, bson.M{"original_name": name})
	if err != nil {
		return fmt.Errorf("metastore: delete file: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertBot inserts or replaces a bot record by bot_id, used for
// auto-registration from config at startup.
func (s *Store) UpsertBot(ctx context.Context, b models.Bot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.bots().ReplaceOne(ctx,
		bson.M{"bot_id": b.BotID},
		b,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("metastore: upsert bot: %w", err)
	}
	return nil
}

// ActiveBots returns the full active-bot roster.
func (s *Store) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.bots().Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("metastore: active bots: %w", err)
	}
	defer cursor.Close(ctx)

	var bots []models.Bot
	if err := cursor.All(ctx, &bots); err != nil {
		return nil, fmt.Errorf("metastore: decode bots: %w", err)
	}
	return bots, nil
}

// IncrementBotUsage bumps a bot's advisory upload counter by one.
func (s *Store) IncrementBotUsage(ctx context.Context, botID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.bots().UpdateOne(ctx,
		bson.M{"bot_id": botID},
		bson.M{"$inc": bson.M{"upload_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("metastore: increment usage: %w", err)
	}
	return nil
}

