package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/gate"
	"github.com/angel2rider/tgcloud/internal/models"
	"github.com/angel2rider/tgcloud/internal/progress"
	"github.com/angel2rider/tgcloud/internal/retry"
)

func emitUpload(sink chan<- models.UploadEvent, ev models.UploadEvent) {
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	default:
	}
}

// UploadFile runs the full upload pipeline described in spec.md §4.5:
// stat -> plan chunks -> hash -> select bots -> fan out chunk workers ->
// roll back on any failure -> commit metadata -> bump bot usage counters.
// Events are streamed to sink; sink may be nil if the caller doesn't care.
func (e *Engine) UploadFile(ctx context.Context, path string, sink chan<- models.UploadEvent) error {
	if sink != nil {
		defer close(sink)
	}

	info, err := os.Stat(path)
	if err != nil {
		emitUpload(sink, models.UploadEvent{Kind: models.UploadFailed, Err: err})
		return err
	}
	size := info.Size()
	ranges := planChunks(size, e.cfg.ChunkSize)
	counter := &progress.Counter{}

	emitUpload(sink, models.UploadEvent{
		Kind:        models.UploadStarted,
		TotalSize:   size,
		TotalChunks: len(ranges),
		Progress:    counter,
	})

	emitUpload(sink, models.UploadEvent{Kind: models.UploadHashing})
	sum, err := hashFile(path)
	if err != nil {
		emitUpload(sink, models.UploadEvent{Kind: models.UploadFailed, Err: err})
		return err
	}
	emitUpload(sink, models.UploadEvent{Kind: models.UploadHashComplete, SHA256: sum})

	botIDs, tokenMap, err := e.selectUploadBots(ctx, len(ranges))
	if err != nil {
		emitUpload(sink, models.UploadEvent{Kind: models.UploadFailed, Err: err})
		return err
	}

	g := gate.NewTwoLayer(e.cfg.MaxGlobalConcurrency, e.cfg.MaxPerBotConcurrency)
	baseName := filepath.Base(path)

	results := make([]models.Chunk, len(ranges))
	errs := make([]error, len(ranges))
	var wg sync.WaitGroup
	var firstErrOnce sync.Once
	var firstErr error

	for _, cr := range ranges {
		cr := cr
		botID := assignBot(botIDs, cr.index)
		token := tokenMap[botID]

		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk, cerr := e.uploadOneChunk(ctx, g, botID, token, path, cr, baseName, counter)
			if cerr != nil {
				errs[cr.index] = cerr
				firstErrOnce.Do(func() { firstErr = cerr })
				return
			}
			results[cr.index] = chunk
		}()
	}
	wg.Wait()

	if firstErr != nil {
		e.rollbackChunks(context.Background(), succeededChunks(results, errs), tokenMap)
		wrapped := &UploadFailedError{Reason: firstErr}
		emitUpload(sink, models.UploadEvent{Kind: models.UploadFailed, Err: wrapped})
		return wrapped
	}

	fileID := e.newID()
	meta := models.FileMetadata{
		FileID:      fileID,
		Name:        path,
		Size:        size,
		ChunkSize:   e.cfg.ChunkSize,
		TotalChunks: len(ranges),
		SHA256:      sum,
		Chunks:      results,
		CreatedAt:   time.Now(),
	}

	if err := e.meta.InsertFile(ctx, meta); err != nil {
		// Tail of the two-phase commit: the blob tier is "prepared" until
		// metadata is durable, so a commit failure rolls back exactly like a
		// chunk failure would.
		e.rollbackChunks(context.Background(), results, tokenMap)
		wrapped := &MetadataError{Cause: err}
		emitUpload(sink, models.UploadEvent{Kind: models.UploadFailed, Err: wrapped})
		return wrapped
	}

	seen := make(map[string]bool, len(botIDs))
	for _, c := range results {
		if seen[c.BotID] {
			continue
		}
		seen[c.BotID] = true
		if err := e.bots.IncrementUsage(ctx, c.BotID); err != nil {
			log.Printf("[UploadFile] advisory usage bump failed for bot %s: %v", c.BotID, err)
		}
	}

	emitUpload(sink, models.UploadEvent{Kind: models.UploadCompleted, FileID: fileID})
	return nil
}

// selectUploadBots implements spec.md §4.3: the single-bot path for files
// that fit in one chunk, the multi-bot round-robin path otherwise.
func (e *Engine) selectUploadBots(ctx context.Context, numChunks int) ([]string, map[string]string, error) {
	if numChunks <= 1 {
		bot, err := e.bots.UploadBot(ctx)
		if err != nil {
			return nil, nil, err
		}
		return []string{bot.BotID}, map[string]string{bot.BotID: bot.Token}, nil
	}

	bots, err := e.bots.ActiveBots(ctx)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, len(bots))
	tokenMap := make(map[string]string, len(bots))
	for i, b := range bots {
		ids[i] = b.BotID
		tokenMap[b.BotID] = b.Token
	}
	sort.Strings(ids)
	return ids, tokenMap, nil
}

// uploadOneChunk acquires the two-layer gate, then retries the bounded
// upload attempt until it succeeds or the retry budget is spent. Each retry
// re-opens the source file and re-seeks to the chunk's offset, since an
// already-consumed upload stream cannot be rewound.
func (e *Engine) uploadOneChunk(ctx context.Context, g *gate.TwoLayer, botID, token, path string, cr chunkRange, baseName string, counter *progress.Counter) (models.Chunk, error) {
	permit, err := g.Acquire(ctx, botID)
	if err != nil {
		return models.Chunk{}, classifyGateErr(err)
	}
	defer permit.Release()

	var result blobtier.Result
	filename := fmt.Sprintf("%s.chunk%d", baseName, cr.index)

	attempt := func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.Seek(cr.offset, io.SeekStart); err != nil {
			return err
		}

		bounded := io.LimitReader(f, cr.length)
		counting := &progress.CountingReader{R: bounded, Counter: counter}

		res, uerr := e.blob.Upload(ctx, token, e.chat, filename, counting)
		if uerr != nil {
			return uerr
		}
		result = res
		return nil
	}

	if err := retry.Do(ctx, attempt, blobtier.Retryable); err != nil {
		return models.Chunk{}, err
	}

	return models.Chunk{
		Index:  cr.index,
		BotID:  botID,
		BlobID: result.BlobID,
		MsgID:  result.MsgID,
		Size:   cr.length,
	}, nil
}

func classifyGateErr(err error) error {
	if err == gate.ErrShutdown {
		return &InternalError{Message: "gate shut down"}
	}
	return err
}

// succeededChunks returns the chunks whose worker did not fail, i.e. every
// blob that needs rolling back when the upload as a whole fails.
func succeededChunks(results []models.Chunk, errs []error) []models.Chunk {
	out := make([]models.Chunk, 0, len(results))
	for i, c := range results {
		if errs[i] == nil {
			out = append(out, c)
		}
	}
	return out
}

// rollbackChunks best-effort deletes every chunk in chunks using its own
// recorded bot_id. Failures are logged, not propagated — a rollback is
// already the failure path.
func (e *Engine) rollbackChunks(ctx context.Context, chunks []models.Chunk, tokenMap map[string]string) {
	for _, c := range chunks {
		token, ok := tokenMap[c.BotID]
		if !ok {
			continue
		}
		if err := e.blob.Delete(ctx, token, e.chat, c.MsgID); err != nil {
			log.Printf("[UploadFile] rollback: failed to delete chunk %d (bot %s msg %d): %v", c.Index, c.BotID, c.MsgID, err)
		}
	}
}
