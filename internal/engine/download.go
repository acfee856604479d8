package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/gate"
	"github.com/angel2rider/tgcloud/internal/models"
	"github.com/angel2rider/tgcloud/internal/progress"
	"github.com/angel2rider/tgcloud/internal/retry"
)

func emitDownload(sink chan<- models.DownloadEvent, ev models.DownloadEvent) {
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	default:
	}
}

// DownloadFile runs the pipeline in spec.md §4.6: load metadata, fan out
// per-chunk downloads into temp files, merge them in index order, verify
// the whole-file digest, and only then clean up. A failed chunk never
// produces visible partial output because the merge only happens after
// every chunk has succeeded.
func (e *Engine) DownloadFile(ctx context.Context, name, outPath string, sink chan<- models.DownloadEvent) error {
	if sink != nil {
		defer close(sink)
	}

	meta, err := e.meta.GetFileByName(ctx, name)
	if err != nil {
		wrapped := lookupErr(name, err)
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: wrapped})
		return wrapped
	}

	counter := &progress.Counter{}
	emitDownload(sink, models.DownloadEvent{
		Kind:        models.DownloadStarted,
		TotalSize:   meta.Size,
		TotalChunks: meta.TotalChunks,
		Progress:    counter,
	})

	botIDs := distinctBotIDs(meta.Chunks)
	tokenMap, err := e.bots.TokenMap(ctx, botIDs)
	if err != nil {
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: err})
		return err
	}

	g := gate.NewTwoLayer(e.cfg.MaxGlobalConcurrency, e.cfg.MaxPerBotConcurrency)

	tempPaths := make([]string, len(meta.Chunks))
	errs := make([]error, len(meta.Chunks))
	var wg sync.WaitGroup
	var firstErrOnce sync.Once
	var firstErr error

	for i, c := range meta.Chunks {
		i, c := i, c
		token := tokenMap[c.BotID]
		tmpPath := fmt.Sprintf("%s.chunk_%d.tmp", outPath, c.Index)
		tempPaths[i] = tmpPath

		wg.Add(1)
		go func() {
			defer wg.Done()
			if derr := e.downloadOneChunk(ctx, g, c, token, tmpPath, counter); derr != nil {
				errs[i] = derr
				firstErrOnce.Do(func() { firstErr = derr })
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		removeFiles(tempPaths)
		wrapped := &DownloadFailedError{Reason: firstErr}
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: wrapped})
		return wrapped
	}

	emitDownload(sink, models.DownloadEvent{Kind: models.DownloadMerging})
	if err := mergeChunks(outPath, meta.Chunks, tempPaths); err != nil {
		removeFiles(tempPaths)
		os.Remove(outPath)
		wrapped := &DownloadFailedError{Reason: err}
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: wrapped})
		return wrapped
	}

	emitDownload(sink, models.DownloadEvent{Kind: models.DownloadVerifying})
	actual, err := hashFile(outPath)
	if err != nil {
		removeFiles(tempPaths)
		os.Remove(outPath)
		wrapped := &DownloadFailedError{Reason: err}
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: wrapped})
		return wrapped
	}

	if actual != meta.SHA256 {
		removeFiles(tempPaths)
		os.Remove(outPath)
		wrapped := &IntegrityFailedError{Expected: meta.SHA256, Actual: actual}
		emitDownload(sink, models.DownloadEvent{Kind: models.DownloadFailed, Err: wrapped})
		return wrapped
	}

	removeFiles(tempPaths)
	emitDownload(sink, models.DownloadEvent{Kind: models.DownloadCompleted, Path: outPath})
	return nil
}

// downloadOneChunk acquires the gate, then retries the full
// resolve-then-stream attempt — a failure mid-stream restarts from the
// resolver, since download URLs may have short lifetimes and are not
// resumable from a byte offset.
func (e *Engine) downloadOneChunk(ctx context.Context, g *gate.TwoLayer, c models.Chunk, token, tmpPath string, counter *progress.Counter) error {
	permit, err := g.Acquire(ctx, c.BotID)
	if err != nil {
		return classifyGateErr(err)
	}
	defer permit.Release()

	attempt := func(ctx context.Context) error {
		url, err := e.blob.ResolveDownload(ctx, token, c.BlobID)
		if err != nil {
			return err
		}

		body, err := e.blob.StreamDownload(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()

		out, err := os.Create(tmpPath)
		if err != nil {
			return err
		}
		defer out.Close()

		counting := &progress.CountingReader{R: body, Counter: counter}
		if _, err := io.Copy(out, counting); err != nil {
			return err
		}
		return nil
	}

	return retry.Do(ctx, attempt, blobtier.Retryable)
}

// mergeChunks concatenates temp files in ascending chunk-index order into
// outPath using a 64 KiB copy buffer.
func mergeChunks(outPath string, chunks []models.Chunk, tempPaths []string) error {
	ordered := make([]models.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	byIndex := make(map[int]string, len(tempPaths))
	for i, c := range chunks {
		byIndex[c.Index] = tempPaths[i]
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	for _, c := range ordered {
		in, err := os.Open(byIndex[c.Index])
		if err != nil {
			return err
		}
		_, err = io.CopyBuffer(out, in, buf)
		in.Close()
		if err != nil {
			return err
		}
	}
	return out.Sync()
}

func distinctBotIDs(chunks []models.Chunk) []string {
	seen := make(map[string]bool, len(chunks))
	var ids []string
	for _, c := range chunks {
		if !seen[c.BotID] {
			seen[c.BotID] = true
			ids = append(ids, c.BotID)
		}
	}
	return ids
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[DownloadFile] failed to remove temp file %s: %v", p, err)
		}
	}
}

