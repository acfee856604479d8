package engine

import (
	"context"
	"sync"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/gate"
	"github.com/angel2rider/tgcloud/internal/retry"
)

// DeleteFile runs the pipeline in spec.md §4.7: fan out one delete per
// chunk using its recorded bot, and only remove the metadata row once every
// chunk delete has succeeded. A partial blob-tier deletion leaves the
// metadata in place — a dangling file visible but partially broken is
// safer to recover from than orphaned, undeletable metadata.
func (e *Engine) DeleteFile(ctx context.Context, name string) error {
	meta, err := e.meta.GetFileByName(ctx, name)
	if err != nil {
		return lookupErr(name, err)
	}

	botIDs := distinctBotIDs(meta.Chunks)
	tokenMap, err := e.bots.TokenMap(ctx, botIDs)
	if err != nil {
		return err
	}

	g := gate.NewTwoLayer(e.cfg.MaxGlobalConcurrency, e.cfg.MaxPerBotConcurrency)

	errs := make([]error, len(meta.Chunks))
	var wg sync.WaitGroup
	for i, c := range meta.Chunks {
		i, c := i, c
		token := tokenMap[c.BotID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.deleteOneChunk(ctx, g, c.BotID, token, c.MsgID)
		}()
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return &DeleteFailedError{
			FailedCount: len(failures),
			TotalCount:  len(meta.Chunks),
			Causes:      failures,
			Stage:       "chunks",
		}
	}

	if err := e.meta.DeleteFile(ctx, name); err != nil {
		return &DeleteFailedError{
			FailedCount: 1,
			TotalCount:  1,
			Causes:      []error{err},
			Stage:       "metadata",
		}
	}

	return nil
}

func (e *Engine) deleteOneChunk(ctx context.Context, g *gate.TwoLayer, botID, token string, msgID int) error {
	permit, err := g.Acquire(ctx, botID)
	if err != nil {
		return classifyGateErr(err)
	}
	defer permit.Release()

	attempt := func(ctx context.Context) error {
		return e.blob.Delete(ctx, token, e.chat, msgID)
	}
	return retry.Do(ctx, attempt, blobtier.Retryable)
}
