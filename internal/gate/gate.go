// Package gate implements the two-layer concurrency admission control the
// transfer engine applies to every chunk operation: a global gate bounding
// total in-flight blob-tier calls, and one per-bot gate bounding concurrent
// calls to a single sender identity (honoring the blob tier's per-sender
// rate ceiling).
package gate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrShutdown is returned by Acquire when the gate has been shut down.
// Per spec it is treated as non-retryable and surfaced to the caller.
var ErrShutdown = fmt.Errorf("gate: shutdown")

// TwoLayer bounds total in-flight chunk operations (global capacity) and,
// within that, concurrent operations against any single bot (per-bot
// capacity). Workers must acquire the global gate before their bot's gate,
// and release in reverse order, to avoid a priority inversion where a
// per-bot permit is held while blocked on global admission.
type TwoLayer struct {
	global *semaphore.Weighted

	mu      sync.Mutex
	perBot  map[string]*semaphore.Weighted
	perCap  int64
	shut    bool
}

// NewTwoLayer builds a gate with the given global and per-bot capacities.
// Per-bot gates are created lazily the first time a bot is seen.
func NewTwoLayer(globalCap, perBotCap int64) *TwoLayer {
	return &TwoLayer{
		global: semaphore.NewWeighted(globalCap),
		perBot: make(map[string]*semaphore.Weighted),
		perCap: perBotCap,
	}
}

func (t *TwoLayer) botSemaphore(botID string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.perBot[botID]
	if !ok {
		s = semaphore.NewWeighted(t.perCap)
		t.perBot[botID] = s
	}
	return s
}

// Permit represents one held (global, per-bot) permit pair. Release must be
// called exactly once, regardless of how the chunk operation ends.
type Permit struct {
	global *semaphore.Weighted
	bot    *semaphore.Weighted
}

// Acquire blocks until both the global gate and botID's gate admit the
// caller, acquiring global first then per-bot, or returns ctx.Err() /
// ErrShutdown if the gate was shut down while the caller held no permit.
func (t *TwoLayer) Acquire(ctx context.Context, botID string) (*Permit, error) {
	t.mu.Lock()
	shut := t.shut
	t.mu.Unlock()
	if shut {
		return nil, ErrShutdown
	}

	if err := t.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	botSem := t.botSemaphore(botID)
	if err := botSem.Acquire(ctx, 1); err != nil {
		t.global.Release(1)
		return nil, err
	}

	return &Permit{global: t.global, bot: botSem}, nil
}

// Release releases the per-bot permit, then the global one — the reverse of
// acquisition order.
func (p *Permit) Release() {
	p.bot.Release(1)
	p.global.Release(1)
}

// Shutdown marks the gate as shut down; subsequent Acquire calls fail with
// ErrShutdown. It does not affect permits already held.
func (t *TwoLayer) Shutdown() {
	t.mu.Lock()
	t.shut = true
	t.mu.Unlock()
}
