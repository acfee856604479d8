// Package botmanager resolves active bots, caches bot_id -> token, selects
// an upload bot for single-bot uploads, and returns the full active set for
// multi-bot uploads. Grounded closely on
// _examples/original_source/tgcloud-core/src/bot_manager.rs, translated
// from an async RwLock<HashMap> to Go's sync.RWMutex.
package botmanager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/angel2rider/tgcloud/internal/models"
)

// Store is the subset of the metadata store's bot CRUD the manager needs.
type Store interface {
	ActiveBots(ctx context.Context) ([]models.Bot, error)
	IncrementBotUsage(ctx context.Context, botID string) error
}

// NotFoundError is returned when a referenced bot is absent from the
// roster, per spec.md's BotNotFound error kind.
type NotFoundError struct {
	BotID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("botmanager: bot %q not found", e.BotID)
}

// Manager caches bot_id -> token in memory; a lookup miss triggers one full
// refresh from the metadata store, and a second miss is terminal.
type Manager struct {
	store Store

	mu    sync.RWMutex
	cache map[string]string // bot_id -> token
}

// New builds a Manager over store.
func New(store Store) *Manager {
	return &Manager{store: store, cache: make(map[string]string)}
}

func (m *Manager) refresh(ctx context.Context) ([]models.Bot, error) {
	bots, err := m.store.ActiveBots(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache = make(map[string]string, len(bots))
	for _, b := range bots {
		m.cache[b.BotID] = b.Token
	}
	m.mu.Unlock()

	return bots, nil
}

// UploadBot returns the bot with the lowest upload_count, ties broken by
// natural bot_id order, for the single-bot upload path (spec.md §4.3).
func (m *Manager) UploadBot(ctx context.Context) (models.Bot, error) {
	bots, err := m.refresh(ctx)
	if err != nil {
		return models.Bot{}, err
	}
	if len(bots) == 0 {
		return models.Bot{}, fmt.Errorf("botmanager: no active bots")
	}

	sort.Slice(bots, func(i, j int) bool {
		if bots[i].UploadCount != bots[j].UploadCount {
			return bots[i].UploadCount < bots[j].UploadCount
		}
		return bots[i].BotID < bots[j].BotID
	})
	return bots[0], nil
}

// ActiveBots returns the full active roster sorted deterministically by
// bot_id, for the multi-bot round-robin path.
func (m *Manager) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	bots, err := m.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if len(bots) == 0 {
		return nil, fmt.Errorf("botmanager: no active bots")
	}

	sort.Slice(bots, func(i, j int) bool { return bots[i].BotID < bots[j].BotID })
	return bots, nil
}

// Token resolves a bot's token by id, using the cache first and falling
// back to one full refresh on a miss.
func (m *Manager) Token(ctx context.Context, botID string) (string, error) {
	m.mu.RLock()
	token, ok := m.cache[botID]
	m.mu.RUnlock()
	if ok {
		return token, nil
	}

	if _, err := m.refresh(ctx); err != nil {
		return "", err
	}

	m.mu.RLock()
	token, ok = m.cache[botID]
	m.mu.RUnlock()
	if !ok {
		return "", &NotFoundError{BotID: botID}
	}
	return token, nil
}

// TokenMap resolves tokens for a set of bot ids in one pass, refreshing at
// most once if any id misses the cache.
func (m *Manager) TokenMap(ctx context.Context, botIDs []string) (map[string]string, error) {
	m.mu.RLock()
	allCached := true
	for _, id := range botIDs {
		if _, ok := m.cache[id]; !ok {
			allCached = false
			break
		}
	}
	if allCached {
		out := make(map[string]string, len(botIDs))
		for _, id := range botIDs {
			out[id] = m.cache[id]
		}
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	if _, err := m.refresh(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(botIDs))
	for _, id := range botIDs {
		token, ok := m.cache[id]
		if !ok {
			return nil, &NotFoundError{BotID: id}
		}
		out[id] = token
	}
	return out, nil
}

// IncrementUsage bumps a bot's advisory usage counter. Failure here is
// logged by the caller but not fatal, per spec.md §4.5 step 9.
func (m *Manager) IncrementUsage(ctx context.Context, botID string) error {
	return m.store.IncrementBotUsage(ctx, botID)
}
