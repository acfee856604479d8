package botmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/angel2rider/tgcloud/internal/models"
)

type fakeStore struct {
	bots      []models.Bot
	refreshes int32
	incCalls  []string
}

func (f *fakeStore) ActiveBots(ctx context.Context) ([]models.Bot, error) {
	atomic.AddInt32(&f.refreshes, 1)
	out := make([]models.Bot, len(f.bots))
	copy(out, f.bots)
	return out, nil
}

func (f *fakeStore) IncrementBotUsage(ctx context.Context, botID string) error {
	f.incCalls = append(f.incCalls, botID)
	return nil
}

func TestUploadBotPicksLowestUsageBreakingTiesByID(t *testing.T) {
	store := &fakeStore{bots: []models.Bot{
		{BotID: "bot-2", Token: "t2", Active: true, UploadCount: 5},
		{BotID: "bot-1", Token: "t1", Active: true, UploadCount: 5},
		{BotID: "bot-3", Token: "t3", Active: true, UploadCount: 1},
	}}
	m := New(store)

	bot, err := m.UploadBot(context.Background())
	if err != nil {
		t.Fatalf("UploadBot: %v", err)
	}
	if bot.BotID != "bot-3" {
		t.Fatalf("want bot-3 (lowest upload count), got %s", bot.BotID)
	}

	store.bots[2].UploadCount = 5 // now bot-1 and bot-2 tie with bot-3 too
	bot, err = m.UploadBot(context.Background())
	if err != nil {
		t.Fatalf("UploadBot: %v", err)
	}
	if bot.BotID != "bot-1" {
		t.Fatalf("want bot-1 (tie broken by id), got %s", bot.BotID)
	}
}

func TestActiveBotsSortedByID(t *testing.T) {
	store := &fakeStore{bots: []models.Bot{
		{BotID: "bot-3", Token: "t3", Active: true},
		{BotID: "bot-1", Token: "t1", Active: true},
		{BotID: "bot-2", Token: "t2", Active: true},
	}}
	m := New(store)

	bots, err := m.ActiveBots(context.Background())
	if err != nil {
		t.Fatalf("ActiveBots: %v", err)
	}
	want := []string{"bot-1", "bot-2", "bot-3"}
	for i, w := range want {
		if bots[i].BotID != w {
			t.Fatalf("position %d: want %s, got %s", i, w, bots[i].BotID)
		}
	}
}

func TestActiveBotsEmptyRosterErrors(t *testing.T) {
	m := New(&fakeStore{})
	if _, err := m.ActiveBots(context.Background()); err == nil {
		t.Fatal("want an error for an empty roster")
	}
}

func TestTokenCachesAfterFirstRefresh(t *testing.T) {
	store := &fakeStore{bots: []models.Bot{{BotID: "bot-1", Token: "secret"}}}
	m := New(store)

	tok, err := m.Token(context.Background(), "bot-1")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "secret" {
		t.Fatalf("want secret, got %s", tok)
	}

	if _, err := m.Token(context.Background(), "bot-1"); err != nil {
		t.Fatalf("second Token call: %v", err)
	}
	if got := atomic.LoadInt32(&store.refreshes); got != 1 {
		t.Fatalf("want exactly 1 refresh (cache hit on second call), got %d", got)
	}
}

func TestTokenUnknownBotReturnsNotFoundAfterOneRefresh(t *testing.T) {
	store := &fakeStore{bots: []models.Bot{{BotID: "bot-1", Token: "secret"}}}
	m := New(store)

	_, err := m.Token(context.Background(), "bot-404")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want *NotFoundError, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&store.refreshes); got != 1 {
		t.Fatalf("want exactly 1 refresh attempt before giving up, got %d", got)
	}
}

func TestTokenMapAllOrNothing(t *testing.T) {
	store := &fakeStore{bots: []models.Bot{
		{BotID: "bot-1", Token: "t1"},
		{BotID: "bot-2", Token: "t2"},
	}}
	m := New(store)

	tokens, err := m.TokenMap(context.Background(), []string{"bot-1", "bot-2"})
	if err != nil {
		t.Fatalf("TokenMap: %v", err)
	}
	if tokens["bot-1"] != "t1" || tokens["bot-2"] != "t2" {
		t.Fatalf("unexpected token map: %+v", tokens)
	}

	if _, err := m.TokenMap(context.Background(), []string{"bot-1", "bot-404"}); err == nil {
		t.Fatal("want an error when any id in the batch is unknown")
	}
}

func TestIncrementUsageDelegatesToStore(t *testing.T) {
	store := &fakeStore{}
	m := New(store)

	if err := m.IncrementUsage(context.Background(), "bot-1"); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if len(store.incCalls) != 1 || store.incCalls[0] != "bot-1" {
		t.Fatalf("want a single delegated call for bot-1, got %v", store.incCalls)
	}
}
