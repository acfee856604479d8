// Package config loads TGCloud's configuration from the environment,
// mirroring the teacher's main.go/configs/db.go's godotenv + os.Getenv
// style, extended with the admission-control and bot-roster options
// spec.md §6 enumerates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// BotConfig is one auto-registration entry for the bot roster.
type BotConfig struct {
	BotID string
	Token string
}

// Config is TGCloud's fully-resolved runtime configuration.
type Config struct {
	MongoURI             string
	TelegramAPIURL       string
	TelegramChatID       int64
	Bots                 []BotConfig
	MaxGlobalConcurrency int64
	MaxPerBotConcurrency int64
	ChunkSizeBytes       int64
}

const (
	defaultGlobalConcurrency = 12
	defaultPerBotConcurrency = 3
	defaultChunkSizeBytes    = 256 * 1024 * 1024
)

// Load reads a .env file if present (missing is not fatal — the teacher's
// main.go treats it as fatal, but a server running under a real
// environment, e.g. a container, legitimately has no .env file), then
// resolves Config from the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	mongoURI := os.Getenv("MONGO_URL")
	if mongoURI == "" {
		return nil, fmt.Errorf("config: MONGO_URL is not set")
	}

	apiURL := os.Getenv("TELEGRAM_API_URL")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}

	chatIDStr := os.Getenv("TELEGRAM_GROUP_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("config: TELEGRAM_GROUP_ID is not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TELEGRAM_GROUP_ID: %w", err)
	}

	bots := loadBots()
	if len(bots) == 0 {
		return nil, fmt.Errorf("config: no bot tokens configured (set BOT_TOKENS or BOT_1_TOKEN..)")
	}

	return &Config{
		MongoURI:             mongoURI,
		TelegramAPIURL:       apiURL,
		TelegramChatID:       chatID,
		Bots:                 bots,
		MaxGlobalConcurrency: intEnv("MAX_GLOBAL_CONCURRENCY", defaultGlobalConcurrency),
		MaxPerBotConcurrency: intEnv("MAX_PER_BOT_CONCURRENCY", defaultPerBotConcurrency),
		ChunkSizeBytes:       intEnv("CHUNK_SIZE_BYTES", defaultChunkSizeBytes),
	}, nil
}

// loadBots mirrors the teacher's exact BOT_TOKENS / BOT_N_TOKEN fallback
// logic in main.go, assigning stable positional bot ids (bot-1, bot-2, ...)
// since the blob tier doesn't hand back a bot identity of its own.
func loadBots() []BotConfig {
	var tokens []string

	if raw := os.Getenv("BOT_TOKENS"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			tokens = append(tokens, strings.TrimSpace(t))
		}
	} else {
		for i := 1; i <= 7; i++ {
			if t := os.Getenv(fmt.Sprintf("BOT_%d_TOKEN", i)); t != "" {
				tokens = append(tokens, t)
			}
		}
	}

	bots := make([]BotConfig, 0, len(tokens))
	for i, t := range tokens {
		if t == "" {
			continue
		}
		bots = append(bots, BotConfig{BotID: fmt.Sprintf("bot-%d", i+1), Token: t})
	}
	return bots
}

func intEnv(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
