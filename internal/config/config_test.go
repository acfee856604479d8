package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"MONGO_URL", "TELEGRAM_API_URL", "TELEGRAM_GROUP_ID", "BOT_TOKENS",
		"BOT_1_TOKEN", "BOT_2_TOKEN", "BOT_3_TOKEN", "BOT_4_TOKEN", "BOT_5_TOKEN",
		"BOT_6_TOKEN", "BOT_7_TOKEN", "MAX_GLOBAL_CONCURRENCY", "MAX_PER_BOT_CONCURRENCY",
		"CHUNK_SIZE_BYTES",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadFailsWithoutMongoURL(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("want an error when MONGO_URL is unset")
	}
}

func TestLoadAppliesDefaultsAndBotTokensFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGO_URL", "mongodb://localhost:27017")
	t.Setenv("TELEGRAM_GROUP_ID", "-1001234567890")
	t.Setenv("BOT_1_TOKEN", "tok-1")
	t.Setenv("BOT_2_TOKEN", "tok-2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TelegramAPIURL != "https://api.telegram.org" {
		t.Fatalf("want the default API URL, got %s", cfg.TelegramAPIURL)
	}
	if cfg.MaxGlobalConcurrency != defaultGlobalConcurrency {
		t.Fatalf("want default global concurrency, got %d", cfg.MaxGlobalConcurrency)
	}
	if len(cfg.Bots) != 2 {
		t.Fatalf("want 2 bots from BOT_N_TOKEN fallback, got %d", len(cfg.Bots))
	}
	if cfg.Bots[0].BotID != "bot-1" || cfg.Bots[1].BotID != "bot-2" {
		t.Fatalf("unexpected bot ids: %+v", cfg.Bots)
	}
}

func TestLoadPrefersBotTokensOverIndividualVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGO_URL", "mongodb://localhost:27017")
	t.Setenv("TELEGRAM_GROUP_ID", "-100")
	t.Setenv("BOT_TOKENS", "tok-a, tok-b, tok-c")
	t.Setenv("BOT_1_TOKEN", "should-be-ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Bots) != 3 {
		t.Fatalf("want 3 bots from BOT_TOKENS, got %d", len(cfg.Bots))
	}
	if cfg.Bots[1].Token != "tok-b" {
		t.Fatalf("want trimmed token tok-b, got %q", cfg.Bots[1].Token)
	}
}
