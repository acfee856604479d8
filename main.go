// Command tgcloud-server runs TGCloud's optional local HTTP frontend,
// grounded on the teacher's main.go boot sequence: load config, connect to
// the metadata store, register bots, wire the engine, serve until SIGINT/
// SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/botmanager"
	"github.com/angel2rider/tgcloud/internal/config"
	"github.com/angel2rider/tgcloud/internal/engine"
	"github.com/angel2rider/tgcloud/internal/metastore"
	"github.com/angel2rider/tgcloud/internal/models"
	"github.com/angel2rider/tgcloud/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := metastore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("metastore: %v", err)
	}
	db := client.Database("tgcloud")
	store := metastore.New(db)

	if err := store.EnsureIndexes(ctx); err != nil {
		log.Printf("[WARN] failed to ensure indexes: %v (continuing anyway)", err)
	}

	for _, b := range cfg.Bots {
		if err := store.UpsertBot(ctx, models.Bot{BotID: b.BotID, Token: b.Token, Active: true}); err != nil {
			log.Printf("[WARN] failed to register %s: %v", b.BotID, err)
		}
	}
	log.Printf("bot roster registered with %d bots", len(cfg.Bots))

	blob := blobtier.New(cfg.TelegramAPIURL)
	bots := botmanager.New(store)

	eng := engine.New(blob, store, bots, cfg.TelegramChatID, engine.Config{
		ChunkSize:            cfg.ChunkSizeBytes,
		MaxGlobalConcurrency: cfg.MaxGlobalConcurrency,
		MaxPerBotConcurrency: cfg.MaxPerBotConcurrency,
	}, uuid.NewString)

	ready := func() bool { return true }
	handlers := server.NewHandlers(eng, "")
	srv := server.New(":80", ready, handlers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Println("server starting on :80")
		errCh <- srv.Run(ctx)
	}()

	select {
	case <-quit:
		log.Println("shutting down server...")
		cancel()
		if err := <-errCh; err != nil {
			log.Printf("server failed: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Printf("error disconnecting from MongoDB: %v", err)
	}

	log.Println("server exited gracefully")
}
