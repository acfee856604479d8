// Command tgcloud is TGCloud's CLI frontend: upload/download/list/rename/
// delete subcommands over internal/engine, grounded on
// _examples/original_source/tgcloud-cli/src/main.rs's Commands enum and
// event-driven progress rendering, translated from indicatif to
// schollz/progressbar/v3.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/angel2rider/tgcloud/internal/blobtier"
	"github.com/angel2rider/tgcloud/internal/botmanager"
	"github.com/angel2rider/tgcloud/internal/config"
	"github.com/angel2rider/tgcloud/internal/engine"
	"github.com/angel2rider/tgcloud/internal/metastore"
	"github.com/angel2rider/tgcloud/internal/models"
	"github.com/angel2rider/tgcloud/internal/progress"
	"github.com/google/uuid"
)

func main() {
	root := &cobra.Command{
		Use:   "tgcloud",
		Short: "Object storage over a messaging backend",
	}

	root.AddCommand(
		uploadCmd(),
		downloadCmd(),
		listCmd(),
		renameCmd(),
		deleteCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// buildEngine connects to the metadata store, registers the configured bot
// roster, and assembles an *engine.Engine — the same boot sequence the
// server entrypoint runs, minus the HTTP layer.
func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	client, err := metastore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	db := client.Database("tgcloud")
	store := metastore.New(db)

	if err := store.EnsureIndexes(ctx); err != nil {
		log.Printf("[tgcloud] warning: failed to ensure indexes: %v", err)
	}

	for _, b := range cfg.Bots {
		if err := store.UpsertBot(ctx, models.Bot{BotID: b.BotID, Token: b.Token, Active: true}); err != nil {
			log.Printf("[tgcloud] warning: failed to register %s: %v", b.BotID, err)
		}
	}

	blob := blobtier.New(cfg.TelegramAPIURL)
	bots := botmanager.New(store)

	eng := engine.New(blob, store, bots, cfg.TelegramChatID, engine.Config{
		ChunkSize:            cfg.ChunkSizeBytes,
		MaxGlobalConcurrency: cfg.MaxGlobalConcurrency,
		MaxPerBotConcurrency: cfg.MaxPerBotConcurrency,
	}, uuid.NewString)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}
	return eng, cleanup, nil
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			path := args[0]
			fmt.Printf("uploading %s\n", path)

			sink := make(chan models.UploadEvent, 256)
			done := make(chan error, 1)
			go func() { done <- eng.UploadFile(ctx, path, sink) }()

			var bar *progressbar.ProgressBar
			var ticker *time.Ticker
			stopTicker := make(chan struct{})

			for ev := range sink {
				switch ev.Kind {
				case models.UploadStarted:
					bar = progressbar.DefaultBytes(ev.TotalSize, "uploading")
					ticker = time.NewTicker(100 * time.Millisecond)
					go pollProgress(ticker, stopTicker, ev.Progress, bar)
				case models.UploadHashing:
					fmt.Println("hashing...")
				case models.UploadHashComplete:
					fmt.Printf("sha256: %s\n", ev.SHA256)
				case models.UploadCompleted:
					stopPoll(ticker, stopTicker)
					fmt.Printf("upload completed: file_id=%s\n", ev.FileID)
				case models.UploadFailed:
					stopPoll(ticker, stopTicker)
					fmt.Printf("upload failed: %v\n", ev.Err)
				}
			}

			return <-done
		},
	}
}

func downloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			name := args[0]
			dest := out
			if dest == "" {
				dest = name
			}

			sink := make(chan models.DownloadEvent, 256)
			done := make(chan error, 1)
			go func() { done <- eng.DownloadFile(ctx, name, dest, sink) }()

			var bar *progressbar.ProgressBar
			var ticker *time.Ticker
			stopTicker := make(chan struct{})

			for ev := range sink {
				switch ev.Kind {
				case models.DownloadStarted:
					fmt.Printf("file: %s in %d chunk(s)\n", humanBytes(ev.TotalSize), ev.TotalChunks)
					bar = progressbar.DefaultBytes(ev.TotalSize, "downloading")
					ticker = time.NewTicker(100 * time.Millisecond)
					go pollProgress(ticker, stopTicker, ev.Progress, bar)
				case models.DownloadMerging:
					fmt.Println("merging chunks...")
				case models.DownloadVerifying:
					fmt.Println("verifying integrity...")
				case models.DownloadCompleted:
					stopPoll(ticker, stopTicker)
					fmt.Printf("saved to %s\n", ev.Path)
				case models.DownloadFailed:
					stopPoll(ticker, stopTicker)
					fmt.Printf("download failed: %v\n", ev.Err)
				}
			}

			return <-done
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (defaults to the remote name)")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "root"
			if len(args) == 1 {
				prefix = args[0]
			}
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			files, err := eng.ListFiles(ctx, prefix)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Printf("%-40s %10s  %s\n", f.Name, humanBytes(f.Size), f.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return eng.RenameFile(ctx, args[0], args[1])
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return eng.DeleteFile(ctx, args[0])
		},
	}
}

func pollProgress(ticker *time.Ticker, stop <-chan struct{}, counter *progress.Counter, bar *progressbar.ProgressBar) {
	for {
		select {
		case <-ticker.C:
			if counter != nil && bar != nil {
				bar.Set64(int64(counter.Load()))
			}
		case <-stop:
			return
		}
	}
}

func stopPoll(ticker *time.Ticker, stop chan struct{}) {
	if ticker != nil {
		ticker.Stop()
	}
	select {
	case stop <- struct{}{}:
	default:
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
