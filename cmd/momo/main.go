// cmd/momo is the entry point for the Momo long-term memory server core.
// It loads configuration from the environment, opens the embedded SQLite
// store, wires the full engine layer through internal/app, and runs the
// background forgetting/inference schedulers until a shutdown signal
// arrives.
//
// This binary does not itself speak HTTP or MCP — it only builds and runs
// the App; a thin transport layer in front of it (out of scope here) would
// import internal/app and call into App.Store()/App.Search/etc. directly.
//
// Exit codes:
//
//	0  clean shutdown
//	1  unrecoverable init failure (DB open, schema migration aborted)
//	2  configuration error
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/momo-mem/momo/internal/app"
	"github.com/momo-mem/momo/internal/config"
	"github.com/momo-mem/momo/internal/storage/sqlite"
)

// shutdownGrace bounds how long Shutdown waits for in-flight ingestion
// workers to reach a clean state boundary before the process exits anyway.
const shutdownGrace = 30 * time.Second

func main() {
	log.SetPrefix("momo: ")
	log.SetFlags(log.LstdFlags)

	rebuildEmbeddings := flag.Bool("rebuild-embeddings", false, "force every document to be re-embedded on startup")
	migrationsDir := flag.String("migrations-dir", "", "optional directory of versioned NNN_name.up.sql/down.sql migration files")
	flag.Parse()

	cfg := config.Load()
	if *rebuildEmbeddings {
		cfg.Features.RebuildEmbeddings = true
	}

	if flag.Arg(0) == "migrate" {
		os.Exit(runMigrate(cfg, *migrationsDir))
	}

	os.Exit(run(cfg))
}

// runMigrate opens the store (which applies the base schema unconditionally),
// optionally applies versioned migrations from migrationsDir, and exits
// without starting the scheduler.
func runMigrate(cfg *config.Config, migrationsDir string) int {
	store, err := sqlite.Open(cfg.Database.URL)
	if err != nil {
		log.Printf("migrate: open store: %v", err)
		return 1
	}
	defer store.Close()

	if migrationsDir != "" {
		if err := store.RunMigrations(migrationsDir); err != nil {
			log.Printf("migrate: %v", err)
			return 1
		}
	}

	log.Println("migrate: schema up to date")
	return 0
}

func run(cfg *config.Config) int {
	if err := validateConfig(cfg); err != nil {
		log.Printf("configuration error: %v", err)
		return 2
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	a, err := app.New(cfg, cfg.Features.RebuildEmbeddings, interactive)
	if err != nil {
		log.Printf("init failed: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	if err := a.Start(ctx); err != nil {
		log.Printf("start failed: %v", err)
		return 1
	}

	log.Printf("momo ready, database=%s", cfg.Database.URL)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
		return 1
	}

	log.Println("momo stopped cleanly")
	return 0
}

func validateConfig(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("MOMO_DATABASE_URL must not be empty")
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("MOMO_EMBEDDING_DIMENSIONS must be positive")
	}
	return nil
}
