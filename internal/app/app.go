// Package app wires Store, provider handles, and the scheduler together
// into one application context constructed once at process start, and
// exposes the core's operations as plain Go methods for a thin HTTP/MCP
// layer to call.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/momo-mem/momo/internal/chunker"
	"github.com/momo-mem/momo/internal/config"
	"github.com/momo-mem/momo/internal/engine"
	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/internal/storage/sqlite"
	"github.com/momo-mem/momo/pkg/types"
)

// App is the application context: one Store handle, one set of provider
// handles, and every engine-layer component built on top of them, plus the
// background scheduler driving the periodic forgetting/inference passes.
type App struct {
	cfg   *config.Config
	store storage.Store

	embedder  providers.Embedder
	llm       providers.LLM
	reranker  providers.Reranker
	extractor providers.Extractor

	Ingestor   *engine.Ingestor
	Memories   *engine.MemoryCreator
	Search     *engine.SearchService
	Forgetting *engine.ForgettingManager
	Inference  *engine.InferenceEngine
	Profiles   *engine.ProfileBuilder
	Graph      *engine.GraphView

	mu          sync.RWMutex
	started     bool
	schedCancel context.CancelFunc
	schedWG     sync.WaitGroup
}

// New opens the Store, builds every provider from cfg, and wires the full
// engine layer. rebuildEmbeddings forces every document back to "queued"
// and clears chunk embeddings even when the stored embedding fingerprint
// still matches — the `--rebuild-embeddings` CLI flag's effect. interactive
// reports whether the process has a terminal attached to prompt the
// operator when a fingerprint mismatch is found without that flag; a
// non-interactive process with no flag aborts instead of silently clearing
// embeddings out from under it.
func New(cfg *config.Config, rebuildEmbeddings, interactive bool) (*App, error) {
	store, err := sqlite.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	embedder, err := providers.NewEmbedder(providers.EmbeddingFactoryConfig{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		BatchSize:  cfg.Embedding.BatchSize,
		MaxRetries: cfg.Embedding.MaxRetries,
		RateLimit:  cfg.Embedding.RateLimit,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: build embedder: %w", err)
	}

	llmClient, err := providers.NewLLM(providers.LLMFactoryConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: build llm: %w", err)
	}

	var reranker providers.Reranker
	if cfg.Rerank.Enabled {
		reranker = providers.NewHTTPReranker(providers.HTTPRerankerConfig{Model: cfg.Rerank.Model})
	}

	a := &App{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		llm:       llmClient,
		reranker:  reranker,
		extractor: providers.NewHTMLExtractor(),
	}

	if err := a.checkEmbeddingFingerprint(rebuildEmbeddings, interactive); err != nil {
		store.Close()
		return nil, err
	}

	engCfg := engine.NewConfig(cfg)
	if err := engCfg.Validate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("app: invalid engine config: %w", err)
	}

	a.Memories = engine.NewMemoryCreator(engCfg, store, embedder, llmClient)
	a.Ingestor = engine.NewIngestor(engCfg, store, chunker.NewRegistry(), embedder, a.extractor, llmClient, a.Memories)
	a.Search = engine.NewSearchService(engCfg, store, embedder, llmClient, reranker)
	a.Forgetting = engine.NewForgettingManager(engCfg, store)
	a.Inference = engine.NewInferenceEngine(engCfg, store, a.Memories, llmClient)
	a.Profiles = engine.NewProfileBuilder(store, llmClient)
	a.Graph = engine.NewGraphView(store)

	return a, nil
}

// checkEmbeddingFingerprint compares the configured embedding model/
// dimension against what's recorded in system metadata from the last run
// that actually populated chunk embeddings. A mismatch (model swapped,
// dimension changed) with neither --rebuild-embeddings nor an interactive
// operator confirmation aborts startup rather than silently destroying
// embeddings; otherwise it requeues every document for re-embedding and
// records the new fingerprint.
func (a *App) checkEmbeddingFingerprint(forceRebuild, interactive bool) error {
	ctx := context.Background()
	storedModel, hasModel, err := a.store.GetSystemMetadata(ctx, types.MetaKeyEmbeddingModel)
	if err != nil {
		return fmt.Errorf("app: read embedding fingerprint: %w", err)
	}
	storedDim, hasDim, err := a.store.GetSystemMetadata(ctx, types.MetaKeyEmbeddingDimension)
	if err != nil {
		return fmt.Errorf("app: read embedding dimension: %w", err)
	}

	currentDim := fmt.Sprintf("%d", a.embedder.Dimension())
	mismatch := (hasModel && storedModel != a.cfg.Embedding.Model) || (hasDim && storedDim != currentDim)

	if mismatch && !forceRebuild {
		if !interactive {
			return fmt.Errorf("app: embedding fingerprint mismatch (configured model=%q dim=%s, stored model=%q dim=%s): rerun with --rebuild-embeddings, or attach a terminal to confirm interactively", a.cfg.Embedding.Model, currentDim, storedModel, storedDim)
		}
		confirmed, err := confirmEmbeddingRebuild(storedModel, storedDim, a.cfg.Embedding.Model, currentDim)
		if err != nil {
			return fmt.Errorf("app: read rebuild confirmation: %w", err)
		}
		if !confirmed {
			return fmt.Errorf("app: embedding rebuild declined by operator, aborting startup")
		}
	}

	if forceRebuild || mismatch {
		n, err := a.store.RequeueAllForRebuild(ctx)
		if err != nil {
			return fmt.Errorf("app: requeue for rebuild: %w", err)
		}
		if n > 0 {
			log.Printf("app: requeued %d documents for embedding rebuild", n)
		}
	}

	if err := a.store.SetSystemMetadata(ctx, types.MetaKeyEmbeddingModel, a.cfg.Embedding.Model); err != nil {
		return fmt.Errorf("app: write embedding fingerprint: %w", err)
	}
	if err := a.store.SetSystemMetadata(ctx, types.MetaKeyEmbeddingDimension, currentDim); err != nil {
		return fmt.Errorf("app: write embedding dimension: %w", err)
	}
	return nil
}

// confirmEmbeddingRebuild prompts an attached terminal for y/n confirmation
// before clearing every chunk embedding and re-queuing every document.
func confirmEmbeddingRebuild(storedModel, storedDim, wantModel, wantDim string) (bool, error) {
	fmt.Fprintf(os.Stderr, "momo: embedding fingerprint mismatch (stored model=%q dim=%s, configured model=%q dim=%s)\n", storedModel, storedDim, wantModel, wantDim)
	fmt.Fprint(os.Stderr, "momo: rebuild all embeddings now? [y/N] ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

// Start launches the ingestion worker pool and the periodic background
// jobs (forgetting always, inference when enabled — episode decay is
// folded into the forgetting pass), each a time.Ticker-driven goroutine
// under a shared cancelable context.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app: already started")
	}

	if err := a.Ingestor.Start(ctx); err != nil {
		return fmt.Errorf("app: start ingestor: %w", err)
	}

	schedCtx, cancel := context.WithCancel(ctx)
	a.schedCancel = cancel

	a.schedWG.Add(1)
	go a.runPeriodic(schedCtx, "forgetting", a.cfg.Lifecycle.ForgettingCheckInterval, func(ctx context.Context) {
		report, err := a.Forgetting.Run(ctx)
		if err != nil {
			log.Printf("app: forgetting pass failed: %v", err)
			return
		}
		log.Printf("app: forgetting pass: %d hard-forgotten, %d scheduled, %d scanned", report.HardForgotten, report.Scheduled, report.Scanned)
	})

	if a.cfg.Inference.Enabled {
		a.schedWG.Add(1)
		go a.runPeriodic(schedCtx, "inference", time.Duration(a.cfg.Inference.IntervalSecs)*time.Second, func(ctx context.Context) {
			report, err := a.Inference.Run(ctx)
			if err != nil {
				log.Printf("app: inference pass failed: %v", err)
				return
			}
			log.Printf("app: inference pass: %d created from %d seeds", report.Created, report.SeedsConsidered)
		})
	}

	a.started = true
	return nil
}

func (a *App) runPeriodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	defer a.schedWG.Done()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("app: %s scheduler started, interval %s", name, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Shutdown stops the scheduler and the ingestion worker pool, letting
// in-flight workers reach a clean state boundary before returning, then
// closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return fmt.Errorf("app: not started")
	}
	a.started = false
	a.mu.Unlock()

	if a.schedCancel != nil {
		a.schedCancel()
	}
	a.schedWG.Wait()

	if err := a.Ingestor.Shutdown(ctx); err != nil {
		log.Printf("app: ingestor shutdown: %v", err)
	}
	return a.store.Close()
}

// Store exposes the underlying Store for callers (e.g. a CreateDocument
// HTTP handler) that need direct CRUD access alongside the engine-layer
// operations.
func (a *App) Store() storage.Store {
	return a.store
}
