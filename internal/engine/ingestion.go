package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/momo-mem/momo/internal/chunker"
	"github.com/momo-mem/momo/internal/idgen"
	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/errs"
	"github.com/momo-mem/momo/pkg/types"
)

// Ingestor runs the five-step ingestion pipeline (extract→chunk→embed→
// index→post-process) over queued documents with a fixed worker pool
// draining a buffered job queue, non-blocking on enqueue.
type Ingestor struct {
	config Config
	store  storage.Store

	chunkers  *chunker.Registry
	embedder  providers.Embedder
	extractor providers.Extractor
	llm       providers.LLM
	creator   *MemoryCreator

	queue      chan *IngestionJob
	workerWG   sync.WaitGroup
	workerCtx  context.Context
	workerStop context.CancelFunc

	mu           sync.RWMutex
	started      bool
	shuttingDown bool

	onDocumentIngested func(documentID string)
}

// NewIngestor builds an Ingestor. embedder and extractor may be the same
// provider pair shared across the engine. llm and creator may be nil, in
// which case post-process memory extraction (step 5) is skipped even when a
// document requested it.
func NewIngestor(cfg Config, store storage.Store, chunkers *chunker.Registry, embedder providers.Embedder, extractor providers.Extractor, llm providers.LLM, creator *MemoryCreator) *Ingestor {
	return &Ingestor{
		config:    cfg,
		store:     store,
		chunkers:  chunkers,
		embedder:  embedder,
		extractor: extractor,
		llm:       llm,
		creator:   creator,
		queue:     make(chan *IngestionJob, cfg.QueueSize),
	}
}

// SetOnDocumentIngested registers a callback fired after a document reaches
// "done" or "failed".
func (ig *Ingestor) SetOnDocumentIngested(cb func(documentID string)) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.onDocumentIngested = cb
}

// Start launches the worker pool and, in the background, re-enqueues every
// document still in "queued" status from a prior run (see RecoverQueued).
func (ig *Ingestor) Start(ctx context.Context) error {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ig.started {
		return fmt.Errorf("engine: ingestor already started")
	}

	ig.workerCtx, ig.workerStop = context.WithCancel(ctx)
	for i := 0; i < ig.config.NumWorkers; i++ {
		ig.workerWG.Add(1)
		go ig.worker(ig.workerCtx, i)
	}
	ig.started = true
	log.Printf("ingestion: started %d workers", ig.config.NumWorkers)

	go func() {
		if err := ig.RecoverQueued(ctx); err != nil {
			log.Printf("ingestion: recovery failed: %v", err)
		}
	}()
	return nil
}

// RecoverQueued re-enqueues every document in "queued" status, such as ones
// never picked up before a prior shutdown. Documents at any other status,
// including one left at an intermediate step, are not picked up.
func (ig *Ingestor) RecoverQueued(ctx context.Context) error {
	total := 0
	opts := storage.ListOptions{Status: types.DocStatusQueued, Limit: 100}
	for {
		opts.Normalize()
		page, err := ig.store.ListDocuments(ctx, opts)
		if err != nil {
			return fmt.Errorf("ingestion: recovery list: %w", err)
		}
		for _, doc := range page.Items {
			if ig.Enqueue(doc.ID) {
				total++
			}
		}
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		opts.Cursor = page.NextCursor
	}
	log.Printf("ingestion: recovery requeued %d documents", total)
	return nil
}

// Shutdown stops accepting new jobs, closes the queue, and waits for
// in-flight jobs to drain (bounded by config.ShutdownTimeout or ctx). Per
// the concurrency model, a document must never be left mid-pipeline: the
// per-step handlers always resolve a job to either "done"/"failed" or leave
// it at "queued" for the next run to pick back up, never at an intermediate
// status across a shutdown boundary.
func (ig *Ingestor) Shutdown(ctx context.Context) error {
	ig.mu.Lock()
	if !ig.started {
		ig.mu.Unlock()
		return fmt.Errorf("engine: ingestor not started")
	}
	ig.shuttingDown = true
	ig.mu.Unlock()

	ig.workerStop()
	close(ig.queue)

	done := make(chan struct{})
	go func() {
		ig.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ig.config.ShutdownTimeout):
		log.Printf("ingestion: shutdown timeout, %d jobs may be left queued", len(ig.queue))
	case <-ctx.Done():
		ig.mu.Lock()
		ig.started = false
		ig.shuttingDown = false
		ig.mu.Unlock()
		return ctx.Err()
	}

	ig.mu.Lock()
	ig.started = false
	ig.shuttingDown = false
	ig.mu.Unlock()
	return nil
}

// Enqueue submits a document already persisted in "queued" status for
// ingestion. Returns false if the queue is full or the ingestor isn't
// accepting work; the document stays in "queued" either way so a later
// sweep (or a manual retry) can pick it up.
func (ig *Ingestor) Enqueue(documentID string) bool {
	ig.mu.RLock()
	ok := ig.started && !ig.shuttingDown
	ig.mu.RUnlock()
	if !ok {
		return false
	}
	job := &IngestionJob{DocumentID: documentID, Timestamp: time.Now()}
	select {
	case ig.queue <- job:
		return true
	default:
		log.Printf("ingestion: queue full, document %s stays queued", documentID)
		return false
	}
}

func (ig *Ingestor) worker(ctx context.Context, id int) {
	defer ig.workerWG.Done()
	for job := range ig.queue {
		ig.runPipeline(ctx, job)
	}
	_ = id
}

func (ig *Ingestor) requeue(job *IngestionJob) bool {
	if job.Attempt >= ig.config.MaxRetries {
		return false
	}
	job.Attempt++
	delay := time.Duration(job.Attempt*job.Attempt) * ig.config.RetryBaseDelay
	if delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	}
	select {
	case <-time.After(delay):
	case <-ig.workerCtx.Done():
		return false
	}
	select {
	case ig.queue <- job:
		return true
	case <-time.After(10 * time.Millisecond):
		return false
	}
}

// runPipeline drives one document through extract→chunk→embed→index→
// post-process. Steps 1-3 (extract/chunk/embed) are
// retriable up to MaxRetries with jittered backoff; step 4 (index, the
// transactional chunk insert) is fatal and non-retriable on failure — a
// partial index is worse than a failed document. A failure in steps 1-3
// requeues the job until its retries run out and then marks the document
// "failed"; content that yields no chunks, or a failure in step 4, marks it
// "failed" outright. Step 5 is best-effort and never fails the document.
func (ig *Ingestor) runPipeline(ctx context.Context, job *IngestionJob) {
	dbCtx := context.Background()

	doc, err := ig.store.GetDocument(dbCtx, job.DocumentID)
	if err != nil {
		log.Printf("ingestion: document %s vanished: %v", job.DocumentID, err)
		return
	}

	fail := func(stage string, err error) {
		log.Printf("ingestion: %s failed for %s: %v", stage, doc.ID, err)
		if uerr := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusFailed, err.Error()); uerr != nil {
			log.Printf("ingestion: failed to mark %s as failed: %v", doc.ID, uerr)
		}
		ig.notify(doc.ID)
	}

	retriableFail := func(stage string, err error) {
		if ig.requeue(job) {
			log.Printf("ingestion: %s failed for %s, requeued (attempt %d/%d): %v", stage, doc.ID, job.Attempt, ig.config.MaxRetries, err)
			return
		}
		fail(stage, err)
	}

	// Step 1: extract.
	if err := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusExtracting, ""); err != nil {
		retriableFail("extract:status", err)
		return
	}
	content, refinedType, err := ig.extractContent(ctx, doc)
	if err != nil {
		retriableFail("extract", err)
		return
	}
	if refinedType != "" && refinedType != string(doc.ContentType) {
		doc.ContentType = types.DocumentContentType(refinedType)
	}

	// Step 2: chunk.
	if err := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusChunking, ""); err != nil {
		retriableFail("chunk:status", err)
		return
	}
	chunks, err := ig.chunkers.Chunk(content, string(doc.ContentType), chunker.Options{
		ChunkSize:    ig.config.ChunkSize,
		ChunkOverlap: ig.config.ChunkOverlap,
	})
	if err != nil {
		retriableFail("chunk", err)
		return
	}
	if len(chunks) == 0 {
		fail("chunk", fmt.Errorf("ingestion: no chunks produced: %w", errs.ErrInvalidRequest))
		return
	}

	// Step 3: embed.
	if err := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusEmbedding, ""); err != nil {
		retriableFail("embed:status", err)
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ig.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		retriableFail("embed", err)
		return
	}
	if len(vectors) != len(chunks) {
		retriableFail("embed", fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
		return
	}

	// Step 4: index. All-or-nothing, non-retriable: a partially indexed
	// document is worse than one that needs a fresh requeue from scratch.
	if err := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusIndexing, ""); err != nil {
		fail("index:status", err)
		return
	}
	typedChunks := make([]*types.Chunk, len(chunks))
	for i, c := range chunks {
		typedChunks[i] = &types.Chunk{
			ID:         idgen.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    c.Content,
			TokenCount: c.TokenCount,
			Embedding:  vectors[i],
			CreatedAt:  time.Now(),
		}
	}
	if err := ig.store.InsertChunks(dbCtx, doc.ID, typedChunks); err != nil {
		fail("index", err)
		return
	}

	// Step 5: post-process. Best-effort; a failure here does not fail the
	// document, since the chunks are already durably indexed.
	doc.Status = types.DocStatusDone
	doc.Summary = summarize(typedChunks)
	if extractFlag, _ := doc.Metadata[extractMemoriesKey].(bool); extractFlag {
		if err := ig.extractMemories(ctx, doc, typedChunks); err != nil {
			log.Printf("ingestion: memory extraction failed for %s: %v", doc.ID, err)
		}
	}
	delete(doc.Metadata, rawContentKey)
	delete(doc.Metadata, extractMemoriesKey)
	if err := ig.store.UpdateDocument(dbCtx, doc); err != nil {
		log.Printf("ingestion: post-process update failed for %s: %v", doc.ID, err)
	}
	if err := ig.store.UpdateDocumentStatus(dbCtx, doc.ID, types.DocStatusDone, ""); err != nil {
		log.Printf("ingestion: failed to mark %s done: %v", doc.ID, err)
	}
	ig.notify(doc.ID)
}

// rawContentKey is the Document.Metadata key holding the as-submitted
// content: Document has a free-form metadata map but no dedicated content
// column, so the pipeline carries raw bytes there between CreateDocument and
// the extract step, rather than through the job itself (which would not
// survive a process restart for pending recovery).
const rawContentKey = "_raw_content"

// extractMemoriesKey is the Document.Metadata flag a caller sets to request
// memory extraction (the Memory Extractor + memory-creation sub-pipeline)
// as ingestion's post-process step. Same free-form-metadata rationale as
// rawContentKey: Document has no dedicated column for it.
const extractMemoriesKey = "_extract_memories"

var memoryProposalSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"memories": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"content":        map[string]interface{}{"type": "string"},
					"classification": map[string]interface{}{"type": "string", "enum": []string{"fact", "preference", "episode"}},
				},
				"required": []string{"content", "classification"},
			},
		},
	},
	"required": []string{"memories"},
}

// extractMemories runs the Memory Extractor over the document's concatenated
// chunk text, then runs the memory-creation sub-pipeline for each proposal.
func (ig *Ingestor) extractMemories(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	if ig.llm == nil || ig.creator == nil {
		return nil
	}
	var text strings.Builder
	for _, c := range chunks {
		text.WriteString(c.Content)
		text.WriteString("\n")
	}
	prompt := "Extract discrete, atomic facts, preferences, or episodic events worth remembering long-term from the " +
		"following text. Each memory should stand alone without needing the rest of the text for context. " +
		"Respond as JSON {\"memories\": [{\"content\": \"...\", \"classification\": \"fact|preference|episode\"}]}.\n\n" +
		text.String()

	var out struct {
		Memories []struct {
			Content        string `json:"content"`
			Classification string `json:"classification"`
		} `json:"memories"`
	}
	if err := ig.llm.CompleteStructured(ctx, prompt, memoryProposalSchema, &out); err != nil {
		return fmt.Errorf("ingestion: memory extractor: %w", err)
	}

	for _, p := range out.Memories {
		if p.Content == "" {
			continue
		}
		class := types.MemoryClassification(p.Classification)
		if !types.IsValidClassification(class) {
			class = types.ClassificationFact
		}
		mem, err := ig.creator.Create(ctx, CreateMemoryInput{
			Content:        p.Content,
			ContainerTag:   doc.ContainerTag,
			Classification: class,
		})
		if err != nil {
			log.Printf("ingestion: memory creation failed for proposal from %s: %v", doc.ID, err)
			continue
		}
		_ = mem
		docID := doc.ID
		if err := ig.store.LinkMemorySource(ctx, types.MemorySource{MemoryID: mem.ID, DocumentID: &docID}); err != nil {
			log.Printf("ingestion: link memory source failed for %s: %v", doc.ID, err)
		}
	}
	return nil
}

func (ig *Ingestor) extractContent(ctx context.Context, doc *types.Document) (string, string, error) {
	raw, _ := doc.Metadata[rawContentKey].(string)
	if ig.extractor == nil || doc.ContentType != types.ContentTypeWebpage {
		// Non-webpage content is already plain text/markdown/code/csv by the
		// time it reaches the pipeline; extraction is a no-op passthrough.
		return raw, "", nil
	}
	return ig.extractor.Extract(ctx, []byte(raw), providers.ExtractHints{
		DeclaredContentType: string(doc.ContentType),
		SourceURL:           doc.SourceURL,
	})
}

func (ig *Ingestor) notify(documentID string) {
	ig.mu.RLock()
	cb := ig.onDocumentIngested
	ig.mu.RUnlock()
	if cb != nil {
		cb(documentID)
	}
}

func summarize(chunks []*types.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	const maxLen = 280
	first := chunks[0].Content
	if len(first) <= maxLen {
		return first
	}
	return first[:maxLen]
}
