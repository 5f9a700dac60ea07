package engine

import (
	"context"
	"testing"
	"time"

	"github.com/momo-mem/momo/internal/chunker"
	"github.com/momo-mem/momo/pkg/types"
)

// newDirectDocument builds a document for tests that Enqueue it explicitly
// rather than relying on the recovery sweep; its status is deliberately not
// "queued" so Start's concurrent RecoverQueued pass can't race a second
// enqueue of the same document.
func newDirectDocument(id, rawContent string) *types.Document {
	now := time.Now()
	return &types.Document{
		ID:           id,
		ContentType:  types.ContentTypeText,
		ContainerTag: "user-1",
		Status:       types.DocStatusExtracting,
		Metadata:     map[string]interface{}{rawContentKey: rawContent},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// newQueuedDocument builds a "queued" document for the recovery sweep test.
func newQueuedDocument(id, rawContent string) *types.Document {
	doc := newDirectDocument(id, rawContent)
	doc.Status = types.DocStatusQueued
	return doc
}

func waitForIngestion(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected ingestion notification for %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ingestion of %q", want)
	}
}

func newTestIngestor(t *testing.T, store *fakeStore, embedder *fakeEmbedder, llm *fakeLLM, creator *MemoryCreator) (*Ingestor, <-chan string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.QueueSize = 10
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	cfg.ShutdownTimeout = time.Second

	ig := NewIngestor(cfg, store, chunker.NewRegistry(), embedder, nil, llm, creator)
	ch := make(chan string, 4)
	ig.SetOnDocumentIngested(func(id string) { ch <- id })
	return ig, ch
}

func TestIngestor_RunPipeline_IndexesDocumentSuccessfully(t *testing.T) {
	store := newFakeStore()
	doc := newDirectDocument("doc-1", "Hello world. This is a test document with enough content to chunk.")

	embedder := &fakeEmbedder{dim: 3}
	ig, ch := newTestIngestor(t, store, embedder, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ig.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if !ig.Enqueue(doc.ID) {
		t.Fatalf("expected Enqueue to succeed")
	}
	waitForIngestion(t, ch, doc.ID)

	stored, err := store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Status != types.DocStatusDone {
		t.Fatalf("expected document done, got status %q", stored.Status)
	}
	chunks, err := store.GetChunksByDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected at least one indexed chunk")
	}

	if err := ig.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestIngestor_RunPipeline_EmptyContentFailsNonRetriably(t *testing.T) {
	store := newFakeStore()
	doc := newDirectDocument("doc-empty", "   ")

	embedder := &fakeEmbedder{dim: 3}
	ig, ch := newTestIngestor(t, store, embedder, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ig.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if !ig.Enqueue(doc.ID) {
		t.Fatalf("expected Enqueue to succeed")
	}
	waitForIngestion(t, ch, doc.ID)

	stored, err := store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Status != types.DocStatusFailed {
		t.Fatalf("expected document failed for empty content, got status %q", stored.Status)
	}

	if err := ig.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestIngestor_RunPipeline_ExtractsMemoriesWhenRequested(t *testing.T) {
	store := newFakeStore()
	doc := newDirectDocument("doc-extract", "The user prefers dark mode interfaces across all their tools.")
	doc.Metadata[extractMemoriesKey] = true

	embedder := &fakeEmbedder{dim: 3}
	llm := &fakeLLM{structuredResponses: []string{
		`{"memories": [{"content": "The user prefers dark mode", "classification": "preference"}]}`,
	}}
	creator := NewMemoryCreator(DefaultConfig(), store, embedder, nil)
	ig, ch := newTestIngestor(t, store, embedder, llm, creator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ig.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if !ig.Enqueue(doc.ID) {
		t.Fatalf("expected Enqueue to succeed")
	}
	waitForIngestion(t, ch, doc.ID)

	var found *types.Memory
	for _, m := range store.memories {
		found = m
	}
	if found == nil {
		t.Fatalf("expected a memory to be extracted and created")
	}
	if found.Classification != types.ClassificationPreference {
		t.Fatalf("expected preference classification, got %q", found.Classification)
	}

	if err := ig.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestIngestor_RecoverQueued_ReenqueuesQueuedDocuments(t *testing.T) {
	store := newFakeStore()
	doc := newQueuedDocument("doc-recover", "Recovered document content for the pipeline.")
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	embedder := &fakeEmbedder{dim: 3}
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.QueueSize = 10
	ig := NewIngestor(cfg, store, chunker.NewRegistry(), embedder, nil, nil, nil)
	ch := make(chan string, 4)
	ig.SetOnDocumentIngested(func(id string) { ch <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ig.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForIngestion(t, ch, doc.ID)

	if err := ig.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
