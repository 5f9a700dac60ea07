package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// newTestStore opens a fresh in-memory database with the full schema
// applied, mirroring the ":memory:" pattern the rest of the corpus tests
// its sqlite backends with.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetMemory_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	mem := &types.Memory{
		ID:             "mem-1",
		Content:        "the user lives in Seattle",
		ContainerTag:   "user-1",
		Classification: types.ClassificationFact,
		Version:        1,
		IsLatest:       true,
		SourceCount:    1,
		Confidence:     0.9,
		Embedding:      []float32{0.1, 0.2, 0.3},
		EmbeddingModel: "local/test",
		ContentHash:    "abc123",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	got, err := store.GetMemory(ctx, mem.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Content != mem.Content || got.ContainerTag != mem.ContainerTag {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
	if len(got.Embedding) != 3 || got.Embedding[0] != float32(0.1) {
		t.Fatalf("embedding round-trip mismatch: got %v", got.Embedding)
	}
	if !got.IsLatest {
		t.Fatalf("expected IsLatest true")
	}
}

func TestGetLatestByContentHash_FindsExistingLatestWithinContainer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	mem := &types.Memory{
		ID: "mem-1", Content: "x", ContainerTag: "user-1", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, ContentHash: "hash-a", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	found, err := store.GetLatestByContentHash(ctx, "user-1", "hash-a")
	if err != nil {
		t.Fatalf("GetLatestByContentHash: %v", err)
	}
	if found.ID != "mem-1" {
		t.Fatalf("expected mem-1, got %+v", found)
	}

	if _, err := store.GetLatestByContentHash(ctx, "user-2", "hash-a"); err == nil {
		t.Fatalf("expected not-found across a different container tag")
	}
}

func TestSuperviseSupersession_FlipsLatestAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := &types.Memory{
		ID: "mem-old", Content: "lives in Seattle", ContainerTag: "user-1",
		Classification: types.ClassificationFact, Version: 1, IsLatest: true,
		ContentHash: "h1", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateMemory(ctx, old); err != nil {
		t.Fatalf("CreateMemory(old): %v", err)
	}

	root := old.ID
	newMem := &types.Memory{
		ID: "mem-new", Content: "lives in Denver", ContainerTag: "user-1",
		Classification: types.ClassificationFact, Version: 2, IsLatest: true,
		ParentMemoryID: &old.ID, RootMemoryID: &root,
		ContentHash: "h2", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.SuperviseSupersession(ctx, old.ID, newMem); err != nil {
		t.Fatalf("SuperviseSupersession: %v", err)
	}

	oldAfter, err := store.GetMemory(ctx, old.ID)
	if err != nil {
		t.Fatalf("GetMemory(old): %v", err)
	}
	if oldAfter.IsLatest {
		t.Fatalf("expected old memory to no longer be latest")
	}
	newAfter, err := store.GetMemory(ctx, newMem.ID)
	if err != nil {
		t.Fatalf("GetMemory(new): %v", err)
	}
	if !newAfter.IsLatest || newAfter.Version != 2 {
		t.Fatalf("expected new memory latest at version 2, got %+v", newAfter)
	}
}

func TestListMemories_FiltersByContainerTagAndLatestOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, tag := range []string{"user-1", "user-1", "user-2"} {
		mem := &types.Memory{
			ID: "mem-" + tag + "-" + string(rune('a'+i)), Content: "x", ContainerTag: tag,
			Classification: types.ClassificationFact, Version: 1, IsLatest: true,
			ContentHash: "h" + string(rune('a'+i)), CreatedAt: now, UpdatedAt: now,
		}
		if err := store.CreateMemory(ctx, mem); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	page, err := store.ListMemories(ctx, storage.ListOptions{ContainerTag: "user-1", IncludeLatestOnly: true})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 memories for user-1, got %d", len(page.Items))
	}
	for _, m := range page.Items {
		if m.ContainerTag != "user-1" {
			t.Fatalf("container tag leaked: %+v", m)
		}
	}
}

func TestHardForgetDue_ForgetsOnlyPastDueMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	due := &types.Memory{
		ID: "mem-due", Content: "x", ContainerTag: "user-1", Classification: types.ClassificationEpisode,
		Version: 1, IsLatest: true, ContentHash: "h1", CreatedAt: now, UpdatedAt: now,
	}
	notDue := &types.Memory{
		ID: "mem-not-due", Content: "y", ContainerTag: "user-1", Classification: types.ClassificationEpisode,
		Version: 1, IsLatest: true, ContentHash: "h2", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateMemory(ctx, due); err != nil {
		t.Fatalf("CreateMemory(due): %v", err)
	}
	if err := store.CreateMemory(ctx, notDue); err != nil {
		t.Fatalf("CreateMemory(notDue): %v", err)
	}

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if err := store.ScheduleForget(ctx, due.ID, past); err != nil {
		t.Fatalf("ScheduleForget(due): %v", err)
	}
	if err := store.ScheduleForget(ctx, notDue.ID, future); err != nil {
		t.Fatalf("ScheduleForget(notDue): %v", err)
	}

	n, err := store.HardForgetDue(ctx, now)
	if err != nil {
		t.Fatalf("HardForgetDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 forgotten memory, got %d", n)
	}

	gotDue, _ := store.GetMemory(ctx, due.ID)
	if !gotDue.IsForgotten {
		t.Fatalf("expected due memory forgotten")
	}
	gotNotDue, _ := store.GetMemory(ctx, notDue.ID)
	if gotNotDue.IsForgotten {
		t.Fatalf("expected not-due memory to remain active")
	}
}

func TestDocumentAndChunkLifecycle_CascadesOnDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	doc := &types.Document{
		ID: "doc-1", ContentType: types.ContentTypeText, ContainerTag: "user-1",
		Status: types.DocStatusQueued, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	chunks := []*types.Chunk{
		{ID: "chunk-1", DocumentID: doc.ID, ChunkIndex: 0, Content: "part one", Embedding: []float32{1, 0, 0}, CreatedAt: now},
		{ID: "chunk-2", DocumentID: doc.ID, ChunkIndex: 1, Content: "part two", Embedding: []float32{0, 1, 0}, CreatedAt: now},
	}
	if err := store.InsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	got, err := store.GetChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	remaining, err := store.GetChunksByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocument after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected chunks cascaded away, got %d", len(remaining))
	}
}

func TestSearchSimilarMemories_RanksByCosineSimilarityWithinContainer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	close := &types.Memory{
		ID: "close", Content: "a", ContainerTag: "user-1", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, Embedding: []float32{1, 0, 0}, ContentHash: "h1", CreatedAt: now, UpdatedAt: now,
	}
	far := &types.Memory{
		ID: "far", Content: "b", ContainerTag: "user-1", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, Embedding: []float32{0, 1, 0}, ContentHash: "h2", CreatedAt: now, UpdatedAt: now,
	}
	other := &types.Memory{
		ID: "other-tenant", Content: "c", ContainerTag: "user-2", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, Embedding: []float32{1, 0, 0}, ContentHash: "h3", CreatedAt: now, UpdatedAt: now,
	}
	for _, m := range []*types.Memory{close, far, other} {
		if err := store.CreateMemory(ctx, m); err != nil {
			t.Fatalf("CreateMemory(%s): %v", m.ID, err)
		}
	}

	hits, err := store.SearchSimilarMemories(ctx, []float32{1, 0, 0}, 10, storage.MemoryFilter{ContainerTag: "user-1"})
	if err != nil {
		t.Fatalf("SearchSimilarMemories: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits scoped to user-1, got %d", len(hits))
	}
	if hits[0].ID != "close" {
		t.Fatalf("expected the closer vector ranked first, got %q", hits[0].ID)
	}
}

func TestSystemMetadata_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetSystemMetadata(ctx, "embedding_model"); err != nil || ok {
		t.Fatalf("expected no value before SetSystemMetadata, ok=%v err=%v", ok, err)
	}
	if err := store.SetSystemMetadata(ctx, "embedding_model", "local/test"); err != nil {
		t.Fatalf("SetSystemMetadata: %v", err)
	}
	v, ok, err := store.GetSystemMetadata(ctx, "embedding_model")
	if err != nil {
		t.Fatalf("GetSystemMetadata: %v", err)
	}
	if !ok || v != "local/test" {
		t.Fatalf("expected local/test, got %q ok=%v", v, ok)
	}
}

func TestChunksWithLatestMemory_SuppressesChunkViaDocumentLevelSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	doc := &types.Document{
		ID: "doc-1", ContentType: types.ContentTypeText, ContainerTag: "user-1",
		Status: types.DocStatusDone, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	chunks := []*types.Chunk{
		{ID: "chunk-1", DocumentID: doc.ID, ChunkIndex: 0, Content: "part one", Embedding: []float32{1, 0, 0}, CreatedAt: now},
	}
	if err := store.InsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	mem := &types.Memory{
		ID: "mem-1", Content: "extracted fact", ContainerTag: "user-1", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, ContentHash: "h1", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	// Ingestion extracts memories from the whole document, not a single
	// chunk, so the source link only ever carries a document id — mirroring
	// the one LinkMemorySource call site in internal/engine/ingestion.go.
	docID := doc.ID
	if err := store.LinkMemorySource(ctx, types.MemorySource{MemoryID: mem.ID, DocumentID: &docID}); err != nil {
		t.Fatalf("LinkMemorySource: %v", err)
	}

	suppressed, err := store.ChunksWithLatestMemory(ctx, []string{"chunk-1"})
	if err != nil {
		t.Fatalf("ChunksWithLatestMemory: %v", err)
	}
	if !suppressed["chunk-1"] {
		t.Fatalf("expected chunk-1 suppressed by its document's latest memory, got %+v", suppressed)
	}
}

func TestChunksWithLatestMemory_DoesNotSuppressWhenSourceMemoryIsForgotten(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	doc := &types.Document{
		ID: "doc-1", ContentType: types.ContentTypeText, ContainerTag: "user-1",
		Status: types.DocStatusDone, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	chunks := []*types.Chunk{
		{ID: "chunk-1", DocumentID: doc.ID, ChunkIndex: 0, Content: "part one", Embedding: []float32{1, 0, 0}, CreatedAt: now},
	}
	if err := store.InsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	mem := &types.Memory{
		ID: "mem-1", Content: "extracted fact", ContainerTag: "user-1", Classification: types.ClassificationFact,
		Version: 1, IsLatest: true, ContentHash: "h1", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateMemory(ctx, mem); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	docID := doc.ID
	if err := store.LinkMemorySource(ctx, types.MemorySource{MemoryID: mem.ID, DocumentID: &docID}); err != nil {
		t.Fatalf("LinkMemorySource: %v", err)
	}
	if err := store.ForgetMemory(ctx, mem.ID, "test"); err != nil {
		t.Fatalf("ForgetMemory: %v", err)
	}

	suppressed, err := store.ChunksWithLatestMemory(ctx, []string{"chunk-1"})
	if err != nil {
		t.Fatalf("ChunksWithLatestMemory: %v", err)
	}
	if suppressed["chunk-1"] {
		t.Fatalf("expected chunk-1 not suppressed once its only sourcing memory is forgotten")
	}
}

func TestCheckEmbeddingDimension_DetectsMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mismatch, _, err := store.CheckEmbeddingDimension(ctx, 8)
	if err != nil {
		t.Fatalf("CheckEmbeddingDimension before any write: %v", err)
	}
	if mismatch {
		t.Fatalf("expected no mismatch when no fingerprint is recorded yet")
	}

	if err := store.SetSystemMetadata(ctx, "embedding_dimension", "8"); err != nil {
		t.Fatalf("SetSystemMetadata: %v", err)
	}
	mismatch, stored, err := store.CheckEmbeddingDimension(ctx, 16)
	if err != nil {
		t.Fatalf("CheckEmbeddingDimension: %v", err)
	}
	if !mismatch || stored != 8 {
		t.Fatalf("expected a mismatch against stored dimension 8, got mismatch=%v stored=%d", mismatch, stored)
	}
}
