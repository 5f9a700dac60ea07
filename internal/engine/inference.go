package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/momo-mem/momo/internal/idgen"
	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// nearDuplicateCosine is the cosine-similarity floor above which a proposed
// inference is considered a near-duplicate of an existing latest memory and
// rejected.
const nearDuplicateCosine = 0.95

// InferenceReport summarizes one inference run.
type InferenceReport struct {
	SeedsConsidered int
	Created         int
}

// InferenceEngine discovers implicit connections across memories by
// clustering seeds with their nearest neighbors and asking the LLM to
// synthesize a single summarizing memory per cluster. Seeds are taken most
// recent first and proposals are created in that order until the per-run
// budget is spent; proposals are not ranked by confidence.
type InferenceEngine struct {
	cfg     Config
	store   storage.Store
	creator *MemoryCreator
	llm     providers.LLM
}

// NewInferenceEngine builds an InferenceEngine. Returns nil-safe behavior
// (Run becomes a no-op reporting zero) when llm is nil, since synthesis is
// inherently LLM-driven.
func NewInferenceEngine(cfg Config, store storage.Store, creator *MemoryCreator, llm providers.LLM) *InferenceEngine {
	return &InferenceEngine{cfg: cfg, store: store, creator: creator, llm: llm}
}

// Run executes one inference pass across every container currently holding
// non-inference, non-forgotten memories, capped at InferenceMaxPerRun total
// creations across all containers.
func (ie *InferenceEngine) Run(ctx context.Context) (InferenceReport, error) {
	var report InferenceReport
	if ie.llm == nil || !ie.cfg.InferenceEnabled {
		return report, nil
	}

	containers, err := ie.listContainers(ctx)
	if err != nil {
		return report, fmt.Errorf("engine: inference list containers: %w", err)
	}

	for _, tag := range containers {
		if report.Created >= ie.cfg.InferenceMaxPerRun {
			break
		}
		n, seeds, err := ie.runContainer(ctx, tag, ie.cfg.InferenceMaxPerRun-report.Created)
		if err != nil {
			return report, err
		}
		report.Created += n
		report.SeedsConsidered += seeds
	}
	return report, nil
}

// listContainers returns the distinct container_tags currently present,
// derived from a single unbounded-sort scan of non-forgotten memories since
// Store exposes no direct DISTINCT query over container_tag.
func (ie *InferenceEngine) listContainers(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var tags []string
	cursor := ""
	for {
		page, err := ie.store.ListMemories(ctx, storage.ListOptions{Cursor: cursor, Limit: 100, IncludeLatestOnly: true})
		if err != nil {
			return nil, err
		}
		for _, m := range page.Items {
			if !seen[m.ContainerTag] {
				seen[m.ContainerTag] = true
				tags = append(tags, m.ContainerTag)
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return tags, nil
}

// runContainer seeds, clusters, synthesizes, dedups, and inserts new
// inference memories for a single container, creating at most budget.
func (ie *InferenceEngine) runContainer(ctx context.Context, containerTag string, budget int) (created, seeds int, err error) {
	page, err := ie.store.ListMemories(ctx, storage.ListOptions{
		ContainerTag:      containerTag,
		Limit:             ie.cfg.InferenceSeedLimit,
		IncludeLatestOnly: true,
		SortBy:            "created_at",
		SortOrder:         "desc",
	})
	if err != nil {
		return 0, 0, err
	}

	for i := range page.Items {
		if created >= budget {
			break
		}
		seed := &page.Items[i]
		if seed.IsInference || seed.IsForgotten {
			continue
		}
		seeds++

		neighbors, err := findContradictionCandidates(ctx, ie.store, containerTag, seed.Embedding, ie.cfg.InferenceCandidateCount)
		if err != nil {
			continue
		}
		cluster := dedupMemories(append([]*types.Memory{seed}, neighbors...))
		if len(cluster) < 2 {
			continue
		}

		proposal, ok, err := ie.synthesize(ctx, cluster)
		if err != nil || !ok {
			continue
		}
		if proposal.Confidence < ie.cfg.InferenceConfidenceMin {
			continue
		}

		vectors, err := ie.creator.embedder.EmbedBatch(ctx, []string{proposal.Content})
		if err != nil {
			continue
		}
		if dup, err := ie.nearDuplicateExists(ctx, containerTag, vectors[0]); err != nil || dup {
			continue
		}

		mem, err := ie.insertInference(ctx, containerTag, proposal, vectors[0], cluster)
		if err != nil {
			continue
		}
		_ = mem
		created++
	}
	return created, seeds, nil
}

type inferenceProposal struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

var inferenceSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"propose":    map[string]interface{}{"type": "boolean"},
		"content":    map[string]interface{}{"type": "string"},
		"confidence": map[string]interface{}{"type": "number"},
	},
	"required": []string{"propose"},
}

// synthesize asks the LLM to emit zero or one new memory summarizing the
// cluster.
func (ie *InferenceEngine) synthesize(ctx context.Context, cluster []*types.Memory) (inferenceProposal, bool, error) {
	var b []byte
	lines := make([]string, 0, len(cluster))
	for _, m := range cluster {
		lines = append(lines, "- "+m.Content)
	}
	b, _ = json.Marshal(lines)
	prompt := fmt.Sprintf(
		"Here is a cluster of related memories:\n%s\n\n"+
			"If these memories together imply a new fact not explicitly stated by any single one, "+
			"propose it. Otherwise set propose=false. Respond as JSON "+
			"{\"propose\": bool, \"content\": \"...\", \"confidence\": 0.0-1.0}.",
		string(b),
	)
	var out struct {
		Propose    bool    `json:"propose"`
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	}
	if err := ie.llm.CompleteStructured(ctx, prompt, inferenceSchema, &out); err != nil {
		return inferenceProposal{}, false, err
	}
	if !out.Propose || out.Content == "" {
		return inferenceProposal{}, false, nil
	}
	return inferenceProposal{Content: out.Content, Confidence: out.Confidence}, true, nil
}

func (ie *InferenceEngine) nearDuplicateExists(ctx context.Context, containerTag string, embedding []float32) (bool, error) {
	hits, err := ie.store.SearchSimilarMemories(ctx, embedding, 1, storage.MemoryFilter{ContainerTag: containerTag})
	if err != nil {
		return false, err
	}
	return len(hits) > 0 && hits[0].Similarity >= nearDuplicateCosine, nil
}

// insertInference creates the synthesized memory with is_inference=true and
// a Derives relation to every source memory in the cluster.
func (ie *InferenceEngine) insertInference(ctx context.Context, containerTag string, p inferenceProposal, embedding []float32, cluster []*types.Memory) (*types.Memory, error) {
	now := time.Now()
	mem := &types.Memory{
		ID:             idgen.New(),
		Content:        p.Content,
		ContainerTag:   containerTag,
		Classification: types.ClassificationFact,
		Version:        1,
		IsLatest:       true,
		SourceCount:    1,
		IsInference:    true,
		Confidence:     p.Confidence,
		Embedding:      embedding,
		EmbeddingModel: ie.creator.embedder.Model(),
		ContentHash:    ContentHash(p.Content),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, src := range cluster {
		mem.AddRelation(src.ID, types.RelationDerives)
	}
	if err := ie.store.CreateMemory(ctx, mem); err != nil {
		return nil, err
	}
	// memory_relations is symmetric: write the reverse Derives entry back
	// onto each source memory too, the same way MemoryCreator.Create does
	// for Updates/Extends relations, so graph traversal from a
	// source finds the memory it helped derive.
	for _, src := range cluster {
		src.AddRelation(mem.ID, types.RelationDerives)
		if err := ie.store.UpdateMemory(ctx, src); err != nil {
			return nil, fmt.Errorf("engine: write back derives relation: %w", err)
		}
	}
	return mem, nil
}

func dedupMemories(in []*types.Memory) []*types.Memory {
	seen := map[string]bool{}
	out := make([]*types.Memory, 0, len(in))
	for _, m := range in {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}
