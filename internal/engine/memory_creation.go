package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/momo-mem/momo/internal/idgen"
	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// relationshipCandidateCount is the Relationship Detector's top-K fetch
// size.
const relationshipCandidateCount = 5

// MemoryCreator runs the memory-creation sub-pipeline: embed, contradiction
// resolution, relationship detection, then insert. Invoked for every new
// memory regardless of origin (direct API, conversation ingest, document
// post-processing, inference engine).
type MemoryCreator struct {
	cfg      Config
	store    storage.Store
	embedder providers.Embedder
	llm      providers.LLM
	resolver *ContradictionResolver
}

// NewMemoryCreator builds a MemoryCreator. llm may be nil, in which case
// contradiction confirmation and relationship classification both fall
// back to their heuristic/no-op defaults.
func NewMemoryCreator(cfg Config, store storage.Store, embedder providers.Embedder, llm providers.LLM) *MemoryCreator {
	return &MemoryCreator{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		llm:      llm,
		resolver: NewContradictionResolver(llm),
	}
}

// CreateMemoryInput is the caller-supplied half of a new memory.
type CreateMemoryInput struct {
	Content        string
	ContainerTag   string
	SpaceID        string
	Classification types.MemoryClassification
	IsStatic       bool
	IsInference    bool
	Confidence     float64
	Metadata       map[string]interface{}
}

// Create runs the full sub-pipeline and returns the memory as stored
// (which may be the pre-existing latest memory, unchanged, when the
// idempotence check short-circuits).
func (mc *MemoryCreator) Create(ctx context.Context, in CreateMemoryInput) (*types.Memory, error) {
	hash := ContentHash(in.Content)

	// Idempotence: re-ingesting identical content must not create a new
	// row when an existing latest memory already stores it exactly.
	if existing, err := mc.store.GetLatestByContentHash(ctx, in.ContainerTag, hash); err == nil && existing != nil {
		if err := mc.store.IncrementSourceCount(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("engine: increment source count: %w", err)
		}
		return existing, nil
	}

	// Step 1: embed.
	vectors, err := mc.embedder.EmbedBatch(ctx, []string{in.Content})
	if err != nil {
		return nil, fmt.Errorf("engine: embed new memory: %w", err)
	}
	embedding := vectors[0]

	now := time.Now()
	mem := &types.Memory{
		ID:             idgen.New(),
		Content:        in.Content,
		ContainerTag:   in.ContainerTag,
		SpaceID:        in.SpaceID,
		Classification: in.Classification,
		Version:        1,
		IsLatest:       true,
		SourceCount:    1,
		IsInference:    in.IsInference,
		IsStatic:       in.IsStatic,
		Confidence:     in.Confidence,
		Embedding:      embedding,
		EmbeddingModel: mc.embedder.Model(),
		Metadata:       in.Metadata,
		ContentHash:    hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mem.Confidence == 0 {
		mem.Confidence = 1.0
	}

	candidates, err := findContradictionCandidates(ctx, mc.store, in.ContainerTag, embedding, relationshipCandidateCount)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch candidates: %w", err)
	}

	// Step 2: Contradiction Resolver.
	var supersededID string
	if mc.cfg.EnableContradictionDetection {
		for _, cand := range candidates {
			if cand.ID == mem.ID {
				continue
			}
			verdict, err := mc.resolver.Resolve(ctx, in.Content, cand)
			if err != nil {
				continue
			}
			if verdict.IsContradiction {
				supersededID = verdict.TargetMemoryID
				break
			}
		}
	}

	if supersededID != "" {
		target, err := mc.store.GetMemory(ctx, supersededID)
		if err != nil {
			return nil, fmt.Errorf("engine: load superseded target: %w", err)
		}
		root := target.ID
		if target.RootMemoryID != nil {
			root = *target.RootMemoryID
		}
		mem.ParentMemoryID = &target.ID
		mem.RootMemoryID = &root
		mem.Version = target.Version + 1
		mem.AddRelation(target.ID, types.RelationUpdates)
		target.AddRelation(mem.ID, types.RelationUpdates)

		if err := mc.store.SuperviseSupersession(ctx, target.ID, mem); err != nil {
			return nil, fmt.Errorf("engine: supersession transaction: %w", err)
		}
		target.IsLatest = false
		if err := mc.store.UpdateMemory(ctx, target); err != nil {
			return nil, fmt.Errorf("engine: write back relation: %w", err)
		}
		return mem, nil
	}

	// Step 3: Relationship Detector, only reached when the contradiction
	// pass didn't already link this memory.
	if mc.cfg.EnableAutoRelations && mc.llm != nil {
		for _, cand := range candidates {
			rel, err := mc.classifyRelation(ctx, in.Content, cand)
			if err != nil || rel == "" {
				continue
			}
			if rel == types.RelationUpdates {
				// An Updates classification from the relationship detector
				// triggers the same supersession logic as step 2.
				root := cand.ID
				if cand.RootMemoryID != nil {
					root = *cand.RootMemoryID
				}
				mem.ParentMemoryID = &cand.ID
				mem.RootMemoryID = &root
				mem.Version = cand.Version + 1
				mem.AddRelation(cand.ID, types.RelationUpdates)
				cand.AddRelation(mem.ID, types.RelationUpdates)
				if err := mc.store.SuperviseSupersession(ctx, cand.ID, mem); err != nil {
					return nil, fmt.Errorf("engine: supersession transaction: %w", err)
				}
				cand.IsLatest = false
				if err := mc.store.UpdateMemory(ctx, cand); err != nil {
					return nil, fmt.Errorf("engine: write back relation: %w", err)
				}
				return mem, nil
			}
			mem.AddRelation(cand.ID, rel)
			cand.AddRelation(mem.ID, rel)
			if err := mc.store.UpdateMemory(ctx, cand); err != nil {
				return nil, fmt.Errorf("engine: write back relation: %w", err)
			}
		}
	}

	// Step 4: insert.
	if err := mc.store.CreateMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("engine: create memory: %w", err)
	}
	return mem, nil
}

func (mc *MemoryCreator) classifyRelation(ctx context.Context, newContent string, candidate *types.Memory) (types.RelationType, error) {
	type verdict struct {
		Relation string `json:"relation"` // "updates" | "extends" | "none"
	}
	prompt := fmt.Sprintf(
		"Existing memory: %q\nNew statement: %q\nClassify the relationship of the new statement to the existing memory as exactly one of: updates, extends, none. Respond as JSON {\"relation\": \"...\"}.",
		candidate.Content, newContent,
	)
	var v verdict
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"relation": map[string]interface{}{"type": "string", "enum": []string{"updates", "extends", "none"}}},
		"required":   []string{"relation"},
	}
	if err := mc.llm.CompleteStructured(ctx, prompt, schema, &v); err != nil {
		return "", err
	}
	switch v.Relation {
	case "updates":
		return types.RelationUpdates, nil
	case "extends":
		return types.RelationExtends, nil
	default:
		return "", nil
	}
}
