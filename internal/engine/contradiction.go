package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// contradictionConfidenceLow and contradictionConfidenceHigh bound the
// "ambiguous" middle band: below low, no contradiction; above high, accept
// the heuristic outright; in between, ask the LLM to confirm.
const (
	contradictionConfidenceLow  = 0.35
	contradictionConfidenceHigh = 0.75
)

// ContradictionVerdict is the outcome of resolving one candidate memory
// against the new content.
type ContradictionVerdict struct {
	IsContradiction bool
	TargetMemoryID  string
	Confidence      float64
}

// ContradictionResolver is a small, focused, RWMutex-guarded detector: a
// negation/antonym/structured-template heuristic pass, escalated to an LLM
// confirmation call when the heuristic lands in the ambiguous middle band.
// It compares new content against one existing latest same-tag memory at a
// time, using version-chain semantics rather than an entity graph.
type ContradictionResolver struct {
	mu  sync.RWMutex
	llm providers.LLM

	negationPattern *regexp.Regexp
	antonyms        map[string]string
	templatePattern *regexp.Regexp
}

var negationWords = []string{"not", "no longer", "doesn't", "don't", "isn't", "aren't", "never", "stopped"}

// structuredTemplate captures "<subject> <verb-phrase> <value>" claims like
// "lives in Seattle" / "works at Acme" so the value half can be diffed
// against a same-shaped prior memory.
var structuredTemplate = regexp.MustCompile(`(?i)\b(lives? in|works? at|works? for|is located in|prefers?|likes?|uses?)\s+(.+)`)

// NewContradictionResolver builds a resolver. llm may be nil to run the
// heuristic-only path (ambiguous cases then resolve to "no contradiction").
func NewContradictionResolver(llm providers.LLM) *ContradictionResolver {
	return &ContradictionResolver{
		llm:             llm,
		negationPattern: regexp.MustCompile(`(?i)\b(` + strings.Join(negationWords, "|") + `)\b`),
		antonyms: map[string]string{
			"like": "dislike", "dislike": "like",
			"love": "hate", "hate": "love",
			"always": "never", "never": "always",
			"true": "false", "false": "true",
			"can": "cannot", "cannot": "can",
		},
		templatePattern: structuredTemplate,
	}
}

// Resolve compares newContent against candidate's content and returns a
// verdict. candidate is assumed to already be a latest, non-forgotten,
// same-container_tag memory (the caller selects it, typically the most
// similar one found via the relationship detector's same nearest-neighbor
// fetch, or an explicit target).
func (r *ContradictionResolver) Resolve(ctx context.Context, newContent string, candidate *types.Memory) (ContradictionVerdict, error) {
	r.mu.RLock()
	confidence := r.heuristicConfidence(newContent, candidate.Content)
	r.mu.RUnlock()

	if confidence < contradictionConfidenceLow {
		return ContradictionVerdict{}, nil
	}
	if confidence >= contradictionConfidenceHigh {
		return ContradictionVerdict{IsContradiction: true, TargetMemoryID: candidate.ID, Confidence: confidence}, nil
	}

	// Ambiguous middle band: ask the LLM to confirm, if configured.
	if r.llm == nil {
		return ContradictionVerdict{}, nil
	}
	type llmVerdict struct {
		IsContradiction bool   `json:"is_contradiction"`
		TargetMemoryID  string `json:"target_memory_id"`
	}
	prompt := contradictionPrompt(newContent, candidate)
	var verdict llmVerdict
	if err := r.llm.CompleteStructured(ctx, prompt, llmVerdictSchema, &verdict); err != nil {
		return ContradictionVerdict{}, nil // LLM unavailable: fall back to "no contradiction", not an error
	}
	if !verdict.IsContradiction {
		return ContradictionVerdict{}, nil
	}
	return ContradictionVerdict{IsContradiction: true, TargetMemoryID: candidate.ID, Confidence: confidence}, nil
}

var llmVerdictSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"is_contradiction": map[string]interface{}{"type": "boolean"},
		"target_memory_id": map[string]interface{}{"type": "string"},
	},
	"required": []string{"is_contradiction"},
}

func contradictionPrompt(newContent string, candidate *types.Memory) string {
	var b strings.Builder
	b.WriteString("Existing memory: \"")
	b.WriteString(candidate.Content)
	b.WriteString("\"\nNew statement: \"")
	b.WriteString(newContent)
	b.WriteString("\"\nDoes the new statement contradict or supersede the existing memory? ")
	b.WriteString("Respond with JSON {\"is_contradiction\": bool, \"target_memory_id\": \"")
	b.WriteString(candidate.ID)
	b.WriteString("\"}.")
	return b.String()
}

// heuristicConfidence scores how strongly newContent appears to contradict
// oldContent using three signals: negation-word asymmetry, antonym-pair
// presence, and a structured-template value mismatch. Signals combine by
// taking the maximum rather than summing, since any one strong signal
// (e.g. an exact template value change) is sufficient evidence on its own.
func (r *ContradictionResolver) heuristicConfidence(newContent, oldContent string) float64 {
	var best float64

	if r.negationPattern.MatchString(newContent) != r.negationPattern.MatchString(oldContent) &&
		shareSubjectWords(newContent, oldContent) {
		best = maxF(best, 0.6)
	}

	for word, antonym := range r.antonyms {
		if containsWord(newContent, word) && containsWord(oldContent, antonym) {
			best = maxF(best, 0.8)
		}
		if containsWord(newContent, antonym) && containsWord(oldContent, word) {
			best = maxF(best, 0.8)
		}
	}

	newMatch := r.templatePattern.FindStringSubmatch(newContent)
	oldMatch := r.templatePattern.FindStringSubmatch(oldContent)
	if newMatch != nil && oldMatch != nil && strings.EqualFold(newMatch[1], oldMatch[1]) {
		newValue := strings.TrimSpace(strings.ToLower(newMatch[2]))
		oldValue := strings.TrimSpace(strings.ToLower(oldMatch[2]))
		if newValue != oldValue {
			best = maxF(best, 0.9)
		}
	}

	return best
}

func shareSubjectWords(a, b string) bool {
	aw := strings.Fields(strings.ToLower(a))
	bw := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(b)) {
		bw[w] = true
	}
	shared := 0
	for _, w := range aw {
		if len(w) > 3 && bw[w] {
			shared++
		}
	}
	return shared > 0
}

func containsWord(s, word string) bool {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`).MatchString(s)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ContentHash returns the SHA-256 hex digest used by the memory-creation
// sub-pipeline's exact-content idempotence check.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// findContradictionCandidates fetches the latest same-tag memories most
// likely to contradict newContent: the nearest vector neighbors, since a
// genuine contradiction is almost always about the same subject and thus
// semantically close.
func findContradictionCandidates(ctx context.Context, store storage.Store, containerTag string, embedding []float32, k int) ([]*types.Memory, error) {
	hits, err := store.SearchSimilarMemories(ctx, embedding, k, storage.MemoryFilter{ContainerTag: containerTag})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Memory, 0, len(hits))
	for _, h := range hits {
		mem, err := store.GetMemory(ctx, h.ID)
		if err != nil {
			continue
		}
		out = append(out, mem)
	}
	return out, nil
}
