package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Local is a deterministic, offline Embedder+LLM used by tests and by
// operators running without a reachable model backend. EmbedBatch hashes
// each text into a fixed-dimension unit vector: identical texts get
// identical vectors, and any other pair, however similar, gets unrelated
// ones. Complete echoes back a truncated copy of the prompt and
// CompleteStructured decodes an empty JSON object into out, which is
// enough to exercise the pipeline end to end without a live model.
type Local struct {
	dimension int
}

func NewLocal(dimension int) *Local {
	if dimension == 0 {
		dimension = 64
	}
	return &Local{dimension: dimension}
}

func (l *Local) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashEmbedding(text, l.dimension)
	}
	return vectors, nil
}

func (l *Local) Dimension() int {
	return l.dimension
}

// hashEmbedding expands a SHA-256 digest of text into a dimension-length
// unit vector. Two identical texts always produce the same vector.
func hashEmbedding(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	seed := sha256.Sum256([]byte(text))
	block := seed[:]
	for i := range vec {
		if i > 0 && i%len(block) == 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		b := block[i%len(block) : i%len(block)+1]
		next := sha256.Sum256(append(b, byte(i)))
		v := binary.LittleEndian.Uint32(next[:4])
		vec[i] = (float32(v)/float32(math.MaxUint32))*2 - 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (l *Local) Complete(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("local-provider-response: %s", truncate(prompt, 200)), nil
}

func (l *Local) CompleteStructured(_ context.Context, _ string, _ any, out any) error {
	return json.Unmarshal([]byte("{}"), out)
}

func (l *Local) Model() string {
	return "local/deterministic"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ Embedder = (*Local)(nil)
	_ LLM      = (*Local)(nil)
)
