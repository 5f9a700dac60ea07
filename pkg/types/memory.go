package types

import "time"

// Memory is a fact, preference, or episode statement extracted or submitted
// for a tenant, carrying a version chain and a map of relations to other
// memories.
type Memory struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	ContainerTag string `json:"container_tag"`
	SpaceID      string `json:"space_id"`

	Classification MemoryClassification `json:"classification"`

	// Version chain. Version starts at 1 and strictly increases along
	// ParentMemoryID edges; RootMemoryID is the first version in the chain
	// (empty for the root itself).
	Version        int     `json:"version"`
	IsLatest       bool    `json:"is_latest"`
	ParentMemoryID *string `json:"parent_memory_id,omitempty"`
	RootMemoryID   *string `json:"root_memory_id,omitempty"`

	// MemoryRelations maps a target memory id to the relation this memory
	// holds toward it. Logically bidirectional; the store does not enforce
	// symmetry. Callers write each side with its own store call, so the two
	// writes are not one transaction.
	MemoryRelations map[string]RelationType `json:"memory_relations,omitempty"`

	// SourceCount counts reinforcing observations of this memory's content.
	SourceCount int `json:"source_count"`

	IsInference bool `json:"is_inference"`
	IsStatic    bool `json:"is_static"`
	IsForgotten bool `json:"is_forgotten"`

	Confidence float64 `json:"confidence"`

	ForgetAfter  *time.Time `json:"forget_after,omitempty"`
	ForgetReason *string    `json:"forget_reason,omitempty"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ContentHash is the SHA-256 of Content, used by the memory-creation
	// sub-pipeline's exact-content idempotence check.
	ContentHash string `json:"content_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRelationTo reports whether this memory records a relation to targetID.
func (m *Memory) HasRelationTo(targetID string) (RelationType, bool) {
	if m.MemoryRelations == nil {
		return "", false
	}
	rel, ok := m.MemoryRelations[targetID]
	return rel, ok
}

// AddRelation records a relation to targetID, creating the map if needed.
func (m *Memory) AddRelation(targetID string, rel RelationType) {
	if m.MemoryRelations == nil {
		m.MemoryRelations = make(map[string]RelationType)
	}
	m.MemoryRelations[targetID] = rel
}
