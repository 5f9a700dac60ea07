package sqlite

import (
	"context"
	"fmt"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// Traverse performs a bounded BFS over the memory relation graph starting
// at seedID. Relations are stored on each memory's own memory_relations map
// and are logically bidirectional (both sides written by the caller that
// created the relation), so a forward walk of each node's own map discovers
// both directions without a separate reverse-edge query.
func (s *Store) Traverse(ctx context.Context, seedID string, bounds storage.GraphBounds) (*storage.GraphResult, error) {
	bounds.Normalize()

	ctx, cancel := context.WithTimeout(ctx, bounds.Timeout)
	defer cancel()

	allowed := make(map[types.RelationType]bool)
	for _, rt := range bounds.RelationTypes {
		allowed[rt] = true
	}
	anyRelation := len(allowed) == 0

	seed, err := s.GetMemory(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: Traverse seed: %w", err)
	}

	result := &storage.GraphResult{}
	visited := map[string]bool{seed.ID: true}
	result.Nodes = append(result.Nodes, toGraphNode(seed))

	type frontierEntry struct {
		id    string
		depth int
	}
	frontier := []frontierEntry{{id: seed.ID, depth: 0}}
	edgeCount := 0

	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return result, nil
		default:
		}

		next := frontier[0]
		frontier = frontier[1:]

		if next.depth >= bounds.MaxHops {
			continue
		}
		if len(result.Nodes) >= bounds.MaxNodes {
			break
		}

		node, err := s.GetMemory(ctx, next.id)
		if err != nil {
			continue
		}

		for targetID, relType := range node.MemoryRelations {
			if !anyRelation && !allowed[relType] {
				continue
			}
			if edgeCount >= bounds.MaxEdges {
				break
			}

			result.Links = append(result.Links, storage.GraphEdge{From: node.ID, To: targetID, Type: relType})
			edgeCount++

			if visited[targetID] {
				continue
			}
			visited[targetID] = true

			target, err := s.GetMemory(ctx, targetID)
			if err != nil {
				continue
			}
			if len(result.Nodes) >= bounds.MaxNodes {
				continue
			}
			result.Nodes = append(result.Nodes, toGraphNode(target))
			frontier = append(frontier, frontierEntry{id: targetID, depth: next.depth + 1})
		}
	}

	return result, nil
}

func toGraphNode(m *types.Memory) storage.GraphNode {
	preview := m.Content
	if len(preview) > 160 {
		preview = preview[:160]
	}
	return storage.GraphNode{ID: m.ID, ContentPreview: preview, Classification: m.Classification}
}

var _ storage.GraphProvider = (*Store)(nil)
