package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// ProfileBuilder assembles a per-container profile: the latest non-forgotten
// memories, partitioned by is_static, optionally narrated by the LLM.
type ProfileBuilder struct {
	store storage.Store
	llm   providers.LLM
}

// NewProfileBuilder builds a ProfileBuilder. llm may be nil, in which case
// Build skips narrative generation.
func NewProfileBuilder(store storage.Store, llm providers.LLM) *ProfileBuilder {
	return &ProfileBuilder{store: store, llm: llm}
}

// Profile is the Profile Builder's result.
type Profile struct {
	ContainerTag string
	Static       []*types.Memory
	Dynamic      []*types.Memory
	Narrative    string
}

// Build fetches up to limit latest non-forgotten memories for containerTag,
// partitions them by IsStatic, and, when narrate is requested and an LLM is
// configured, asks it for a narrative paragraph summarizing the profile.
func (pb *ProfileBuilder) Build(ctx context.Context, containerTag string, limit int, narrate bool) (*Profile, error) {
	if limit <= 0 {
		limit = 100
	}
	page, err := pb.store.ListMemories(ctx, storage.ListOptions{
		ContainerTag:      containerTag,
		Limit:             limit,
		IncludeLatestOnly: true,
		SortBy:            "updated_at",
		SortOrder:         "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("engine: profile list memories: %w", err)
	}

	profile := &Profile{ContainerTag: containerTag}
	for i := range page.Items {
		m := &page.Items[i]
		if m.IsStatic {
			profile.Static = append(profile.Static, m)
		} else {
			profile.Dynamic = append(profile.Dynamic, m)
		}
	}

	if narrate && pb.llm != nil && (len(profile.Static) > 0 || len(profile.Dynamic) > 0) {
		profile.Narrative = pb.narrate(ctx, profile)
	}
	return profile, nil
}

func (pb *ProfileBuilder) narrate(ctx context.Context, p *Profile) string {
	var b strings.Builder
	b.WriteString("Static facts:\n")
	for _, m := range p.Static {
		b.WriteString("- " + m.Content + "\n")
	}
	b.WriteString("Recent activity:\n")
	for _, m := range p.Dynamic {
		b.WriteString("- " + m.Content + "\n")
	}
	b.WriteString("\nWrite a short narrative paragraph summarizing this profile.")
	text, err := pb.llm.Complete(ctx, b.String())
	if err != nil {
		return ""
	}
	return text
}

// GraphView answers graph-of-memories queries: bounded BFS from a single
// seed, or a container-wide view aggregated across every static memory
// acting as a root. Both paths enforce the same node/edge/depth/timeout
// bounds via BoundsChecker; the container case shares one checker across
// every root's traversal so the combined result still respects one budget.
type GraphView struct {
	store storage.Store
}

// NewGraphView builds a GraphView.
func NewGraphView(store storage.Store) *GraphView {
	return &GraphView{store: store}
}

// FromSeed runs a single bounded BFS from seedID.
func (gv *GraphView) FromSeed(ctx context.Context, seedID string, bounds storage.GraphBounds) (*storage.GraphResult, error) {
	return gv.store.Traverse(ctx, seedID, bounds)
}

// FromContainer builds a graph view rooted at every static latest memory in
// containerTag, merging per-root traversals under one shared node/edge
// budget — there is no single root memory id for a container, so every
// static memory seeds its own traversal.
func (gv *GraphView) FromContainer(ctx context.Context, containerTag string, bounds storage.GraphBounds) (*storage.GraphResult, error) {
	bounds.Normalize()
	checker := NewBoundsChecker(bounds)

	page, err := gv.store.ListMemories(ctx, storage.ListOptions{
		ContainerTag:      containerTag,
		IncludeLatestOnly: true,
		Classification:    "",
		Limit:             100,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: graph view list roots: %w", err)
	}

	merged := &storage.GraphResult{}
	seenNodes := map[string]bool{}
	seenEdges := map[string]bool{}

	for _, m := range page.Items {
		if !m.IsStatic {
			continue
		}
		if err := checker.CanContinue(ctx, 0); err != nil {
			break
		}
		result, err := gv.store.Traverse(ctx, m.ID, bounds)
		if err != nil {
			continue
		}
		for _, n := range result.Nodes {
			if seenNodes[n.ID] {
				continue
			}
			seenNodes[n.ID] = true
			checker.RecordNode()
			merged.Nodes = append(merged.Nodes, n)
			if checker.CanVisitNode() != nil {
				break
			}
		}
		for _, e := range result.Links {
			key := e.From + "|" + string(e.Type) + "|" + e.To
			if seenEdges[key] {
				continue
			}
			seenEdges[key] = true
			checker.RecordEdge()
			merged.Links = append(merged.Links, e)
			if checker.CanTraverseEdge() != nil {
				break
			}
		}
	}
	return merged, nil
}
