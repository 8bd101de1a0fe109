package graph

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dshills/codeindex-mcp/internal/storage"
	"github.com/dshills/codeindex-mcp/pkg/types"
)

// Tracker maintains and traverses the relationship graph. Edges are
// persisted through the storage layer; the tracker owns validation and
// traversal semantics only.
type Tracker struct {
	store  storage.Storage
	logger *log.Logger
}

// NewTracker creates a graph tracker backed by the given store
func NewTracker(store storage.Storage, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tracker{store: store, logger: logger}
}

// AddRelationship validates and persists a single edge
func (t *Tracker) AddRelationship(ctx context.Context, rel *types.Relationship) (int64, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}
	return t.store.InsertRelationship(ctx, rel)
}

// AddRelationships persists a batch of edges. The whole batch is
// validated before anything touches the database: one bad edge rejects
// the batch and the stored count is unchanged.
func (t *Tracker) AddRelationships(ctx context.Context, rels []*types.Relationship) (int, error) {
	for i, rel := range rels {
		if err := rel.Validate(); err != nil {
			return 0, fmt.Errorf("relationship %d: %w", i, err)
		}
	}
	return t.store.InsertRelationships(ctx, rels)
}

// Dependencies returns every edge reachable from the entity by
// following outgoing relationships up to depth hops. Depth below 1
// returns an empty result without touching the database.
func (t *Tracker) Dependencies(ctx context.Context, entityID int64, depth int, typeFilter []types.RelationshipType) ([]*storage.Edge, error) {
	return t.traverse(ctx, entityID, depth, typeFilter, t.store.EdgesFrom, func(e *storage.Edge) int64 {
		return e.TargetID
	})
}

// Dependents returns every edge reaching the entity by following
// incoming relationships up to depth hops.
func (t *Tracker) Dependents(ctx context.Context, entityID int64, depth int, typeFilter []types.RelationshipType) ([]*storage.Edge, error) {
	return t.traverse(ctx, entityID, depth, typeFilter, t.store.EdgesTo, func(e *storage.Edge) int64 {
		return e.SourceID
	})
}

type edgeFetch func(ctx context.Context, ids []int64, typeFilter []types.RelationshipType) ([]*storage.Edge, error)

// traverse is a frontier BFS. The visited set is on nodes, so cycles
// terminate: a node's edges are expanded at most once no matter how
// many edges reach it.
func (t *Tracker) traverse(ctx context.Context, entityID int64, depth int, typeFilter []types.RelationshipType, fetch edgeFetch, next func(*storage.Edge) int64) ([]*storage.Edge, error) {
	if depth < 1 {
		return []*storage.Edge{}, nil
	}

	visited := map[int64]bool{entityID: true}
	frontier := []int64{entityID}
	collected := make([]*storage.Edge, 0)
	seenEdges := make(map[int64]bool)

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		edges, err := fetch(ctx, frontier, typeFilter)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, e := range edges {
			if !seenEdges[e.ID] {
				seenEdges[e.ID] = true
				collected = append(collected, e)
			}
			n := next(e)
			if !visited[n] {
				visited[n] = true
				frontier = append(frontier, n)
			}
		}
	}
	return collected, nil
}

// Graph is a combined neighborhood view around one entity
type Graph struct {
	EntityID int64
	Nodes    []int64
	Edges    []*storage.Edge
}

// RelationshipGraph returns the union of the entity's dependency and
// dependent neighborhoods up to depth hops in each direction.
func (t *Tracker) RelationshipGraph(ctx context.Context, entityID int64, depth int) (*Graph, error) {
	deps, err := t.Dependencies(ctx, entityID, depth, nil)
	if err != nil {
		return nil, err
	}
	rdeps, err := t.Dependents(ctx, entityID, depth, nil)
	if err != nil {
		return nil, err
	}

	seenEdges := make(map[int64]bool)
	nodes := map[int64]bool{entityID: true}
	g := &Graph{EntityID: entityID}
	for _, e := range append(deps, rdeps...) {
		if seenEdges[e.ID] {
			continue
		}
		seenEdges[e.ID] = true
		g.Edges = append(g.Edges, e)
		nodes[e.SourceID] = true
		nodes[e.TargetID] = true
	}
	for n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	return g, nil
}

// Path is one route between two entities
type Path struct {
	Nodes []int64
	Edges []*storage.Edge
}

// FindPaths returns the simple paths from source to target of at most
// maxDepth hops, optionally restricted to the given edge types. Paths
// never revisit a node, except that source equal to target permits the
// trivial self loop edge.
func (t *Tracker) FindPaths(ctx context.Context, sourceID, targetID int64, maxDepth int, typeFilter []types.RelationshipType) ([]Path, error) {
	if maxDepth < 1 {
		return []Path{}, nil
	}

	type state struct {
		node  int64
		nodes []int64
		edges []*storage.Edge
	}

	paths := make([]Path, 0)
	signatures := make(map[string]bool)
	queue := []state{{node: sourceID, nodes: []int64{sourceID}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.edges) >= maxDepth {
			continue
		}

		edges, err := t.store.EdgesFrom(ctx, []int64{cur.node}, typeFilter)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			if e.TargetID == targetID {
				nodes := append(append([]int64{}, cur.nodes...), e.TargetID)
				pathEdges := append(append([]*storage.Edge{}, cur.edges...), e)
				sig := pathSignature(nodes)
				if !signatures[sig] {
					signatures[sig] = true
					paths = append(paths, Path{Nodes: nodes, Edges: pathEdges})
				}
				continue
			}
			if containsNode(cur.nodes, e.TargetID) {
				continue // Simple paths only
			}
			queue = append(queue, state{
				node:  e.TargetID,
				nodes: append(append([]int64{}, cur.nodes...), e.TargetID),
				edges: append(append([]*storage.Edge{}, cur.edges...), e),
			})
		}
	}
	return paths, nil
}

// Count returns the number of stored edges, optionally by type
func (t *Tracker) Count(ctx context.Context, typeFilter types.RelationshipType) (int, error) {
	return t.store.RelationshipCount(ctx, typeFilter)
}

// Clear removes edges touching the entity on either side; entity 0
// clears the whole graph.
func (t *Tracker) Clear(ctx context.Context, entityID int64) (int64, error) {
	n, err := t.store.ClearRelationships(ctx, entityID)
	if err != nil {
		return 0, err
	}
	t.logger.Debug("cleared relationships", "entity", entityID, "removed", n)
	return n, nil
}

func pathSignature(nodes []int64) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, "->")
}

func containsNode(nodes []int64, id int64) bool {
	for _, n := range nodes {
		if n == id {
			return true
		}
	}
	return false
}
