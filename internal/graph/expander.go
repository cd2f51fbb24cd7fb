package graph

import "context"

// NeighborLister is the subset of Store the expander needs, kept
// narrow so traversal logic can be tested against a fake.
type NeighborLister interface {
	Neighbors(ctx context.Context, entityID string, relType RelationType) ([]Relation, error)
}

// ExpandResult is a bounded BFS traversal outcome: every entity
// reached, grouped by how many hops it took to reach it.
type ExpandResult struct {
	NodesByHop map[int][]string
	Edges      []Relation
}

// Expander walks the relationship graph breadth-first from a seed
// entity, following relations of a given type, bounded by hop count
// and total node budget so a densely connected supplier network can
// never make a single request unbounded.
type Expander struct {
	lister         NeighborLister
	maxHops        int
	maxNodesPerHop int
	maxTotalNodes  int
}

// NewExpander builds an Expander with the defaults this core uses for
// supplier/subsidiary traversal.
func NewExpander(lister NeighborLister) *Expander {
	return &Expander{lister: lister, maxHops: 3, maxNodesPerHop: 20, maxTotalNodes: 100}
}

// Expand performs the bounded BFS from seedID over relType edges.
// Cycles are handled by the visited set: a node already reached at an
// earlier hop is never re-queued, so a cycle in the relationship graph
// simply stops expanding along that path rather than looping.
func (e *Expander) Expand(ctx context.Context, seedID string, relType RelationType) (ExpandResult, error) {
	visited := map[string]bool{seedID: true}
	result := ExpandResult{NodesByHop: map[int][]string{0: {seedID}}}

	frontier := []string{seedID}
	totalNodes := 1

	for hop := 1; hop <= e.maxHops && totalNodes < e.maxTotalNodes; hop++ {
		var next []string
		for _, nodeID := range frontier {
			if len(next) >= e.maxNodesPerHop {
				break
			}
			relations, err := e.lister.Neighbors(ctx, nodeID, relType)
			if err != nil {
				return ExpandResult{}, err
			}
			for _, rel := range relations {
				other := rel.ToEntity
				if other == nodeID {
					other = rel.FromEntity
				}
				result.Edges = append(result.Edges, rel)
				if visited[other] {
					continue
				}
				if totalNodes >= e.maxTotalNodes || len(next) >= e.maxNodesPerHop {
					continue
				}
				visited[other] = true
				next = append(next, other)
				totalNodes++
			}
		}
		if len(next) == 0 {
			break
		}
		result.NodesByHop[hop] = next
		frontier = next
	}

	return result, nil
}
