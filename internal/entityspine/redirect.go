package entityspine

import (
	"context"
	"fmt"
)

// maxRedirectHops bounds how many merge redirects ResolveCanonical
// will follow before giving up — mirrors the hop budget a graph
// traversal uses to bound its own worst case instead of trusting the
// data to be well-formed.
const maxRedirectHops = 50

// ResolveCanonical follows an entity's merge chain (MergedInto) to the
// surviving entity, detecting cycles with a visited set the same way
// a graph traversal would, rather than trusting merges can never form
// a loop. A cycle or an unreasonably long chain is reported as an
// error instead of looping forever or silently picking an arbitrary
// entity in the cycle.
func ResolveCanonical(ctx context.Context, registry Registry, entityID string) (Entity, error) {
	visited := map[string]bool{}
	current := entityID

	for hop := 0; hop <= maxRedirectHops; hop++ {
		if visited[current] {
			return Entity{}, fmt.Errorf("entityspine: merge cycle detected starting from %s at %s", entityID, current)
		}
		visited[current] = true

		e, err := registry.Get(ctx, current)
		if err != nil {
			return Entity{}, fmt.Errorf("entityspine: resolve canonical: %w", err)
		}
		if e.MergedInto == "" {
			return e, nil
		}
		current = e.MergedInto
	}
	return Entity{}, fmt.Errorf("entityspine: merge chain from %s exceeded %d hops", entityID, maxRedirectHops)
}
