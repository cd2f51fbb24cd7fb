package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/nucleus/filingcore/internal/entityspine"
)

// MatcherResolver adapts an entityspine.Matcher to graph.EntityResolver,
// so exhibit parsing can resolve subsidiary/counterparty names to
// canonical entities through the same resolution ladder everything
// else in this core uses.
type MatcherResolver struct {
	Matcher *entityspine.Matcher
}

func (m *MatcherResolver) ResolveName(ctx context.Context, entityType, name string) (string, error) {
	e, _, err := m.Matcher.ResolveOrCreate(ctx, entityspine.Observation{
		Type: entityspine.EntityType(entityType),
		Name: name,
	}, time.Time{})
	if err != nil {
		return "", fmt.Errorf("graph: resolve name %q: %w", name, err)
	}
	return e.ID, nil
}
