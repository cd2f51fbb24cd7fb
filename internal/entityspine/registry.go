package entityspine

import (
	"context"
	"time"
)

// Registry is the storage contract EntitySpine's resolver is built
// against; PostgresRegistry is the only production implementation but
// keeping this as an interface lets resolution logic be tested
// against an in-memory fake.
type Registry interface {
	Create(ctx context.Context, e Entity) (Entity, error)
	Get(ctx context.Context, id string) (Entity, error)
	// GetByClaim resolves the Entity that owns scheme/value as of
	// asOf, traversing Listing->Security->Entity or Security->Entity
	// as the scheme's hierarchy level requires. It returns
	// ErrNoActiveClaim if the pair was claimed at some point but no
	// claim's validity window covers asOf, and sql.ErrNoRows (wrapped)
	// if the pair has never been claimed at all.
	GetByClaim(ctx context.Context, scheme, value string, asOf time.Time) (Entity, error)
	FindByName(ctx context.Context, entityType EntityType, name string) ([]Entity, error)
	FindByAlias(ctx context.Context, entityType EntityType, alias string) ([]Entity, error)
	SearchFuzzy(ctx context.Context, entityType EntityType, name string, limit int) ([]Entity, error)
	AddAlias(ctx context.Context, entityID, alias string) error
	// AddClaim records claim against its OwnerType/OwnerID, closing
	// any prior ACTIVE claim on the same (scheme, value) held by a
	// different owner so the non-overlap invariant holds.
	AddClaim(ctx context.Context, claim IdentifierClaim) error
	// EnsureSecurity returns entityID's primary Security, creating one
	// if this is the first Security-level claim ever recorded for it.
	EnsureSecurity(ctx context.Context, entityID string) (Security, error)
	// EnsureListing returns the Listing for securityID on exchange,
	// creating one if this is the first time that pairing is seen.
	EnsureListing(ctx context.Context, securityID, exchange string) (Listing, error)
	Update(ctx context.Context, e Entity, reason string) error
	Merge(ctx context.Context, survivorID, mergedID string) (Entity, error)
	ListVersions(ctx context.Context, entityID string) ([]EntityVersion, error)
}
