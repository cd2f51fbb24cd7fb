package entityspine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRegistry is the production Registry, backed by the
// canonical_entities / identifier_claims / entity_versions tables
// managed by internal/store migrations.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry wraps an existing *sql.DB.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Create(ctx context.Context, e Entity) (Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now

	qualifiers, err := json.Marshal(e.Qualifiers)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: marshal qualifiers: %w", err)
	}
	properties, err := json.Marshal(e.Properties)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: marshal properties: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO canonical_entities (id, entity_type, name, aliases, qualifiers, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Type), e.Name, pq.Array(e.Aliases), qualifiers, properties, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: insert entity: %w", err)
	}
	if err := r.writeVersion(ctx, r.db, e, "created"); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, id string) (Entity, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, entity_type, name, aliases, qualifiers, properties, coalesce(merged_into, ''), created_at, updated_at
		FROM canonical_entities WHERE id = $1`, id))
}

// GetByClaim resolves the Entity that owns (scheme, value) as of
// asOf: it selects the ACTIVE claim whose [valid_from, valid_to)
// window covers asOf (breaking ties on a listing's exchange priority,
// since a ticker migrating exchanges briefly has two open listings),
// then traverses Listing->Security->Entity or Security->Entity as the
// claim's owner type requires.
func (r *PostgresRegistry) GetByClaim(ctx context.Context, scheme, value string, asOf time.Time) (Entity, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	var ownerType, ownerID string
	err := r.db.QueryRowContext(ctx, `
		SELECT c.owner_type, c.owner_id
		FROM identifier_claims c
		LEFT JOIN listings l ON c.owner_type = 'listing' AND l.id = c.owner_id
		WHERE c.scheme = $1 AND c.value = $2 AND c.status = 'ACTIVE'
		  AND c.valid_from <= $3 AND (c.valid_to IS NULL OR c.valid_to > $3)
		ORDER BY coalesce(l.exchange_priority, 0) DESC, c.valid_from DESC
		LIMIT 1`, scheme, value, asOf).Scan(&ownerType, &ownerID)
	if err == sql.ErrNoRows {
		var exists bool
		if existsErr := r.db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM identifier_claims WHERE scheme = $1 AND value = $2)`,
			scheme, value).Scan(&exists); existsErr != nil {
			return Entity{}, fmt.Errorf("entityspine: check claim existence: %w", existsErr)
		}
		if exists {
			return Entity{}, ErrNoActiveClaim
		}
		return Entity{}, sql.ErrNoRows
	}
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: get by claim: %w", err)
	}

	entityID, err := r.resolveOwnerEntity(ctx, OwnerType(ownerType), ownerID)
	if err != nil {
		return Entity{}, err
	}
	return r.Get(ctx, entityID)
}

// resolveOwnerEntity walks a claim's owner up to the Entity it
// belongs to, per the hierarchy rules: Entity owners resolve directly,
// Security owners resolve through their issuing entity, and Listing
// owners resolve through their Security's issuing entity.
func (r *PostgresRegistry) resolveOwnerEntity(ctx context.Context, ownerType OwnerType, ownerID string) (string, error) {
	switch ownerType {
	case OwnerEntity:
		return ownerID, nil
	case OwnerSecurity:
		var entityID string
		if err := r.db.QueryRowContext(ctx, `SELECT entity_id FROM securities WHERE id = $1`, ownerID).Scan(&entityID); err != nil {
			return "", fmt.Errorf("entityspine: resolve security owner: %w", err)
		}
		return entityID, nil
	case OwnerListing:
		var entityID string
		if err := r.db.QueryRowContext(ctx, `
			SELECT sec.entity_id FROM listings l JOIN securities sec ON sec.id = l.security_id
			WHERE l.id = $1`, ownerID).Scan(&entityID); err != nil {
			return "", fmt.Errorf("entityspine: resolve listing owner: %w", err)
		}
		return entityID, nil
	default:
		return "", fmt.Errorf("entityspine: unknown claim owner type %q", ownerType)
	}
}

// EnsureSecurity returns entityID's primary Security, creating one on
// first use. A single primary security per entity is enough to host
// CUSIP/ISIN/FIGI claims for the common single-share-class case.
func (r *PostgresRegistry) EnsureSecurity(ctx context.Context, entityID string) (Security, error) {
	var sec Security
	err := r.db.QueryRowContext(ctx, `
		SELECT id, entity_id, created_at FROM securities WHERE entity_id = $1 ORDER BY created_at LIMIT 1`, entityID).
		Scan(&sec.ID, &sec.EntityID, &sec.CreatedAt)
	if err == nil {
		return sec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Security{}, fmt.Errorf("entityspine: lookup security: %w", err)
	}

	sec = Security{ID: uuid.NewString(), EntityID: entityID, CreatedAt: time.Now()}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO securities (id, entity_id, created_at) VALUES ($1, $2, $3)`,
		sec.ID, sec.EntityID, sec.CreatedAt)
	if err != nil {
		return Security{}, fmt.Errorf("entityspine: insert security: %w", err)
	}
	return sec, nil
}

// EnsureListing returns the Listing for securityID on exchange,
// creating one on first use.
func (r *PostgresRegistry) EnsureListing(ctx context.Context, securityID, exchange string) (Listing, error) {
	var l Listing
	err := r.db.QueryRowContext(ctx, `
		SELECT id, security_id, exchange, exchange_priority, created_at
		FROM listings WHERE security_id = $1 AND exchange = $2`, securityID, exchange).
		Scan(&l.ID, &l.SecurityID, &l.Exchange, &l.ExchangePriority, &l.CreatedAt)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Listing{}, fmt.Errorf("entityspine: lookup listing: %w", err)
	}

	l = Listing{ID: uuid.NewString(), SecurityID: securityID, Exchange: exchange, CreatedAt: time.Now()}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO listings (id, security_id, exchange, exchange_priority, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.SecurityID, l.Exchange, l.ExchangePriority, l.CreatedAt)
	if err != nil {
		return Listing{}, fmt.Errorf("entityspine: insert listing: %w", err)
	}
	return l, nil
}

func (r *PostgresRegistry) FindByName(ctx context.Context, entityType EntityType, name string) ([]Entity, error) {
	return r.queryMany(ctx, `
		SELECT id, entity_type, name, aliases, qualifiers, properties, coalesce(merged_into, ''), created_at, updated_at
		FROM canonical_entities WHERE entity_type = $1 AND name = $2 AND merged_into IS NULL`,
		string(entityType), name)
}

func (r *PostgresRegistry) FindByAlias(ctx context.Context, entityType EntityType, alias string) ([]Entity, error) {
	return r.queryMany(ctx, `
		SELECT id, entity_type, name, aliases, qualifiers, properties, coalesce(merged_into, ''), created_at, updated_at
		FROM canonical_entities WHERE entity_type = $1 AND $2 = ANY(aliases) AND merged_into IS NULL`,
		string(entityType), alias)
}

func (r *PostgresRegistry) SearchFuzzy(ctx context.Context, entityType EntityType, name string, limit int) ([]Entity, error) {
	return r.queryMany(ctx, `
		SELECT id, entity_type, name, aliases, qualifiers, properties, coalesce(merged_into, ''), created_at, updated_at
		FROM canonical_entities
		WHERE entity_type = $1 AND merged_into IS NULL AND name % $2
		ORDER BY similarity(name, $2) DESC LIMIT $3`,
		string(entityType), name, limit)
}

func (r *PostgresRegistry) AddAlias(ctx context.Context, entityID, alias string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE canonical_entities
		SET aliases = array_append(aliases, $1::text), updated_at = now()
		WHERE id = $2 AND NOT ($1::text = ANY(aliases))`, alias, entityID)
	if err != nil {
		return fmt.Errorf("entityspine: add alias: %w", err)
	}
	return nil
}

// AddClaim records claim against its OwnerType/OwnerID. If claim is
// ACTIVE, any other owner's still-open ACTIVE claim on the same
// (scheme, value) is closed first (ValidTo = claim.ValidFrom, status
// SUPERSEDED) so the claim's insert never violates the non-overlap
// invariant — this is how historical reassignment (ticker reuse after
// a delisting) is allowed at all.
func (r *PostgresRegistry) AddClaim(ctx context.Context, claim IdentifierClaim) error {
	if claim.ValidFrom.IsZero() {
		claim.ValidFrom = time.Now()
	}
	if claim.Status == "" {
		claim.Status = ClaimActive
	}
	if claim.Confidence == 0 {
		claim.Confidence = 1.0
	}
	if claim.ObservedAt.IsZero() {
		claim.ObservedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("entityspine: add claim begin: %w", err)
	}
	defer tx.Rollback()

	if claim.Status == ClaimActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE identifier_claims
			SET valid_to = $1, status = 'SUPERSEDED'
			WHERE scheme = $2 AND value = $3 AND status = 'ACTIVE' AND valid_to IS NULL
			  AND NOT (owner_type = $4 AND owner_id = $5)`,
			claim.ValidFrom, claim.Scheme, claim.Value, string(claim.OwnerType), claim.OwnerID); err != nil {
			return fmt.Errorf("entityspine: close prior claims: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identifier_claims (owner_type, owner_id, scheme, value, source_ref, valid_from, valid_to, status, confidence, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_type, owner_id, scheme, value, valid_from) DO UPDATE SET observed_at = EXCLUDED.observed_at`,
		string(claim.OwnerType), claim.OwnerID, claim.Scheme, claim.Value, claim.SourceRef,
		claim.ValidFrom, claim.ValidTo, string(claim.Status), claim.Confidence, claim.ObservedAt)
	if err != nil {
		return fmt.Errorf("entityspine: add claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("entityspine: add claim commit: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Update(ctx context.Context, e Entity, reason string) error {
	e.UpdatedAt = time.Now()
	qualifiers, err := json.Marshal(e.Qualifiers)
	if err != nil {
		return fmt.Errorf("entityspine: marshal qualifiers: %w", err)
	}
	properties, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("entityspine: marshal properties: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE canonical_entities
		SET name = $1, aliases = $2, qualifiers = $3, properties = $4, updated_at = $5
		WHERE id = $6`,
		e.Name, pq.Array(e.Aliases), qualifiers, properties, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("entityspine: update entity: %w", err)
	}
	return r.writeVersion(ctx, r.db, e, reason)
}

// Merge folds mergedID into survivorID: aliases, qualifiers, and
// properties are combined with the survivor winning on key conflicts,
// the merged entity's name is kept as an alias, identifier claims move
// to the survivor, and the merged row is marked MergedInto rather than
// deleted so later lookups by its old id can still redirect. Both rows
// are locked in a fixed id-ascending order to avoid deadlocking against
// a concurrent merge in the opposite direction.
func (r *PostgresRegistry) Merge(ctx context.Context, survivorID, mergedID string) (Entity, error) {
	if survivorID == mergedID {
		return Entity{}, fmt.Errorf("entityspine: cannot merge entity into itself")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: merge begin: %w", err)
	}
	defer tx.Rollback()

	firstID, secondID := survivorID, mergedID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	if _, err := r.lockForUpdate(ctx, tx, firstID); err != nil {
		return Entity{}, err
	}
	if _, err := r.lockForUpdate(ctx, tx, secondID); err != nil {
		return Entity{}, err
	}

	survivor, err := r.scanOneTx(ctx, tx, survivorID)
	if err != nil {
		return Entity{}, err
	}
	merged, err := r.scanOneTx(ctx, tx, mergedID)
	if err != nil {
		return Entity{}, err
	}
	if merged.MergedInto != "" {
		return Entity{}, fmt.Errorf("entityspine: entity %s already merged into %s", mergedID, merged.MergedInto)
	}

	aliasSet := map[string]bool{}
	var aliases []string
	for _, a := range append(append([]string{}, survivor.Aliases...), merged.Aliases...) {
		if !aliasSet[a] {
			aliasSet[a] = true
			aliases = append(aliases, a)
		}
	}
	if !aliasSet[merged.Name] {
		aliases = append(aliases, merged.Name)
	}

	qualifiers := mergeMaps(merged.Qualifiers, survivor.Qualifiers) // survivor wins conflicts
	properties := mergeMaps(merged.Properties, survivor.Properties)

	survivor.Aliases = aliases
	survivor.Qualifiers = qualifiers
	survivor.Properties = properties
	survivor.UpdatedAt = time.Now()

	qJSON, err := json.Marshal(survivor.Qualifiers)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: marshal merged qualifiers: %w", err)
	}
	pJSON, err := json.Marshal(survivor.Properties)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: marshal merged properties: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE canonical_entities SET aliases = $1, qualifiers = $2, properties = $3, updated_at = $4
		WHERE id = $5`, pq.Array(survivor.Aliases), qJSON, pJSON, survivor.UpdatedAt, survivor.ID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: update survivor: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE securities SET entity_id = $1 WHERE entity_id = $2`, survivorID, mergedID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: move securities: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE identifier_claims SET owner_id = $1 WHERE owner_type = 'entity' AND owner_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM identifier_claims c2
			WHERE c2.owner_type = 'entity' AND c2.owner_id = $1
			  AND c2.scheme = identifier_claims.scheme AND c2.value = identifier_claims.value)`,
		survivorID, mergedID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: move claims: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM identifier_claims WHERE owner_type = 'entity' AND owner_id = $1`, mergedID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: clear residual claims: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE canonical_entities SET merged_into = $1, updated_at = now() WHERE id = $2`, survivorID, mergedID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: mark merged: %w", err)
	}

	if err := r.writeVersion(ctx, tx, survivor, fmt.Sprintf("merged-from:%s", mergedID)); err != nil {
		return Entity{}, err
	}

	if err := tx.Commit(); err != nil {
		return Entity{}, fmt.Errorf("entityspine: merge commit: %w", err)
	}
	return survivor, nil
}

// ListVersions returns every EntityVersion snapshot recorded for
// entityID, oldest first, reconstructing the full timeline of name
// and type changes independent of the live canonical_entities row.
func (r *PostgresRegistry) ListVersions(ctx context.Context, entityID string) ([]EntityVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_id, version, snapshot, reason, created_at
		FROM entity_versions WHERE entity_id = $1 ORDER BY version ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("entityspine: list versions: %w", err)
	}
	defer rows.Close()

	var out []EntityVersion
	for rows.Next() {
		var v EntityVersion
		var snapshot []byte
		if err := rows.Scan(&v.ID, &v.EntityID, &v.Version, &snapshot, &v.Reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("entityspine: scan version: %w", err)
		}
		if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
			return nil, fmt.Errorf("entityspine: unmarshal version snapshot: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresRegistry) lockForUpdate(ctx context.Context, tx *sql.Tx, id string) (Entity, error) {
	var e Entity
	err := tx.QueryRowContext(ctx, `SELECT id FROM canonical_entities WHERE id = $1 FOR UPDATE`, id).Scan(&e.ID)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: lock %s: %w", id, err)
	}
	return e, nil
}

func (r *PostgresRegistry) scanOneTx(ctx context.Context, tx *sql.Tx, id string) (Entity, error) {
	return r.scanOne(tx.QueryRowContext(ctx, `
		SELECT id, entity_type, name, aliases, qualifiers, properties, coalesce(merged_into, ''), created_at, updated_at
		FROM canonical_entities WHERE id = $1`, id))
}

func (r *PostgresRegistry) scanOne(row *sql.Row) (Entity, error) {
	var e Entity
	var entityType string
	var qualifiers, properties []byte
	err := row.Scan(&e.ID, &entityType, &e.Name, pq.Array(&e.Aliases), &qualifiers, &properties, &e.MergedInto, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entity{}, fmt.Errorf("entityspine: scan entity: %w", err)
	}
	e.Type = EntityType(entityType)
	if err := json.Unmarshal(qualifiers, &e.Qualifiers); err != nil {
		return Entity{}, fmt.Errorf("entityspine: unmarshal qualifiers: %w", err)
	}
	if err := json.Unmarshal(properties, &e.Properties); err != nil {
		return Entity{}, fmt.Errorf("entityspine: unmarshal properties: %w", err)
	}
	return e, nil
}

func (r *PostgresRegistry) queryMany(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entityspine: query: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var entityType string
		var qualifiers, properties []byte
		if err := rows.Scan(&e.ID, &entityType, &e.Name, pq.Array(&e.Aliases), &qualifiers, &properties, &e.MergedInto, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("entityspine: scan row: %w", err)
		}
		e.Type = EntityType(entityType)
		if err := json.Unmarshal(qualifiers, &e.Qualifiers); err != nil {
			return nil, fmt.Errorf("entityspine: unmarshal qualifiers: %w", err)
		}
		if err := json.Unmarshal(properties, &e.Properties); err != nil {
			return nil, fmt.Errorf("entityspine: unmarshal properties: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (r *PostgresRegistry) writeVersion(ctx context.Context, ex execer, e Entity, reason string) error {
	snapshot, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("entityspine: marshal version snapshot: %w", err)
	}
	var nextVersion int64
	err = ex.QueryRowContext(ctx, `
		SELECT coalesce(max(version), 0) + 1 FROM entity_versions WHERE entity_id = $1`, e.ID).Scan(&nextVersion)
	if err != nil {
		return fmt.Errorf("entityspine: next version: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO entity_versions (entity_id, version, snapshot, reason) VALUES ($1, $2, $3, $4)`,
		e.ID, nextVersion, snapshot, reason)
	if err != nil {
		return fmt.Errorf("entityspine: insert version: %w", err)
	}
	return nil
}
