package entityspine

import (
	"context"
	"testing"
	"time"
)

type fakeClaim struct {
	ownerType OwnerType
	ownerID   string
	validFrom time.Time
	validTo   *time.Time
	status    ClaimStatus
}

type fakeRegistry struct {
	entities   map[string]Entity
	claims     map[string][]fakeClaim // scheme|value -> claims, oldest first
	securities map[string]Security    // entityID -> primary security
	listings   map[string]Listing     // securityID|exchange -> listing
	nextID     int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		entities:   map[string]Entity{},
		claims:     map[string][]fakeClaim{},
		securities: map[string]Security{},
		listings:   map[string]Listing{},
	}
}

func (f *fakeRegistry) Create(ctx context.Context, e Entity) (Entity, error) {
	f.nextID++
	e.ID = itoa(f.nextID)
	if e.Qualifiers == nil {
		e.Qualifiers = map[string]any{}
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	f.entities[e.ID] = e
	return e, nil
}

func (f *fakeRegistry) Get(ctx context.Context, id string) (Entity, error) {
	e, ok := f.entities[id]
	if !ok {
		return Entity{}, errNotFound
	}
	return e, nil
}

func (f *fakeRegistry) GetByClaim(ctx context.Context, scheme, value string, asOf time.Time) (Entity, error) {
	claims, ok := f.claims[scheme+"|"+value]
	if !ok {
		return Entity{}, errNotFound
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	for i := len(claims) - 1; i >= 0; i-- {
		c := claims[i]
		if c.status != ClaimActive {
			continue
		}
		if c.validFrom.After(asOf) {
			continue
		}
		if c.validTo != nil && !c.validTo.After(asOf) {
			continue
		}
		entityID, err := f.resolveOwnerEntity(c.ownerType, c.ownerID)
		if err != nil {
			return Entity{}, err
		}
		return f.Get(ctx, entityID)
	}
	return Entity{}, ErrNoActiveClaim
}

func (f *fakeRegistry) resolveOwnerEntity(ownerType OwnerType, ownerID string) (string, error) {
	switch ownerType {
	case OwnerEntity:
		return ownerID, nil
	case OwnerSecurity:
		for entityID, sec := range f.securities {
			if sec.ID == ownerID {
				return entityID, nil
			}
		}
		return "", errNotFound
	case OwnerListing:
		for _, l := range f.listings {
			if l.ID == ownerID {
				for entityID, sec := range f.securities {
					if sec.ID == l.SecurityID {
						return entityID, nil
					}
				}
			}
		}
		return "", errNotFound
	default:
		return "", errNotFound
	}
}

func (f *fakeRegistry) EnsureSecurity(ctx context.Context, entityID string) (Security, error) {
	if sec, ok := f.securities[entityID]; ok {
		return sec, nil
	}
	f.nextID++
	sec := Security{ID: "sec-" + itoa(f.nextID), EntityID: entityID}
	f.securities[entityID] = sec
	return sec, nil
}

func (f *fakeRegistry) EnsureListing(ctx context.Context, securityID, exchange string) (Listing, error) {
	key := securityID + "|" + exchange
	if l, ok := f.listings[key]; ok {
		return l, nil
	}
	f.nextID++
	l := Listing{ID: "lst-" + itoa(f.nextID), SecurityID: securityID, Exchange: exchange}
	f.listings[key] = l
	return l, nil
}

func (f *fakeRegistry) FindByName(ctx context.Context, entityType EntityType, name string) ([]Entity, error) {
	var out []Entity
	for _, e := range f.entities {
		if e.Type == entityType && e.Name == name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRegistry) FindByAlias(ctx context.Context, entityType EntityType, alias string) ([]Entity, error) {
	var out []Entity
	for _, e := range f.entities {
		if e.Type != entityType {
			continue
		}
		for _, a := range e.Aliases {
			if a == alias {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeRegistry) SearchFuzzy(ctx context.Context, entityType EntityType, name string, limit int) ([]Entity, error) {
	var out []Entity
	for _, e := range f.entities {
		if e.Type == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRegistry) AddAlias(ctx context.Context, entityID, alias string) error {
	e := f.entities[entityID]
	e.Aliases = append(e.Aliases, alias)
	f.entities[entityID] = e
	return nil
}

func (f *fakeRegistry) AddClaim(ctx context.Context, claim IdentifierClaim) error {
	key := claim.Scheme + "|" + claim.Value
	validFrom := claim.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now()
	}
	status := claim.Status
	if status == "" {
		status = ClaimActive
	}
	if status == ClaimActive {
		existing := f.claims[key]
		for i, c := range existing {
			if c.status == ClaimActive && c.validTo == nil && (c.ownerType != claim.OwnerType || c.ownerID != claim.OwnerID) {
				closedAt := validFrom
				existing[i].validTo = &closedAt
				existing[i].status = ClaimSuperseded
			}
		}
		f.claims[key] = existing
	}
	f.claims[key] = append(f.claims[key], fakeClaim{
		ownerType: claim.OwnerType,
		ownerID:   claim.OwnerID,
		validFrom: validFrom,
		validTo:   claim.ValidTo,
		status:    status,
	})
	return nil
}

func (f *fakeRegistry) Update(ctx context.Context, e Entity, reason string) error {
	f.entities[e.ID] = e
	return nil
}

func (f *fakeRegistry) Merge(ctx context.Context, survivorID, mergedID string) (Entity, error) {
	merged := f.entities[mergedID]
	merged.MergedInto = survivorID
	f.entities[mergedID] = merged
	return f.entities[survivorID], nil
}

func (f *fakeRegistry) ListVersions(ctx context.Context, entityID string) ([]EntityVersion, error) {
	e, ok := f.entities[entityID]
	if !ok {
		return nil, errNotFound
	}
	return []EntityVersion{{EntityID: entityID, Version: 1, Snapshot: e, Reason: "created"}}, nil
}

var errNotFound = fakeErr("not found")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestResolveOrCreateCreatesNewEntityOnNoMatch(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatcher(reg, 0.86, 0.04)

	e, created, err := m.ResolveOrCreate(context.Background(), Observation{
		Type: EntityTypeOrganization,
		Name: "Acme Corp",
		Claims: []IdentifierClaim{{Scheme: SchemeCIK, Value: "0001234567"}},
	}, time.Time{})
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if !created {
		t.Fatal("expected new entity to be created")
	}
	if e.Name != "Acme Corp" {
		t.Errorf("unexpected name: %s", e.Name)
	}

	again, created2, err := m.ResolveOrCreate(context.Background(), Observation{
		Type: EntityTypeOrganization,
		Name: "Acme Corp",
		Claims: []IdentifierClaim{{Scheme: SchemeCIK, Value: "0001234567"}},
	}, time.Time{})
	if err != nil {
		t.Fatalf("ResolveOrCreate second call: %v", err)
	}
	if created2 {
		t.Fatal("expected second observation to link to existing entity via CIK claim")
	}
	if again.ID != e.ID {
		t.Errorf("expected same entity id, got %s vs %s", again.ID, e.ID)
	}
}

func TestResolveCanonicalDetectsCycle(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	a, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "A"})
	b, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "B"})

	a.MergedInto = b.ID
	reg.entities[a.ID] = a
	b.MergedInto = a.ID
	reg.entities[b.ID] = b

	_, err := ResolveCanonical(ctx, reg, a.ID)
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestResolveCanonicalFollowsChainToSurvivor(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	a, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "A"})
	b, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "B"})
	c, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "C"})

	a.MergedInto = b.ID
	reg.entities[a.ID] = a
	b.MergedInto = c.ID
	reg.entities[b.ID] = b

	resolved, err := ResolveCanonical(ctx, reg, a.ID)
	if err != nil {
		t.Fatalf("ResolveCanonical: %v", err)
	}
	if resolved.ID != c.ID {
		t.Errorf("expected resolution to %s, got %s", c.ID, resolved.ID)
	}
}

func TestResolveNeverCreatesAndReportsUnresolved(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatcher(reg, 0.86, 0.04)

	_, err := m.Resolve(context.Background(), Observation{
		Type: EntityTypeOrganization,
		Name: "Nobody Inc",
	}, time.Time{})
	if err != ErrUnresolved {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if len(reg.entities) != 0 {
		t.Fatalf("expected Resolve to never create an entity, found %d", len(reg.entities))
	}
}

func TestResolveReturnsExistingMatchAboveThreshold(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	e, _ := reg.Create(ctx, Entity{Type: EntityTypeOrganization, Name: "Acme Corp"})
	m := NewMatcher(reg, 0.86, 0.04)

	got, err := m.Resolve(ctx, Observation{Type: EntityTypeOrganization, Name: "Acme Corp"}, time.Time{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.EntityID != e.ID {
		t.Errorf("expected match on %s, got %s", e.ID, got.EntityID)
	}
}

// TestResolveHonorsAsOfAcrossTickerReuse reproduces ticker reuse after
// a delisting: XYZ resolves to Company A in 2010, to Company B in
// 2022, and to neither (NO_ACTIVE_CLAIM) in the 2019 gap between the
// two claims.
func TestResolveHonorsAsOfAcrossTickerReuse(t *testing.T) {
	reg := newFakeRegistry()
	ctx := context.Background()
	m := NewMatcher(reg, 0.86, 0.04)

	companyA, _, err := m.ResolveOrCreate(ctx, Observation{
		Type:   EntityTypeOrganization,
		Name:   "Old Company A",
		Claims: []IdentifierClaim{{Scheme: SchemeTicker, Value: "XYZ", Exchange: "NYSE", ValidFrom: date(2005, 1, 1), ValidTo: ptr(date(2015, 1, 1))}},
	}, date(2005, 1, 1))
	if err != nil {
		t.Fatalf("resolve company A: %v", err)
	}

	companyB, _, err := m.ResolveOrCreate(ctx, Observation{
		Type:   EntityTypeOrganization,
		Name:   "New Company B",
		Claims: []IdentifierClaim{{Scheme: SchemeTicker, Value: "XYZ", Exchange: "NASDAQ", ValidFrom: date(2020, 1, 1)}},
	}, date(2020, 1, 1))
	if err != nil {
		t.Fatalf("resolve company B: %v", err)
	}
	if companyB.ID == companyA.ID {
		t.Fatalf("expected a distinct entity for the reused ticker, got the same one")
	}

	got2010, err := m.Resolve(ctx, Observation{
		Type:   EntityTypeOrganization,
		Claims: []IdentifierClaim{{Scheme: SchemeTicker, Value: "XYZ"}},
	}, date(2010, 1, 1))
	if err != nil {
		t.Fatalf("resolve as_of=2010: %v", err)
	}
	if got2010.EntityID != companyA.ID {
		t.Errorf("as_of=2010 expected company A %s, got %s", companyA.ID, got2010.EntityID)
	}

	got2022, err := m.Resolve(ctx, Observation{
		Type:   EntityTypeOrganization,
		Claims: []IdentifierClaim{{Scheme: SchemeTicker, Value: "XYZ"}},
	}, date(2022, 1, 1))
	if err != nil {
		t.Fatalf("resolve as_of=2022: %v", err)
	}
	if got2022.EntityID != companyB.ID {
		t.Errorf("as_of=2022 expected company B %s, got %s", companyB.ID, got2022.EntityID)
	}

	_, err = m.Resolve(ctx, Observation{
		Type:   EntityTypeOrganization,
		Claims: []IdentifierClaim{{Scheme: SchemeTicker, Value: "XYZ"}},
	}, date(2019, 1, 1))
	if err != ErrNoActiveClaim {
		t.Fatalf("as_of=2019 expected ErrNoActiveClaim, got %v", err)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }
