package graph

import (
	"context"
	"testing"
	"time"

	"github.com/nucleus/filingcore/internal/mention"
)

type fakeResolver struct {
	ids map[string]string
	n   int
}

func (f *fakeResolver) ResolveName(ctx context.Context, entityType, name string) (string, error) {
	if f.ids == nil {
		f.ids = map[string]string{}
	}
	if id, ok := f.ids[name]; ok {
		return id, nil
	}
	f.n++
	id := name // stable, readable id for test assertions
	f.ids[name] = id
	return id, nil
}

type fakeStore struct {
	relations map[string]Relation
}

func newFakeStore() *fakeStore {
	return &fakeStore{relations: map[string]Relation{}}
}

func (f *fakeStore) Create(ctx context.Context, rel Relation) error {
	if len(rel.Evidence) == 0 {
		panic("relation created with no evidence")
	}
	f.relations[rel.ID] = rel
	return nil
}

func (f *fakeStore) OpenRelations(ctx context.Context, toEntity string, relType RelationType) ([]Relation, error) {
	var out []Relation
	for _, rel := range f.relations {
		if rel.ToEntity == toEntity && rel.Type == relType && rel.ValidTo == nil {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeStore) Touch(ctx context.Context, id string, confirmedAt time.Time) error {
	rel := f.relations[id]
	rel.LastSeenAt = confirmedAt
	f.relations[id] = rel
	return nil
}

func (f *fakeStore) Close(ctx context.Context, id string, validTo time.Time) error {
	rel := f.relations[id]
	vt := validTo
	rel.ValidTo = &vt
	f.relations[id] = rel
	return nil
}

func TestFromExhibit21ClosesOmittedSubsidiary(t *testing.T) {
	store := newFakeStore()
	builder := NewBuilder(&fakeResolver{}, store)
	ctx := context.Background()

	filedDate2023 := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	rows2023 := []Exhibit21Row{
		{SubsidiaryName: "Widget Manufacturing LLC", JurisdictionOfOrg: "Delaware", OwnershipPercent: 100, LineText: "Widget Manufacturing LLC  Delaware  100"},
		{SubsidiaryName: "Global Sales Corp", JurisdictionOfOrg: "Ireland", OwnershipPercent: 85.5, LineText: "Global Sales Corp  Ireland  85.5"},
	}
	if _, err := builder.FromExhibit21(ctx, "filing-2023", "0001-23-000001", "registrant", rows2023, filedDate2023); err != nil {
		t.Fatalf("FromExhibit21 2023: %v", err)
	}

	filedDate2024 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows2024 := []Exhibit21Row{
		{SubsidiaryName: "Widget Manufacturing LLC", JurisdictionOfOrg: "Delaware", OwnershipPercent: 100, LineText: "Widget Manufacturing LLC  Delaware  100"},
	}
	if _, err := builder.FromExhibit21(ctx, "filing-2024", "0001-24-000001", "registrant", rows2024, filedDate2024); err != nil {
		t.Fatalf("FromExhibit21 2024: %v", err)
	}

	var widgetRel, globalRel Relation
	for _, rel := range store.relations {
		switch rel.FromEntity {
		case "Widget Manufacturing LLC":
			widgetRel = rel
		case "Global Sales Corp":
			globalRel = rel
		}
	}

	if widgetRel.ValidTo != nil {
		t.Errorf("expected Widget subsidiary relation to remain open, got valid_to=%v", widgetRel.ValidTo)
	}
	if widgetRel.LastSeenAt != filedDate2024 {
		t.Errorf("expected Widget relation reconfirmed at 2024 filing, got last_seen_at=%v", widgetRel.LastSeenAt)
	}

	if globalRel.ValidTo == nil {
		t.Fatal("expected Global Sales Corp subsidiary relation to be closed once omitted from the 2024 filing")
	}
	if !globalRel.ValidTo.Equal(filedDate2023) {
		t.Errorf("expected valid_to to be the prior filing's filed date %v, got %v", filedDate2023, *globalRel.ValidTo)
	}
}

func TestFromNarrativeMentionsNeverCloses(t *testing.T) {
	store := newFakeStore()
	builder := NewBuilder(&fakeResolver{}, store)
	ctx := context.Background()

	rows := []mention.Row{
		{Text: "Acme Supply Co", StartOffset: 0, EndOffset: 14, SentenceText: "Acme Supply Co provided components."},
	}
	entityIDs := map[string]string{"Acme Supply Co": "acme-id"}

	filedDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rels, err := builder.FromNarrativeMentions(ctx, "filing-1", "0001-24-000002", "ITEM_1", "registrant", filedDate, rows, entityIDs)
	if err != nil {
		t.Fatalf("FromNarrativeMentions: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(rels))
	}
	if rels[0].IsSignificant {
		t.Errorf("expected narrative MENTIONED_WITH relations to be non-significant")
	}
	if len(rels[0].Evidence) == 0 {
		t.Errorf("expected narrative relation to carry evidence")
	}
}
