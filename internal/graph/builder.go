package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/filingcore/internal/mention"
)

// EntityResolver is the minimal contract builder needs from
// EntitySpine: given a candidate mention's surface form, resolve it to
// a canonical entity id, creating one if none exists yet.
type EntityResolver interface {
	ResolveName(ctx context.Context, entityType, name string) (string, error)
}

// Store persists relations the builder produces and lets it diff a
// freshly parsed exhibit table against what is already open, so edges
// a later filing omits can be closed rather than left stale forever.
type Store interface {
	Create(ctx context.Context, rel Relation) error
	OpenRelations(ctx context.Context, toEntity string, relType RelationType) ([]Relation, error)
	Touch(ctx context.Context, id string, confirmedAt time.Time) error
	Close(ctx context.Context, id string, validTo time.Time) error
}

// Builder turns resolved entity mentions and parsed exhibit rows into
// Relation edges. Each extraction method mirrors the same shape: look
// at what the filing states, decide FromEntity/ToEntity/Type/Direction,
// and mark Explicit/Confidence according to how directly the filing
// said so — never auto-closing an inferred relationship into a
// certain one.
type Builder struct {
	resolver EntityResolver
	store    Store
}

// NewBuilder constructs a Builder.
func NewBuilder(resolver EntityResolver, store Store) *Builder {
	return &Builder{resolver: resolver, store: store}
}

// FromExhibit21 builds SUBSIDIARY_OF relations from a parsed Exhibit
// 21 table, all explicit and maximally confident since the filing
// states the relationship directly. filedDate is the filing's own
// filed date, used as the new edges' valid_from and as the new
// LastSeenAt of edges this filing reconfirms. An edge a prior filing
// stated that this one omits is closed with valid_to set to its own
// LastSeenAt — it held through the last filing that confirmed it, not
// through this one.
func (b *Builder) FromExhibit21(ctx context.Context, filingID, accessionNo, registrantEntityID string, rows []Exhibit21Row, filedDate time.Time) ([]Relation, error) {
	if filedDate.IsZero() {
		filedDate = time.Now()
	}

	open, err := b.store.OpenRelations(ctx, registrantEntityID, RelSubsidiaryOf)
	if err != nil {
		return nil, fmt.Errorf("graph: list open subsidiary relations: %w", err)
	}
	openBySubsidiary := make(map[string]Relation, len(open))
	for _, rel := range open {
		openBySubsidiary[rel.FromEntity] = rel
	}

	var relations []Relation
	seen := map[string]bool{}
	for _, row := range rows {
		subID, err := b.resolver.ResolveName(ctx, "organization", row.SubsidiaryName)
		if err != nil {
			return nil, fmt.Errorf("graph: resolve subsidiary %q: %w", row.SubsidiaryName, err)
		}
		seen[subID] = true

		if existing, ok := openBySubsidiary[subID]; ok {
			if err := b.store.Touch(ctx, existing.ID, filedDate); err != nil {
				return nil, fmt.Errorf("graph: reconfirm subsidiary relation: %w", err)
			}
			existing.LastSeenAt = filedDate
			relations = append(relations, existing)
			continue
		}

		rel := Relation{
			ID:             uuid.NewString(),
			FromEntity:     subID,
			ToEntity:       registrantEntityID,
			Type:           RelSubsidiaryOf,
			Direction:      DirForward,
			Properties:     map[string]any{"jurisdiction": row.JurisdictionOfOrg, "ownership_percent": row.OwnershipPercent},
			SourceFilingID: filingID,
			Explicit:       true,
			Confidence:     1.0,
			Evidence: []EvidenceRef{{
				AccessionNo:  accessionNo,
				SectionKey:   "EX_21",
				CharStart:    row.CharStart,
				CharEnd:      row.CharEnd,
				SentenceText: row.LineText,
			}},
			ValidFrom:     filedDate,
			FirstSeenAt:   filedDate,
			LastSeenAt:    filedDate,
			IsSignificant: true,
			CreatedAt:     time.Now(),
		}
		if err := b.store.Create(ctx, rel); err != nil {
			return nil, fmt.Errorf("graph: store subsidiary relation: %w", err)
		}
		relations = append(relations, rel)
	}

	for subID, rel := range openBySubsidiary {
		if seen[subID] {
			continue
		}
		if err := b.store.Close(ctx, rel.ID, rel.LastSeenAt); err != nil {
			return nil, fmt.Errorf("graph: close stale subsidiary relation: %w", err)
		}
	}

	return relations, nil
}

// FromExhibit10 builds PARTY_TO_CONTRACT relations from parsed
// material contract exhibit entries.
func (b *Builder) FromExhibit10(ctx context.Context, filingID, accessionNo, registrantEntityID string, contracts []Exhibit10Contract, filedDate time.Time) ([]Relation, error) {
	if filedDate.IsZero() {
		filedDate = time.Now()
	}
	var relations []Relation
	for _, c := range contracts {
		if c.Counterparty == "" {
			continue
		}
		counterpartyID, err := b.resolver.ResolveName(ctx, "organization", c.Counterparty)
		if err != nil {
			return nil, fmt.Errorf("graph: resolve counterparty %q: %w", c.Counterparty, err)
		}
		rel := Relation{
			ID:             uuid.NewString(),
			FromEntity:     registrantEntityID,
			ToEntity:       counterpartyID,
			Type:           RelPartyTo,
			Direction:      DirBidirectional,
			Properties:     map[string]any{"title": c.Title, "effective_date": c.EffectiveDate},
			SourceFilingID: filingID,
			Explicit:       true,
			Confidence:     0.9,
			Evidence: []EvidenceRef{{
				AccessionNo:  accessionNo,
				SectionKey:   "EX_10",
				CharStart:    c.CharStart,
				CharEnd:      c.CharEnd,
				SentenceText: c.MatchText,
			}},
			ValidFrom:     filedDate,
			FirstSeenAt:   filedDate,
			LastSeenAt:    filedDate,
			IsSignificant: true,
			CreatedAt:     time.Now(),
		}
		if err := b.store.Create(ctx, rel); err != nil {
			return nil, fmt.Errorf("graph: store contract relation: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, nil
}

// FromNarrativeMentions builds low-confidence MENTIONED_WITH relations
// between every pair of entities resolved from mentions within the
// same section — the weakest, most conservative relation type this
// core produces, never auto-escalated to a stronger type later. It
// never closes a prior MENTIONED_WITH edge: absence from one filing's
// narrative text says nothing about whether the relationship still
// holds, unlike an Exhibit-21 table's explicit enumeration.
func (b *Builder) FromNarrativeMentions(ctx context.Context, filingID, accessionNo, sectionKey, registrantEntityID string, filedDate time.Time, mentions []mention.Row, entityIDs map[string]string) ([]Relation, error) {
	if filedDate.IsZero() {
		filedDate = time.Now()
	}
	type occurrence struct {
		id  string
		row mention.Row
	}
	var ids []occurrence
	seen := map[string]bool{}
	for _, m := range mentions {
		id, ok := entityIDs[m.Text]
		if !ok || id == registrantEntityID || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, occurrence{id: id, row: m})
	}

	var relations []Relation
	for _, occ := range ids {
		rel := Relation{
			ID:             uuid.NewString(),
			FromEntity:     registrantEntityID,
			ToEntity:       occ.id,
			Type:           RelMentionedWith,
			Direction:      DirBidirectional,
			Properties:     map[string]any{},
			SourceFilingID: filingID,
			Explicit:       false,
			Confidence:     0.5,
			Evidence: []EvidenceRef{{
				AccessionNo:  accessionNo,
				SectionKey:   sectionKey,
				CharStart:    occ.row.StartOffset,
				CharEnd:      occ.row.EndOffset,
				SentenceText: occ.row.SentenceText,
			}},
			ValidFrom:     filedDate,
			FirstSeenAt:   filedDate,
			LastSeenAt:    filedDate,
			IsSignificant: false,
			CreatedAt:     time.Now(),
		}
		if err := b.store.Create(ctx, rel); err != nil {
			return nil, fmt.Errorf("graph: store narrative relation: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, nil
}
