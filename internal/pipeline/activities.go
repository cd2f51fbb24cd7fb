package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/entityspine"
	"github.com/nucleus/filingcore/internal/events"
	"github.com/nucleus/filingcore/internal/fetcher"
	"github.com/nucleus/filingcore/internal/graph"
	"github.com/nucleus/filingcore/internal/mention"
	"github.com/nucleus/filingcore/internal/section"
	"github.com/nucleus/filingcore/internal/silver"
	"github.com/nucleus/filingcore/internal/validation"
)

// Activities bundles every dependency the pipeline's Temporal
// activities need, following the teacher's pattern of one struct
// holding all collaborators and registering its methods as activities
// by name.
type Activities struct {
	Fetcher    *fetcher.Fetcher
	Records    *bronze.RecordStore
	Filings    *silver.Store
	Sections   *section.Store
	Mentions   *mention.Store
	Entities   entityspine.Registry
	Matcher    *entityspine.Matcher
	Extractor  *mention.Extractor
	Builder    *graph.Builder
	Validation *validation.Store
	Events     *events.Store
}

const (
	ActivityFetchDocument      = "FetchDocument"
	ActivityParseSections      = "ParseSections"
	ActivityExtractMentions    = "ExtractMentions"
	ActivityResolveEntities    = "ResolveEntities"
	ActivityBuildRelationships = "BuildRelationships"
)

// FetchDocument promotes the admitted Bronze record to a Silver
// Filing (idempotent on accession number) and retrieves the primary
// document through the rate-limited Fetcher, archiving it to the
// content-addressable local path.
func (a *Activities) FetchDocument(ctx context.Context, in FilingIngestionInput) (FetchDocumentResult, error) {
	logger := activity.GetLogger(ctx)

	filingDate := time.Now()
	if parsed, err := time.Parse("2006-01-02", in.FilingDate); err == nil {
		filingDate = parsed
	}
	filing, err := a.Filings.Promote(ctx, silver.Filing{
		RecordID:      in.RecordID,
		CIK:           in.CIK,
		AccessionNo:   in.AccessionNo,
		FormType:      in.FormType,
		FilingDate:    filingDate,
		PrimaryDocURL: in.PrimaryDocURL,
	})
	if err != nil {
		return FetchDocumentResult{}, fmt.Errorf("pipeline: promote filing: %w", err)
	}

	body, err := a.Fetcher.Fetch(ctx, in.PrimaryDocURL)
	if err != nil {
		return FetchDocumentResult{}, fmt.Errorf("pipeline: fetch document: %w", err)
	}
	path, err := a.Fetcher.Archive(in.CIK, in.AccessionNo, "primary.html", body)
	if err != nil {
		return FetchDocumentResult{}, fmt.Errorf("pipeline: archive document: %w", err)
	}
	if err := a.Filings.SetArchivePath(ctx, filing.ID, path); err != nil {
		return FetchDocumentResult{}, fmt.Errorf("pipeline: set archive path: %w", err)
	}

	logger.Info("fetched filing document", "accession", in.AccessionNo, "bytes", len(body))
	return FetchDocumentResult{FilingID: filing.ID, ArchivePath: path, RawBody: body, SizeBytes: len(body)}, nil
}

// ParseSections strips HTML, canonicalizes text, and segments the
// canonicalized buffer into named sections, persisting each one
// against the Filing fetched by the prior activity. It returns the
// section ids so downstream activities can address them independently
// rather than re-parsing the document.
func (a *Activities) ParseSections(ctx context.Context, in FilingIngestionInput, fetched FetchDocumentResult) (ParseSectionsResult, error) {
	stripped, err := section.StripHTML(fetched.RawBody)
	if err != nil {
		return ParseSectionsResult{}, fmt.Errorf("pipeline: strip html: %w", err)
	}
	canonical, _ := section.Canonicalize(stripped)

	sections, err := section.Segment(canonical)
	if err != nil {
		if recErr := a.Validation.Record(ctx, validation.Event{
			SubjectType: "filing",
			SubjectID:   in.AccessionNo,
			Kind:        validation.KindOverlappingSections,
			Detail:      map[string]any{"error": err.Error()},
		}); recErr != nil {
			return ParseSectionsResult{}, fmt.Errorf("pipeline: record validation event: %w", recErr)
		}
		return ParseSectionsResult{}, fmt.Errorf("pipeline: segment sections: %w", err)
	}

	rows, err := a.Sections.ReplaceForFiling(ctx, fetched.FilingID, sections)
	if err != nil {
		return ParseSectionsResult{}, fmt.Errorf("pipeline: persist sections: %w", err)
	}
	if err := a.Filings.MarkSectionsExtracted(ctx, fetched.FilingID); err != nil {
		return ParseSectionsResult{}, fmt.Errorf("pipeline: mark sections extracted: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ParseSectionsResult{FilingID: fetched.FilingID, SectionIDs: ids, SectionCount: len(rows)}, nil
}

// ExtractMentions runs the mention extraction cascade over one
// section's canonical text and persists every candidate span found.
func (a *Activities) ExtractMentions(ctx context.Context, sectionID string) (ExtractMentionsResult, error) {
	row, err := a.Sections.Get(ctx, sectionID)
	if err != nil {
		return ExtractMentionsResult{}, fmt.Errorf("pipeline: load section: %w", err)
	}

	candidates, err := a.Extractor.Extract(ctx, row.CanonicalText)
	if err != nil {
		return ExtractMentionsResult{}, fmt.Errorf("pipeline: extract mentions: %w", err)
	}
	if _, err := a.Mentions.CreateBatch(ctx, sectionID, row.FilingID, row.CanonicalText, candidates); err != nil {
		return ExtractMentionsResult{}, fmt.Errorf("pipeline: persist mentions: %w", err)
	}
	return ExtractMentionsResult{MentionCount: len(candidates)}, nil
}

// ResolveEntities resolves each mention persisted for a section to a
// canonical entity, routing ambiguous resolutions to the validation
// store instead of guessing; unresolved mentions are left with method
// UNRESOLVED rather than dropped, so later backfill can revisit them.
func (a *Activities) ResolveEntities(ctx context.Context, sectionID string) (ResolveEntitiesResult, error) {
	mentions, err := a.Mentions.ListBySection(ctx, sectionID)
	if err != nil {
		return ResolveEntitiesResult{}, fmt.Errorf("pipeline: list mentions: %w", err)
	}

	asOf := time.Now()
	if sec, err := a.Sections.Get(ctx, sectionID); err == nil {
		if filing, err := a.Filings.Get(ctx, sec.FilingID); err == nil && !filing.FilingDate.IsZero() {
			asOf = filing.FilingDate
		}
	}

	resolved := 0
	flagged := 0
	for _, m := range mentions {
		e, _, err := a.Matcher.ResolveOrCreate(ctx, entityspine.Observation{
			Type:      entityspine.EntityTypeOrganization,
			Name:      m.Text,
			SourceRef: sectionID,
		}, asOf)
		if err == entityspine.ErrAmbiguous {
			flagged++
			if recErr := a.Validation.Record(ctx, validation.Event{
				SubjectType: "mention",
				SubjectID:   m.ID,
				Kind:        validation.KindAmbiguousResolution,
				Detail:      map[string]any{"text": m.Text, "section_id": sectionID},
			}); recErr != nil {
				return ResolveEntitiesResult{}, fmt.Errorf("pipeline: record ambiguous resolution: %w", recErr)
			}
			if err := a.Mentions.SetResolution(ctx, m.ID, "", mention.ResolutionUnresolved); err != nil {
				return ResolveEntitiesResult{}, fmt.Errorf("pipeline: set unresolved: %w", err)
			}
			continue
		}
		if err != nil {
			return ResolveEntitiesResult{}, fmt.Errorf("pipeline: resolve mention %q: %w", m.Text, err)
		}
		if err := a.Mentions.SetResolution(ctx, m.ID, e.ID, mention.ResolutionExact); err != nil {
			return ResolveEntitiesResult{}, fmt.Errorf("pipeline: set resolution: %w", err)
		}
		resolved++
	}
	return ResolveEntitiesResult{ResolvedCount: resolved, ValidationCount: flagged}, nil
}

// BuildRelationships groups every resolved mention across a filing's
// sections into typed relationships, routing Exhibit-21 sections to
// subsidiary-table parsing, Exhibit-10 sections to material-contract
// parsing, and everything else to narrative co-occurrence.
func (a *Activities) BuildRelationships(ctx context.Context, filingID string) (BuildRelationshipsResult, error) {
	filing, err := a.Filings.Get(ctx, filingID)
	if err != nil {
		return BuildRelationshipsResult{}, fmt.Errorf("pipeline: load filing: %w", err)
	}
	registrantID := filing.EntityID
	if registrantID == "" {
		e, _, err := a.Matcher.ResolveOrCreate(ctx, entityspine.Observation{
			Type:      entityspine.EntityTypeOrganization,
			Name:      filing.CIK,
			SourceRef: filingID,
		}, filing.FilingDate)
		if err != nil {
			return BuildRelationshipsResult{}, fmt.Errorf("pipeline: resolve registrant: %w", err)
		}
		if err := a.Filings.SetEntity(ctx, filingID, e.ID); err != nil {
			return BuildRelationshipsResult{}, fmt.Errorf("pipeline: set filing entity: %w", err)
		}
		registrantID = e.ID
	}

	sections, err := a.Sections.ListCurrentByFiling(ctx, filingID)
	if err != nil {
		return BuildRelationshipsResult{}, fmt.Errorf("pipeline: list sections: %w", err)
	}

	totalEvents := 0
	if isForm8K(filing.FormType) {
		for _, sec := range sections {
			items := graph.ParseEvents(sec.CanonicalText)
			if len(items) == 0 {
				continue
			}
			rows, err := a.Events.CreateBatch(ctx, filingID, filing.AccessionNo, items)
			if err != nil {
				return BuildRelationshipsResult{}, fmt.Errorf("pipeline: persist filing events: %w", err)
			}
			totalEvents += len(rows)
		}
	}

	total := 0
	for _, sec := range sections {
		switch {
		case isExhibit21(sec.Type):
			rows := graph.ParseExhibit21(sec.CanonicalText)
			rels, err := a.Builder.FromExhibit21(ctx, filingID, filing.AccessionNo, registrantID, rows, filing.FilingDate)
			if err != nil {
				return BuildRelationshipsResult{}, fmt.Errorf("pipeline: build exhibit-21 relations: %w", err)
			}
			total += len(rels)

		case isExhibit10(sec.Type):
			contracts := graph.ParseExhibit10(sec.CanonicalText)
			rels, err := a.Builder.FromExhibit10(ctx, filingID, filing.AccessionNo, registrantID, contracts, filing.FilingDate)
			if err != nil {
				return BuildRelationshipsResult{}, fmt.Errorf("pipeline: build exhibit-10 relations: %w", err)
			}
			total += len(rels)

		default:
			mentions, err := a.Mentions.ListBySection(ctx, sec.ID)
			if err != nil {
				return BuildRelationshipsResult{}, fmt.Errorf("pipeline: list mentions for section %s: %w", sec.ID, err)
			}
			entityIDs := entityIDsByText(mentions)
			rels, err := a.Builder.FromNarrativeMentions(ctx, filingID, filing.AccessionNo, sec.Type, registrantID, filing.FilingDate, mentions, entityIDs)
			if err != nil {
				return BuildRelationshipsResult{}, fmt.Errorf("pipeline: build narrative relations: %w", err)
			}
			total += len(rels)
		}
	}

	if err := a.Mentions.ReconcileFilingMentions(ctx, filingID, filing.CIK); err != nil {
		return BuildRelationshipsResult{}, fmt.Errorf("pipeline: reconcile mention lifecycle: %w", err)
	}
	if err := a.Filings.MarkMentionsExtracted(ctx, filingID); err != nil {
		return BuildRelationshipsResult{}, fmt.Errorf("pipeline: mark mentions extracted: %w", err)
	}
	return BuildRelationshipsResult{RelationCount: total, EventCount: totalEvents}, nil
}

func isExhibit21(sectionKey string) bool {
	return len(sectionKey) >= 5 && sectionKey[:5] == "EX_21"
}

func isExhibit10(sectionKey string) bool {
	return len(sectionKey) >= 5 && sectionKey[:5] == "EX_10"
}

// isForm8K reports whether formType is an 8-K (including amendments
// like "8-K/A"), tolerant of the dash/no-dash variants SEC form types
// appear in across feeds.
func isForm8K(formType string) bool {
	switch strings.ToUpper(strings.TrimSpace(formType)) {
	case "8-K", "8K", "8-K/A", "8K/A":
		return true
	default:
		return false
	}
}

func entityIDsByText(rows []mention.Row) map[string]string {
	entityIDs := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.EntityID != "" {
			entityIDs[r.Text] = r.EntityID
		}
	}
	return entityIDs
}
