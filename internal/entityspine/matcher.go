package entityspine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Matcher resolves an Observation to an existing Entity or creates a
// new one, walking the resolution ladder (exact identifier, exact
// name, alias, fuzzy name) until a rule produces a confident match.
type Matcher struct {
	registry  Registry
	rules     []MatchRule
	threshold float64 // minimum score to link rather than create
	margin    float64 // gap below which the top two candidates are ambiguous
}

// NewMatcher builds a Matcher using DefaultMatchRules.
func NewMatcher(registry Registry, threshold, margin float64) *Matcher {
	return &Matcher{registry: registry, rules: DefaultMatchRules(), threshold: threshold, margin: margin}
}

// ErrAmbiguous is returned by ResolveOrCreate when two or more
// candidates score within margin of each other above threshold — the
// caller should route the observation to the validation store instead
// of guessing.
var ErrAmbiguous = fmt.Errorf("entityspine: ambiguous resolution")

// ErrNoActiveClaim is returned when an identifier in obs.Claims was
// claimed by someone at some point but no claim's validity window
// covers asOf — a gap between a closed claim and its successor, as
// when a ticker is reused after a delisting. Distinct from never
// having been claimed, which simply falls through the rest of the
// ladder.
var ErrNoActiveClaim = fmt.Errorf("entityspine: no active claim covers as_of")

var (
	tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)
	cikPattern    = regexp.MustCompile(`^\d{1,10}$`)
	leiPattern    = regexp.MustCompile(`^[A-Z0-9]{20}$`)
	figiPattern   = regexp.MustCompile(`^BBG[A-Z0-9]{9}$`)
	isinPattern   = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}\d$`)
	cusipPattern  = regexp.MustCompile(`^[A-Z0-9]{9}$`)
)

// ClassifyIdentifierCandidates normalizes a bare query string (as
// taken off a URL query parameter, say) and returns one
// IdentifierClaim per recognized identifier shape the string could
// plausibly be — a CIK, an LEI, a FIGI, an ISIN, a CUSIP, or a ticker
// symbol. It never looks anything up; it only classifies shape. The
// caller attaches the result to Observation.Claims so FindMatches's
// exact-identifier rung (rung 1 of the resolution ladder, spec §4.7)
// has something to check claims against instead of silently falling
// through to name matching for every bare query. Candidates are
// ordered most-specific first, since FindMatches tries each in order
// and returns on the first one whose claim actually resolves.
func ClassifyIdentifierCandidates(query string) []IdentifierClaim {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var claims []IdentifierClaim
	if cikPattern.MatchString(q) {
		padded := strings.Repeat("0", 10-len(q)) + q
		claims = append(claims, IdentifierClaim{Scheme: SchemeCIK, Value: padded})
		if padded != q {
			claims = append(claims, IdentifierClaim{Scheme: SchemeCIK, Value: q})
		}
	}
	if leiPattern.MatchString(q) {
		claims = append(claims, IdentifierClaim{Scheme: SchemeLEI, Value: q})
	}
	if figiPattern.MatchString(q) {
		claims = append(claims, IdentifierClaim{Scheme: SchemeFIGI, Value: q})
	}
	if isinPattern.MatchString(q) {
		claims = append(claims, IdentifierClaim{Scheme: SchemeISIN, Value: q})
	}
	if cusipPattern.MatchString(q) && !figiPattern.MatchString(q) {
		claims = append(claims, IdentifierClaim{Scheme: SchemeCUSIP, Value: q})
	}
	if tickerPattern.MatchString(q) {
		claims = append(claims, IdentifierClaim{Scheme: SchemeTicker, Value: q})
	}
	return claims
}

// FindMatches evaluates obs against every rule in priority order,
// returning every candidate found by any rule, scored and sorted best
// first. An identifier claim that already resolves to an entity as of
// asOf short-circuits the rest of the ladder at score 1.0.
func (m *Matcher) FindMatches(ctx context.Context, obs Observation, asOf time.Time) ([]MatchResult, error) {
	for _, claim := range obs.Claims {
		e, err := m.registry.GetByClaim(ctx, claim.Scheme, claim.Value, asOf)
		if err == nil {
			return []MatchResult{{EntityID: e.ID, Score: 1.0, Rule: "exact-identifier"}}, nil
		}
	}

	var results []MatchResult
	for _, rule := range m.rules {
		matches, err := m.evaluateRule(ctx, rule, obs, asOf)
		if err != nil {
			return nil, err
		}
		results = append(results, matches...)
	}

	results = deduplicateResults(results)
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// hadHistoricalClaim reports whether any identifier in obs.Claims was
// ever claimed by anyone, even though none of those claims covers
// asOf — used to distinguish ErrNoActiveClaim from plain ErrUnresolved.
func (m *Matcher) hadHistoricalClaim(ctx context.Context, obs Observation, asOf time.Time) bool {
	for _, claim := range obs.Claims {
		if _, err := m.registry.GetByClaim(ctx, claim.Scheme, claim.Value, asOf); errors.Is(err, ErrNoActiveClaim) {
			return true
		}
	}
	return false
}

func (m *Matcher) evaluateRule(ctx context.Context, rule MatchRule, obs Observation, asOf time.Time) ([]MatchResult, error) {
	if rule.FuzzyNameThreshold > 0 {
		candidates, err := m.registry.SearchFuzzy(ctx, obs.Type, obs.Name, 10)
		if err != nil {
			return nil, fmt.Errorf("entityspine: fuzzy search: %w", err)
		}
		var results []MatchResult
		for _, c := range candidates {
			score := fuzzyNameScore(obs.Name, c.Name)
			if score >= rule.FuzzyNameThreshold {
				results = append(results, MatchResult{EntityID: c.ID, Score: score, Rule: rule.Name})
			}
		}
		return results, nil
	}

	for _, cond := range rule.Conditions {
		switch cond.Field {
		case "name":
			entities, err := m.registry.FindByName(ctx, obs.Type, obs.Name)
			if err != nil {
				return nil, fmt.Errorf("entityspine: find by name: %w", err)
			}
			return toResults(entities, 0.95, rule.Name), nil
		case "alias":
			entities, err := m.registry.FindByAlias(ctx, obs.Type, obs.Name)
			if err != nil {
				return nil, fmt.Errorf("entityspine: find by alias: %w", err)
			}
			return toResults(entities, 0.9, rule.Name), nil
		case "cik":
			for _, claim := range obs.Claims {
				if claim.Scheme != SchemeCIK {
					continue
				}
				e, err := m.registry.GetByClaim(ctx, SchemeCIK, claim.Value, asOf)
				if err == nil {
					return []MatchResult{{EntityID: e.ID, Score: 1.0, Rule: rule.Name}}, nil
				}
			}
		}
	}
	return nil, nil
}

func toResults(entities []Entity, score float64, rule string) []MatchResult {
	results := make([]MatchResult, 0, len(entities))
	for _, e := range entities {
		results = append(results, MatchResult{EntityID: e.ID, Score: score, Rule: rule})
	}
	return results
}

func deduplicateResults(results []MatchResult) []MatchResult {
	best := make(map[string]MatchResult, len(results))
	for _, r := range results {
		if existing, ok := best[r.EntityID]; !ok || r.Score > existing.Score {
			best[r.EntityID] = r
		}
	}
	out := make([]MatchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

// ResolveOrCreate links obs to its best matching entity if the top
// score clears threshold and is not ambiguous with the runner-up,
// otherwise creates a new Entity. Every identifier claim on obs is
// recorded against whichever entity is returned, attached to the
// hierarchy level (Entity, Security, or Listing) its scheme requires.
// asOf governs which claims are consulted when resolving; zero means
// "now".
func (m *Matcher) ResolveOrCreate(ctx context.Context, obs Observation, asOf time.Time) (Entity, bool, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	matches, err := m.FindMatches(ctx, obs, asOf)
	if err != nil {
		return Entity{}, false, err
	}

	var resolved Entity
	created := false

	switch {
	case len(matches) == 0:
		e, err := m.registry.Create(ctx, Entity{
			Type:       obs.Type,
			Name:       obs.Name,
			Qualifiers: map[string]any{},
			Properties: map[string]any{},
		})
		if err != nil {
			return Entity{}, false, err
		}
		resolved, created = e, true

	case matches[0].Score < m.threshold:
		e, err := m.registry.Create(ctx, Entity{
			Type:       obs.Type,
			Name:       obs.Name,
			Qualifiers: map[string]any{},
			Properties: map[string]any{},
		})
		if err != nil {
			return Entity{}, false, err
		}
		resolved, created = e, true

	case len(matches) > 1 && matches[0].Score-matches[1].Score < m.margin:
		return Entity{}, false, ErrAmbiguous

	default:
		e, err := m.registry.Get(ctx, matches[0].EntityID)
		if err != nil {
			return Entity{}, false, err
		}
		resolved = e
	}

	for _, claim := range obs.Claims {
		if err := m.attachClaim(ctx, resolved, claim, asOf); err != nil {
			return Entity{}, false, err
		}
	}
	if !created && !strings.EqualFold(resolved.Name, obs.Name) {
		if err := m.registry.AddAlias(ctx, resolved.ID, obs.Name); err != nil {
			return Entity{}, false, err
		}
	}

	return resolved, created, nil
}

// attachClaim resolves claim's owner reference for resolved's
// hierarchy level — Entity directly, or a Security/Listing created on
// demand underneath it — and records the claim, defaulting ValidFrom,
// Status, and Confidence for callers that don't set them explicitly.
func (m *Matcher) attachClaim(ctx context.Context, resolved Entity, claim IdentifierClaim, asOf time.Time) error {
	switch SchemeOwnerType(claim.Scheme) {
	case OwnerSecurity:
		sec, err := m.registry.EnsureSecurity(ctx, resolved.ID)
		if err != nil {
			return fmt.Errorf("entityspine: ensure security: %w", err)
		}
		claim.OwnerType = OwnerSecurity
		claim.OwnerID = sec.ID
	case OwnerListing:
		sec, err := m.registry.EnsureSecurity(ctx, resolved.ID)
		if err != nil {
			return fmt.Errorf("entityspine: ensure security: %w", err)
		}
		listing, err := m.registry.EnsureListing(ctx, sec.ID, claim.Exchange)
		if err != nil {
			return fmt.Errorf("entityspine: ensure listing: %w", err)
		}
		claim.OwnerType = OwnerListing
		claim.OwnerID = listing.ID
	default:
		claim.OwnerType = OwnerEntity
		claim.OwnerID = resolved.ID
	}
	if claim.ValidFrom.IsZero() {
		claim.ValidFrom = asOf
	}
	if claim.Status == "" {
		claim.Status = ClaimActive
	}
	if claim.Confidence == 0 {
		claim.Confidence = 1.0
	}
	return m.registry.AddClaim(ctx, claim)
}

// ErrUnresolved is returned by Resolve when no candidate clears
// threshold; the caller (typically a read-only query endpoint) should
// report this as "unresolved", never as a server error.
var ErrUnresolved = fmt.Errorf("entityspine: unresolved")

// Resolve runs the same ladder as ResolveOrCreate but never mints a
// new entity — used by read-only lookups (the /entities/resolve
// endpoint) where creating speculative entities from a bare query
// string would violate the resolver's creation policy. asOf governs
// point-in-time identifier resolution; zero means "now".
func (m *Matcher) Resolve(ctx context.Context, obs Observation, asOf time.Time) (MatchResult, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	matches, err := m.FindMatches(ctx, obs, asOf)
	if err != nil {
		return MatchResult{}, err
	}
	switch {
	case len(matches) == 0 || matches[0].Score < m.threshold:
		if m.hadHistoricalClaim(ctx, obs, asOf) {
			return MatchResult{}, ErrNoActiveClaim
		}
		return MatchResult{}, ErrUnresolved
	case len(matches) > 1 && matches[0].Score-matches[1].Score < m.margin:
		return MatchResult{}, ErrAmbiguous
	default:
		return matches[0], nil
	}
}

// fuzzyNameScore is a simple token-overlap heuristic: the fraction of
// tokens the shorter name shares with the longer one. It is a cheap
// stand-in for a real string-distance metric and is deliberately
// conservative — callers needing higher precision should raise
// FuzzyNameThreshold rather than expect this to behave like
// Jaro-Winkler.
func fuzzyNameScore(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}
	shared := 0
	for _, t := range ta {
		if setB[t] {
			shared++
		}
	}
	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	if shorter == 0 {
		return 0
	}
	return float64(shared) / float64(shorter)
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,")
		switch f {
		case "inc", "corp", "corporation", "llc", "ltd", "co", "company":
			continue
		}
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
