package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nucleus/filingcore/internal/entityspine"
)

// handleEntitiesPath dispatches /entities/{id} and
// /entities/{id}/history onto their handlers.
func (s *Server) handleEntitiesPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/entities/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetEntity(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "history":
		s.handleEntityHistory(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("unrecognized path %q", r.URL.Path))
	}
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request, id string) {
	entity, err := entityspine.ResolveCanonical(r.Context(), s.Entities, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleEntityHistory(w http.ResponseWriter, r *http.Request, id string) {
	versions, err := s.Entities.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// handleResolveEntity serves GET /entities/resolve?q=...&as_of=...
// against the resolution ladder, reporting ambiguity as 422 per the
// spec's error taxonomy rather than guessing. q is classified against
// every recognized identifier shape (CIK, LEI, FIGI, ISIN, CUSIP,
// ticker) via ClassifyIdentifierCandidates before being handed to the
// matcher as Observation.Claims, so a bare ticker or CIK in the query
// string reaches rung 1 of the ladder (exact identifier) instead of
// only ever being tried as a display name. as_of is honored against
// claim validity windows whenever the registry is the Postgres tier;
// AS_OF_IGNORED is reserved for a degraded registry that cannot
// evaluate temporal ranges at all, and NO_ACTIVE_CLAIM surfaces the gap
// between a closed claim and its successor (e.g. a ticker reused after
// a delisting) rather than reporting a plain UNRESOLVED.
func (s *Server) handleResolveEntity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("missing required query parameter q"))
		return
	}

	warnings := []string{}
	var asOf time.Time
	if raw := q.Get("as_of"); raw != "" {
		parsed, err := parseAsOf(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid as_of %q: %w", raw, err))
			return
		}
		if _, ok := s.Entities.(*entityspine.PostgresRegistry); ok {
			asOf = parsed
		} else {
			warnings = append(warnings, "AS_OF_IGNORED")
		}
	}

	match, err := s.Matcher.Resolve(r.Context(), entityspine.Observation{
		Type:   entityspine.EntityTypeOrganization,
		Name:   query,
		Claims: entityspine.ClassifyIdentifierCandidates(query),
	}, asOf)
	switch {
	case errors.Is(err, entityspine.ErrAmbiguous):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":     "ambiguous",
			"message":  fmt.Sprintf("query %q matched more than one entity within the confidence margin", query),
			"warnings": append(warnings, "AMBIGUOUS"),
		})
		return
	case errors.Is(err, entityspine.ErrNoActiveClaim):
		writeJSON(w, http.StatusOK, map[string]any{
			"resolved_entity_id": nil,
			"method":             "UNRESOLVED",
			"warnings":           append(warnings, "NO_ACTIVE_CLAIM"),
		})
		return
	case errors.Is(err, entityspine.ErrUnresolved):
		writeJSON(w, http.StatusOK, map[string]any{
			"resolved_entity_id": nil,
			"method":             "UNRESOLVED",
			"warnings":           warnings,
		})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resolved_entity_id": match.EntityID,
		"confidence":         match.Score,
		"method":             match.Rule,
		"warnings":           warnings,
	})
}

// parseAsOf accepts either a full RFC3339 timestamp or a bare
// YYYY-MM-DD date, matching the two forms filings and feed entries
// carry their own dates in elsewhere in this core.
func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
