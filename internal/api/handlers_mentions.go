package api

import (
	"fmt"
	"net/http"
	"strings"
)

// handleMentionEvidence serves GET /mentions/{mention_id}/evidence:
// the mention plus enough of its parent Section and Filing to render
// a byte-precise evidence panel without a second round trip.
func (s *Server) handleMentionEvidence(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/mentions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "evidence" {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("unrecognized path %q", r.URL.Path))
		return
	}
	mentionID := parts[0]

	m, err := s.Mentions.Get(r.Context(), mentionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	sec, err := s.Sections.Get(r.Context(), m.SectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", fmt.Errorf("load parent section: %w", err))
		return
	}
	filing, err := s.Filings.Get(r.Context(), sec.FilingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", fmt.Errorf("load parent filing: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mention_id":        m.ID,
		"entity_text":       m.Text,
		"entity_id":         m.EntityID,
		"resolution_method": m.ResolutionMethod,
		"confidence":        m.Confidence,
		"extraction_method": m.Stage,
		"source_location": map[string]any{
			"accession_number": filing.AccessionNo,
			"section_key":      sec.Type,
			"char_start":       m.StartOffset,
			"char_end":         m.EndOffset,
			"sentence_text":    m.SentenceText,
		},
	})
}
