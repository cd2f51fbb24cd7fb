package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nucleus/filingcore/internal/section"
	"github.com/nucleus/filingcore/internal/silver"
)

// filingView is the JSON shape returned for a single filing: Silver
// fields plus its current section index.
type filingView struct {
	AccessionNo   string         `json:"accession_number"`
	CIK           string         `json:"filer_cik"`
	FormType      string         `json:"form_type"`
	FilingDate    time.Time      `json:"filed_date"`
	ReportDate    time.Time      `json:"report_date"`
	EntityID      string         `json:"entity_id,omitempty"`
	PrimaryDocURL string         `json:"primary_document_url"`
	Sections      []sectionIndex `json:"sections,omitempty"`
}

type sectionIndex struct {
	SectionKey string `json:"section_key"`
	ItemLabel  string `json:"title"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	WordCount  int    `json:"word_count"`
}

// handleListFilings serves GET /filings with optional cik/form/date
// range filters.
func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", fmt.Errorf("use GET"))
		return
	}
	q := r.URL.Query()
	filter := silver.ListFilter{CIK: q.Get("cik"), FormType: q.Get("form")}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", fmt.Errorf("from: %w", err))
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", fmt.Errorf("to: %w", err))
			return
		}
		filter.To = t
	}

	filings, err := s.Filings.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	out := make([]filingView, 0, len(filings))
	for _, f := range filings {
		out = append(out, toFilingView(f, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFilingsPath dispatches /filings/{accession} and
// /filings/{accession}/sections/{key}/context onto their handlers,
// since both live under the same registered mux prefix.
func (s *Server) handleFilingsPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/filings/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetFiling(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "sections" && parts[3] == "context":
		s.handleSectionContext(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "events":
		s.handleFilingEvents(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("unrecognized path %q", r.URL.Path))
	}
}

func (s *Server) handleGetFiling(w http.ResponseWriter, r *http.Request, accession string) {
	filing, err := s.Filings.GetByAccession(r.Context(), accession)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	sections, err := s.Sections.ListCurrentByFiling(r.Context(), filing.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, toFilingView(filing, sections))
}

// handleSectionContext serves GET
// /filings/{accession}/sections/{key}/context?char_start=&char_end=&context=,
// returning a byte window around the requested span. If char_start/
// char_end are omitted, the whole section is returned.
func (s *Server) handleSectionContext(w http.ResponseWriter, r *http.Request, accession, key string) {
	filing, err := s.Filings.GetByAccession(r.Context(), accession)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	sec, err := s.Sections.GetCurrentByKey(r.Context(), filing.ID, key)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("section %s: %w", key, err))
		return
	}

	q := r.URL.Query()
	contextBytes := 200
	if v := q.Get("context"); v != "" {
		fmt.Sscanf(v, "%d", &contextBytes)
	}
	start, end := 0, len(sec.CanonicalText)
	if v := q.Get("char_start"); v != "" {
		fmt.Sscanf(v, "%d", &start)
	}
	if v := q.Get("char_end"); v != "" {
		fmt.Sscanf(v, "%d", &end)
	}
	if start < 0 || end > len(sec.CanonicalText) || start > end {
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "out_of_range", fmt.Errorf("span [%d:%d) outside section of length %d", start, end, len(sec.CanonicalText)))
		return
	}

	winStart := start - contextBytes
	if winStart < 0 {
		winStart = 0
	}
	winEnd := end + contextBytes
	if winEnd > len(sec.CanonicalText) {
		winEnd = len(sec.CanonicalText)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accession_number": accession,
		"section_key":      key,
		"char_start":       winStart,
		"char_end":         winEnd,
		"text":             sec.CanonicalText[winStart:winEnd],
	})
}

// handleFilingEvents serves GET /filings/{accession}/events, the
// 8-K item-type router's output for that filing.
func (s *Server) handleFilingEvents(w http.ResponseWriter, r *http.Request, accession string) {
	filing, err := s.Filings.GetByAccession(r.Context(), accession)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	rows, err := s.Events.ListByFiling(r.Context(), filing.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func toFilingView(f silver.Filing, sections []section.Row) filingView {
	v := filingView{
		AccessionNo:   f.AccessionNo,
		CIK:           f.CIK,
		FormType:      f.FormType,
		FilingDate:    f.FilingDate,
		ReportDate:    f.ReportDate,
		EntityID:      f.EntityID,
		PrimaryDocURL: f.PrimaryDocURL,
	}
	for _, sec := range sections {
		v.Sections = append(v.Sections, sectionIndex{
			SectionKey: sec.Type,
			ItemLabel:  sec.ItemLabel,
			CharStart:  sec.StartOffset,
			CharEnd:    sec.EndOffset,
			WordCount:  len(strings.Fields(sec.CanonicalText)),
		})
	}
	return v
}
