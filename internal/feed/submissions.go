package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// submissionsResponse mirrors the shape of SEC's per-company
// submissions endpoint: https://data.sec.gov/submissions/CIK##########.json
// The Recent block holds parallel arrays, one element per filing.
type submissionsResponse struct {
	CIK    string `json:"cik"`
	Name   string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber     []string `json:"accessionNumber"`
			FilingDate          []string `json:"filingDate"`
			Form                []string `json:"form"`
			PrimaryDocument     []string `json:"primaryDocument"`
			AcceptanceDateTime  []string `json:"acceptanceDateTime"`
		} `json:"recent"`
	} `json:"filings"`
}

// SubmissionsAdapter polls one CIK's submissions JSON for newly filed
// forms. Cursor tracks the last accession number seen so re-polls only
// surface filings after it.
type SubmissionsAdapter struct {
	CIK       string
	UserAgent string
	client    *http.Client
	baseURL   string
}

// NewSubmissionsAdapter builds an adapter for a single company's
// filing history.
func NewSubmissionsAdapter(cik, userAgent string, client *http.Client) *SubmissionsAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SubmissionsAdapter{CIK: cik, UserAgent: userAgent, client: client, baseURL: "https://data.sec.gov/submissions"}
}

// overrideBaseURL points the adapter at a test server instead of
// data.sec.gov; only used from tests.
func (a *SubmissionsAdapter) overrideBaseURL(baseURL string) {
	a.baseURL = baseURL
}

func (a *SubmissionsAdapter) Name() string { return "submissions:" + a.CIK }

// Poll fetches the submissions document and returns every filing more
// recent than the cursor's last accession number, newest first, in the
// order the submissions document lists them.
func (a *SubmissionsAdapter) Poll(ctx context.Context, since Cursor) ([]Entry, Cursor, error) {
	url := fmt.Sprintf("%s/CIK%s.json", a.baseURL, a.CIK)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, since, fmt.Errorf("feed: submissions request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, since, fmt.Errorf("feed: submissions fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, since, fmt.Errorf("feed: submissions status %d for CIK %s", resp.StatusCode, a.CIK)
	}

	var doc submissionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, since, fmt.Errorf("feed: submissions decode: %w", err)
	}

	lastSeen, _ := since["last_accession"].(string)

	recent := doc.Filings.Recent
	n := len(recent.AccessionNumber)
	for _, arr := range [][]string{recent.FilingDate, recent.Form, recent.PrimaryDocument} {
		if len(arr) < n {
			n = len(arr)
		}
	}

	var entries []Entry
	newest := lastSeen
	for i := 0; i < n; i++ {
		accession := recent.AccessionNumber[i]
		if accession == lastSeen {
			break
		}
		noDashes := strings.ReplaceAll(accession, "-", "")
		docURL := fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s", a.CIK, noDashes, recent.PrimaryDocument[i])
		entries = append(entries, Entry{
			NaturalKey:    "sec:" + accession,
			CIK:           a.CIK,
			CompanyName:   doc.Name,
			FormType:      recent.Form[i],
			FilingDate:    recent.FilingDate[i],
			AccessionNo:   accession,
			PrimaryDocURL: docURL,
			SourceURL:     url,
			Raw: map[string]any{
				"accessionNumber": accession,
				"form":            recent.Form[i],
				"filingDate":      recent.FilingDate[i],
			},
		})
		if i == 0 {
			newest = accession
		}
	}

	return entries, Cursor{"last_accession": newest}, nil
}
