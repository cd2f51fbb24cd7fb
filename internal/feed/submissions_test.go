package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const submissionsFixture = `{
	"cik": "0000320193",
	"name": "Apple Inc.",
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-24-000010", "0000320193-24-000009"],
			"filingDate": ["2024-02-01", "2024-01-15"],
			"form": ["10-Q", "8-K"],
			"primaryDocument": ["aapl-20240101.htm", "aapl-8k.htm"],
			"acceptanceDateTime": ["2024-02-01T16:30:00-05:00", "2024-01-15T08:00:00-05:00"]
		}
	}
}`

func TestSubmissionsAdapterPollFirstRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "filingcore test@example.com" {
			t.Errorf("unexpected User-Agent: %s", ua)
		}
		w.Write([]byte(submissionsFixture))
	}))
	defer srv.Close()

	a := NewSubmissionsAdapter("0000320193", "filingcore test@example.com", srv.Client())
	a.overrideBaseURL(srv.URL)

	entries, cursor, err := a.Poll(context.Background(), Cursor{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].AccessionNo != "0000320193-24-000010" {
		t.Errorf("unexpected first accession: %s", entries[0].AccessionNo)
	}
	wantURL := "https://www.sec.gov/Archives/edgar/data/0000320193/000032019324000010/aapl-20240101.htm"
	if entries[0].PrimaryDocURL != wantURL {
		t.Errorf("unexpected doc url: %s", entries[0].PrimaryDocURL)
	}
	if cursor["last_accession"] != "0000320193-24-000010" {
		t.Errorf("unexpected cursor: %v", cursor)
	}
}

func TestSubmissionsAdapterPollIncremental(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(submissionsFixture))
	}))
	defer srv.Close()

	a := NewSubmissionsAdapter("0000320193", "filingcore test@example.com", srv.Client())
	a.overrideBaseURL(srv.URL)

	entries, _, err := a.Poll(context.Background(), Cursor{"last_accession": "0000320193-24-000010"})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no new entries past cursor, got %d", len(entries))
	}
}
