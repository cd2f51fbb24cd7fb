package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// TickerRecord is one row of SEC's company_tickers.json symbology
// file, mapping a ticker to a CIK and title.
type TickerRecord struct {
	CIK    string
	Ticker string
	Title  string
}

// TickersAdapter fetches SEC's flat company-tickers file on demand.
// Unlike the other adapters it does not implement Adapter and yields no
// Record Store entries, only TickerRecords. Nothing in this repository
// calls it or schedules it, and internal/entityspine keeps no
// ticker/CIK cache for it to refresh.
type TickersAdapter struct {
	UserAgent string
	client    *http.Client
}

// NewTickersAdapter builds the symbology refresh adapter.
func NewTickersAdapter(userAgent string, client *http.Client) *TickersAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &TickersAdapter{UserAgent: userAgent, client: client}
}

// Fetch retrieves the current company_tickers.json snapshot.
func (a *TickersAdapter) Fetch(ctx context.Context) ([]TickerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.sec.gov/files/company_tickers.json", nil)
	if err != nil {
		return nil, fmt.Errorf("feed: tickers request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: tickers fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: tickers status %d", resp.StatusCode)
	}

	var raw map[string]struct {
		CIKStr int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("feed: tickers decode: %w", err)
	}

	records := make([]TickerRecord, 0, len(raw))
	for _, v := range raw {
		records = append(records, TickerRecord{
			CIK:    fmt.Sprintf("%010d", v.CIKStr),
			Ticker: v.Ticker,
			Title:  v.Title,
		})
	}
	return records, nil
}
