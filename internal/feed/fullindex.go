package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// FullIndexAdapter polls EDGAR's quarterly full index
// (https://www.sec.gov/Archives/edgar/full-index/YYYY/QTR#/form.idx),
// a reconciliation pass over an entire quarter. It exists to catch
// anything the daily index missed (late EDGAR corrections, adapter
// downtime spanning multiple days) rather than to discover filings
// first — the daily index and RSS feed are always faster.
type FullIndexAdapter struct {
	UserAgent string
	client    *http.Client
	now       func() time.Time
}

// NewFullIndexAdapter builds the full-index reconciliation adapter.
func NewFullIndexAdapter(userAgent string, client *http.Client, now func() time.Time) *FullIndexAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}
	return &FullIndexAdapter{UserAgent: userAgent, client: client, now: now}
}

func (a *FullIndexAdapter) Name() string { return "feed:full-index" }

// Poll fetches the current quarter's full index. The cursor remembers
// which quarter was last reconciled so the adapter moves to the new
// quarter once it rolls over, and re-reconciles the current quarter on
// every call in between (the full index file itself is small enough
// that re-downloading it each run is cheap, and it is the only way to
// pick up EDGAR's own late corrections to already-seen entries).
func (a *FullIndexAdapter) Poll(ctx context.Context, since Cursor) ([]Entry, Cursor, error) {
	now := a.now()
	quarter := (int(now.Month())-1)/3 + 1
	url := fmt.Sprintf("https://www.sec.gov/Archives/edgar/full-index/%d/QTR%d/form.idx", now.Year(), quarter)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, since, fmt.Errorf("feed: full index request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, since, fmt.Errorf("feed: full index fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, since, fmt.Errorf("feed: full index status %d", resp.StatusCode)
	}

	entries := parseFormIdx(resp.Body, url, now.Format("2006-01-02"))
	cursor := Cursor{"last_quarter": fmt.Sprintf("%d-Q%d", now.Year(), quarter)}
	return entries, cursor, nil
}
