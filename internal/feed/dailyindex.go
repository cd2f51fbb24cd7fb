package feed

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DailyIndexAdapter polls EDGAR's daily form index
// (https://www.sec.gov/Archives/edgar/daily-index/YYYY/QTR#/form.YYYYMMDD.idx),
// a fixed-width text table of every filing accepted that day. The
// cursor tracks the last calendar date successfully ingested so a
// restarted collector resumes from the following day.
type DailyIndexAdapter struct {
	UserAgent string
	client    *http.Client
	now       func() time.Time
}

// NewDailyIndexAdapter builds the daily-index adapter. now defaults to
// time.Now when nil; tests supply a fixed clock.
func NewDailyIndexAdapter(userAgent string, client *http.Client, now func() time.Time) *DailyIndexAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}
	return &DailyIndexAdapter{UserAgent: userAgent, client: client, now: now}
}

func (a *DailyIndexAdapter) Name() string { return "feed:daily-index" }

// Poll fetches every daily index file between the checkpointed date
// (exclusive) and yesterday (inclusive) — today's index is still
// being appended to intraday, so it is never fetched by this adapter.
func (a *DailyIndexAdapter) Poll(ctx context.Context, since Cursor) ([]Entry, Cursor, error) {
	lastDate, _ := since["last_date"].(string)
	start := a.now().AddDate(0, 0, -1)
	if lastDate != "" {
		if t, err := time.Parse("2006-01-02", lastDate); err == nil {
			start = t.AddDate(0, 0, 1)
		}
	} else {
		start = a.now().AddDate(0, 0, -7)
	}

	end := a.now().AddDate(0, 0, -1)
	var entries []Entry
	cursorDate := lastDate
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dayEntries, err := a.fetchDay(ctx, d)
		if err != nil {
			return entries, Cursor{"last_date": cursorDate}, fmt.Errorf("feed: daily index %s: %w", d.Format("2006-01-02"), err)
		}
		entries = append(entries, dayEntries...)
		cursorDate = d.Format("2006-01-02")
	}

	return entries, Cursor{"last_date": cursorDate}, nil
}

func (a *DailyIndexAdapter) fetchDay(ctx context.Context, d time.Time) ([]Entry, error) {
	quarter := (int(d.Month())-1)/3 + 1
	url := fmt.Sprintf("https://www.sec.gov/Archives/edgar/daily-index/%d/QTR%d/form.%s.idx",
		d.Year(), quarter, d.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // weekends/holidays have no index
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return parseFormIdx(resp.Body, url, d.Format("2006-01-02")), nil
}

// parseFormIdx parses the fixed-column form.idx body. Columns are
// Form Type / Company Name / CIK / Date Filed / File Name, separated
// by runs of whitespace after a header block ending in a dashed line.
func parseFormIdx(r interface{ Read([]byte) (int, error) }, sourceURL, filingDate string) []Entry {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	pastHeader := false
	var entries []Entry
	for scanner.Scan() {
		line := scanner.Text()
		if !pastHeader {
			if strings.HasPrefix(strings.TrimSpace(line), "----") {
				pastHeader = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		path := fields[len(fields)-1]
		formType := fields[0]
		cik := fields[len(fields)-3]
		if len(fields) < 4 {
			continue
		}
		accession := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".txt")
		entries = append(entries, Entry{
			NaturalKey:    "sec:" + accession,
			CIK:           cik,
			FormType:      formType,
			FilingDate:    filingDate,
			AccessionNo:   accession,
			PrimaryDocURL: "https://www.sec.gov/Archives/" + path,
			SourceURL:     sourceURL,
			Raw: map[string]any{
				"line": line,
			},
		})
	}
	return entries
}
