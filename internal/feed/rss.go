package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

// rssDoc mirrors SEC EDGAR's real-time filings RSS feed.
type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	// edgar: namespace fields give the structured bits we actually need.
	CIK        string `xml:"edgarFiling>cikNumber"`
	CompanyName string `xml:"edgarFiling>companyName"`
	FormType   string `xml:"edgarFiling>formType"`
	FilingDate string `xml:"edgarFiling>filingDate"`
	AccessionNo string `xml:"edgarFiling>accessionNumber"`
}

// RSSAdapter polls the EDGAR real-time RSS feed, a short list of the
// most recently accepted filings across all companies.
type RSSAdapter struct {
	FeedURL   string
	UserAgent string
	client    *http.Client
}

// NewRSSAdapter builds the real-time feed adapter. FeedURL defaults to
// EDGAR's current-events feed when empty.
func NewRSSAdapter(feedURL, userAgent string, client *http.Client) *RSSAdapter {
	if feedURL == "" {
		feedURL = "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&output=atom"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RSSAdapter{FeedURL: feedURL, UserAgent: userAgent, client: client}
}

func (a *RSSAdapter) Name() string { return "rss:realtime" }

// Poll fetches the feed and returns entries not already marked seen
// by the cursor's set of accession numbers. The real-time feed is
// small and has no stable pagination, so the cursor just remembers the
// accession numbers from the last successful poll.
func (a *RSSAdapter) Poll(ctx context.Context, since Cursor) ([]Entry, Cursor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.FeedURL, nil)
	if err != nil {
		return nil, since, fmt.Errorf("feed: rss request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, since, fmt.Errorf("feed: rss fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, since, fmt.Errorf("feed: rss status %d", resp.StatusCode)
	}

	var doc rssDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, since, fmt.Errorf("feed: rss decode: %w", err)
	}

	seenRaw, _ := since["seen"].([]any)
	seen := make(map[string]bool, len(seenRaw))
	for _, v := range seenRaw {
		if s, ok := v.(string); ok {
			seen[s] = true
		}
	}

	var entries []Entry
	nextSeen := make([]any, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		accession := item.AccessionNo
		if accession == "" {
			accession = strings.TrimSpace(item.Title)
		}
		nextSeen = append(nextSeen, accession)
		if seen[accession] {
			continue
		}
		entries = append(entries, Entry{
			NaturalKey:    "sec:" + accession,
			CIK:           item.CIK,
			CompanyName:   item.CompanyName,
			FormType:      item.FormType,
			FilingDate:    item.FilingDate,
			AccessionNo:   accession,
			PrimaryDocURL: item.Link,
			SourceURL:     a.FeedURL,
			Raw: map[string]any{
				"title":       item.Title,
				"description": item.Description,
				"pubDate":     item.PubDate,
			},
		})
	}

	return entries, Cursor{"seen": nextSeen}, nil
}
