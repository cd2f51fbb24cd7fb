// Package feed implements adapters over SEC EDGAR's public feeds: the
// real-time RSS feed, the daily and full index files, the per-company
// submissions JSON endpoint, and the company tickers symbology file.
package feed

import "context"

// Entry is one candidate filing observation surfaced by an adapter,
// normalized enough to be handed to the Record Store for
// deduplication. NaturalKey must be stable across re-observations of
// the same underlying filing.
type Entry struct {
	NaturalKey string
	CIK        string
	CompanyName string
	FormType   string
	FilingDate string // YYYY-MM-DD
	AccessionNo string
	PrimaryDocURL string
	SourceURL  string
	Raw        map[string]any
}

// Cursor is an adapter-defined resumption token, stored opaquely by
// the Checkpoint Store between adapter.Poll calls.
type Cursor map[string]any

// Adapter is the contract every feed source implements. Poll is given
// the last cursor it returned (or an empty Cursor on first run) and
// returns any new entries along with the cursor to resume from next
// time. An adapter must be safe to call repeatedly with the same
// cursor without producing duplicate NaturalKeys across calls beyond
// what the Record Store already dedupes.
type Adapter interface {
	Name() string
	Poll(ctx context.Context, since Cursor) ([]Entry, Cursor, error)
}
