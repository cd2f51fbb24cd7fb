// Package bronze implements the Record Store (deduplication and
// sighting history for raw feed entries) and the Checkpoint Store (a
// small versioned key-value store tracking per-feed ingestion
// progress).
package bronze

import "time"

// Record is one raw, deduplicated observation of something a feed
// adapter produces, identified by natural key and fingerprinted by
// ContentHash so a re-observation can tell whether the underlying
// content actually changed.
type Record struct {
	ID            string
	NaturalKey    string
	FeedName      string
	SourceURL     string
	RawPayload    map[string]any
	CIK           string
	FilingDate    time.Time
	ContentHash   string
	FirstSeen     time.Time
	LastSeen      time.Time
	SightingCount int
	Status        string
	WasModified   bool
	PriorContent  map[string]any
}

const (
	StatusAdmitted = "admitted"
	StatusRejected = "rejected"
)

// Sighting is one append-only observation of a Record: every feed poll
// that produces an already-known natural key outside the de-dupe
// window adds a row here instead of mutating history, so which feeds
// saw a record and when is never lost to the last writer.
type Sighting struct {
	ID              int64
	RecordID        string
	FeedName        string
	SourceURL       string
	SourceUpdatedAt *time.Time
	ObservedAt      time.Time
}

// AdmitOutcome classifies what Admit did with a candidate observation.
type AdmitOutcome string

const (
	// OutcomeNew means the natural key had never been seen before.
	OutcomeNew AdmitOutcome = "NEW"
	// OutcomeDuplicate means the same feed re-delivered the same
	// natural key, unchanged content, within the de-dupe window — a
	// no-op re-poll, not a new sighting.
	OutcomeDuplicate AdmitOutcome = "DUPLICATE"
	// OutcomeResighted means the natural key was observed again,
	// either by a different feed or outside the de-dupe window;
	// Record.WasModified distinguishes whether the content itself
	// changed since the last sighting.
	OutcomeResighted AdmitOutcome = "RESIGHTED"
)

// AdmitResult reports what happened when a candidate record was
// offered to the store.
type AdmitResult struct {
	Record   Record
	Outcome  AdmitOutcome
	Admitted bool
	Reason   string
}
