// Package graph builds entity relationships and facts out of parsed
// filing sections: narrative mentions co-occurring in text, Exhibit-21
// subsidiary tables, Exhibit-10 material contracts, and 8-K event
// items, and answers graph-shaped queries (supplier/subsidiary
// traversal) over what it has built.
package graph

import "time"

// RelationType enumerates the relationship kinds this core stores.
// Builder produces SUBSIDIARY_OF, PARTY_TO_CONTRACT and MENTIONED_WITH;
// nothing in this repository produces SUPPLIER_OF edges, and narrative
// mentions are not classified into supplier or customer relations.
type RelationType string

const (
	RelSubsidiaryOf RelationType = "SUBSIDIARY_OF"
	RelPartyTo      RelationType = "PARTY_TO_CONTRACT"
	RelMentionedWith RelationType = "MENTIONED_WITH"
	RelSupplierOf   RelationType = "SUPPLIER_OF"
)

// Direction describes which way a relation reads.
type Direction string

const (
	DirForward     Direction = "forward"
	DirBidirectional Direction = "bidirectional"
)

// EvidenceRef anchors a Relation back to the exact filing text it was
// extracted from. Every Relation must carry at least one: a
// relationship with no evidence is indistinguishable from one that was
// guessed at.
type EvidenceRef struct {
	AccessionNo  string
	SectionKey   string
	CharStart    int
	CharEnd      int
	SentenceText string
}

// Relation is one edge between two canonical entities, grounded in a
// specific filing and carrying the validity window over which it is
// known to hold.
type Relation struct {
	ID             string
	FromEntity     string
	ToEntity       string
	Type           RelationType
	Direction      Direction
	Properties     map[string]any
	SourceFilingID string
	Explicit       bool // true when the filing states the relation directly (e.g. Exhibit 21 row); false for inferred co-occurrence
	Confidence     float64
	Evidence       []EvidenceRef
	ValidFrom      time.Time
	ValidTo        *time.Time // nil means still open; closed when a later filing of the same exhibit type omits the row
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	IsSignificant  bool
	CreatedAt      time.Time
}

// Exhibit21Row is one parsed row of a Form 10-K's Exhibit 21
// (subsidiaries of the registrant) list, with the byte span it was
// parsed from so the relation it produces can carry evidence.
type Exhibit21Row struct {
	SubsidiaryName    string
	JurisdictionOfOrg string
	OwnershipPercent  float64
	CharStart         int
	CharEnd           int
	LineText          string
}

// Exhibit10Contract is one parsed entry from a Form 10-K/10-Q's
// material contracts exhibit index, with the byte span it was parsed
// from so the relation it produces can carry evidence.
type Exhibit10Contract struct {
	Title         string
	Counterparty  string
	EffectiveDate string
	CharStart     int
	CharEnd       int
	MatchText     string
}

// EventItem is one parsed 8-K item number and its narrative text
// (e.g. "Item 5.02" officer departure/appointment), with the byte
// span into the canonical section text its Text was sliced from.
type EventItem struct {
	ItemNumber string
	Title      string
	Text       string
	CharStart  int
	CharEnd    int
}
