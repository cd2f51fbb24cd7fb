// Package silver implements the Filing store: the Bronze-to-Silver
// promotion of one admitted Record into a validated Filing row, plus
// the processing flags ("sections_extracted", "mentions_extracted")
// downstream pipeline stages flip forward as they complete their pass
// over it.
package silver

import "time"

// Filing is the Silver-layer projection of a Bronze Record: one row
// per accession number, never duplicated, carrying the resolved
// filer entity once EntitySpine has linked it.
type Filing struct {
	ID                 string
	RecordID           string
	CIK                string
	AccessionNo        string
	FormType           string
	FilingDate         time.Time
	ReportDate         time.Time
	AcceptanceDatetime time.Time
	PrimaryDocURL      string
	ArchivePath        string
	EntityID           string
	SectionsExtracted  bool
	MentionsExtracted  bool
	Status             string
	CreatedAt          time.Time
}

// ListFilter narrows a Filing listing query; zero-value fields are
// unfiltered.
type ListFilter struct {
	CIK      string
	FormType string
	From     time.Time
	To       time.Time
	Limit    int
}
