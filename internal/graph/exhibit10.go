package graph

import (
	"regexp"
	"strings"
)

// exhibit10EntryPattern matches exhibit index entries of the form
// "10.1  Agreement ... between Registrant and Counterparty, dated
// Month Day, Year", the conventional phrasing of a material contracts
// exhibit list.
var exhibit10EntryPattern = regexp.MustCompile(
	`(?i)10\.\d+\s+(.{3,120}?)\s+between\s+.{2,60}?\s+and\s+([A-Z][\w.,&'\- ]{2,80}?),\s+dated\s+([A-Za-z]+ \d{1,2},? \d{4})`,
)

// ParseExhibit10 extracts material contract entries from an exhibit
// index section's canonical text.
func ParseExhibit10(canonicalText string) []Exhibit10Contract {
	var contracts []Exhibit10Contract
	for _, loc := range exhibit10EntryPattern.FindAllStringSubmatchIndex(canonicalText, -1) {
		contracts = append(contracts, Exhibit10Contract{
			Title:         strings.TrimSpace(canonicalText[loc[2]:loc[3]]),
			Counterparty:  strings.TrimSpace(canonicalText[loc[4]:loc[5]]),
			EffectiveDate: strings.TrimSpace(canonicalText[loc[6]:loc[7]]),
			CharStart:     loc[0],
			CharEnd:       loc[1],
			MatchText:     canonicalText[loc[0]:loc[1]],
		})
	}
	return contracts
}
