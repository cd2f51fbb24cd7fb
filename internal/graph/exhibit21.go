package graph

import (
	"regexp"
	"strconv"
	"strings"
)

// exhibit21RowPattern matches the common tabular rendering of an
// Exhibit 21 subsidiary list: "Name of Subsidiary ... Jurisdiction ...
// Percent Owned" collapsed to one line per row by section
// canonicalization.
var exhibit21RowPattern = regexp.MustCompile(`(?i)^([A-Z][\w.,&'\- ]{2,80}?)\s{2,}([A-Z][a-zA-Z ]{2,40})\s{2,}(\d{1,3}(?:\.\d+)?)%?\s*$`)

// ParseExhibit21 extracts subsidiary rows from an Exhibit 21 section's
// canonical text, one row per recognized line. Lines that don't match
// the expected three-column shape are skipped rather than guessed at.
func ParseExhibit21(canonicalText string) []Exhibit21Row {
	var rows []Exhibit21Row
	offset := 0
	for _, line := range strings.Split(canonicalText, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		lineStart := offset
		offset += len(line) + 1 // account for the split-away newline

		m := exhibit21RowPattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		rows = append(rows, Exhibit21Row{
			SubsidiaryName:    strings.TrimSpace(m[1]),
			JurisdictionOfOrg: strings.TrimSpace(m[2]),
			OwnershipPercent:  pct,
			CharStart:         lineStart,
			CharEnd:           lineStart + len(trimmed),
			LineText:          trimmed,
		})
	}
	return rows
}
