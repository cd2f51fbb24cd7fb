package graph

import (
	"regexp"
	"strings"
)

// eventItemHeaderPattern recognizes an 8-K item header ("Item 5.02
// Departure of Directors or Certain Officers.") and captures its item
// number and its title, which ends at the first period or line break;
// ParseEvents takes everything after the header up to the next header
// or end of document as that item's text.
var eventItemHeaderPattern = regexp.MustCompile(`(?i)item\s+(\d\.\d{2})\.?\s+([^\n.]{0,100})\.?`)

// ParseEvents splits an 8-K body's canonical text into one EventItem
// per recognized Item header.
func ParseEvents(canonicalText string) []EventItem {
	locs := eventItemHeaderPattern.FindAllStringSubmatchIndex(canonicalText, -1)
	if len(locs) == 0 {
		return nil
	}

	var items []EventItem
	for i, loc := range locs {
		end := len(canonicalText)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		itemNumber := canonicalText[loc[2]:loc[3]]
		title := strings.TrimSpace(canonicalText[loc[4]:loc[5]])
		text := strings.TrimSpace(canonicalText[loc[1]:end])
		items = append(items, EventItem{ItemNumber: itemNumber, Title: title, Text: text, CharStart: loc[0], CharEnd: end})
	}
	return items
}
