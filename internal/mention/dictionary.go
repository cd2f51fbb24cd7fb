// Package mention extracts candidate entity mentions from section
// text through a three-stage cascade: a fast dictionary scan over
// already-known entity names/aliases, a regex pattern stage for
// structurally recognizable mentions (e.g. "John Smith, CEO"), and an
// optional LLM-assisted stage for whatever the first two miss.
package mention

import (
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
)

// CandidateMention is one span of text the extraction cascade
// believes names an entity, before resolution against EntitySpine.
type CandidateMention struct {
	Text        string
	Normalized  string
	StartOffset int
	EndOffset   int
	Stage       string
	Confidence  float64
	EntityID    string // set by the dictionary stage when the surface form is already a known entity's name/alias
}

// DictionaryEntry is one known entity name or alias registered for
// fast-path matching.
type DictionaryEntry struct {
	EntityID string
	Surface  string
}

// Dictionary is a single Aho-Corasick automaton serving as both the
// known-entity lookup table and the document scanner: one pass over a
// section's canonicalized text yields every known name or alias that
// occurs in it, each carrying back the entity id it belongs to.
type Dictionary struct {
	ac              *ahocorasick.Automaton
	patternToEntity map[string]string
}

// Compile builds a Dictionary from the current set of known entity
// names/aliases. It is rebuilt periodically as EntitySpine accrues new
// entities and aliases; a stale Dictionary simply misses newly added
// names until the next rebuild.
func Compile(entries []DictionaryEntry) (*Dictionary, error) {
	patternToEntity := make(map[string]string, len(entries))
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		canon := canonicalizeForMatch(e.Surface)
		if canon == "" {
			continue
		}
		if _, exists := patternToEntity[canon]; exists {
			continue
		}
		patternToEntity[canon] = e.EntityID
		patterns = append(patterns, canon)
	}
	if len(patterns) == 0 {
		return &Dictionary{patternToEntity: patternToEntity}, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}

	return &Dictionary{ac: ac, patternToEntity: patternToEntity}, nil
}

// Scan returns every dictionary match in canonical text, with offsets
// mapped back from the canonicalized-for-match haystack to the
// caller's canonical-text offsets via the same shadow-offset technique
// the section parser uses for raw-byte offsets.
func (d *Dictionary) Scan(canonicalText string) []CandidateMention {
	if d.ac == nil {
		return nil
	}
	haystack, offsetMap := buildMatchOffsetMap(canonicalText)

	matches := d.ac.FindAllOverlapping([]byte(haystack))
	mentions := make([]CandidateMention, 0, len(matches))
	for _, m := range matches {
		entityID, ok := d.patternToEntity[haystack[m.Start:m.End]]
		if !ok {
			continue
		}
		start := mapMatchOffset(offsetMap, m.Start)
		end := mapMatchOffset(offsetMap, m.End)
		if start < 0 || end < 0 || end > len(canonicalText) || start >= end {
			continue
		}
		mentions = append(mentions, CandidateMention{
			Text:        canonicalText[start:end],
			Normalized:  haystack[m.Start:m.End],
			StartOffset: start,
			EndOffset:   end,
			Stage:       "dictionary",
			Confidence:  1.0,
			EntityID:    entityID,
		})
	}

	sort.Slice(mentions, func(i, j int) bool { return mentions[i].StartOffset < mentions[j].StartOffset })
	return mentions
}

// canonicalizeForMatch lowercases and collapses whitespace so that
// matching is case- and spacing-insensitive, the same normalization
// applied to both dictionary patterns and scanned text.
func canonicalizeForMatch(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '\t' || r == '\n' {
			if lastWasSpace {
				continue
			}
			b.WriteByte(' ')
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// buildMatchOffsetMap canonicalizes text for matching while recording,
// for every byte in the canonicalized haystack, the byte offset in
// the original text it came from — the same shadow-table technique
// internal/section uses for raw bytes, applied one level up so
// mention offsets still point into the section's canonical text
// rather than into the match-only lowercased haystack.
func buildMatchOffsetMap(text string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(text))
	lastWasSpace := false
	for i, r := range text {
		lower := strings.ToLower(string(r))
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if isSpace {
			if lastWasSpace {
				continue
			}
			b.WriteByte(' ')
			offsets = append(offsets, i)
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteString(lower)
		for range lower {
			offsets = append(offsets, i)
		}
	}
	return b.String(), offsets
}

func mapMatchOffset(offsetMap []int, idx int) int {
	if idx < 0 {
		return -1
	}
	if idx >= len(offsetMap) {
		if len(offsetMap) == 0 {
			return -1
		}
		return offsetMap[len(offsetMap)-1] + 1
	}
	return offsetMap[idx]
}
