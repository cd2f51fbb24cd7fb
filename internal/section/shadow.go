// Package section turns a raw filing document (HTML or plain text)
// into canonicalized text plus a shadow table mapping every
// canonicalized byte offset back to the corresponding raw byte offset,
// then segments that canonicalized text into named sections.
package section

import "unicode"

// ShadowTable maps offsets in canonicalized text back to offsets in
// the original raw document. It is built once per document during
// canonicalization and consulted whenever a downstream stage (section
// boundaries, entity mentions) needs to report an offset in terms of
// the bytes a reviewer would actually see in the source filing.
type ShadowTable struct {
	// origOffsets[i] is the raw-document byte offset that produced
	// the canonicalized byte at index i.
	origOffsets []int
	rawLen      int
}

// MapOffset translates a canonicalized-text offset to a raw-document
// offset. Offsets past the end of the canonicalized text map to the
// end of the raw document.
func (t *ShadowTable) MapOffset(canonOffset int) int {
	if len(t.origOffsets) == 0 {
		return 0
	}
	if canonOffset < 0 {
		return t.origOffsets[0]
	}
	if canonOffset >= len(t.origOffsets) {
		return t.rawLen
	}
	return t.origOffsets[canonOffset]
}

// isJoiner reports whether r should be preserved verbatim inside a
// run of otherwise-collapsible characters — the punctuation that
// actually participates in names and section labels (apostrophes,
// hyphens, periods, ampersands), as opposed to incidental whitespace
// or control characters.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '-', '.', '&', '/':
		return true
	}
	return false
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '‘', '“', '”', '–', '—':
		return true
	}
	return false
}

// normalizeRune maps curly quotes and en/em dashes to their plain
// ASCII equivalents, the same normalization the pattern/dictionary
// stages expect their input already passed through.
func normalizeRune(r rune) rune {
	switch r {
	case '‘', '’':
		return '\''
	case '“', '”':
		return '"'
	case '–', '—':
		return '-'
	}
	return r
}

// Canonicalize strips tags (already done by the caller for HTML
// input), lowercases nothing (case is preserved — only the mention
// extractor's dictionary stage canonicalizes case, separately),
// collapses runs of separator runes to a single space, and normalizes
// punctuation, while recording a ShadowTable back to raw byte offsets.
func Canonicalize(raw []byte) (string, *ShadowTable) {
	var out []rune
	var offsets []int
	runes := []rune(string(raw))

	// byteOffsetOfRune maps a rune index back to its byte offset in
	// raw, since raw is UTF-8 and rune indices don't equal byte
	// offsets once multi-byte runes appear.
	byteOffsets := make([]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		byteOffsets[i] = b
		b += len(string(r))
	}
	byteOffsets[len(runes)] = b

	inSeparatorRun := false
	for i, r := range runes {
		if isSeparator(r) && !isJoiner(r) {
			if inSeparatorRun {
				continue
			}
			out = append(out, ' ')
			offsets = append(offsets, byteOffsets[i])
			inSeparatorRun = true
			continue
		}
		inSeparatorRun = false
		out = append(out, normalizeRune(r))
		offsets = append(offsets, byteOffsets[i])
	}

	return string(out), &ShadowTable{origOffsets: offsets, rawLen: len(raw)}
}
