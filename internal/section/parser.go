package section

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Section is one named region of a filing's canonicalized text, with
// offsets into that canonicalized text (callers use the document's
// ShadowTable to recover raw offsets when needed).
type Section struct {
	Type          string
	ItemLabel     string
	StartOffset   int
	EndOffset     int
	CanonicalText string
}

// Key returns the canonical section_key this Section projects to
// (ITEM_1, ITEM_1A, ITEM_7, EX_21, EX_10, ...), derived from its item
// label. Sections the rule set couldn't classify more specifically
// (preamble, whole-document fallback) return their raw Type.
func (s Section) Key() string {
	return NormalizeKey(s.Type, s.ItemLabel)
}

var (
	itemNumberPattern    = regexp.MustCompile(`(?i)item\s+(\d+[a-z]?)`)
	exhibitNumberPattern = regexp.MustCompile(`(?i)ex(?:hibit)?[\s.-]*(\d+)(?:\.(\d+))?`)
)

// NormalizeKey maps a raw rule kind and its matched label text to the
// spec's section_key enum (ITEM_1, ITEM_1A, EX_21, EX_10, ...).
func NormalizeKey(kind, label string) string {
	switch kind {
	case "item":
		if m := itemNumberPattern.FindStringSubmatch(label); m != nil {
			return "ITEM_" + strings.ToUpper(m[1])
		}
	case "exhibit":
		if m := exhibitNumberPattern.FindStringSubmatch(label); m != nil {
			if m[2] != "" {
				return "EX_" + m[1] + "_" + m[2]
			}
			return "EX_" + m[1]
		}
	}
	return strings.ToUpper(kind)
}

// StripHTML tokenizes an HTML document and emits only its visible text
// content, dropping script/style contents entirely, so canonicalization
// never sees markup it would have to separately filter out.
func StripHTML(raw []byte) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(raw))
	var buf bytes.Buffer
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return buf.Bytes(), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if tag == "br" || tag == "p" || tag == "div" || tag == "tr" {
				buf.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			buf.Write(z.Text())
		}
	}
}

// itemRule recognizes one family of filing section headers (10-K Item
// numbers, 8-K Item numbers) by regex over the canonicalized text.
type itemRule struct {
	sectionType string
	pattern     *regexp.Regexp
}

var itemRules = []itemRule{
	{"item", regexp.MustCompile(`(?i)item\s+\d+[a-z]?\.?\s*[-–—]?\s*[A-Z][^\n.]{0,120}`)},
	{"exhibit", regexp.MustCompile(`(?i)\bex(?:hibit)?[\s.-]+\d+(?:\.\d+)?\b[^\n]{0,120}`)},
	{"part", regexp.MustCompile(`(?i)part\s+(i|ii|iii|iv)\b`)},
}

// Segment splits canonicalized text into Sections by scanning for
// recognized header patterns in document order. Text preceding the
// first recognized header is emitted as a single "preamble" section
// so no byte range is ever dropped.
func Segment(canonical string) ([]Section, error) {
	type boundary struct {
		offset int
		label  string
		kind   string
	}
	var boundaries []boundary
	for _, rule := range itemRules {
		for _, loc := range rule.pattern.FindAllStringIndex(canonical, -1) {
			boundaries = append(boundaries, boundary{
				offset: loc[0],
				label:  strings.TrimSpace(canonical[loc[0]:loc[1]]),
				kind:   rule.sectionType,
			})
		}
	}
	if len(boundaries) == 0 {
		return []Section{{Type: "document", StartOffset: 0, EndOffset: len(canonical), CanonicalText: canonical}}, nil
	}

	// Sort boundaries by offset, stable on first-seen order for ties.
	for i := 1; i < len(boundaries); i++ {
		for j := i; j > 0 && boundaries[j].offset < boundaries[j-1].offset; j-- {
			boundaries[j], boundaries[j-1] = boundaries[j-1], boundaries[j]
		}
	}

	var sections []Section
	if boundaries[0].offset > 0 {
		sections = append(sections, Section{
			Type:          "preamble",
			StartOffset:   0,
			EndOffset:     boundaries[0].offset,
			CanonicalText: canonical[0:boundaries[0].offset],
		})
	}
	for i, b := range boundaries {
		end := len(canonical)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		if b.offset >= end {
			return nil, fmt.Errorf("section: overlapping boundary at offset %d", b.offset)
		}
		sections = append(sections, Section{
			Type:          b.kind,
			ItemLabel:     b.label,
			StartOffset:   b.offset,
			EndOffset:     end,
			CanonicalText: canonical[b.offset:end],
		})
	}
	return sections, nil
}
