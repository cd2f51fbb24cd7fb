package section

import (
	"strings"
	"testing"
)

func TestCanonicalizeCollapsesSeparatorsAndTracksOffsets(t *testing.T) {
	raw := []byte("Apple   Inc.\n\nis a   company")
	canon, shadow := Canonicalize(raw)

	if strings.Contains(canon, "  ") {
		t.Errorf("expected no double spaces in canonical text, got %q", canon)
	}

	idx := strings.Index(canon, "company")
	if idx < 0 {
		t.Fatal("expected 'company' to survive canonicalization")
	}
	rawIdx := shadow.MapOffset(idx)
	if !strings.HasPrefix(string(raw[rawIdx:]), "company") {
		t.Errorf("shadow table mapped offset %d to %q, expected to point at 'company'", rawIdx, string(raw[rawIdx:]))
	}
}

func TestStripHTMLDropsScriptAndStyle(t *testing.T) {
	raw := []byte(`<html><head><style>.a{color:red}</style></head><body><p>Hello</p><script>evil()</script></body></html>`)
	text, err := StripHTML(raw)
	if err != nil {
		t.Fatalf("StripHTML: %v", err)
	}
	s := string(text)
	if strings.Contains(s, "evil") || strings.Contains(s, "color:red") {
		t.Errorf("expected script/style content stripped, got %q", s)
	}
	if !strings.Contains(s, "Hello") {
		t.Errorf("expected visible text preserved, got %q", s)
	}
}

func TestSegmentFindsItemHeaders(t *testing.T) {
	canonical := "some preamble text. Item 1. Business. We make widgets. Item 1A. Risk Factors. Things could go wrong."
	sections, err := Segment(canonical)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections (preamble + 2 items), got %d: %+v", len(sections), sections)
	}
	if sections[0].Type != "preamble" {
		t.Errorf("expected first section to be preamble, got %s", sections[0].Type)
	}
	if !strings.Contains(sections[1].ItemLabel, "Item 1.") {
		t.Errorf("expected item label to contain 'Item 1.', got %q", sections[1].ItemLabel)
	}
}

func TestSegmentWithNoHeadersReturnsWholeDocument(t *testing.T) {
	canonical := "just plain text with no item markers at all"
	sections, err := Segment(canonical)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(sections) != 1 || sections[0].Type != "document" {
		t.Fatalf("expected single document section, got %+v", sections)
	}
}

func TestNormalizeKeyMapsItemAndExhibitLabels(t *testing.T) {
	cases := []struct {
		kind, label, want string
	}{
		{"item", "Item 1A. Risk Factors", "ITEM_1A"},
		{"item", "Item 7. Management's Discussion", "ITEM_7"},
		{"exhibit", "EX-21 Subsidiaries of the Registrant", "EX_21"},
		{"exhibit", "Exhibit 10.5 Employment Agreement", "EX_10_5"},
		{"preamble", "", "PREAMBLE"},
	}
	for _, c := range cases {
		if got := NormalizeKey(c.kind, c.label); got != c.want {
			t.Errorf("NormalizeKey(%q, %q) = %q, want %q", c.kind, c.label, got, c.want)
		}
	}
}

func TestSegmentFindsExhibitMarkers(t *testing.T) {
	canonical := "Item 1. Business. We make widgets. EX-21 Subsidiaries of the Registrant. Acme Co owns Acme Sub LLC."
	sections, err := Segment(canonical)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	var sawExhibit bool
	for _, s := range sections {
		if s.Key() == "EX_21" {
			sawExhibit = true
		}
	}
	if !sawExhibit {
		t.Fatalf("expected one section keyed EX_21, got %+v", sections)
	}
}
