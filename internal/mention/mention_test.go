package mention

import (
	"context"
	"strings"
	"testing"
)

func TestDictionaryScanFindsKnownEntity(t *testing.T) {
	dict, err := Compile([]DictionaryEntry{
		{EntityID: "ent-1", Surface: "Apple Inc."},
		{EntityID: "ent-2", Surface: "Microsoft Corporation"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	text := "During the period, Apple Inc. entered into an agreement with a supplier."
	mentions := dict.Scan(text)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].EntityID != "ent-1" {
		t.Errorf("expected ent-1, got %s", mentions[0].EntityID)
	}
	got := text[mentions[0].StartOffset:mentions[0].EndOffset]
	if got != "Apple Inc." {
		t.Errorf("offsets point at %q, want %q", got, "Apple Inc.")
	}
}

func TestScanPatternsFindsTitledOfficer(t *testing.T) {
	text := "Jane Doe, Chief Executive Officer, signed the agreement on behalf of the company."
	mentions := ScanPatterns(text)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].Text != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got %q", mentions[0].Text)
	}
}

type fakeLLMProvider struct {
	response string
}

func (f *fakeLLMProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

func TestExtractorCascadeSkipsLLMOnCoveredText(t *testing.T) {
	dict, err := Compile([]DictionaryEntry{{EntityID: "ent-1", Surface: "Acme Corp"}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	provider := &fakeLLMProvider{response: `[]`}
	ex := NewExtractor(dict, NewLLMExtractor(provider))

	mentions, err := ex.Extract(context.Background(), "Acme Corp")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(mentions) != 1 || mentions[0].Stage != "dictionary" {
		t.Fatalf("expected single dictionary mention, got %+v", mentions)
	}
}

func TestExtractorCascadeUsesLLMOnUncoveredGap(t *testing.T) {
	dict, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	provider := &fakeLLMProvider{response: `[{"text":"an unnamed affiliate entity","type":"organization","confidence":0.5}]`}
	ex := NewExtractor(dict, NewLLMExtractor(provider))

	text := "The company transferred assets to an unnamed affiliate entity during the quarter."
	mentions, err := ex.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention from llm stage, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].Stage != "llm:organization" {
		t.Errorf("expected llm stage, got %s", mentions[0].Stage)
	}
}

func TestDedupeOverlappingPrefersHigherConfidenceOverEarlierOffset(t *testing.T) {
	mentions := []CandidateMention{
		{Text: "the Acme", StartOffset: 0, EndOffset: 8, Stage: "pattern:title", Confidence: 0.6},
		{Text: "Acme Corp", StartOffset: 4, EndOffset: 13, Stage: "dictionary", Confidence: 0.95},
	}
	got := dedupeOverlapping(mentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving mention, got %d: %+v", len(got), got)
	}
	if got[0].Text != "Acme Corp" {
		t.Errorf("expected the higher-confidence mention to win, got %q", got[0].Text)
	}
}

func TestDedupeOverlappingBreaksConfidenceTiesByStagePriority(t *testing.T) {
	mentions := []CandidateMention{
		{Text: "pattern hit", StartOffset: 0, EndOffset: 11, Stage: "pattern:title", Confidence: 0.9},
		{Text: "dictionary hit", StartOffset: 2, EndOffset: 16, Stage: "dictionary", Confidence: 0.9},
	}
	got := dedupeOverlapping(mentions)
	if len(got) != 1 || got[0].Stage != "dictionary" {
		t.Fatalf("expected dictionary to win an equal-confidence tie, got %+v", got)
	}
}

func TestDedupeOverlappingKeepsNonOverlappingSpans(t *testing.T) {
	mentions := []CandidateMention{
		{Text: "Acme Corp", StartOffset: 0, EndOffset: 9, Stage: "dictionary", Confidence: 0.95},
		{Text: "Beta LLC", StartOffset: 20, EndOffset: 28, Stage: "pattern:org", Confidence: 0.7},
	}
	got := dedupeOverlapping(mentions)
	if len(got) != 2 {
		t.Fatalf("expected both disjoint mentions to survive, got %d: %+v", len(got), got)
	}
	if got[0].StartOffset > got[1].StartOffset {
		t.Errorf("expected survivors in document order, got %+v", got)
	}
}

func TestEnclosingSentenceFindsBoundaries(t *testing.T) {
	text := "Acme Corp entered a deal. Beta LLC supplied parts to Acme. Gamma Inc observed."
	start := strings.Index(text, "Beta LLC")
	end := start + len("Beta LLC")

	got := EnclosingSentence(text, start, end)
	want := "Beta LLC supplied parts to Acme."
	if got != want {
		t.Errorf("EnclosingSentence = %q, want %q", got, want)
	}
}

func TestEnclosingSentenceRejectsInvalidSpans(t *testing.T) {
	text := "short text"
	if got := EnclosingSentence(text, 5, 2); got != "" {
		t.Errorf("expected empty string for inverted span, got %q", got)
	}
	if got := EnclosingSentence(text, 0, len(text)+5); got != "" {
		t.Errorf("expected empty string for out-of-range span, got %q", got)
	}
}
