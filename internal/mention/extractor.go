package mention

import (
	"context"
	"sort"
)

// Extractor runs the dictionary, pattern, and (optionally) LLM stages
// over a section's canonical text in that order, only handing the LLM
// stage the spans the first two stages left uncovered — it is the
// most expensive stage and this core never spends it on text a
// cheaper stage already resolved.
type Extractor struct {
	dictionary *Dictionary
	llm        *LLMExtractor
}

// NewExtractor builds an Extractor. llm may be nil, in which case the
// cascade stops after the pattern stage.
func NewExtractor(dictionary *Dictionary, llm *LLMExtractor) *Extractor {
	return &Extractor{dictionary: dictionary, llm: llm}
}

// Extract runs the full cascade and returns every candidate mention,
// sorted by offset, with overlapping candidates resolved in favor of
// the more confident one, ties going to the cheaper stage.
func (e *Extractor) Extract(ctx context.Context, canonicalText string) ([]CandidateMention, error) {
	var all []CandidateMention
	if e.dictionary != nil {
		all = append(all, e.dictionary.Scan(canonicalText)...)
	}
	all = append(all, ScanPatterns(canonicalText)...)

	covered := coveredRanges(all)

	if e.llm != nil {
		uncovered := subtractRanges(canonicalText, covered)
		for _, span := range uncovered {
			sub := canonicalText[span.start:span.end]
			if len(sub) < 20 {
				continue // too short to plausibly contain an uncaught mention
			}
			llmMentions, err := e.llm.Extract(ctx, sub)
			if err != nil {
				return nil, err
			}
			for _, m := range llmMentions {
				m.StartOffset += span.start
				m.EndOffset += span.start
				all = append(all, m)
			}
		}
	}

	all = dedupeOverlapping(all)
	sort.Slice(all, func(i, j int) bool { return all[i].StartOffset < all[j].StartOffset })
	return all, nil
}

type span struct{ start, end int }

func coveredRanges(mentions []CandidateMention) []span {
	spans := make([]span, 0, len(mentions))
	for _, m := range mentions {
		spans = append(spans, span{m.StartOffset, m.EndOffset})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var merged []span
	for _, s := range spans {
		if len(merged) > 0 && s.start <= merged[len(merged)-1].end {
			if s.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func subtractRanges(text string, covered []span) []span {
	var gaps []span
	pos := 0
	for _, c := range covered {
		if c.start > pos {
			gaps = append(gaps, span{pos, c.start})
		}
		if c.end > pos {
			pos = c.end
		}
	}
	if pos < len(text) {
		gaps = append(gaps, span{pos, len(text)})
	}
	return gaps
}

// stagePriority ranks stages so overlap resolution is deterministic:
// dictionary hits (exact known entities) beat pattern hits, which
// beat LLM guesses.
func stagePriority(stage string) int {
	switch {
	case stage == "dictionary":
		return 0
	case len(stage) >= 7 && stage[:7] == "pattern":
		return 1
	default:
		return 2
	}
}

// dedupeOverlapping reconciles overlapping spans per spec §4.6:
// highest confidence wins, ties broken by method priority (dictionary
// beats pattern beats everything else). Candidates are considered
// highest-confidence-first so a strong pattern hit overlapping a
// weaker, earlier-starting span still wins, then the survivors are
// re-sorted back into document order.
func dedupeOverlapping(mentions []CandidateMention) []CandidateMention {
	ranked := make([]CandidateMention, len(mentions))
	copy(ranked, mentions)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return stagePriority(ranked[i].Stage) < stagePriority(ranked[j].Stage)
	})

	var kept []CandidateMention
	for _, m := range ranked {
		overlapsKept := false
		for _, k := range kept {
			if m.StartOffset < k.EndOffset && k.StartOffset < m.EndOffset {
				overlapsKept = true
				break
			}
		}
		if !overlapsKept {
			kept = append(kept, m)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].StartOffset < kept[j].StartOffset })
	return kept
}
