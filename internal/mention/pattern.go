package mention

import "regexp"

// patternRule recognizes a mention by its surrounding structure
// rather than by being a known name already — e.g. "Jane Doe, Chief
// Executive Officer" or "John Smith (President)". These are cheap
// precursors that often catch officers and directors the dictionary
// stage has never seen before.
type patternRule struct {
	name    string
	pattern *regexp.Regexp
	nameIdx int
}

var patternRules = []patternRule{
	{
		name:    "title-suffix",
		pattern: regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z]\.?)?\s[A-Z][a-z]+),\s(?:Chief|President|Director|Chairman|Secretary|Treasurer|Vice President)[^.\n]{0,60}`),
		nameIdx: 1,
	},
	{
		name:    "parenthetical-title",
		pattern: regexp.MustCompile(`\b([A-Z][a-z]+\s[A-Z][a-z]+)\s\((?:Chief|President|Director|Chairman)[^)]{0,40}\)`),
		nameIdx: 1,
	},
}

// ScanPatterns runs every pattern rule over canonical text, returning
// one CandidateMention per match, offsets already in canonical-text
// terms (no further offset translation needed — regexp indices are
// byte offsets into the string it was run on).
func ScanPatterns(canonicalText string) []CandidateMention {
	var mentions []CandidateMention
	for _, rule := range patternRules {
		for _, loc := range rule.pattern.FindAllStringSubmatchIndex(canonicalText, -1) {
			start, end := loc[2*rule.nameIdx], loc[2*rule.nameIdx+1]
			if start < 0 || end < 0 {
				continue
			}
			mentions = append(mentions, CandidateMention{
				Text:        canonicalText[start:end],
				Normalized:  canonicalText[start:end],
				StartOffset: start,
				EndOffset:   end,
				Stage:       "pattern:" + rule.name,
				Confidence:  0.7,
			})
		}
	}
	return mentions
}
