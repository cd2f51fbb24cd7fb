package mention

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// LLMProvider is the minimal contract an LLM backend must satisfy to
// serve as the extraction cascade's last-resort stage. Swapping
// providers (local model, hosted API) never touches extractor logic.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type llmCandidate struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// LLMExtractor asks an LLMProvider to find entity mentions a
// structural stage would miss — informal references, pronouns
// resolved to a name already stated earlier in the section, unusual
// name formats. It is the most expensive and least precise stage and
// runs last, only over spans the earlier stages left uncovered.
type LLMExtractor struct {
	provider LLMProvider
}

// NewLLMExtractor wraps a provider.
func NewLLMExtractor(provider LLMProvider) *LLMExtractor {
	return &LLMExtractor{provider: provider}
}

const mentionSystemPrompt = `You identify named entities (people, organizations, subsidiaries) ` +
	`mentioned in a section of an SEC filing. Respond with a JSON array of objects, ` +
	`each with "text" (the exact surface form as it appears), "type" (person or organization), ` +
	`and "confidence" (0 to 1). Respond with JSON only, no commentary.`

// Extract asks the provider for mentions within text and maps each
// returned surface form back to a byte offset via the first
// occurrence in text — mirroring how the dictionary and pattern
// stages report offsets, so all three stages merge uniformly.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]CandidateMention, error) {
	prompt := fmt.Sprintf("%s\n\nText:\n%s", mentionSystemPrompt, text)
	raw, err := e.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("mention: llm complete: %w", err)
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(cleaned), &candidates); err != nil {
		return nil, fmt.Errorf("mention: llm response parse: %w", err)
	}

	var mentions []CandidateMention
	for _, c := range candidates {
		if c.Text == "" {
			continue
		}
		idx := strings.Index(text, c.Text)
		if idx < 0 {
			continue
		}
		confidence := c.Confidence
		if confidence <= 0 {
			confidence = 0.6
		}
		mentions = append(mentions, CandidateMention{
			Text:        c.Text,
			Normalized:  c.Text,
			StartOffset: idx,
			EndOffset:   idx + len(c.Text),
			Stage:       "llm:" + c.Type,
			Confidence:  confidence,
		})
	}
	return mentions, nil
}
