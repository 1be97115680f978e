package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/observe"
)

const llmSystemPrompt = `You are an autonomous player in a social-deduction game set on a small ship.
Crewmates try to find the impostor; the impostor eliminates crewmates without
getting caught. You receive your current observation as JSON and must answer
with EXACTLY ONE action as a single JSON object, nothing else.

Available actions:
  {"action":"move","direction":"up"|"down"|"left"|"right"}
  {"action":"kill","target_id":<id>}          (impostor only, same room, playing phase)
  {"action":"speak","message":"<short text>"} (discussion phase only)
  {"action":"vote","target_id":<id or 0 to skip>} (voting phase only)
  {"action":"noop"}

Keep messages to one or two sentences.`

// LLMProvider is a decision provider backed by a chat-completion model via
// OpenRouter. The model's reply must be a single action JSON object; it is
// validated against the action schema before it leaves this provider, so a
// rambling or malformed reply surfaces as ErrMalformed.
type LLMProvider struct {
	name        string
	model       string
	client      *OpenRouterClient
	personality string
	temperature float64
}

// NewLLMProvider creates a provider for one model id. A nil client reads
// its configuration from the environment.
func NewLLMProvider(name, model string, client *OpenRouterClient) *LLMProvider {
	if client == nil {
		client = NewOpenRouterClient()
	}
	return &LLMProvider{name: name, model: model, client: client, temperature: 0.7}
}

// WithPersonality returns a copy of the provider that appends an opaque
// personality label to its system prompt. The label passes through
// verbatim; the core never interprets it.
func (p *LLMProvider) WithPersonality(personality string) *LLMProvider {
	clone := *p
	clone.personality = personality
	return &clone
}

// Name returns the provider's display name.
func (p *LLMProvider) Name() string {
	return p.name
}

// Decide sends the observation to the model and parses its reply.
func (p *LLMProvider) Decide(ctx context.Context, obs *observe.Observation) (action.Action, error) {
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return action.Noop(), fmt.Errorf("marshal observation: %w", err)
	}

	system := llmSystemPrompt
	if p.personality != "" {
		system += "\n\nYour personality: " + p.personality
	}

	req := &CompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   256,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: string(obsJSON)},
		},
	}

	resp, err := p.client.CreateCompletion(ctx, req)
	if err != nil {
		return action.Noop(), err
	}

	raw := ExtractJSONObject(resp.Choices[0].Message.Content)
	if raw == "" {
		return action.Noop(), fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
	}
	act, err := action.Parse([]byte(raw))
	if err != nil {
		return action.Noop(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return act, nil
}

// ExtractJSONObject returns the first balanced top-level JSON object in a
// model reply, tolerating markdown code fences and surrounding prose.
func ExtractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
