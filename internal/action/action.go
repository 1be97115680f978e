// Package action defines the tagged action variant produced by decision
// providers and consumed once by the game's validator. Raw provider payloads
// are checked against a JSON Schema before they are parsed, so a malformed
// response is rejected at the boundary instead of surfacing inside the game
// loop.
package action

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind is the action tag.
type Kind string

const (
	KindMove  Kind = "move"
	KindKill  Kind = "kill"
	KindSpeak Kind = "speak"
	KindVote  Kind = "vote"
	KindNoop  Kind = "noop"
)

// SkipTarget is the vote target meaning "skip" (no ejection preference).
const SkipTarget = 0

// Action is a single agent decision. It is consumed by the validator and
// then discarded; the transcript and state mutations are the durable record.
type Action struct {
	Kind      Kind   `json:"action"`
	Direction string `json:"direction,omitempty"`
	TargetID  int    `json:"target_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Noop returns the always-legal empty action.
func Noop() Action {
	return Action{Kind: KindNoop}
}

// Move returns a movement intent.
func Move(direction string) Action {
	return Action{Kind: KindMove, Direction: direction}
}

// Kill returns a kill intent against a target agent.
func Kill(targetID int) Action {
	return Action{Kind: KindKill, TargetID: targetID}
}

// Speak returns a discussion message.
func Speak(message string) Action {
	return Action{Kind: KindSpeak, Message: message}
}

// Vote returns a vote for a target agent; SkipTarget skips.
func Vote(targetID int) Action {
	return Action{Kind: KindVote, TargetID: targetID}
}

// SkipVote returns an explicit skip vote.
func SkipVote() Action {
	return Action{Kind: KindVote, TargetID: SkipTarget}
}

//go:embed schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("action/schema.json", schemaSource)

// Parse validates raw provider output against the action schema and decodes
// it. Unknown tags, missing tag-dependent fields and non-object payloads all
// fail here with a descriptive error.
func Parse(raw []byte) (Action, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return Action{}, fmt.Errorf("action is not valid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Action{}, fmt.Errorf("action failed schema validation: %w", err)
	}

	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	return a, nil
}

// Validate checks an already-decoded action structurally, for actions built
// in-process (human intents, fallbacks) that never pass through Parse.
func (a Action) Validate() error {
	switch a.Kind {
	case KindNoop:
		return nil
	case KindMove:
		switch a.Direction {
		case "up", "down", "left", "right":
			return nil
		}
		return fmt.Errorf("move has invalid direction %q", a.Direction)
	case KindKill:
		if a.TargetID < 1 {
			return fmt.Errorf("kill needs a positive target_id, got %d", a.TargetID)
		}
		return nil
	case KindSpeak:
		if a.Message == "" {
			return fmt.Errorf("speak needs a message")
		}
		return nil
	case KindVote:
		if a.TargetID < 0 {
			return fmt.Errorf("vote target_id must be >= 0, got %d", a.TargetID)
		}
		return nil
	default:
		return fmt.Errorf("unknown action tag %q", a.Kind)
	}
}
