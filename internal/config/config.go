// Package config loads and validates the declarative arena setup: the
// roster binding agents to providers, and the game parameters. The core
// consumes the validated structure; it never parses files anywhere else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configs can say "1.5s" in YAML and JSON.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON renders the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AgentSpec binds one roster slot to a decision provider.
type AgentSpec struct {
	Provider    string `yaml:"provider" json:"provider"`
	Personality string `yaml:"personality,omitempty" json:"personality,omitempty"`
}

// Fallback policies for failed or late provider calls.
const (
	FallbackNoop = "noop"
	FallbackSkip = "skip"
	FallbackMove = "move"
)

// Config is a full arena setup.
type Config struct {
	// Seed drives every random decision in the game (role assignment,
	// fallback moves). Zero means "pick one at start"; a fixed value makes
	// runs replayable.
	Seed int64 `yaml:"seed" json:"seed"`

	// Impostors is the impostor count; zero selects automatically
	// (1 for up to six agents, 2 beyond).
	Impostors int `yaml:"impostors" json:"impostors"`

	DecisionInterval Duration `yaml:"decision_interval" json:"decision_interval"`
	ProviderTimeout  Duration `yaml:"provider_timeout" json:"provider_timeout"`
	DiscussionFor    Duration `yaml:"discussion_for" json:"discussion_for"`
	VotingFor        Duration `yaml:"voting_for" json:"voting_for"`
	KillCooldown     Duration `yaml:"kill_cooldown" json:"kill_cooldown"`

	CrewmateVision float64 `yaml:"crewmate_vision" json:"crewmate_vision"`
	ImpostorVision float64 `yaml:"impostor_vision" json:"impostor_vision"`

	// EventDigest bounds the recent-event list in observations.
	EventDigest int `yaml:"event_digest" json:"event_digest"`
	// MaxMessageLen caps discussion messages, in bytes.
	MaxMessageLen int `yaml:"max_message_len" json:"max_message_len"`

	// Fallback is the action substituted when a provider fails:
	// "noop", "skip" (skip vote during voting, otherwise noop) or
	// "move" (seeded random direction).
	Fallback string `yaml:"fallback" json:"fallback"`

	// Lockstep trades real-time pacing for reproducibility: provider calls
	// run one at a time in agent id order and phase deadlines count decision
	// ticks instead of wall clock, so a fixed seed replays the same game.
	Lockstep bool `yaml:"lockstep" json:"lockstep"`

	Roster []AgentSpec `yaml:"roster" json:"roster"`
}

// Defaults returns the baseline configuration without a roster.
func Defaults() Config {
	return Config{
		DecisionInterval: Duration(time.Second),
		ProviderTimeout:  Duration(time.Second),
		DiscussionFor:    Duration(30 * time.Second),
		VotingFor:        Duration(20 * time.Second),
		KillCooldown:     Duration(10 * time.Second),
		CrewmateVision:   150,
		ImpostorVision:   180,
		EventDigest:      8,
		MaxMessageLen:    280,
		Fallback:         FallbackNoop,
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// MinRoster and MaxRoster bound the playable roster size.
const (
	MinRoster = 4
	MaxRoster = 10
)

// Validate checks the configuration. Any failure here is a startup fault:
// the game must not begin on a bad setup.
func (c *Config) Validate() error {
	if len(c.Roster) < MinRoster || len(c.Roster) > MaxRoster {
		return fmt.Errorf("roster size %d out of range %d-%d", len(c.Roster), MinRoster, MaxRoster)
	}
	for i, a := range c.Roster {
		if strings.TrimSpace(a.Provider) == "" {
			return fmt.Errorf("roster slot %d has no provider", i)
		}
	}
	if c.Impostors < 0 || (c.Impostors > 0 && c.Impostors > len(c.Roster)/3) {
		return fmt.Errorf("impostor count %d too high for roster of %d", c.Impostors, len(c.Roster))
	}
	switch c.Fallback {
	case FallbackNoop, FallbackSkip, FallbackMove:
	default:
		return fmt.Errorf("unknown fallback policy %q", c.Fallback)
	}
	for name, d := range map[string]Duration{
		"decision_interval": c.DecisionInterval,
		"provider_timeout":  c.ProviderTimeout,
		"discussion_for":    c.DiscussionFor,
		"voting_for":        c.VotingFor,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.KillCooldown < 0 {
		return fmt.Errorf("kill_cooldown must not be negative")
	}
	if c.CrewmateVision <= 0 || c.ImpostorVision <= 0 {
		return fmt.Errorf("vision radii must be positive")
	}
	if c.EventDigest < 1 {
		return fmt.Errorf("event_digest must be at least 1")
	}
	if c.MaxMessageLen < 1 {
		return fmt.Errorf("max_message_len must be at least 1")
	}
	return nil
}

// ImpostorCount resolves the effective impostor count for the roster.
func (c *Config) ImpostorCount() int {
	if c.Impostors > 0 {
		return c.Impostors
	}
	if len(c.Roster) <= 6 {
		return 1
	}
	return 2
}
