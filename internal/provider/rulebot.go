package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
)

// Rule is one behavior rule: a boolean expr condition evaluated against the
// observation and a directive executed on the first match.
//
// Directives: "noop", "skip_vote", "vote_visible", "kill_adjacent",
// "move_random", "move_up", "move_down", "move_left", "move_right",
// and "speak:<message>".
type Rule struct {
	When string `json:"when" yaml:"when"`
	Do   string `json:"do" yaml:"do"`
}

type compiledRule struct {
	when *vm.Program
	do   string
}

// RuleBot is a scripted decision provider. It needs no network, responds
// instantly, and is the reproducible baseline opponent: conditions are expr
// expressions over the observation, and randomness comes from a seeded
// stream per agent, so one agent's draws never depend on when the other
// agents happened to call.
type RuleBot struct {
	name  string
	seed  int64
	rules []compiledRule

	mu   sync.Mutex
	rngs map[int]*rand.Rand
}

// NewRuleBot compiles the rule set. Invalid conditions are configuration
// faults and fail here, before any game starts.
func NewRuleBot(name string, rules []Rule, seed int64) (*RuleBot, error) {
	bot := &RuleBot{
		name: name,
		seed: seed,
		rngs: make(map[int]*rand.Rand),
	}
	for i, r := range rules {
		program, err := expr.Compile(r.When, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("rule %d condition %q: %w", i, r.When, err)
		}
		if err := validateDirective(r.Do); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		bot.rules = append(bot.rules, compiledRule{when: program, do: r.Do})
	}
	return bot, nil
}

// DefaultRules is a playable baseline: wander while playing, kill any
// co-located victim once the cooldown allows, speak once per discussion,
// vote with the group. The impostor kills openly; discovery still depends
// on a living agent seeing the body.
func DefaultRules() []Rule {
	return []Rule{
		{When: `!alive`, Do: "noop"},
		{When: `phase == "discussion" && !has_spoken`, Do: "speak:I have not seen anything suspicious yet."},
		{When: `phase == "voting" && !has_voted`, Do: "vote_visible"},
		{When: `phase == "playing" && role == "impostor" && len(same_room_ids) >= 1`, Do: "kill_adjacent"},
		{When: `phase == "playing"`, Do: "move_random"},
	}
}

// Name returns the bot's display name.
func (b *RuleBot) Name() string {
	return b.name
}

// Decide evaluates the rules in order and executes the first match. With no
// match the bot idles.
func (b *RuleBot) Decide(ctx context.Context, obs *observe.Observation) (action.Action, error) {
	if err := ctx.Err(); err != nil {
		return action.Noop(), err
	}
	env := buildEnv(obs)
	for _, r := range b.rules {
		out, err := expr.Run(r.when, env)
		if err != nil {
			return action.Noop(), fmt.Errorf("evaluate rule: %w", err)
		}
		if matched, _ := out.(bool); matched {
			return b.execute(r.do, obs)
		}
	}
	return action.Noop(), nil
}

// buildEnv flattens the observation into the expr environment.
func buildEnv(obs *observe.Observation) map[string]any {
	visibleIDs := make([]int, 0, len(obs.Visible))
	sameRoomIDs := make([]int, 0, len(obs.Visible))
	deadVisible := make([]int, 0)
	for _, v := range obs.Visible {
		if !v.Alive {
			deadVisible = append(deadVisible, v.ID)
			continue
		}
		visibleIDs = append(visibleIDs, v.ID)
		if v.Location == obs.Self.Location && v.Location != observe.HallwayLocation {
			sameRoomIDs = append(sameRoomIDs, v.ID)
		}
	}
	return map[string]any{
		"phase":         obs.Phase,
		"round":         obs.Round,
		"tick":          obs.Tick,
		"role":          string(obs.Self.Role),
		"alive":         obs.Self.Alive,
		"location":      obs.Self.Location,
		"has_spoken":    obs.HasSpoken,
		"has_voted":     obs.HasVoted,
		"visible_ids":   visibleIDs,
		"same_room_ids": sameRoomIDs,
		"dead_visible":  deadVisible,
		"alive_agents":  obs.AliveAgents,
		"fellow_impostors": obs.FellowImpostors,
	}
}

func validateDirective(do string) error {
	switch do {
	case "noop", "skip_vote", "vote_visible", "kill_adjacent", "move_random",
		"move_up", "move_down", "move_left", "move_right":
		return nil
	}
	if strings.HasPrefix(do, "speak:") && len(do) > len("speak:") {
		return nil
	}
	return fmt.Errorf("unknown directive %q", do)
}

func (b *RuleBot) execute(do string, obs *observe.Observation) (action.Action, error) {
	if msg, ok := strings.CutPrefix(do, "speak:"); ok {
		return action.Speak(msg), nil
	}
	switch do {
	case "noop":
		return action.Noop(), nil
	case "skip_vote":
		return action.SkipVote(), nil
	case "vote_visible":
		candidates := make([]int, 0, len(obs.AliveAgents))
		for _, id := range obs.AliveAgents {
			if id != obs.AgentID {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			return action.SkipVote(), nil
		}
		return action.Vote(candidates[b.intn(obs.AgentID, len(candidates))]), nil
	case "kill_adjacent":
		for _, v := range obs.Visible {
			if v.Alive && v.Location == obs.Self.Location && v.Location != observe.HallwayLocation {
				return action.Kill(v.ID), nil
			}
		}
		return action.Noop(), nil
	case "move_random":
		dirs := entity.Directions
		return action.Move(string(dirs[b.intn(obs.AgentID, len(dirs))])), nil
	case "move_up":
		return action.Move("up"), nil
	case "move_down":
		return action.Move("down"), nil
	case "move_left":
		return action.Move("left"), nil
	case "move_right":
		return action.Move("right"), nil
	}
	return action.Noop(), fmt.Errorf("unknown directive %q", do)
}

func (b *RuleBot) intn(agentID, n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	rng, ok := b.rngs[agentID]
	if !ok {
		rng = rand.New(rand.NewSource(b.seed + int64(agentID)))
		b.rngs[agentID] = rng
	}
	return rng.Intn(n)
}
