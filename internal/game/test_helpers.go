package game

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/config"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
	"github.com/minhqd/among-arena/internal/provider"
)

// scriptProvider returns a fixed action for every decision, optionally
// after a delay.
type scriptProvider struct {
	act   action.Action
	delay time.Duration
}

func (s scriptProvider) Name() string { return "script" }

func (s scriptProvider) Decide(ctx context.Context, _ *observe.Observation) (action.Action, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return action.Action{}, ctx.Err()
		}
	}
	return s.act, nil
}

// memRecorder collects diagnostics records for assertions.
type memRecorder struct {
	records []diag.Record
}

func (m *memRecorder) Record(rec diag.Record) { m.records = append(m.records, rec) }
func (m *memRecorder) Close() error           { return nil }

func (m *memRecorder) countKind(kind string) int {
	n := 0
	for _, r := range m.records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// testConfig builds a config for n agents all bound to the "script"
// provider, with short timers suited to tests.
func testConfig(n int, seed int64) config.Config {
	cfg := config.Defaults()
	cfg.Seed = seed
	cfg.DecisionInterval = config.Duration(20 * time.Millisecond)
	cfg.ProviderTimeout = config.Duration(50 * time.Millisecond)
	cfg.DiscussionFor = config.Duration(time.Second)
	cfg.VotingFor = config.Duration(time.Second)
	cfg.KillCooldown = config.Duration(100 * time.Millisecond)
	cfg.Roster = make([]config.AgentSpec, n)
	for i := range cfg.Roster {
		cfg.Roster[i] = config.AgentSpec{Provider: "script"}
	}
	return cfg
}

// newTestEngine builds an engine with n noop-scripted agents and a memory
// diagnostics recorder.
func newTestEngine(t *testing.T, n int, seed int64) (*Engine, *memRecorder) {
	t.Helper()
	registry := provider.NewRegistry()
	if err := registry.Register("script", scriptProvider{act: action.Noop()}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	rec := &memRecorder{}
	e, err := New("test-game", testConfig(n, seed), registry, rec, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, rec
}

// startedEngine returns a running-phase engine.
func startedEngine(t *testing.T, n int, seed int64) (*Engine, *memRecorder) {
	t.Helper()
	e, rec := newTestEngine(t, n, seed)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e, rec
}

// firstImpostor returns one impostor and one crewmate from the roster.
func firstImpostor(t *testing.T, e *Engine) (imp, crew *entity.Agent) {
	t.Helper()
	for _, a := range e.roster.Agents() {
		switch {
		case a.Role == entity.RoleImpostor && imp == nil:
			imp = a
		case a.Role == entity.RoleCrewmate && crew == nil:
			crew = a
		}
	}
	if imp == nil || crew == nil {
		t.Fatal("roster has no impostor or no crewmate")
	}
	return imp, crew
}

// apply runs one action through the validator under the engine lock.
func apply(e *Engine, agentID int, act action.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(agentID, act)
}

// enterDiscussion forces a meeting as if one had been called.
func enterDiscussion(e *Engine, callerID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startMeetingLocked(EventEmergency, callerID, "")
}

// enterVoting forces the voting phase.
func enterVoting(e *Engine, callerID int) {
	enterDiscussion(e, callerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startVotingLocked()
}

// readyToKill clears an impostor's cooldown.
func readyToKill(e *Engine, imp *entity.Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	imp.KillReadyTick = 0
}

// lockstepEngine builds a lockstep engine with n rule-bot agents sharing
// the given seed. Deadlines count ticks, so tests drive it tick by tick.
func lockstepEngine(t *testing.T, n int, seed int64) *Engine {
	t.Helper()
	bot, err := provider.NewRuleBot("rulebot", provider.DefaultRules(), seed)
	if err != nil {
		t.Fatalf("rulebot: %v", err)
	}
	registry := provider.NewRegistry()
	if err := registry.Register("rulebot", bot); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	cfg := config.Defaults()
	cfg.Seed = seed
	cfg.Lockstep = true
	cfg.DecisionInterval = config.Duration(50 * time.Millisecond)
	cfg.DiscussionFor = config.Duration(200 * time.Millisecond)
	cfg.VotingFor = config.Duration(200 * time.Millisecond)
	cfg.KillCooldown = config.Duration(150 * time.Millisecond)
	cfg.Roster = make([]config.AgentSpec, n)
	for i := range cfg.Roster {
		cfg.Roster[i] = config.AgentSpec{Provider: "rulebot"}
	}

	e, err := New("lockstep", cfg, registry, &memRecorder{}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// runLockstep ticks an engine until game over, up to maxTicks. Lockstep
// ticks are fully synchronous, so no Run loop is needed.
func runLockstep(t *testing.T, e *Engine, maxTicks int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxTicks; i++ {
		e.decisionTick(ctx)
		if e.state.Phase == PhaseGameOver {
			return
		}
	}
	t.Fatalf("game did not finish within %d ticks", maxTicks)
}
