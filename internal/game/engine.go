package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/config"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
	"github.com/minhqd/among-arena/internal/provider"
	"github.com/minhqd/among-arena/internal/worldmap"
)

// Queued event kinds. Intents from outside and timer expiries flow through
// the same channel as provider decisions land, so every mutation is
// serialized through one writer.
const (
	evIntent             = "intent"
	evEmergency          = "emergency"
	evDiscussionDeadline = "discussion_deadline"
	evVotingDeadline     = "voting_deadline"
)

// Public event kinds appearing in the rolling log and observations.
const (
	EventGameStarted  = "game_started"
	EventBodyReported = "body_reported"
	EventEmergency    = "emergency_meeting"
	EventVotingOpened = "voting_opened"
	EventEjected      = "ejected"
	EventNoEjection   = "no_ejection"
	EventGameOver     = "game_over"
)

// queueCap bounds the queued-event channel. Intents are rejected when the
// queue is full; timers block briefly instead, a deadline must not be lost.
const queueCap = 128

var (
	// ErrWrongState rejects lifecycle calls out of order (starting a running
	// game, intents before start).
	ErrWrongState = errors.New("game is not in the right state")
	// ErrBusy rejects intents when the event queue is saturated.
	ErrBusy = errors.New("engine event queue is full")
)

type queuedEvent struct {
	kind       string
	agentID    int
	act        action.Action
	generation uint64
}

// tickDeadline is a phase deadline counted in decision ticks, used in
// lockstep mode instead of wall-clock timers.
type tickDeadline struct {
	kind       string
	tick       uint64
	generation uint64
}

// Engine orchestrates one arena: it ticks the clock, fans provider calls
// out concurrently, and serializes every resulting mutation under its lock.
type Engine struct {
	ID      string
	cfg     config.Config
	world   *worldmap.Map
	roster  *entity.Roster
	builder *observe.Builder
	gateway *provider.Gateway
	rec     diag.Recorder
	logger  *log.Logger

	mu    sync.RWMutex
	state *State

	events            chan queuedEvent
	done              chan struct{}
	doneClosed        bool
	killCooldownTicks uint64

	// deadline is the pending tick-counted phase deadline in lockstep mode.
	deadline *tickDeadline

	// inFlight tracks decision goroutines so Run can drain before returning.
	inFlight sync.WaitGroup
}

// New builds an engine over the default ship map. The map is validated and
// the roster spawned immediately; any failure here is a startup fault, not
// a recoverable error.
func New(id string, cfg config.Config, registry *provider.Registry, rec diag.Recorder, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	world := worldmap.NewShip()
	if err := world.Validate(); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}

	bindings := make([]entity.Binding, len(cfg.Roster))
	for i, spec := range cfg.Roster {
		if _, err := registry.Resolve(spec.Provider); err != nil {
			return nil, fmt.Errorf("roster slot %d: %w", i+1, err)
		}
		bindings[i] = entity.Binding{Provider: spec.Provider, Personality: spec.Personality}
	}

	roster := entity.NewRoster(world)
	if _, err := roster.Spawn(len(bindings), bindings); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	builder := observe.NewBuilder(world, roster)
	builder.CrewmateVision = cfg.CrewmateVision
	builder.ImpostorVision = cfg.ImpostorVision
	builder.DigestLen = cfg.EventDigest

	if rec == nil {
		rec = diag.Nop{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[game] ", log.LstdFlags)
	}

	interval := cfg.DecisionInterval.Std()
	cooldownTicks := uint64((cfg.KillCooldown.Std() + interval - 1) / interval)

	return &Engine{
		ID:                id,
		cfg:               cfg,
		world:             world,
		roster:            roster,
		builder:           builder,
		gateway:           provider.NewGateway(registry, cfg.ProviderTimeout.Std(), logger),
		rec:               rec,
		logger:            logger,
		state:             NewState(cfg.Seed),
		events:            make(chan queuedEvent, queueCap),
		done:              make(chan struct{}),
		killCooldownTicks: cooldownTicks,
	}, nil
}

// World returns the static map. It never changes after New.
func (e *Engine) World() *worldmap.Map {
	return e.world
}

// Gateway exposes the provider gateway for pacing configuration.
func (e *Engine) Gateway() *provider.Gateway {
	return e.gateway
}

// Done returns a channel closed when the current run reaches game over.
// Restarting replaces it, so callers capture the channel per run.
func (e *Engine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.done
}

// Start assigns roles and moves the game from lobby to playing. Role
// assignment is a seeded shuffle: agent identity stays hidden from the
// choice, only the seed decides.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != PhaseLobby {
		return fmt.Errorf("%w: phase %s", ErrWrongState, e.state.Phase)
	}

	agents := e.roster.Agents()
	order := make([]int, len(agents))
	for i, a := range agents {
		order[i] = a.ID
	}
	e.state.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	impostors := e.cfg.ImpostorCount()
	for i, id := range order {
		role := entity.RoleCrewmate
		if i < impostors {
			role = entity.RoleImpostor
		}
		if err := e.roster.AssignRole(id, role); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}

	// Fresh impostors start on cooldown; no kill on the opening tick.
	for _, a := range e.roster.Agents() {
		if a.Role == entity.RoleImpostor {
			a.KillReadyTick = e.killCooldownTicks
		}
	}

	e.state.Phase = PhasePlaying
	e.state.Round = 1
	e.state.bumpGeneration()
	e.state.appendEvent(observe.Event{Tick: e.state.Tick, Kind: EventGameStarted})
	e.state.touch()
	e.logger.Printf("game %s started: %d agents, %d impostors, seed %d",
		e.ID, len(agents), impostors, e.state.Seed)
	return nil
}

// Restart returns the game to the lobby with fresh state and a fresh role
// draw. Zero seed derives the next seed from the current stream, so a
// replayed run restarts identically too.
func (e *Engine) Restart(seed int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seed == 0 {
		seed = e.state.rng.Int63()
	}
	e.roster.ResetForRestart()
	e.deadline = nil
	old := e.state
	e.state = NewState(seed)
	// Generations keep climbing across restarts so decisions from the
	// previous run can never apply to the new one.
	e.state.Generation = old.Generation + 1
	if e.doneClosed {
		e.done = make(chan struct{})
		e.doneClosed = false
	}
	e.logger.Printf("game %s restarted with seed %d", e.ID, seed)
	return nil
}

// Run drives the game loop until the context ends: decision ticks on the
// configured interval, queued intents and timer expiries in between. It
// returns after in-flight provider calls have drained.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DecisionInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.inFlight.Wait()
			return
		case <-ticker.C:
			e.decisionTick(ctx)
		case ev := <-e.events:
			e.handleQueued(ev)
		}
	}
}

// HumanIntent queues an action on behalf of an agent, as if its provider
// had produced it. It is validated like any other action when dequeued.
func (e *Engine) HumanIntent(agentID int, act action.Action) error {
	e.mu.RLock()
	gen := e.state.Generation
	e.mu.RUnlock()
	select {
	case e.events <- queuedEvent{kind: evIntent, agentID: agentID, act: act, generation: gen}:
		return nil
	default:
		return ErrBusy
	}
}

// CallEmergency queues an emergency meeting request from an agent. It only
// takes effect if the game is still in the playing phase when dequeued.
func (e *Engine) CallEmergency(agentID int) error {
	e.mu.RLock()
	gen := e.state.Generation
	e.mu.RUnlock()
	select {
	case e.events <- queuedEvent{kind: evEmergency, agentID: agentID, generation: gen}:
		return nil
	default:
		return ErrBusy
	}
}

// decisionTick advances the clock one step: fire any due phase deadline,
// discover bodies in view, then issue one provider call per living agent.
// Calls run concurrently with individual timeouts and land through
// applyDecision; in lockstep mode they run sequentially in agent id order
// so a seeded run replays exactly.
func (e *Engine) decisionTick(ctx context.Context) {
	e.mu.Lock()
	if e.state.Phase == PhaseLobby || e.state.Phase == PhaseGameOver {
		e.mu.Unlock()
		return
	}
	e.state.Tick++
	e.fireDeadlineLocked()

	if e.state.Phase == PhasePlaying {
		e.discoverBodiesLocked()
	}
	if e.state.Phase == PhaseGameOver {
		e.mu.Unlock()
		return
	}

	gen := e.state.Generation
	view := e.stateViewLocked()
	type call struct {
		agentID    int
		providerID string
		obs        *observe.Observation
	}
	var calls []call
	for _, a := range e.roster.Alive() {
		obs, err := e.builder.Build(a.ID, view)
		if err != nil {
			e.logger.Printf("observation for agent %d: %v", a.ID, err)
			continue
		}
		calls = append(calls, call{agentID: a.ID, providerID: a.Provider, obs: obs})
	}
	e.mu.Unlock()

	if e.cfg.Lockstep {
		for _, c := range calls {
			act, err := e.gateway.Decide(ctx, c.providerID, c.obs)
			e.applyDecision(c.agentID, act, err, gen)
		}
		return
	}

	for _, c := range calls {
		c := c
		e.inFlight.Add(1)
		go func() {
			defer e.inFlight.Done()
			act, err := e.gateway.Decide(ctx, c.providerID, c.obs)
			e.applyDecision(c.agentID, act, err, gen)
		}()
	}
}

// fireDeadlineLocked resolves a due tick-counted deadline. Deadlines
// outlived by their phase are dropped, same as the wall-clock path.
func (e *Engine) fireDeadlineLocked() {
	if e.deadline == nil || e.state.Tick < e.deadline.tick {
		return
	}
	dl := e.deadline
	e.deadline = nil
	switch dl.kind {
	case evDiscussionDeadline:
		if e.state.Phase == PhaseDiscussion && e.state.Generation == dl.generation {
			e.startVotingLocked()
		}
	case evVotingDeadline:
		if e.state.Phase == PhaseVoting && e.state.Generation == dl.generation {
			e.resolveVotesLocked()
		}
	}
}

// applyDecision lands one provider result. Stale results (the phase moved
// on while the call was in flight) are discarded; faults are substituted
// with the configured fallback; everything else goes through validation.
func (e *Engine) applyDecision(agentID int, act action.Action, decideErr error, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Generation != gen {
		e.rec.Record(diag.Record{
			GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindStaleDiscard,
			AgentID: agentID, Detail: string(act.Kind), At: time.Now(),
		})
		return
	}
	if decideErr != nil {
		e.rec.Record(diag.Record{
			GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindProviderFault,
			AgentID: agentID, Detail: decideErr.Error(), At: time.Now(),
		})
		act = e.fallbackLocked()
	}
	if err := e.applyLocked(agentID, act); err != nil {
		e.rec.Record(diag.Record{
			GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindValidationReject,
			AgentID: agentID, Detail: fmt.Sprintf("%s: %v", act.Kind, err), At: time.Now(),
		})
	}
}

// handleQueued processes one queued intent or timer expiry under the lock.
// Intents and timer expiries carry the generation they were captured in and
// are discarded once the phase has moved on.
func (e *Engine) handleQueued(ev queuedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.kind {
	case evIntent:
		if e.state.Generation != ev.generation {
			e.rec.Record(diag.Record{
				GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindStaleDiscard,
				AgentID: ev.agentID, Detail: string(ev.act.Kind), At: time.Now(),
			})
			return
		}
		if err := e.applyLocked(ev.agentID, ev.act); err != nil {
			e.rec.Record(diag.Record{
				GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindValidationReject,
				AgentID: ev.agentID, Detail: fmt.Sprintf("%s: %v", ev.act.Kind, err), At: time.Now(),
			})
		}
	case evEmergency:
		if e.state.Phase != PhasePlaying {
			return
		}
		if a, ok := e.roster.Agent(ev.agentID); !ok || !a.Alive {
			return
		}
		e.startMeetingLocked(EventEmergency, ev.agentID, "")
	case evDiscussionDeadline:
		if e.state.Phase == PhaseDiscussion && e.state.Generation == ev.generation {
			e.startVotingLocked()
		}
	case evVotingDeadline:
		if e.state.Phase == PhaseVoting && e.state.Generation == ev.generation {
			e.resolveVotesLocked()
		}
	}
}

// discoverBodiesLocked checks pending reports against living agents'
// vision. The first body seen this tick triggers the meeting; the rest stay
// pending for when play resumes.
func (e *Engine) discoverBodiesLocked() {
	for _, r := range e.state.Reports {
		if r.Reported {
			continue
		}
		victim, ok := e.roster.Agent(r.VictimID)
		if !ok {
			continue
		}
		for _, a := range e.roster.Alive() {
			if a.DistanceTo(victim) <= e.builder.VisionRadius(a) {
				r.Reported = true
				e.startMeetingLocked(EventBodyReported, a.ID,
					fmt.Sprintf("agent %d found in %s", victim.ID, r.Room))
				return
			}
		}
	}
}

// startMeetingLocked transitions playing into discussion and arms the
// discussion deadline.
func (e *Engine) startMeetingLocked(kind string, callerID int, detail string) {
	e.state.Phase = PhaseDiscussion
	e.state.clearMeeting()
	e.state.bumpGeneration()
	e.state.appendEvent(observe.Event{
		Tick: e.state.Tick, Kind: kind, AgentID: callerID, Detail: detail,
	})
	e.state.touch()
	e.armDeadlineLocked(evDiscussionDeadline, e.cfg.DiscussionFor.Std())
	e.logger.Printf("game %s: %s by agent %d", e.ID, kind, callerID)
}

// startVotingLocked transitions discussion into voting and arms the voting
// deadline. The transcript stays readable so ballots can be cast against
// what was said.
func (e *Engine) startVotingLocked() {
	e.state.Phase = PhaseVoting
	e.state.Votes = make(map[int]int)
	e.state.bumpGeneration()
	e.state.appendEvent(observe.Event{Tick: e.state.Tick, Kind: EventVotingOpened})
	e.state.touch()
	e.armDeadlineLocked(evVotingDeadline, e.cfg.VotingFor.Std())
}

// resolveVotesLocked tallies the ballot. A strict plurality ejects its
// target with the role revealed; a tie, skip plurality or empty ballot
// ejects nobody. Either way the meeting ends and, unless the ejection ended
// the game, play resumes.
func (e *Engine) resolveVotesLocked() {
	ejected := e.state.tallyVotes()
	if ejected == 0 {
		e.state.appendEvent(observe.Event{Tick: e.state.Tick, Kind: EventNoEjection})
	} else if a, ok := e.roster.Agent(ejected); ok {
		role := a.Role
		if err := e.roster.Kill(ejected); err != nil {
			e.rec.Record(diag.Record{
				GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindInvariant,
				AgentID: ejected, Detail: fmt.Sprintf("eject: %v", err), At: time.Now(),
			})
		} else {
			e.state.appendEvent(observe.Event{
				Tick: e.state.Tick, Kind: EventEjected, AgentID: ejected,
				Detail: fmt.Sprintf("agent %d was a %s", ejected, role),
			})
		}
	}

	e.evaluateWinLocked()
	if e.state.Phase == PhaseGameOver {
		return
	}

	e.state.Phase = PhasePlaying
	e.state.Round++
	e.state.clearMeeting()
	e.state.bumpGeneration()
	e.state.touch()
}

// evaluateWinLocked checks the two terminal conditions after a mutation.
// Crew wins when no impostor is left; impostors win on reaching parity with
// the crew. Runs exactly once per mutating event; once game over is set no
// further mutation can re-enter here.
func (e *Engine) evaluateWinLocked() {
	if e.state.Phase == PhaseGameOver {
		return
	}
	var impostors, crew int
	for _, a := range e.roster.Alive() {
		if a.Role == entity.RoleImpostor {
			impostors++
		} else {
			crew++
		}
	}

	switch {
	case impostors == 0:
		e.finishLocked(entity.RoleCrewmate, WinReasonCleared)
	case impostors >= crew:
		e.finishLocked(entity.RoleImpostor, WinReasonParity)
	}
}

// finishLocked seals the game.
func (e *Engine) finishLocked(winner entity.Role, reason WinReason) {
	e.state.Phase = PhaseGameOver
	e.state.Winner = winner
	e.state.Reason = reason
	e.state.bumpGeneration()
	e.state.appendEvent(observe.Event{
		Tick: e.state.Tick, Kind: EventGameOver, Detail: string(reason),
	})
	e.state.touch()
	e.rec.Record(diag.Record{
		GameID: e.ID, Tick: e.state.Tick, Kind: diag.KindGameOver,
		Detail: fmt.Sprintf("%s win: %s", winner, reason), At: time.Now(),
	})
	e.logger.Printf("game %s over: %s win (%s)", e.ID, winner, reason)
	if !e.doneClosed {
		close(e.done)
		e.doneClosed = true
	}
}

// armDeadlineLocked schedules a phase deadline. The expiry carries the
// generation it was armed in, so a deadline outlived by its phase is a
// no-op. Lockstep mode counts decision ticks; otherwise a wall-clock timer
// posts into the event queue.
func (e *Engine) armDeadlineLocked(kind string, d time.Duration) {
	gen := e.state.Generation
	if e.cfg.Lockstep {
		interval := e.cfg.DecisionInterval.Std()
		ticks := uint64((d + interval - 1) / interval)
		if ticks == 0 {
			ticks = 1
		}
		e.deadline = &tickDeadline{kind: kind, tick: e.state.Tick + ticks, generation: gen}
		return
	}
	done := e.done
	time.AfterFunc(d, func() {
		select {
		case e.events <- queuedEvent{kind: kind, generation: gen}:
		case <-done:
		}
	})
}

// fallbackLocked synthesizes the substitute action for a failed provider
// call. The random-move policy draws from the state rng under the lock,
// keeping the seed stream single-writer.
func (e *Engine) fallbackLocked() action.Action {
	switch e.cfg.Fallback {
	case config.FallbackSkip:
		if e.state.Phase == PhaseVoting {
			return action.SkipVote()
		}
		return action.Noop()
	case config.FallbackMove:
		dir := entity.Directions[e.state.rng.Intn(len(entity.Directions))]
		return action.Move(string(dir))
	default:
		return action.Noop()
	}
}

// stateViewLocked projects state for the observation builder.
func (e *Engine) stateViewLocked() observe.StateView {
	inMeeting := e.state.Phase == PhaseDiscussion || e.state.Phase == PhaseVoting
	return observe.StateView{
		Tick:       e.state.Tick,
		Phase:      string(e.state.Phase),
		Round:      e.state.Round,
		Transcript: e.state.Transcript,
		Events:     e.state.Events,
		Spoken:     e.state.Spoken,
		Voted:      e.state.VotedSet(),
		InMeeting:  inMeeting,
	}
}
