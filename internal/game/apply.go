package game

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
)

// Rejection reasons. Every rejected action maps to one of these so the
// diagnostics sink can aggregate by cause. Rejections are never fatal: the
// action is dropped and the game moves on.
var (
	ErrUnknownActor = errors.New("unknown actor")
	ErrActorDead    = errors.New("actor is dead")
	ErrWrongPhase   = errors.New("action not legal in current phase")
	ErrNotImpostor  = errors.New("only impostors can kill")
	ErrBadTarget    = errors.New("invalid target")
	ErrTargetDead   = errors.New("target is already dead")
	ErrNotCoLocated = errors.New("target is not in the same room")
	ErrKillCooldown = errors.New("kill cooldown has not elapsed")
)

// applyLocked validates an action against the current state and, if legal,
// mutates state and roster. The engine's write lock must be held. The
// returned error is the rejection reason, nil when the action applied.
func (e *Engine) applyLocked(agentID int, act action.Action) error {
	if e.state.Phase == PhaseLobby || e.state.Phase == PhaseGameOver {
		return ErrWrongPhase
	}
	actor, ok := e.roster.Agent(agentID)
	if !ok {
		return ErrUnknownActor
	}
	if !actor.Alive {
		return ErrActorDead
	}

	switch act.Kind {
	case action.KindNoop:
		return nil
	case action.KindMove:
		return e.applyMoveLocked(actor, act)
	case action.KindKill:
		return e.applyKillLocked(actor, act)
	case action.KindSpeak:
		return e.applySpeakLocked(actor, act)
	case action.KindVote:
		return e.applyVoteLocked(actor, act)
	default:
		return fmt.Errorf("%w: action kind %q", ErrBadTarget, act.Kind)
	}
}

// applyMoveLocked displaces the actor one step. Moves are legal in any
// running phase; the roster silently clamps steps that would leave walkable
// space, so a blocked move is a successful no-op.
func (e *Engine) applyMoveLocked(actor *entity.Agent, act action.Action) error {
	e.roster.Move(actor.ID, entity.Direction(act.Direction))
	e.state.touch()
	return nil
}

// applyKillLocked eliminates a co-located crewmate. The kill itself produces
// no public event; only the later body discovery does. A successful kill is
// the one mutation that can end the game mid-round, so the win condition is
// evaluated here.
func (e *Engine) applyKillLocked(actor *entity.Agent, act action.Action) error {
	if e.state.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	if actor.Role != entity.RoleImpostor {
		return ErrNotImpostor
	}
	if act.TargetID == actor.ID {
		return fmt.Errorf("%w: cannot target self", ErrBadTarget)
	}
	victim, ok := e.roster.Agent(act.TargetID)
	if !ok {
		return fmt.Errorf("%w: no agent %d", ErrBadTarget, act.TargetID)
	}
	if !victim.Alive {
		return ErrTargetDead
	}
	if victim.Role == entity.RoleImpostor {
		return fmt.Errorf("%w: fellow impostor", ErrBadTarget)
	}
	if !e.roster.SameRoom(actor.ID, victim.ID) {
		return ErrNotCoLocated
	}
	if e.state.Tick < actor.KillReadyTick {
		return ErrKillCooldown
	}

	if err := e.roster.Kill(victim.ID); err != nil {
		return err
	}
	actor.KillReadyTick = e.state.Tick + e.killCooldownTicks

	room := observe.HallwayLocation
	if name, ok := e.world.RoomAt(victim.X, victim.Y); ok {
		room = name
	}
	e.state.Reports = append(e.state.Reports, &Report{
		VictimID: victim.ID,
		Room:     room,
		Tick:     e.state.Tick,
	})
	e.state.touch()
	e.evaluateWinLocked()
	return nil
}

// applySpeakLocked appends a chat message to the live discussion. Messages
// over the configured cap are truncated rather than rejected; a provider
// that rambles still gets its turn on record.
func (e *Engine) applySpeakLocked(actor *entity.Agent, act action.Action) error {
	if e.state.Phase != PhaseDiscussion {
		return ErrWrongPhase
	}
	msg := act.Message
	if len(msg) > e.cfg.MaxMessageLen {
		// Back off to a rune boundary so the transcript never holds a
		// split UTF-8 sequence.
		cut := e.cfg.MaxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	e.state.Transcript = append(e.state.Transcript, observe.ChatMessage{
		AgentID: actor.ID,
		Message: msg,
	})
	e.state.Spoken[actor.ID] = true
	e.state.touch()

	if e.allAliveSpokeLocked() {
		e.startVotingLocked()
	}
	return nil
}

// applyVoteLocked records a ballot. Target zero is an explicit skip. A
// revote overwrites the earlier ballot; only the final one counts. Once
// every living agent has voted the tally resolves immediately instead of
// waiting out the voting timer.
func (e *Engine) applyVoteLocked(actor *entity.Agent, act action.Action) error {
	if e.state.Phase != PhaseVoting {
		return ErrWrongPhase
	}
	if act.TargetID != action.SkipTarget {
		target, ok := e.roster.Agent(act.TargetID)
		if !ok {
			return fmt.Errorf("%w: no agent %d", ErrBadTarget, act.TargetID)
		}
		if !target.Alive {
			return ErrTargetDead
		}
	}
	e.state.Votes[actor.ID] = act.TargetID
	e.state.touch()

	if len(e.state.Votes) >= len(e.roster.Alive()) {
		e.resolveVotesLocked()
	}
	return nil
}

// allAliveSpokeLocked reports whether every living agent has spoken at
// least once this discussion.
func (e *Engine) allAliveSpokeLocked() bool {
	for _, a := range e.roster.Alive() {
		if !e.state.Spoken[a.ID] {
			return false
		}
	}
	return true
}
