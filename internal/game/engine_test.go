package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/minhqd/among-arena/internal/action"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/provider"
)

// TestNewEngineStartsInLobby tests engine creation.
func TestNewEngineStartsInLobby(t *testing.T) {
	e, _ := newTestEngine(t, 5, 42)

	if e.state.Phase != PhaseLobby {
		t.Errorf("Expected lobby phase, got %s", e.state.Phase)
	}
	if e.roster.Count() != 5 {
		t.Errorf("Expected 5 agents, got %d", e.roster.Count())
	}
	for _, a := range e.roster.Agents() {
		if a.Role != entity.RoleNone {
			t.Errorf("Agent %d has role %q before start", a.ID, a.Role)
		}
	}
}

// TestNewEngineRejectsUnknownProvider tests that an unresolvable roster
// binding is a startup fault.
func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(5, 1)
	cfg.Roster[2].Provider = "missing"
	registry := provider.NewRegistry()
	registry.Register("script", scriptProvider{act: action.Noop()})

	_, err := New("bad", cfg, registry, diag.Nop{}, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("Expected error for unknown provider binding")
	}
}

// TestStartAssignsExactImpostorCount tests that any seed yields exactly the
// configured impostor count.
func TestStartAssignsExactImpostorCount(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		e, _ := startedEngine(t, 6, seed)
		impostors := 0
		for _, a := range e.roster.Agents() {
			if a.Role == entity.RoleImpostor {
				impostors++
			}
		}
		if impostors != 1 {
			t.Fatalf("Seed %d: expected 1 impostor, got %d", seed, impostors)
		}
		if e.state.Phase != PhasePlaying {
			t.Fatalf("Seed %d: expected playing phase, got %s", seed, e.state.Phase)
		}
	}
}

// TestStartIsSeedDeterministic tests that the same seed always yields the
// same role assignment.
func TestStartIsSeedDeterministic(t *testing.T) {
	e1, _ := startedEngine(t, 7, 99)
	e2, _ := startedEngine(t, 7, 99)

	for _, a := range e1.roster.Agents() {
		b, _ := e2.roster.Agent(a.ID)
		if a.Role != b.Role {
			t.Errorf("Agent %d: role %q vs %q across identical seeds", a.ID, a.Role, b.Role)
		}
	}
}

// TestStartTwiceFails tests lifecycle ordering.
func TestStartTwiceFails(t *testing.T) {
	e, _ := startedEngine(t, 5, 1)
	if err := e.Start(); !errors.Is(err, ErrWrongState) {
		t.Errorf("Expected ErrWrongState on second start, got %v", err)
	}
}

// TestKillToParityEndsGame tests the impostor win condition: kills down to
// parity finish the game exactly once.
func TestKillToParityEndsGame(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, _ := firstImpostor(t, e)

	victims := make([]int, 0, 4)
	for _, a := range e.roster.Agents() {
		if a.Role == entity.RoleCrewmate {
			victims = append(victims, a.ID)
		}
	}

	for i, id := range victims[:4] {
		readyToKill(e, imp)
		if err := apply(e, imp.ID, action.Kill(id)); err != nil {
			t.Fatalf("Kill %d rejected: %v", i+1, err)
		}
	}

	if e.state.Phase != PhaseGameOver {
		t.Fatalf("Expected game over after reaching parity, got %s", e.state.Phase)
	}
	if e.state.Winner != entity.RoleImpostor {
		t.Errorf("Expected impostor win, got %q", e.state.Winner)
	}
	if e.state.Reason != WinReasonParity {
		t.Errorf("Expected parity reason, got %q", e.state.Reason)
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done channel not closed at game over")
	}
	if _, ok := e.Result(); !ok {
		t.Error("Result not available at game over")
	}
}

// TestKillValidation tests the kill legality rules.
func TestKillValidation(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)

	if err := apply(e, crew.ID, action.Kill(imp.ID)); !errors.Is(err, ErrNotImpostor) {
		t.Errorf("Crewmate kill: expected ErrNotImpostor, got %v", err)
	}
	if err := apply(e, imp.ID, action.Kill(imp.ID)); !errors.Is(err, ErrBadTarget) {
		t.Errorf("Self kill: expected ErrBadTarget, got %v", err)
	}
	if err := apply(e, imp.ID, action.Kill(999)); !errors.Is(err, ErrBadTarget) {
		t.Errorf("Unknown target: expected ErrBadTarget, got %v", err)
	}

	// Move the victim out of the impostor's room.
	away, ok := e.world.Room("Electrical")
	if !ok {
		t.Fatal("Electrical room missing from ship map")
	}
	crew.X, crew.Y = away.Center().X, away.Center().Y
	if err := apply(e, imp.ID, action.Kill(crew.ID)); !errors.Is(err, ErrNotCoLocated) {
		t.Errorf("Cross-room kill: expected ErrNotCoLocated, got %v", err)
	}

	// Back in range but on cooldown.
	crew.X, crew.Y = imp.X, imp.Y
	imp.KillReadyTick = e.state.Tick + 100
	if err := apply(e, imp.ID, action.Kill(crew.ID)); !errors.Is(err, ErrKillCooldown) {
		t.Errorf("Cooldown kill: expected ErrKillCooldown, got %v", err)
	}

	readyToKill(e, imp)
	if err := apply(e, imp.ID, action.Kill(crew.ID)); err != nil {
		t.Fatalf("Legal kill rejected: %v", err)
	}
	if err := apply(e, imp.ID, action.Kill(crew.ID)); !errors.Is(err, ErrTargetDead) {
		t.Errorf("Double kill: expected ErrTargetDead, got %v", err)
	}
}

// TestKillIsSilentUntilDiscovered tests that a kill emits no public event
// and that body discovery opens a meeting.
func TestKillIsSilentUntilDiscovered(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)

	if err := apply(e, imp.ID, action.Kill(crew.ID)); err != nil {
		t.Fatalf("Kill rejected: %v", err)
	}
	for _, ev := range e.state.Events {
		if ev.Kind == EventBodyReported {
			t.Fatal("Body report emitted before discovery")
		}
	}
	if e.state.pendingReportFor(crew.ID) == nil {
		t.Fatal("No pending report recorded for the victim")
	}

	genBefore := e.state.Generation
	e.mu.Lock()
	e.discoverBodiesLocked()
	e.mu.Unlock()

	if e.state.Phase != PhaseDiscussion {
		t.Fatalf("Expected discussion after discovery, got %s", e.state.Phase)
	}
	if e.state.Generation == genBefore {
		t.Error("Generation not bumped on meeting start")
	}
	last := e.state.Events[len(e.state.Events)-1]
	if last.Kind != EventBodyReported {
		t.Errorf("Expected %s event, got %s", EventBodyReported, last.Kind)
	}
	if e.state.pendingReportFor(crew.ID) != nil {
		t.Error("Report still pending after discovery")
	}
}

// TestDiscussionAdvancesWhenAllSpoke tests the early discussion exit.
func TestDiscussionAdvancesWhenAllSpoke(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	enterDiscussion(e, 1)

	alive := e.roster.Alive()
	for i, a := range alive {
		if err := apply(e, a.ID, action.Speak("sus")); err != nil {
			t.Fatalf("Speak by agent %d rejected: %v", a.ID, err)
		}
		wantVoting := i == len(alive)-1
		gotVoting := e.state.Phase == PhaseVoting
		if gotVoting != wantVoting {
			t.Fatalf("After %d speakers phase is %s", i+1, e.state.Phase)
		}
	}
	if len(e.state.Transcript) != len(alive) {
		t.Errorf("Expected %d transcript entries, got %d", len(alive), len(e.state.Transcript))
	}
}

// TestSpeakTruncatesLongMessages tests the transcript message cap.
func TestSpeakTruncatesLongMessages(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	enterDiscussion(e, 1)

	long := make([]byte, e.cfg.MaxMessageLen+50)
	for i := range long {
		long[i] = 'a'
	}
	if err := apply(e, 1, action.Speak(string(long))); err != nil {
		t.Fatalf("Speak rejected: %v", err)
	}
	got := e.state.Transcript[0].Message
	if len(got) != e.cfg.MaxMessageLen {
		t.Errorf("Expected message truncated to %d bytes, got %d", e.cfg.MaxMessageLen, len(got))
	}
}

// TestEjectionRevealsRoleAndEndsGame tests a unanimous vote against the
// lone impostor: role revealed, crew win.
func TestEjectionRevealsRoleAndEndsGame(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, _ := firstImpostor(t, e)
	enterVoting(e, 1)

	for _, a := range e.roster.Alive() {
		if e.state.Phase != PhaseVoting {
			break
		}
		if err := apply(e, a.ID, action.Vote(imp.ID)); err != nil {
			t.Fatalf("Vote by agent %d rejected: %v", a.ID, err)
		}
	}

	if e.state.Phase != PhaseGameOver {
		t.Fatalf("Expected game over after ejecting the impostor, got %s", e.state.Phase)
	}
	if e.state.Winner != entity.RoleCrewmate {
		t.Errorf("Expected crewmate win, got %q", e.state.Winner)
	}
	if e.state.Reason != WinReasonCleared {
		t.Errorf("Expected cleared reason, got %q", e.state.Reason)
	}

	var ejectEvent bool
	for _, ev := range e.state.Events {
		if ev.Kind == EventEjected && ev.AgentID == imp.ID {
			ejectEvent = true
		}
	}
	if !ejectEvent {
		t.Error("No ejection event for the impostor")
	}
	if imp.Alive {
		t.Error("Ejected impostor still alive")
	}
}

// TestTieVoteEjectsNobody tests the tie rule: play resumes with everyone
// alive and the round counter advanced.
func TestTieVoteEjectsNobody(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	enterVoting(e, 1)

	alive := e.roster.Alive()
	a, b := alive[0].ID, alive[1].ID
	for i, ag := range alive {
		target := a
		if i%2 == 1 {
			target = b
		}
		if err := apply(e, ag.ID, action.Vote(target)); err != nil {
			t.Fatalf("Vote rejected: %v", err)
		}
	}

	if e.state.Phase != PhasePlaying {
		t.Fatalf("Expected play to resume after a tie, got %s", e.state.Phase)
	}
	if len(e.roster.Alive()) != 6 {
		t.Errorf("Expected everyone alive after a tie, %d alive", len(e.roster.Alive()))
	}
	if e.state.Round != 2 {
		t.Errorf("Expected round 2 after the meeting, got %d", e.state.Round)
	}
	if len(e.state.Transcript) != 0 || len(e.state.Votes) != 0 {
		t.Error("Meeting state not cleared after resuming play")
	}
}

// TestSkipPluralityEjectsNobody tests that a skip majority spares everyone.
func TestSkipPluralityEjectsNobody(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	enterVoting(e, 1)

	alive := e.roster.Alive()
	for i, ag := range alive {
		act := action.SkipVote()
		if i == 0 {
			act = action.Vote(alive[1].ID)
		}
		if err := apply(e, ag.ID, act); err != nil {
			t.Fatalf("Vote rejected: %v", err)
		}
	}

	if len(e.roster.Alive()) != 6 {
		t.Errorf("Expected no ejection on skip plurality, %d alive", len(e.roster.Alive()))
	}
	last := e.state.Events[len(e.state.Events)-1]
	if last.Kind != EventNoEjection {
		t.Errorf("Expected %s event, got %s", EventNoEjection, last.Kind)
	}
}

// TestRevoteOverwrites tests that only an agent's final ballot counts.
func TestRevoteOverwrites(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	enterVoting(e, 1)

	alive := e.roster.Alive()
	voter := alive[0].ID
	if err := apply(e, voter, action.Vote(alive[1].ID)); err != nil {
		t.Fatalf("First vote rejected: %v", err)
	}
	if err := apply(e, voter, action.SkipVote()); err != nil {
		t.Fatalf("Revote rejected: %v", err)
	}
	if got := e.state.Votes[voter]; got != action.SkipTarget {
		t.Errorf("Expected final ballot to be skip, got %d", got)
	}
	if len(e.state.Votes) != 1 {
		t.Errorf("Expected one recorded ballot, got %d", len(e.state.Votes))
	}
}

// TestVoteValidation tests ballot legality.
func TestVoteValidation(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)
	crew.X, crew.Y = imp.X, imp.Y
	if err := apply(e, imp.ID, action.Kill(crew.ID)); err != nil {
		t.Fatalf("Setup kill rejected: %v", err)
	}
	enterVoting(e, imp.ID)

	if err := apply(e, imp.ID, action.Vote(crew.ID)); !errors.Is(err, ErrTargetDead) {
		t.Errorf("Vote for corpse: expected ErrTargetDead, got %v", err)
	}
	if err := apply(e, imp.ID, action.Vote(999)); !errors.Is(err, ErrBadTarget) {
		t.Errorf("Vote for unknown: expected ErrBadTarget, got %v", err)
	}
	if err := apply(e, crew.ID, action.SkipVote()); !errors.Is(err, ErrActorDead) {
		t.Errorf("Ghost vote: expected ErrActorDead, got %v", err)
	}
}

// TestVotingDeadlineResolvesPartialBallot tests that the deadline resolves
// whatever votes were cast.
func TestVotingDeadlineResolvesPartialBallot(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, _ := firstImpostor(t, e)
	enterVoting(e, 1)
	gen := e.state.Generation

	alive := e.roster.Alive()
	voters := 0
	for _, ag := range alive {
		if voters == 2 {
			break
		}
		if err := apply(e, ag.ID, action.Vote(imp.ID)); err != nil {
			t.Fatalf("Vote rejected: %v", err)
		}
		voters++
	}

	e.handleQueued(queuedEvent{kind: evVotingDeadline, generation: gen})

	if imp.Alive {
		t.Error("Expected plurality of cast votes to eject on deadline")
	}
}

// TestStaleDeadlineIgnored tests that a deadline armed in an earlier
// generation does nothing after the phase moved on.
func TestStaleDeadlineIgnored(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	enterDiscussion(e, 1)
	staleGen := e.state.Generation

	e.mu.Lock()
	e.startVotingLocked()
	e.mu.Unlock()

	e.handleQueued(queuedEvent{kind: evDiscussionDeadline, generation: staleGen})
	if e.state.Phase != PhaseVoting {
		t.Errorf("Stale discussion deadline changed phase to %s", e.state.Phase)
	}
}

// TestStaleDecisionDiscarded tests the generation guard: a decision made
// before a phase transition never mutates the new phase.
func TestStaleDecisionDiscarded(t *testing.T) {
	e, rec := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)
	staleGen := e.state.Generation

	enterDiscussion(e, 1)

	e.applyDecision(imp.ID, action.Kill(crew.ID), nil, staleGen)

	if !crew.Alive {
		t.Fatal("Stale kill applied after phase transition")
	}
	if rec.countKind(diag.KindStaleDiscard) != 1 {
		t.Errorf("Expected one stale-discard record, got %d", rec.countKind(diag.KindStaleDiscard))
	}
}

// TestFallbackOnProviderFault tests fault substitution per policy.
func TestFallbackOnProviderFault(t *testing.T) {
	e, rec := startedEngine(t, 6, 7)
	e.cfg.Fallback = "skip"
	enterVoting(e, 1)
	gen := e.state.Generation
	voter := e.roster.Alive()[0]

	e.applyDecision(voter.ID, action.Action{}, errors.New("boom"), gen)

	if got, ok := e.state.Votes[voter.ID]; !ok || got != action.SkipTarget {
		t.Errorf("Expected skip ballot from fallback, got %d (recorded=%v)", got, ok)
	}
	if rec.countKind(diag.KindProviderFault) != 1 {
		t.Errorf("Expected one provider-fault record, got %d", rec.countKind(diag.KindProviderFault))
	}
}

// TestFallbackMoveUsesSeededRng tests that the move policy is reproducible
// from the seed.
func TestFallbackMoveUsesSeededRng(t *testing.T) {
	pick := func() []action.Action {
		e, _ := startedEngine(t, 5, 42)
		e.cfg.Fallback = "move"
		var acts []action.Action
		e.mu.Lock()
		for i := 0; i < 8; i++ {
			acts = append(acts, e.fallbackLocked())
		}
		e.mu.Unlock()
		return acts
	}

	a, b := pick(), pick()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Fallback move %d differs across identical seeds: %v vs %v", i, a[i], b[i])
		}
	}
}

// TestSlowProviderDoesNotStallTick tests that one hung provider costs at
// most the per-call timeout while the rest of the cohort lands.
func TestSlowProviderDoesNotStallTick(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register("script", scriptProvider{act: action.Noop()})
	registry.Register("slow", scriptProvider{act: action.Noop(), delay: 5 * time.Second})

	cfg := testConfig(5, 11)
	cfg.Roster[0].Provider = "slow"
	rec := &memRecorder{}
	e, err := New("slow-game", cfg, registry, rec, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	e.decisionTick(context.Background())
	e.inFlight.Wait()
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("Decision tick took %v, slow provider stalled the cohort", elapsed)
	}
	if rec.countKind(diag.KindProviderFault) != 1 {
		t.Errorf("Expected one provider-fault record for the timeout, got %d",
			rec.countKind(diag.KindProviderFault))
	}
}

// TestEmergencyMeetingFromQueue tests the queued emergency intent.
func TestEmergencyMeetingFromQueue(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	gen := e.state.Generation

	e.handleQueued(queuedEvent{kind: evEmergency, agentID: 1, generation: gen})
	if e.state.Phase != PhaseDiscussion {
		t.Fatalf("Expected discussion after emergency, got %s", e.state.Phase)
	}

	// A second emergency while already meeting is ignored.
	e.handleQueued(queuedEvent{kind: evEmergency, agentID: 2, generation: e.state.Generation})
	if e.state.Phase != PhaseDiscussion {
		t.Errorf("Second emergency changed phase to %s", e.state.Phase)
	}
}

// TestRestartReturnsToLobby tests the restart lifecycle.
func TestRestartReturnsToLobby(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)
	if err := apply(e, imp.ID, action.Kill(crew.ID)); err != nil {
		t.Fatalf("Kill rejected: %v", err)
	}
	genBefore := e.state.Generation

	if err := e.Restart(0); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	if e.state.Phase != PhaseLobby {
		t.Errorf("Expected lobby after restart, got %s", e.state.Phase)
	}
	if e.state.Generation <= genBefore {
		t.Error("Generation not advanced across restart")
	}
	if e.state.Seed == 7 {
		t.Error("Restart with zero seed kept the old seed")
	}
	for _, a := range e.roster.Agents() {
		if !a.Alive {
			t.Errorf("Agent %d still dead after restart", a.ID)
		}
		if a.Role != entity.RoleNone {
			t.Errorf("Agent %d kept role %q after restart", a.ID, a.Role)
		}
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start after restart: %v", err)
	}
}

// TestMoveRoundTrip tests that an up move followed by a down move returns
// to the starting point.
func TestMoveRoundTrip(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	a, _ := e.roster.Agent(1)
	x, y := a.X, a.Y

	if err := apply(e, 1, action.Move("up")); err != nil {
		t.Fatalf("Move up rejected: %v", err)
	}
	if err := apply(e, 1, action.Move("down")); err != nil {
		t.Fatalf("Move down rejected: %v", err)
	}
	if a.X != x || a.Y != y {
		t.Errorf("Round trip ended at (%v,%v), started at (%v,%v)", a.X, a.Y, x, y)
	}
}

// TestRunLoopAdvancesTicks tests the live loop end to end with scripted
// providers.
func TestRunLoopAdvancesTicks(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	e.mu.RLock()
	tick := e.state.Tick
	e.mu.RUnlock()
	if tick < 3 {
		t.Errorf("Expected several decision ticks, got %d", tick)
	}
}

// TestHumanIntentQueues tests external intent delivery and backpressure.
func TestHumanIntentQueues(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)

	if err := e.HumanIntent(1, action.Move("left")); err != nil {
		t.Fatalf("Intent rejected: %v", err)
	}
	for i := 0; i < queueCap; i++ {
		if err := e.HumanIntent(1, action.Noop()); errors.Is(err, ErrBusy) {
			return // backpressure kicked in as designed
		}
	}
	t.Error("Queue never reported ErrBusy after saturation")
}

// TestSnapshotHidesLivingRoles tests spectator role privacy.
func TestSnapshotHidesLivingRoles(t *testing.T) {
	e, _ := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)
	if err := apply(e, imp.ID, action.Kill(crew.ID)); err != nil {
		t.Fatalf("Kill rejected: %v", err)
	}

	snap := e.Snapshot()
	for _, v := range snap.Agents {
		switch {
		case v.ID == crew.ID:
			if v.Role != entity.RoleCrewmate {
				t.Errorf("Corpse role hidden in snapshot")
			}
		case v.Alive && v.Role != entity.RoleNone:
			t.Errorf("Living agent %d's role %q leaked to spectators", v.ID, v.Role)
		}
	}
}

// TestSpeakTruncatesOnRuneBoundary tests that the message cap never splits
// a multi-byte character: the transcript must stay valid UTF-8.
func TestSpeakTruncatesOnRuneBoundary(t *testing.T) {
	e, _ := startedEngine(t, 5, 3)
	enterDiscussion(e, 1)

	// One ASCII byte then two-byte runes: the byte cap lands in the middle
	// of a rune.
	long := "a" + strings.Repeat("é", e.cfg.MaxMessageLen)
	if err := apply(e, 1, action.Speak(long)); err != nil {
		t.Fatalf("Speak rejected: %v", err)
	}
	got := e.state.Transcript[0].Message
	if len(got) > e.cfg.MaxMessageLen {
		t.Errorf("Expected at most %d bytes, got %d", e.cfg.MaxMessageLen, len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("Truncated message is not valid UTF-8: %q", got[len(got)-4:])
	}
	if !strings.HasPrefix(long, got) {
		t.Errorf("Truncated message is not a prefix of the original")
	}
}

// TestStaleIntentDiscarded tests that a queued intent from before a phase
// transition is dropped, same as a stale provider decision.
func TestStaleIntentDiscarded(t *testing.T) {
	e, rec := startedEngine(t, 6, 7)
	imp, crew := firstImpostor(t, e)
	readyToKill(e, imp)
	staleGen := e.state.Generation

	enterDiscussion(e, 1)

	e.handleQueued(queuedEvent{
		kind: evIntent, agentID: imp.ID, act: action.Kill(crew.ID), generation: staleGen,
	})

	if !crew.Alive {
		t.Fatal("Stale intent applied after phase transition")
	}
	if rec.countKind(diag.KindStaleDiscard) != 1 {
		t.Errorf("Expected one stale-discard record, got %d", rec.countKind(diag.KindStaleDiscard))
	}
}

// TestLockstepReplayMatchesAcrossRuns tests run-level reproducibility: two
// lockstep games of rule bots on the same seed play out identically, tick
// for tick, and both finish.
func TestLockstepReplayMatchesAcrossRuns(t *testing.T) {
	run := func() *Engine {
		e := lockstepEngine(t, 6, 42)
		if err := e.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		runLockstep(t, e, 20000)
		return e
	}
	e1 := run()
	e2 := run()

	if e1.state.Winner != e2.state.Winner || e1.state.Reason != e2.state.Reason {
		t.Errorf("Outcomes diverged: %s/%s vs %s/%s",
			e1.state.Winner, e1.state.Reason, e2.state.Winner, e2.state.Reason)
	}
	if e1.state.Tick != e2.state.Tick || e1.state.Round != e2.state.Round {
		t.Errorf("Progress diverged: tick %d round %d vs tick %d round %d",
			e1.state.Tick, e1.state.Round, e2.state.Tick, e2.state.Round)
	}
	if len(e1.state.Events) != len(e2.state.Events) {
		t.Fatalf("Event logs diverged in length: %d vs %d",
			len(e1.state.Events), len(e2.state.Events))
	}
	for i := range e1.state.Events {
		a := fmt.Sprintf("%+v", e1.state.Events[i])
		b := fmt.Sprintf("%+v", e2.state.Events[i])
		if a != b {
			t.Errorf("Event %d diverged: %s vs %s", i, a, b)
		}
	}
}

// TestLockstepDeadlineCountsTicks tests that lockstep phase deadlines fire
// on the decision clock, not the wall clock. Noop agents never speak, so
// only the deadline can end the discussion.
func TestLockstepDeadlineCountsTicks(t *testing.T) {
	e, _ := newTestEngine(t, 6, 9)
	e.cfg.Lockstep = true
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	enterDiscussion(e, 1)
	if e.deadline == nil || e.deadline.kind != evDiscussionDeadline {
		t.Fatal("Discussion deadline not armed as a tick deadline")
	}

	interval := e.cfg.DecisionInterval.Std()
	want := e.state.Tick + uint64((e.cfg.DiscussionFor.Std()+interval-1)/interval)
	due := e.deadline.tick
	if due != want {
		t.Errorf("Expected deadline at tick %d, got %d", want, due)
	}
	ctx := context.Background()
	for e.state.Tick < due {
		e.decisionTick(ctx)
	}
	if e.state.Phase != PhaseVoting {
		t.Errorf("Expected voting after deadline tick, got %s", e.state.Phase)
	}
}
