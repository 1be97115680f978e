package game

import (
	"math/rand"
	"time"

	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
)

// Phase is the top-level game phase.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhasePlaying    Phase = "playing"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseGameOver   Phase = "game_over"
)

// WinReason explains how a finished game ended.
type WinReason string

const (
	WinReasonParity  WinReason = "impostors reached parity with crewmates"
	WinReasonCleared WinReason = "all impostors eliminated"
)

// Report is a kill awaiting discovery. It stays pending until a living
// agent's vision reaches the body, which triggers a meeting.
type Report struct {
	VictimID int    `json:"victim_id"`
	Room     string `json:"room"`
	Tick     uint64 `json:"tick"`
	Reported bool   `json:"reported"`
}

// eventLogCap bounds the rolling public event log. Observations take a
// smaller digest off its tail.
const eventLogCap = 64

// State is the single mutable game state. It is owned by the Engine and only
// touched under the engine's lock: provider calls run concurrently, but every
// mutation lands here serialized.
type State struct {
	Phase      Phase  `json:"phase"`
	Round      int    `json:"round"`
	Tick       uint64 `json:"tick"`
	Generation uint64 `json:"generation"`
	Seed       int64  `json:"seed"`

	// rng drives all randomness in the core (role assignment, fallback
	// moves). Never replaced by an ambient source, so a run is replayable
	// from the seed plus the provider responses.
	rng *rand.Rand

	Transcript []observe.ChatMessage `json:"transcript"`
	Spoken     map[int]bool          `json:"spoken"`
	Votes      map[int]int           `json:"votes"`
	Reports    []*Report             `json:"reports"`
	Events     []observe.Event       `json:"events"`

	Winner entity.Role `json:"winner,omitempty"`
	Reason WinReason   `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates a lobby state. A zero seed picks one from the clock;
// reproducible runs pass an explicit seed.
func NewState(seed int64) *State {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := time.Now()
	return &State{
		Phase:     PhaseLobby,
		Seed:      seed,
		rng:       rand.New(rand.NewSource(seed)),
		Spoken:    make(map[int]bool),
		Votes:     make(map[int]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch bumps the modification timestamp.
func (s *State) touch() {
	s.UpdatedAt = time.Now()
}

// bumpGeneration invalidates decisions still in flight against the previous
// phase. Called on every phase transition and on restart.
func (s *State) bumpGeneration() {
	s.Generation++
}

// appendEvent adds a public event to the rolling log. Only mechanically
// revealed facts belong here.
func (s *State) appendEvent(ev observe.Event) {
	s.Events = append(s.Events, ev)
	if len(s.Events) > eventLogCap {
		s.Events = s.Events[len(s.Events)-eventLogCap:]
	}
}

// clearMeeting resets the transcript, spoken set and ballot when a meeting
// episode ends and play resumes.
func (s *State) clearMeeting() {
	s.Transcript = nil
	s.Spoken = make(map[int]bool)
	s.Votes = make(map[int]int)
}

// pendingReportFor returns the undiscovered report for a victim, if any.
func (s *State) pendingReportFor(victimID int) *Report {
	for _, r := range s.Reports {
		if r.VictimID == victimID && !r.Reported {
			return r
		}
	}
	return nil
}

// VotedSet returns which agents have a recorded vote, for observations.
func (s *State) VotedSet() map[int]bool {
	out := make(map[int]bool, len(s.Votes))
	for id := range s.Votes {
		out[id] = true
	}
	return out
}

// tallyVotes counts the ballot and returns the ejected agent id. Zero means
// no ejection: a tie, a skip plurality, or an empty ballot.
func (s *State) tallyVotes() int {
	if len(s.Votes) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, target := range s.Votes {
		counts[target]++
	}
	best := 0
	top := make([]int, 0, 2)
	for target, n := range counts {
		switch {
		case n > best:
			best = n
			top = top[:0]
			top = append(top, target)
		case n == best:
			top = append(top, target)
		}
	}
	if len(top) != 1 || top[0] == 0 {
		return 0
	}
	return top[0]
}
