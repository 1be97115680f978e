package game

import (
	"time"

	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/observe"
)

// AgentView is one agent as shown to spectators. Roles are withheld for
// living agents until the game is over; corpses reveal theirs.
type AgentView struct {
	ID       int         `json:"id"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Color    string      `json:"color"`
	Provider string      `json:"provider"`
	Alive    bool        `json:"alive"`
	Role     entity.Role `json:"role,omitempty"`
}

// Snapshot is a read-only copy of game state for the API and spectator
// feeds. Built under the read lock; safe to serialize concurrently with
// the game loop.
type Snapshot struct {
	ID         string                `json:"id"`
	Phase      Phase                 `json:"phase"`
	Tick       uint64                `json:"tick"`
	Round      int                   `json:"round"`
	Seed       int64                 `json:"seed"`
	Agents     []AgentView           `json:"agents"`
	Transcript []observe.ChatMessage `json:"transcript,omitempty"`
	Events     []observe.Event       `json:"events,omitempty"`
	Winner     entity.Role           `json:"winner,omitempty"`
	Reason     WinReason             `json:"reason,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Result is the final outcome of a finished game.
type Result struct {
	GameID   string      `json:"game_id"`
	Winner   entity.Role `json:"winner"`
	Reason   WinReason   `json:"reason"`
	Rounds   int         `json:"rounds"`
	Ticks    uint64      `json:"ticks"`
	Seed     int64       `json:"seed"`
	Agents   int         `json:"agents"`
	Finished time.Time   `json:"finished"`
}

// Snapshot returns the current spectator view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	over := e.state.Phase == PhaseGameOver
	agents := e.roster.Agents()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		v := AgentView{
			ID: a.ID, X: a.X, Y: a.Y, Color: a.Color,
			Provider: a.Provider, Alive: a.Alive,
		}
		if over || !a.Alive {
			v.Role = a.Role
		}
		views = append(views, v)
	}

	transcript := append([]observe.ChatMessage(nil), e.state.Transcript...)
	events := append([]observe.Event(nil), e.state.Events...)

	return Snapshot{
		ID:         e.ID,
		Phase:      e.state.Phase,
		Tick:       e.state.Tick,
		Round:      e.state.Round,
		Seed:       e.state.Seed,
		Agents:     views,
		Transcript: transcript,
		Events:     events,
		Winner:     e.state.Winner,
		Reason:     e.state.Reason,
		UpdatedAt:  e.state.UpdatedAt,
	}
}

// Result returns the outcome of a finished game, or ok=false while the game
// is still running.
func (e *Engine) Result() (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state.Phase != PhaseGameOver {
		return Result{}, false
	}
	return Result{
		GameID:   e.ID,
		Winner:   e.state.Winner,
		Reason:   e.state.Reason,
		Rounds:   e.state.Round,
		Ticks:    e.state.Tick,
		Seed:     e.state.Seed,
		Agents:   e.roster.Count(),
		Finished: e.state.UpdatedAt,
	}, true
}
