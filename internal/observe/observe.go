// Package observe projects full game state into per-agent, role- and
// vision-scoped observations. This is the only point where state crosses the
// core/provider boundary: nothing derived from full state may reach an agent
// except through Builder.Build.
package observe

import (
	"fmt"

	"github.com/minhqd/among-arena/internal/entity"
	"github.com/minhqd/among-arena/internal/worldmap"
)

// HallwayLocation names positions that are walkable but inside no room.
const HallwayLocation = "Hallway"

// Default vision radii by role, in map units.
const (
	DefaultCrewmateVision = 150.0
	DefaultImpostorVision = 180.0
)

// DefaultDigestLen bounds the recent-event digest to keep provider input
// size and cost bounded.
const DefaultDigestLen = 8

// ChatMessage is one transcript entry from a discussion phase.
type ChatMessage struct {
	AgentID int    `json:"agent_id"`
	Message string `json:"message"`
}

// Event is one entry in the public event digest. Only mechanically revealed
// facts may appear here, such as body reports, meetings, ejections and
// phase changes. Never a living agent's role.
type Event struct {
	Tick    uint64 `json:"tick"`
	Kind    string `json:"kind"`
	AgentID int    `json:"agent_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Self describes the observing agent's own status.
type Self struct {
	ID       int         `json:"id"`
	Role     entity.Role `json:"role"`
	Alive    bool        `json:"alive"`
	Location string      `json:"location"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
}

// VisibleAgent is what an observer learns about another agent in view. Role
// is present only when mechanically known: a fellow impostor, or a corpse.
type VisibleAgent struct {
	ID       int         `json:"id"`
	Location string      `json:"location"`
	Alive    bool        `json:"alive"`
	Role     entity.Role `json:"role,omitempty"`
}

// Observation is the immutable per-agent snapshot handed to a provider.
// Built fresh every decision tick and never shared between agents.
type Observation struct {
	AgentID         int            `json:"agent_id"`
	Tick            uint64         `json:"tick"`
	Phase           string         `json:"phase"`
	Round           int            `json:"round"`
	Self            Self           `json:"self"`
	Visible         []VisibleAgent `json:"visible_agents"`
	FellowImpostors []int          `json:"fellow_impostors,omitempty"`
	RecentEvents    []Event        `json:"recent_events"`
	Transcript      []ChatMessage  `json:"transcript,omitempty"`
	AliveAgents     []int          `json:"alive_agents,omitempty"`
	HasSpoken       bool           `json:"has_spoken"`
	HasVoted        bool           `json:"has_voted"`
}

// StateView is the slice of game state the builder needs beyond the roster:
// phase bookkeeping, the transcript and the public event log. The engine
// passes it by value under its state lock.
type StateView struct {
	Tick       uint64
	Phase      string
	Round      int
	Transcript []ChatMessage
	Events     []Event
	Spoken     map[int]bool
	Voted      map[int]bool
	InMeeting  bool
}

// Builder constructs observations from the world, the roster and a state
// view.
type Builder struct {
	World          *worldmap.Map
	Roster         *entity.Roster
	CrewmateVision float64
	ImpostorVision float64
	DigestLen      int
}

// NewBuilder returns a builder with the default vision radii and digest
// bound.
func NewBuilder(world *worldmap.Map, roster *entity.Roster) *Builder {
	return &Builder{
		World:          world,
		Roster:         roster,
		CrewmateVision: DefaultCrewmateVision,
		ImpostorVision: DefaultImpostorVision,
		DigestLen:      DefaultDigestLen,
	}
}

// VisionRadius returns the vision radius for an agent based on its role.
func (b *Builder) VisionRadius(a *entity.Agent) float64 {
	if a.Role == entity.RoleImpostor {
		return b.ImpostorVision
	}
	return b.CrewmateVision
}

// Build constructs the observation for one agent. Visibility rules:
// living agents see others within their role's vision radius; ghosts see
// everyone. A living agent's role is never exposed to anyone but itself,
// except between impostors.
func (b *Builder) Build(agentID int, view StateView) (*Observation, error) {
	self, ok := b.Roster.Agent(agentID)
	if !ok {
		return nil, fmt.Errorf("unknown agent %d", agentID)
	}

	obs := &Observation{
		AgentID: agentID,
		Tick:    view.Tick,
		Phase:   view.Phase,
		Round:   view.Round,
		Self: Self{
			ID:       self.ID,
			Role:     self.Role,
			Alive:    self.Alive,
			Location: b.locationOf(self),
			X:        self.X,
			Y:        self.Y,
		},
		HasSpoken: view.Spoken[agentID],
		HasVoted:  view.Voted[agentID],
	}

	radius := b.VisionRadius(self)
	for _, other := range b.Roster.Agents() {
		if other.ID == agentID {
			continue
		}
		if self.Alive && self.DistanceTo(other) > radius {
			continue
		}
		va := VisibleAgent{
			ID:       other.ID,
			Location: b.locationOf(other),
			Alive:    other.Alive,
		}
		// Mechanically revealed roles only: impostors recognize each
		// other; a corpse's role is public knowledge once seen.
		if self.Role == entity.RoleImpostor && other.Role == entity.RoleImpostor {
			va.Role = other.Role
		}
		if !other.Alive {
			va.Role = other.Role
		}
		obs.Visible = append(obs.Visible, va)
	}

	if self.Role == entity.RoleImpostor {
		for _, other := range b.Roster.Agents() {
			if other.ID != agentID && other.Role == entity.RoleImpostor {
				obs.FellowImpostors = append(obs.FellowImpostors, other.ID)
			}
		}
	}

	// Meetings are common knowledge: everyone alive is a known voting
	// candidate during discussion and voting.
	if view.InMeeting {
		for _, a := range b.Roster.Alive() {
			obs.AliveAgents = append(obs.AliveAgents, a.ID)
		}
		obs.Transcript = append([]ChatMessage(nil), view.Transcript...)
	}

	obs.RecentEvents = b.digest(view.Events)
	return obs, nil
}

// digest returns the bounded event digest, most recent first.
func (b *Builder) digest(events []Event) []Event {
	limit := b.DigestLen
	if limit <= 0 {
		limit = DefaultDigestLen
	}
	n := len(events)
	if n > limit {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(events) - 1; i >= len(events)-n; i-- {
		out = append(out, events[i])
	}
	return out
}

func (b *Builder) locationOf(a *entity.Agent) string {
	if room, ok := b.World.RoomAt(a.X, a.Y); ok {
		return room
	}
	return HallwayLocation
}
