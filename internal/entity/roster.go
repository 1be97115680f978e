package entity

import (
	"fmt"
	"math"
	"sort"

	"github.com/minhqd/among-arena/internal/worldmap"
)

// Direction is a movement intent.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// Directions lists all movement directions in a fixed order, used for
// seeded random fallback moves.
var Directions = []Direction{DirUp, DirDown, DirLeft, DirRight}

// Binding ties a spawned agent to its decision provider.
type Binding struct {
	Provider    string
	Personality string
}

// Roster is the mutable set of agents. It is not internally synchronized:
// the game engine is the single writer and serializes all access under its
// state lock.
type Roster struct {
	world  *worldmap.Map
	agents []*Agent
	byID   map[int]*Agent
}

// NewRoster creates an empty roster over a map.
func NewRoster(world *worldmap.Map) *Roster {
	return &Roster{world: world, byID: make(map[int]*Agent)}
}

const spawnSpread = 40.0
const spawnCols = 4

// Spawn places count agents at spread-out positions in the spawn room and
// binds each to a provider. Agent IDs are 1-based in spawn order. Spawning
// twice, or spawning more agents than there are colors or spread slots,
// fails.
func (r *Roster) Spawn(count int, bindings []Binding) ([]int, error) {
	if len(r.agents) > 0 {
		return nil, fmt.Errorf("roster already spawned")
	}
	if count < 1 || count > MaxAgents {
		return nil, fmt.Errorf("agent count %d out of range 1-%d", count, MaxAgents)
	}
	if len(bindings) != count {
		return nil, fmt.Errorf("got %d provider bindings for %d agents", len(bindings), count)
	}

	room, ok := r.world.Room(r.world.SpawnRoom())
	if !ok {
		return nil, fmt.Errorf("spawn room %q missing", r.world.SpawnRoom())
	}
	positions := spawnGrid(room.Center(), count)
	for _, p := range positions {
		if !r.world.IsWalkable(p.X, p.Y) {
			return nil, fmt.Errorf("spawn room too small for %d agents", count)
		}
	}

	ids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		a := &Agent{
			ID:          i + 1,
			X:           positions[i].X,
			Y:           positions[i].Y,
			Color:       Colors[i],
			Provider:    bindings[i].Provider,
			Personality: bindings[i].Personality,
			Alive:       true,
			Speed:       DefaultSpeed,
		}
		r.agents = append(r.agents, a)
		r.byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// spawnGrid lays out spread-out positions in rows of four around a center.
func spawnGrid(center worldmap.Point, count int) []worldmap.Point {
	rows := (count + spawnCols - 1) / spawnCols
	cols := count
	if cols > spawnCols {
		cols = spawnCols
	}
	startX := center.X - float64(cols-1)*spawnSpread/2
	startY := center.Y - float64(rows-1)*spawnSpread/2

	positions := make([]worldmap.Point, 0, count)
	for i := 0; i < count; i++ {
		row := i / spawnCols
		col := i % spawnCols
		positions = append(positions, worldmap.Point{
			X: startX + float64(col)*spawnSpread,
			Y: startY + float64(row)*spawnSpread,
		})
	}
	return positions
}

// Agent returns an agent by id.
func (r *Roster) Agent(id int) (*Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Agents returns all agents in id order.
func (r *Roster) Agents() []*Agent {
	out := make([]*Agent, len(r.agents))
	copy(out, r.agents)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Alive returns all living agents in id order.
func (r *Roster) Alive() []*Agent {
	var out []*Agent
	for _, a := range r.Agents() {
		if a.Alive {
			out = append(out, a)
		}
	}
	return out
}

// Count returns the roster size.
func (r *Roster) Count() int {
	return len(r.agents)
}

// Move displaces an agent one step in a direction. The move is silently
// clamped when the destination is not walkable; the return reports whether
// the position changed. Dead agents do not move.
func (r *Roster) Move(id int, dir Direction) bool {
	a, ok := r.byID[id]
	if !ok || !a.Alive {
		return false
	}
	nx, ny := a.X, a.Y
	switch dir {
	case DirUp:
		ny -= a.Speed
	case DirDown:
		ny += a.Speed
	case DirLeft:
		nx -= a.Speed
	case DirRight:
		nx += a.Speed
	default:
		return false
	}
	if !r.world.IsWalkable(nx, ny) {
		return false
	}
	a.X, a.Y = nx, ny
	return true
}

// MoveTowards steps an agent toward a target point, clamped by walkability.
func (r *Roster) MoveTowards(id int, tx, ty float64) bool {
	a, ok := r.byID[id]
	if !ok || !a.Alive {
		return false
	}
	dx := tx - a.X
	dy := ty - a.Y
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist < a.Speed {
		return false
	}
	nx := a.X + dx/dist*a.Speed
	ny := a.Y + dy/dist*a.Speed
	if !r.world.IsWalkable(nx, ny) {
		return false
	}
	a.X, a.Y = nx, ny
	return true
}

// Kill marks an agent dead. Legality (actor role, proximity, phase) is the
// validator's job; the roster only performs the state flip and rejects a
// second death.
func (r *Roster) Kill(id int) error {
	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("unknown agent %d", id)
	}
	if !a.Alive {
		return fmt.Errorf("agent %d is already dead", id)
	}
	a.Alive = false
	return nil
}

// AssignRole sets an agent's role for the game. Reassigning a role before a
// reset is an invariant violation and fails loudly.
func (r *Roster) AssignRole(id int, role Role) error {
	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("unknown agent %d", id)
	}
	if a.Role != RoleNone {
		return fmt.Errorf("agent %d already has role %q", id, a.Role)
	}
	a.Role = role
	return nil
}

// ResetForRestart clears roles, revives everyone and returns agents to
// their spawn positions, keeping provider bindings.
func (r *Roster) ResetForRestart() {
	room, ok := r.world.Room(r.world.SpawnRoom())
	if !ok {
		return
	}
	positions := spawnGrid(room.Center(), len(r.agents))
	for i, a := range r.Agents() {
		a.Role = RoleNone
		a.Alive = true
		a.KillReadyTick = 0
		a.X = positions[i].X
		a.Y = positions[i].Y
	}
}

// Nearby returns the ids of living agents within radius of the given agent,
// excluding the agent itself, in id order.
func (r *Roster) Nearby(id int, radius float64) []int {
	a, ok := r.byID[id]
	if !ok {
		return nil
	}
	var out []int
	for _, other := range r.Agents() {
		if other.ID == id || !other.Alive {
			continue
		}
		if a.DistanceTo(other) <= radius {
			out = append(out, other.ID)
		}
	}
	return out
}

// InRoom returns the ids of agents currently inside the named room, in id
// order.
func (r *Roster) InRoom(room string) []int {
	var out []int
	for _, a := range r.Agents() {
		if got, ok := r.world.RoomAt(a.X, a.Y); ok && got == room {
			out = append(out, a.ID)
		}
	}
	return out
}

// SameRoom reports whether two agents stand in the same room. Agents in
// hallways are in no room and never co-located for kill purposes.
func (r *Roster) SameRoom(a, b int) bool {
	aa, ok := r.byID[a]
	if !ok {
		return false
	}
	bb, ok := r.byID[b]
	if !ok {
		return false
	}
	ra, okA := r.world.RoomAt(aa.X, aa.Y)
	rb, okB := r.world.RoomAt(bb.X, bb.Y)
	return okA && okB && ra == rb
}
