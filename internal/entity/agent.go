package entity

import "math"

// Role is an agent's secret alignment for the current game.
type Role string

const (
	RoleNone     Role = ""
	RoleCrewmate Role = "crewmate"
	RoleImpostor Role = "impostor"
)

// DefaultSpeed is the per-move displacement in map units.
const DefaultSpeed = 3.0

// MaxAgents is bounded by the color palette.
const MaxAgents = 10

// Colors is the fixed agent palette, assigned by spawn order.
var Colors = []string{
	"#ff0000", // red
	"#0000ff", // blue
	"#00ff00", // green
	"#ffff00", // yellow
	"#ffa500", // orange
	"#800080", // purple
	"#00ffff", // cyan
	"#ffc0cb", // pink
	"#ffffff", // white
	"#8b4513", // brown
}

// Agent is one participant in the arena. Fields are mutated only through
// Roster methods, which the engine serializes under its state lock.
type Agent struct {
	ID          int     `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Color       string  `json:"color"`
	Provider    string  `json:"provider"`
	Personality string  `json:"personality,omitempty"`
	Role        Role    `json:"role,omitempty"`
	Alive       bool    `json:"alive"`
	Speed       float64 `json:"speed"`

	// KillReadyTick is the earliest tick at which this agent may kill again.
	KillReadyTick uint64 `json:"-"`
}

// DistanceTo returns the euclidean distance to another agent.
func (a *Agent) DistanceTo(other *Agent) float64 {
	return distance(a.X, a.Y, other.X, other.Y)
}

// DistanceToPoint returns the euclidean distance to a point.
func (a *Agent) DistanceToPoint(x, y float64) float64 {
	return distance(a.X, a.Y, x, y)
}

func distance(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}
