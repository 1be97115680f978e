package worldmap

import (
	"fmt"
	"sort"
)

// Point is a position in map coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Room is an axis-aligned rectangular room. Immutable after map construction.
type Room struct {
	Name        string   `json:"name"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Connections []string `json:"connections"`
}

// Center returns the midpoint of the room.
func (r *Room) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether the point lies inside the room.
func (r *Room) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Hallway is a rectangular corridor joining two rooms.
type Hallway struct {
	Room1  string  `json:"room1"`
	Room2  string  `json:"room2"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (h *Hallway) contains(x, y float64) bool {
	return x >= h.X && x <= h.X+h.Width && y >= h.Y && y <= h.Y+h.Height
}

// Map is the static world topology. Read-only after construction, so it is
// safe to share between goroutines without locking.
type Map struct {
	rooms     map[string]*Room
	hallways  []*Hallway
	spawnRoom string
}

// Room returns a room by name.
func (m *Map) Room(name string) (*Room, bool) {
	r, ok := m.rooms[name]
	return r, ok
}

// Rooms returns all rooms sorted by name for deterministic iteration.
func (m *Map) Rooms() []*Room {
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Hallways returns all hallways.
func (m *Map) Hallways() []*Hallway {
	return m.hallways
}

// SpawnRoom returns the name of the designated starting room.
func (m *Map) SpawnRoom() string {
	return m.spawnRoom
}

// SpawnPoint returns the center of the spawn room.
func (m *Map) SpawnPoint() Point {
	return m.rooms[m.spawnRoom].Center()
}

// RoomAt returns the room name at the given position. The second return is
// false for hallways and for points outside the map.
func (m *Map) RoomAt(x, y float64) (string, bool) {
	for _, r := range m.rooms {
		if r.Contains(x, y) {
			return r.Name, true
		}
	}
	return "", false
}

// IsWalkable reports whether the position lies inside a room or hallway.
// Out-of-bounds coordinates are simply not walkable, never an error.
func (m *Map) IsWalkable(x, y float64) bool {
	for _, r := range m.rooms {
		if r.Contains(x, y) {
			return true
		}
	}
	for _, h := range m.hallways {
		if h.contains(x, y) {
			return true
		}
	}
	return false
}

// Connected reports whether two rooms are directly joined by a hallway.
func (m *Map) Connected(a, b string) bool {
	ra, ok := m.rooms[a]
	if !ok {
		return false
	}
	for _, c := range ra.Connections {
		if c == b {
			return true
		}
	}
	return false
}

// Validate checks the map's structural invariants: the spawn room exists,
// every connection references a known room, connections are symmetric, every
// hallway joins two known rooms, and the room graph is fully connected.
// A map that fails validation must be rejected before any game starts.
func (m *Map) Validate() error {
	if len(m.rooms) == 0 {
		return fmt.Errorf("map has no rooms")
	}
	if _, ok := m.rooms[m.spawnRoom]; !ok {
		return fmt.Errorf("spawn room %q does not exist", m.spawnRoom)
	}
	for name, r := range m.rooms {
		for _, c := range r.Connections {
			other, ok := m.rooms[c]
			if !ok {
				return fmt.Errorf("room %q connects to unknown room %q", name, c)
			}
			if !contains(other.Connections, name) {
				return fmt.Errorf("connection %q -> %q is not symmetric", name, c)
			}
		}
	}
	for _, h := range m.hallways {
		if _, ok := m.rooms[h.Room1]; !ok {
			return fmt.Errorf("hallway references unknown room %q", h.Room1)
		}
		if _, ok := m.rooms[h.Room2]; !ok {
			return fmt.Errorf("hallway references unknown room %q", h.Room2)
		}
	}

	// BFS from the spawn room over room connections.
	visited := map[string]bool{m.spawnRoom: true}
	queue := []string{m.spawnRoom}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.rooms[cur].Connections {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	if len(visited) != len(m.rooms) {
		var unreachable []string
		for name := range m.rooms {
			if !visited[name] {
				unreachable = append(unreachable, name)
			}
		}
		sort.Strings(unreachable)
		return fmt.Errorf("map is not connected, unreachable rooms: %v", unreachable)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
