package worldmap

import "testing"

// TestShipValidates tests that the default layout passes validation
func TestShipValidates(t *testing.T) {
	m := NewShip()
	if err := m.Validate(); err != nil {
		t.Fatalf("Default ship failed validation: %v", err)
	}
}

// TestShipRooms tests room lookup on the default layout
func TestShipRooms(t *testing.T) {
	m := NewShip()

	if len(m.Rooms()) != 5 {
		t.Errorf("Expected 5 rooms, got %d", len(m.Rooms()))
	}

	if m.SpawnRoom() != "Cafeteria" {
		t.Errorf("Expected spawn room 'Cafeteria', got '%s'", m.SpawnRoom())
	}

	for _, name := range []string{"Cafeteria", "Electrical", "MedBay", "Navigation", "Storage"} {
		if _, ok := m.Room(name); !ok {
			t.Errorf("Missing room %s", name)
		}
	}
}

// TestRoomAt tests position-to-room resolution
func TestRoomAt(t *testing.T) {
	m := NewShip()

	sp := m.SpawnPoint()
	room, ok := m.RoomAt(sp.X, sp.Y)
	if !ok {
		t.Fatal("Spawn point is not inside a room")
	}
	if room != "Cafeteria" {
		t.Errorf("Expected Cafeteria at spawn point, got %s", room)
	}

	// A point in the void
	if _, ok := m.RoomAt(-100, -100); ok {
		t.Error("Expected no room outside the map")
	}

	// The midpoint of a hallway is walkable but in no room
	h := m.Hallways()[0]
	hx, hy := h.X+h.Width/2, h.Y+h.Height/2
	if _, ok := m.RoomAt(hx, hy); ok {
		t.Error("Expected no room at hallway midpoint")
	}
	if !m.IsWalkable(hx, hy) {
		t.Error("Expected hallway midpoint to be walkable")
	}
}

// TestIsWalkable tests the walkability query
func TestIsWalkable(t *testing.T) {
	m := NewShip()

	sp := m.SpawnPoint()
	if !m.IsWalkable(sp.X, sp.Y) {
		t.Error("Spawn point should be walkable")
	}

	if m.IsWalkable(-1, -1) {
		t.Error("Out-of-bounds point should not be walkable")
	}
	if m.IsWalkable(0, 0) {
		t.Error("Map corner void should not be walkable")
	}
}

// TestIsWalkableIdempotent tests that repeated queries agree (pure function)
func TestIsWalkableIdempotent(t *testing.T) {
	m := NewShip()

	points := [][2]float64{{640, 360}, {0, 0}, {235.5, 300.25}, {-5, 9999}}
	for _, p := range points {
		first := m.IsWalkable(p[0], p[1])
		for i := 0; i < 10; i++ {
			if m.IsWalkable(p[0], p[1]) != first {
				t.Fatalf("IsWalkable(%v, %v) changed between calls", p[0], p[1])
			}
		}
	}
}

// TestConnected tests room adjacency
func TestConnected(t *testing.T) {
	m := NewShip()

	if !m.Connected("Cafeteria", "MedBay") {
		t.Error("Cafeteria should connect to MedBay")
	}
	if !m.Connected("MedBay", "Cafeteria") {
		t.Error("Connections should be symmetric")
	}
	if m.Connected("MedBay", "Storage") {
		t.Error("MedBay should not connect directly to Storage")
	}
	if m.Connected("Nowhere", "Cafeteria") {
		t.Error("Unknown room should not connect to anything")
	}
}

// TestValidateRejectsDisconnected tests that an isolated room fails validation
func TestValidateRejectsDisconnected(t *testing.T) {
	rooms := []*Room{
		{Name: "A", X: 0, Y: 0, Width: 100, Height: 100, Connections: []string{"B"}},
		{Name: "B", X: 200, Y: 0, Width: 100, Height: 100, Connections: []string{"A"}},
		{Name: "C", X: 400, Y: 0, Width: 100, Height: 100, Connections: nil},
	}
	m := NewFromRooms(rooms, nil, "A")

	if err := m.Validate(); err == nil {
		t.Fatal("Expected validation error for disconnected map")
	}
}

// TestValidateRejectsAsymmetricConnection tests one-way connections
func TestValidateRejectsAsymmetricConnection(t *testing.T) {
	rooms := []*Room{
		{Name: "A", X: 0, Y: 0, Width: 100, Height: 100, Connections: []string{"B"}},
		{Name: "B", X: 200, Y: 0, Width: 100, Height: 100, Connections: nil},
	}
	m := NewFromRooms(rooms, nil, "A")

	if err := m.Validate(); err == nil {
		t.Fatal("Expected validation error for asymmetric connection")
	}
}

// TestValidateRejectsUnknownConnection tests dangling connection names
func TestValidateRejectsUnknownConnection(t *testing.T) {
	rooms := []*Room{
		{Name: "A", X: 0, Y: 0, Width: 100, Height: 100, Connections: []string{"Ghost"}},
	}
	m := NewFromRooms(rooms, nil, "A")

	if err := m.Validate(); err == nil {
		t.Fatal("Expected validation error for unknown connection target")
	}
}
