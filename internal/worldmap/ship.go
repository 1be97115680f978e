package worldmap

// Dimensions of the default ship layout, in map units.
const (
	shipWidth  = 1280
	shipHeight = 720

	roomWidth    = 200
	roomHeight   = 150
	hallwayWidth = 40
	roomGap      = 80

	cafeteriaWidth  = 250
	cafeteriaHeight = 180
)

// NewShip builds the default five-room layout:
//
//	        [Navigation]
//	             |
//	[Electrical]--[Cafeteria]--[MedBay]
//	             |
//	        [Storage]
//
// Cafeteria is the central spawn room.
func NewShip() *Map {
	centerX := float64(shipWidth) / 2
	centerY := float64(shipHeight) / 2

	cafeteria := &Room{
		Name:        "Cafeteria",
		X:           centerX - cafeteriaWidth/2,
		Y:           centerY - cafeteriaHeight/2,
		Width:       cafeteriaWidth,
		Height:      cafeteriaHeight,
		Connections: []string{"Electrical", "MedBay", "Navigation", "Storage"},
	}
	electrical := &Room{
		Name:        "Electrical",
		X:           centerX - cafeteriaWidth/2 - roomWidth - roomGap,
		Y:           centerY - roomHeight/2,
		Width:       roomWidth,
		Height:      roomHeight,
		Connections: []string{"Cafeteria"},
	}
	medbay := &Room{
		Name:        "MedBay",
		X:           centerX + cafeteriaWidth/2 + roomGap,
		Y:           centerY - roomHeight/2,
		Width:       roomWidth,
		Height:      roomHeight,
		Connections: []string{"Cafeteria"},
	}
	navigation := &Room{
		Name:        "Navigation",
		X:           centerX - roomWidth/2,
		Y:           centerY - cafeteriaHeight/2 - roomHeight - roomGap,
		Width:       roomWidth,
		Height:      roomHeight,
		Connections: []string{"Cafeteria"},
	}
	storage := &Room{
		Name:        "Storage",
		X:           centerX - roomWidth/2,
		Y:           centerY + cafeteriaHeight/2 + roomGap,
		Width:       roomWidth,
		Height:      roomHeight,
		Connections: []string{"Cafeteria"},
	}

	m := &Map{
		rooms: map[string]*Room{
			cafeteria.Name:  cafeteria,
			electrical.Name: electrical,
			medbay.Name:     medbay,
			navigation.Name: navigation,
			storage.Name:    storage,
		},
		spawnRoom: cafeteria.Name,
	}

	cc := cafeteria.Center()
	m.hallways = []*Hallway{
		{
			Room1: "Cafeteria", Room2: "Electrical",
			X:     electrical.X + electrical.Width,
			Y:     cc.Y - hallwayWidth/2,
			Width: cafeteria.X - (electrical.X + electrical.Width), Height: hallwayWidth,
		},
		{
			Room1: "Cafeteria", Room2: "MedBay",
			X:     cafeteria.X + cafeteria.Width,
			Y:     cc.Y - hallwayWidth/2,
			Width: medbay.X - (cafeteria.X + cafeteria.Width), Height: hallwayWidth,
		},
		{
			Room1: "Cafeteria", Room2: "Navigation",
			X:     cc.X - hallwayWidth/2,
			Y:     navigation.Y + navigation.Height,
			Width: hallwayWidth, Height: cafeteria.Y - (navigation.Y + navigation.Height),
		},
		{
			Room1: "Cafeteria", Room2: "Storage",
			X:     cc.X - hallwayWidth/2,
			Y:     cafeteria.Y + cafeteria.Height,
			Width: hallwayWidth, Height: storage.Y - (cafeteria.Y + cafeteria.Height),
		},
	}

	return m
}

// NewFromRooms builds a map from explicit rooms and hallways, mostly for
// tests and custom layouts. The first room is the spawn room unless a
// non-empty spawn name is given.
func NewFromRooms(rooms []*Room, hallways []*Hallway, spawn string) *Map {
	m := &Map{rooms: make(map[string]*Room, len(rooms)), hallways: hallways}
	for _, r := range rooms {
		m.rooms[r.Name] = r
	}
	if spawn == "" && len(rooms) > 0 {
		spawn = rooms[0].Name
	}
	m.spawnRoom = spawn
	return m
}
