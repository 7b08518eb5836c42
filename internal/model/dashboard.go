package model

import "sort"

// Dashboard is the homes → rooms → lamps tree rendered by UIs.
type Dashboard struct {
	Homes []HomeNode `json:"homes"`
}

// HomeNode is one home with its rooms.
type HomeNode struct {
	Home      Home       `json:"home"`
	Rooms     []RoomNode `json:"rooms"`
	LampCount int        `json:"lamp_count"`
}

// RoomNode is one room with its lamps.
type RoomNode struct {
	Room  Room   `json:"room"`
	Lamps []Lamp `json:"lamps"`
}

// BuildDashboard groups rooms by HomeID and lamps by RoomID. Rooms and lamps
// whose parent is not present are dropped. Order follows the input order of
// each collection.
func BuildDashboard(homes []Home, rooms []Room, lamps []Lamp) Dashboard {
	lampsByRoom := make(map[int64][]Lamp, len(rooms))
	for _, lamp := range lamps {
		lampsByRoom[lamp.RoomID] = append(lampsByRoom[lamp.RoomID], lamp)
	}
	roomsByHome := make(map[int64][]Room, len(homes))
	for _, room := range rooms {
		roomsByHome[room.HomeID] = append(roomsByHome[room.HomeID], room)
	}

	out := Dashboard{Homes: make([]HomeNode, 0, len(homes))}
	for _, home := range homes {
		node := HomeNode{Home: home, Rooms: []RoomNode{}}
		for _, room := range roomsByHome[home.ID] {
			roomLamps := lampsByRoom[room.ID]
			if roomLamps == nil {
				roomLamps = []Lamp{}
			}
			node.Rooms = append(node.Rooms, RoomNode{Room: room, Lamps: roomLamps})
			node.LampCount += len(roomLamps)
		}
		out.Homes = append(out.Homes, node)
	}
	return out
}

// SortByID orders entities by primary key in place.
func SortByID[T interface{ EntityID() int64 }](items []T) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].EntityID() < items[j].EntityID() })
}
