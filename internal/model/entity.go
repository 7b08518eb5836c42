package model

// Kind names one cached entity collection.
type Kind string

const (
	KindHome Kind = "homes"
	KindRoom Kind = "rooms"
	KindLamp Kind = "lamps"
)

// Kinds lists every collection kind in parent-first order.
func Kinds() []Kind {
	return []Kind{KindHome, KindRoom, KindLamp}
}

// Home is the server view of one home.
type Home struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	OwnerUsername string   `json:"owner_username"`
	SharedWith    []string `json:"shared_with"`
}

func (h Home) EntityID() int64 { return h.ID }

// Room is the server view of one room; HomeID is the parent key.
type Room struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Home   string `json:"home"`
	HomeID int64  `json:"home_id"`
}

func (r Room) EntityID() int64 { return r.ID }

// Lamp is the server view of one lamp. Token is the device token used by
// push events and is unrelated to ID.
type Lamp struct {
	ID         int64    `json:"id"`
	Room       string   `json:"room"`
	RoomID     int64    `json:"room_id"`
	SharedWith []string `json:"shared_with"`
	Name       string   `json:"name"`
	Status     bool     `json:"status"`
	Connection bool     `json:"connection"`
	Token      string   `json:"token,omitempty"`
}

func (l Lamp) EntityID() int64 { return l.ID }

// DeviceToken returns the join key for device-originated updates.
func (l Lamp) DeviceToken() string { return l.Token }

// HomeInput is the create payload for POST /Profile/home/.
type HomeInput struct {
	Name         string  `json:"name"`
	SharedWithID []int64 `json:"shared_with_id,omitempty"`
}

// RoomInput is the create payload for POST /Profile/room/.
type RoomInput struct {
	Name string `json:"name"`
	Home int64  `json:"home"`
}

// LampInput is the create payload for POST /Profile/lamp/.
type LampInput struct {
	Name         string  `json:"name"`
	Status       *bool   `json:"status,omitempty"`
	Room         int64   `json:"room"`
	SharedWithID []int64 `json:"shared_with_id,omitempty"`
}

// LampStatusUpdate is the body of PATCH /Profile/lamp/{id}/status/.
type LampStatusUpdate struct {
	Status bool `json:"status"`
}

// VoiceCommandResult is the backend's interpretation of a voice command. Its
// shape depends on the routed action, so it is kept as raw JSON fields.
type VoiceCommandResult map[string]any
