// Package world provides the client for the mineflayer bridge.
//
// The bridge is a sidecar process that owns the Minecraft protocol
// session. It exposes the bot's capabilities (movement, digging,
// inventory, chat, world queries) as RPC calls over a websocket and
// pushes game events (chat messages) back to us. World state belongs
// entirely to the bridge; this package only transports requests.
package world

import "math"

// Vec3 is a position or offset in world coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of v and o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// DistanceTo returns the Euclidean distance between v and o.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Block is a single world block as reported by the bridge.
type Block struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

// Item is an inventory item.
type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Slot  int    `json:"slot"`
}

// BlockQuery selects blocks near the bot by name.
type BlockQuery struct {
	Names       []string `json:"names"`
	MaxDistance float64  `json:"max_distance"`
	Count       int      `json:"count"`
}

// ChatEvent is an inbound chat message from the game.
type ChatEvent struct {
	PlayerName string `json:"player_name"`
	Message    string `json:"message"`
}
