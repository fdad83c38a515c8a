package event

import "github.com/beyawnko/Majestik-World/internal/core/ecs"

// Intents decoded from one input frame. Each is validated against the world
// before it is emitted.

type SpawnIntent struct {
	X, Y    int32
	Heading uint8
	Tag     string
	Data    []byte
}

type DespawnIntent struct {
	Entity ecs.EntityID
}

type MoveIntent struct {
	Entity ecs.EntityID
	DX, DY int8
}

// EditRegionIntent replaces a region payload. An empty Data clears it.
type EditRegionIntent struct {
	X, Y int32
	Data []byte
}

type SetDataIntent struct {
	Entity ecs.EntityID
	Data   []byte
}
