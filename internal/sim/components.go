package sim

import (
	"github.com/beyawnko/Majestik-World/internal/wire"
)

const headingCount = 8

// Position is measured in sub-units; one region is Config.RegionSize wide.
type Position struct {
	X, Y int32
}

// Body carries the descriptive state of an entity. Data is replaced, never
// written in place.
type Body struct {
	Heading uint8
	Tag     string
	Wander  bool
	Data    []byte
}

// Motion is the step requested for the current tick, in [-1, 1] per axis.
// It is reset at the start of every tick.
type Motion struct {
	DX, DY int8
}

// headingFor maps a step direction onto the eight compass headings,
// 0 = north (+Y) clockwise.
func headingFor(dx, dy int8, current uint8) uint8 {
	switch {
	case dx == 0 && dy > 0:
		return 0
	case dx > 0 && dy > 0:
		return 1
	case dx > 0 && dy == 0:
		return 2
	case dx > 0 && dy < 0:
		return 3
	case dx == 0 && dy < 0:
		return 4
	case dx < 0 && dy < 0:
		return 5
	case dx < 0 && dy == 0:
		return 6
	case dx < 0 && dy > 0:
		return 7
	}
	return current
}

// encodeEntity produces the payload exported for an entity.
func encodeEntity(p Position, b Body) []byte {
	w := wire.NewWriterSize(16 + len(b.Tag) + len(b.Data))
	w.WriteI32(p.X)
	w.WriteI32(p.Y)
	w.WriteU8(b.Heading)
	w.WriteString16(b.Tag)
	if b.Wander {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	w.WriteBytes16(b.Data)
	return w.Bytes()
}

// EntityState is the decoded form of an entity payload.
type EntityState struct {
	Position
	Body
}

// DecodeEntity parses a payload produced by the core.
func DecodeEntity(payload []byte) (EntityState, error) {
	r := wire.NewReader(payload)
	var st EntityState
	st.X = r.ReadI32()
	st.Y = r.ReadI32()
	st.Heading = r.ReadU8()
	st.Tag = r.ReadString16()
	st.Wander = r.ReadU8() != 0
	st.Data = r.ReadBytes16()
	if err := r.Done(); err != nil {
		return EntityState{}, err
	}
	return st, nil
}
