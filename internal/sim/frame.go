package sim

import (
	"fmt"
	"math"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/core/event"
	"github.com/beyawnko/Majestik-World/internal/wire"
)

// Intent kinds in the input frame encoding.
const (
	IntentSpawn      byte = 1
	IntentDespawn    byte = 2
	IntentMove       byte = 3
	IntentEditRegion byte = 4
	IntentSetData    byte = 5
)

// DecodeFrame parses the structure of an input frame:
//
//	u16 count, then count × (u8 kind, fields)
//
// It checks layout only; ranges are checked against the world by the input
// system. An empty intent list is a valid frame (an idle tick).
func DecodeFrame(frame []byte) ([]any, error) {
	r := wire.NewReader(frame)
	count := int(r.ReadU16())
	if r.Err() != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedInput, r.Err())
	}
	if count > MaxIntentsPerFrame {
		return nil, fmt.Errorf("%w: %d intents exceeds %d", ErrMalformedInput, count, MaxIntentsPerFrame)
	}
	intents := make([]any, 0, count)
	for i := 0; i < count; i++ {
		kind := r.ReadU8()
		var in any
		switch kind {
		case IntentSpawn:
			in = event.SpawnIntent{
				X:       r.ReadI32(),
				Y:       r.ReadI32(),
				Heading: r.ReadU8(),
				Tag:     r.ReadString16(),
				Data:    r.ReadBytes16(),
			}
		case IntentDespawn:
			in = event.DespawnIntent{Entity: ecs.EntityID(r.ReadU64())}
		case IntentMove:
			in = event.MoveIntent{
				Entity: ecs.EntityID(r.ReadU64()),
				DX:     r.ReadI8(),
				DY:     r.ReadI8(),
			}
		case IntentEditRegion:
			in = event.EditRegionIntent{
				X:    r.ReadI32(),
				Y:    r.ReadI32(),
				Data: r.ReadBytes16(),
			}
		case IntentSetData:
			in = event.SetDataIntent{
				Entity: ecs.EntityID(r.ReadU64()),
				Data:   r.ReadBytes16(),
			}
		default:
			if r.Err() == nil {
				return nil, fmt.Errorf("%w: intent %d: unknown kind %d", ErrMalformedInput, i, kind)
			}
		}
		if r.Err() != nil {
			return nil, fmt.Errorf("%w: intent %d: %v", ErrMalformedInput, i, r.Err())
		}
		intents = append(intents, in)
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return intents, nil
}

// FrameBuilder assembles an input frame. Hosts that do not link this
// package produce the same bytes by hand.
type FrameBuilder struct {
	body  *wire.Writer
	count int
}

func NewFrame() *FrameBuilder {
	return &FrameBuilder{body: wire.NewWriter()}
}

func (f *FrameBuilder) Spawn(x, y int32, heading uint8, tag string, data []byte) *FrameBuilder {
	f.body.WriteU8(IntentSpawn)
	f.body.WriteI32(x)
	f.body.WriteI32(y)
	f.body.WriteU8(heading)
	f.body.WriteString16(tag)
	f.body.WriteBytes16(data)
	f.count++
	return f
}

func (f *FrameBuilder) Despawn(id ecs.EntityID) *FrameBuilder {
	f.body.WriteU8(IntentDespawn)
	f.body.WriteU64(uint64(id))
	f.count++
	return f
}

func (f *FrameBuilder) Move(id ecs.EntityID, dx, dy int8) *FrameBuilder {
	f.body.WriteU8(IntentMove)
	f.body.WriteU64(uint64(id))
	f.body.WriteI8(dx)
	f.body.WriteI8(dy)
	f.count++
	return f
}

func (f *FrameBuilder) EditRegion(x, y int32, data []byte) *FrameBuilder {
	f.body.WriteU8(IntentEditRegion)
	f.body.WriteI32(x)
	f.body.WriteI32(y)
	f.body.WriteBytes16(data)
	f.count++
	return f
}

func (f *FrameBuilder) SetData(id ecs.EntityID, data []byte) *FrameBuilder {
	f.body.WriteU8(IntentSetData)
	f.body.WriteU64(uint64(id))
	f.body.WriteBytes16(data)
	f.count++
	return f
}

// Bytes returns the encoded frame. It panics if more intents were added
// than the u16 count can carry.
func (f *FrameBuilder) Bytes() []byte {
	if f.count > math.MaxUint16 {
		panic(fmt.Sprintf("sim: frame holds %d intents, count field caps at %d", f.count, math.MaxUint16))
	}
	w := wire.NewWriterSize(2 + f.body.Len())
	w.WriteU16(uint16(f.count))
	w.WriteRaw(f.body.Bytes())
	return w.Bytes()
}
