package delta

import (
	"errors"
	"fmt"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/sim"
	"github.com/beyawnko/Majestik-World/internal/wire"
)

// Block layout, little-endian:
//
//	"MWDB" | u16 format | u64 tick | u32 count | count × record
//	record: u8 kind | key | u32 version | u32 len | payload
//	key:    u64 entity id (entity kinds) or i32 x, i32 y (RegionChanged)
const (
	Magic         = "MWDB"
	FormatVersion = 1

	headerSize      = len(Magic) + 2 + 8 + 4
	entityKeySize   = 8
	regionKeySize   = 8
	recordFixedSize = 1 + 4 + 4
)

// ErrBadBlock is returned when a block cannot be decoded.
var ErrBadBlock = errors.New("delta: bad block")

// Size returns the exact encoded length of b.
func (b Batch) Size() int {
	n := headerSize
	for _, r := range b.Records {
		n += recordFixedSize + r.keySize() + len(r.Payload)
	}
	return n
}

func (r Record) keySize() int {
	if r.Kind.IsEntity() {
		return entityKeySize
	}
	return regionKeySize
}

// MarshalBinary encodes b into a slice of exactly Size bytes.
func (b Batch) MarshalBinary() ([]byte, error) {
	w := wire.NewWriterSize(b.Size())
	w.WriteRaw([]byte(Magic))
	w.WriteU16(FormatVersion)
	w.WriteU64(b.Tick)
	w.WriteU32(uint32(len(b.Records)))
	for i, r := range b.Records {
		w.WriteU8(uint8(r.Kind))
		switch {
		case r.Kind.IsEntity():
			w.WriteU64(uint64(r.Entity))
		case r.Kind == RegionChanged:
			w.WriteI32(r.Region.X)
			w.WriteI32(r.Region.Y)
		default:
			return nil, fmt.Errorf("marshal record %d: unknown kind %v", i, r.Kind)
		}
		w.WriteU32(r.Version)
		w.WriteBytes32(r.Payload)
	}
	return w.Bytes(), nil
}

// UnmarshalBatch decodes a block produced by MarshalBinary. Payloads are
// copied out of data.
func UnmarshalBatch(data []byte) (Batch, error) {
	r := wire.NewReader(data)
	if string(r.ReadBytes(len(Magic))) != Magic {
		return Batch{}, fmt.Errorf("%w: missing magic", ErrBadBlock)
	}
	if f := r.ReadU16(); f != FormatVersion {
		return Batch{}, fmt.Errorf("%w: format %d", ErrBadBlock, f)
	}
	b := Batch{Tick: r.ReadU64()}
	count := r.ReadU32()
	if r.Err() != nil {
		return Batch{}, fmt.Errorf("%w: header: %v", ErrBadBlock, r.Err())
	}
	if uint64(count)*uint64(recordFixedSize+min(entityKeySize, regionKeySize)) > uint64(r.Remaining()) {
		return Batch{}, fmt.Errorf("%w: %d records cannot fit in %d bytes", ErrBadBlock, count, r.Remaining())
	}
	b.Records = make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := Record{Kind: Kind(r.ReadU8())}
		switch {
		case rec.Kind.IsEntity():
			rec.Entity = ecs.EntityID(r.ReadU64())
		case rec.Kind == RegionChanged:
			rec.Region = sim.RegionCoord{X: r.ReadI32(), Y: r.ReadI32()}
		default:
			if r.Err() == nil {
				return Batch{}, fmt.Errorf("%w: record %d: unknown kind %d", ErrBadBlock, i, rec.Kind)
			}
		}
		rec.Version = r.ReadU32()
		rec.Payload = r.ReadBytes32()
		if r.Err() != nil {
			return Batch{}, fmt.Errorf("%w: record %d: %v", ErrBadBlock, i, r.Err())
		}
		b.Records = append(b.Records, rec)
	}
	if err := r.Done(); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrBadBlock, err)
	}
	return b, nil
}
