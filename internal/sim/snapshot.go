package sim

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/wire"
	"golang.org/x/crypto/blake2b"
)

// RegionCoord is the integer grid coordinate of a terrain region.
type RegionCoord struct {
	X, Y int32
}

// Compare orders coordinates by X, then Y.
func (c RegionCoord) Compare(o RegionCoord) int {
	if r := cmp.Compare(c.X, o.X); r != 0 {
		return r
	}
	return cmp.Compare(c.Y, o.Y)
}

// EntityRecord is the exported state of one entity at one tick.
type EntityRecord struct {
	ID      ecs.EntityID
	Version uint32
	Payload []byte
}

// Region is the exported payload of one terrain region.
type Region struct {
	Coord   RegionCoord
	Payload []byte
}

// Snapshot is an immutable capture of world state at one tick. Payload
// slices are shared between snapshots and must never be written to.
type Snapshot struct {
	Tick     uint64
	Entities map[ecs.EntityID]EntityRecord
	Regions  map[RegionCoord]Region
}

// EntityIDs returns the entity IDs in ascending order.
func (s *Snapshot) EntityIDs() []ecs.EntityID {
	ids := make([]ecs.EntityID, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RegionCoords returns the region coordinates in ascending (X, Y) order.
func (s *Snapshot) RegionCoords() []RegionCoord {
	coords := make([]RegionCoord, 0, len(s.Regions))
	for c := range s.Regions {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, RegionCoord.Compare)
	return coords
}

// MarshalBinary returns the canonical encoding: identical state always
// yields identical bytes.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	w := wire.NewWriterSize(16 + 32*len(s.Entities) + 32*len(s.Regions))
	w.WriteU64(s.Tick)
	w.WriteU32(uint32(len(s.Entities)))
	for _, id := range s.EntityIDs() {
		rec := s.Entities[id]
		w.WriteU64(uint64(id))
		w.WriteU32(rec.Version)
		w.WriteBytes32(rec.Payload)
	}
	w.WriteU32(uint32(len(s.Regions)))
	for _, c := range s.RegionCoords() {
		w.WriteI32(c.X)
		w.WriteI32(c.Y)
		w.WriteBytes32(s.Regions[c].Payload)
	}
	return w.Bytes(), nil
}

// Digest is the blake2b-256 hash of the canonical encoding.
func (s *Snapshot) Digest() [32]byte {
	b, _ := s.MarshalBinary()
	return blake2b.Sum256(b)
}

// Equal reports whether two snapshots hold identical state.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	a, _ := s.MarshalBinary()
	b, _ := o.MarshalBinary()
	return bytes.Equal(a, b)
}
