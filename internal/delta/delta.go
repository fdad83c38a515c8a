// Package delta computes the change records between two world snapshots and
// defines the block format they are published in.
package delta

import (
	"bytes"
	"fmt"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/sim"
)

// Kind tags a change record.
type Kind uint8

const (
	EntityAdded Kind = iota + 1
	EntityRemoved
	EntityUpdated
	RegionChanged
)

func (k Kind) String() string {
	switch k {
	case EntityAdded:
		return "EntityAdded"
	case EntityRemoved:
		return "EntityRemoved"
	case EntityUpdated:
		return "EntityUpdated"
	case RegionChanged:
		return "RegionChanged"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsEntity reports whether records of this kind are keyed by entity ID.
func (k Kind) IsEntity() bool {
	return k == EntityAdded || k == EntityRemoved || k == EntityUpdated
}

// Record is one change. Entity records carry Entity; RegionChanged carries
// Region. Removed records have no version or payload. A RegionChanged with
// an empty payload means the region was cleared.
type Record struct {
	Kind    Kind
	Entity  ecs.EntityID
	Region  sim.RegionCoord
	Version uint32
	Payload []byte
}

// Cleared reports whether r clears a region.
func (r Record) Cleared() bool {
	return r.Kind == RegionChanged && len(r.Payload) == 0
}

// Batch is the ordered change set for one tick: entity records by ascending
// ID, then region records by ascending (X, Y).
type Batch struct {
	Tick    uint64
	Records []Record
}

// Encode diffs prev against cur. It never fails; a nil prev means every
// entity is Added and every region Changed. Payload slices are shared with
// the snapshots.
func Encode(prev, cur *sim.Snapshot) Batch {
	if prev == nil {
		prev = &sim.Snapshot{}
	}
	b := Batch{Tick: cur.Tick}

	prevIDs, curIDs := prev.EntityIDs(), cur.EntityIDs()
	i, j := 0, 0
	for i < len(prevIDs) || j < len(curIDs) {
		switch {
		case j == len(curIDs) || (i < len(prevIDs) && prevIDs[i] < curIDs[j]):
			b.Records = append(b.Records, Record{Kind: EntityRemoved, Entity: prevIDs[i]})
			i++
		case i == len(prevIDs) || curIDs[j] < prevIDs[i]:
			rec := cur.Entities[curIDs[j]]
			b.Records = append(b.Records, Record{Kind: EntityAdded, Entity: rec.ID, Version: rec.Version, Payload: rec.Payload})
			j++
		default:
			old, rec := prev.Entities[prevIDs[i]], cur.Entities[curIDs[j]]
			if old.Version != rec.Version || !bytes.Equal(old.Payload, rec.Payload) {
				b.Records = append(b.Records, Record{Kind: EntityUpdated, Entity: rec.ID, Version: rec.Version, Payload: rec.Payload})
			}
			i++
			j++
		}
	}

	prevRC, curRC := prev.RegionCoords(), cur.RegionCoords()
	i, j = 0, 0
	for i < len(prevRC) || j < len(curRC) {
		switch {
		case j == len(curRC) || (i < len(prevRC) && prevRC[i].Compare(curRC[j]) < 0):
			b.Records = append(b.Records, Record{Kind: RegionChanged, Region: prevRC[i]})
			i++
		case i == len(prevRC) || curRC[j].Compare(prevRC[i]) < 0:
			b.Records = append(b.Records, Record{Kind: RegionChanged, Region: curRC[j], Payload: cur.Regions[curRC[j]].Payload})
			j++
		default:
			old, now := prev.Regions[prevRC[i]], cur.Regions[curRC[j]]
			if !bytes.Equal(old.Payload, now.Payload) {
				b.Records = append(b.Records, Record{Kind: RegionChanged, Region: now.Coord, Payload: now.Payload})
			}
			i++
			j++
		}
	}
	return b
}

// Apply replays b onto base and returns the resulting snapshot; base is not
// modified. It is the host-side inverse of Encode: Apply(prev, Encode(prev,
// cur)) equals cur.
func Apply(base *sim.Snapshot, b Batch) (*sim.Snapshot, error) {
	next := &sim.Snapshot{
		Tick:     b.Tick,
		Entities: make(map[ecs.EntityID]sim.EntityRecord),
		Regions:  make(map[sim.RegionCoord]sim.Region),
	}
	if base != nil {
		for id, rec := range base.Entities {
			next.Entities[id] = rec
		}
		for c, r := range base.Regions {
			next.Regions[c] = r
		}
	}
	for i, rec := range b.Records {
		switch rec.Kind {
		case EntityAdded:
			if _, ok := next.Entities[rec.Entity]; ok {
				return nil, fmt.Errorf("apply record %d: entity %d already exists", i, rec.Entity)
			}
			next.Entities[rec.Entity] = sim.EntityRecord{ID: rec.Entity, Version: rec.Version, Payload: rec.Payload}
		case EntityUpdated:
			if _, ok := next.Entities[rec.Entity]; !ok {
				return nil, fmt.Errorf("apply record %d: unknown entity %d", i, rec.Entity)
			}
			next.Entities[rec.Entity] = sim.EntityRecord{ID: rec.Entity, Version: rec.Version, Payload: rec.Payload}
		case EntityRemoved:
			if _, ok := next.Entities[rec.Entity]; !ok {
				return nil, fmt.Errorf("apply record %d: unknown entity %d", i, rec.Entity)
			}
			delete(next.Entities, rec.Entity)
		case RegionChanged:
			if rec.Cleared() {
				delete(next.Regions, rec.Region)
				continue
			}
			next.Regions[rec.Region] = sim.Region{Coord: rec.Region, Payload: rec.Payload}
		default:
			return nil, fmt.Errorf("apply record %d: %v", i, rec.Kind)
		}
	}
	return next, nil
}
