package ecs

import (
	"errors"
	"math"
	"slices"
)

// EntityID identifies one entity for the lifetime of a simulation session.
// IDs are handed out in ascending order starting at 1 and are never reused;
// staleness of external references is tracked by record versions instead.
type EntityID uint64

// MaxEntityID is the largest ID a pool issues. Once it is taken the pool is
// exhausted; the counter never wraps back to 0 or to IDs already used.
const MaxEntityID EntityID = math.MaxUint64 - 1

// ErrPoolExhausted is returned by Create after MaxEntityID was issued.
var ErrPoolExhausted = errors.New("ecs: entity ids exhausted")

func (id EntityID) IsZero() bool { return id == 0 }

// EntityPool allocates entity IDs and tracks which ones are alive.
type EntityPool struct {
	alive map[EntityID]struct{}
	next  EntityID
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		alive: make(map[EntityID]struct{}, 64),
		next:  1,
	}
}

func (p *EntityPool) Create() (EntityID, error) {
	if p.next > MaxEntityID {
		return 0, ErrPoolExhausted
	}
	id := p.next
	p.next++
	p.alive[id] = struct{}{}
	return id, nil
}

// Reserve marks a specific ID alive, used when restoring saved worlds.
// It reports false if the ID is zero, above MaxEntityID or already alive.
// The allocator is advanced past id so it is never handed out again.
func (p *EntityPool) Reserve(id EntityID) bool {
	if id.IsZero() || id > MaxEntityID {
		return false
	}
	if _, ok := p.alive[id]; ok {
		return false
	}
	p.alive[id] = struct{}{}
	if id >= p.next {
		p.next = id + 1
	}
	return true
}

// AdvanceTo moves the allocator forward so no ID below next is handed out.
// Advancing past MaxEntityID exhausts the pool.
func (p *EntityPool) AdvanceTo(next EntityID) {
	if next > p.next {
		p.next = next
	}
}

// Next returns the ID the next Create call will return.
func (p *EntityPool) Next() EntityID { return p.next }

func (p *EntityPool) Alive(id EntityID) bool {
	_, ok := p.alive[id]
	return ok
}

func (p *EntityPool) Destroy(id EntityID) {
	delete(p.alive, id)
}

func (p *EntityPool) Len() int { return len(p.alive) }

// IDs returns the live IDs in ascending order.
func (p *EntityPool) IDs() []EntityID {
	ids := make([]EntityID, 0, len(p.alive))
	for id := range p.alive {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (p *EntityPool) Clone() *EntityPool {
	alive := make(map[EntityID]struct{}, len(p.alive))
	for id := range p.alive {
		alive[id] = struct{}{}
	}
	return &EntityPool{alive: alive, next: p.next}
}
