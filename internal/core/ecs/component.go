package ecs

import "slices"

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// ComponentStore is a generic typed map store for ECS components. Values
// are stored by value so a store can be cloned with a plain map copy;
// component types must treat any slices they hold as immutable.
type ComponentStore[T any] struct {
	data map[EntityID]T
}

func NewComponentStore[T any]() *ComponentStore[T] {
	return &ComponentStore[T]{
		data: make(map[EntityID]T, 64),
	}
}

func (s *ComponentStore[T]) Set(id EntityID, c T) {
	s.data[id] = c
}

func (s *ComponentStore[T]) Get(id EntityID) (T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// Update applies fn to the component of id, if present.
func (s *ComponentStore[T]) Update(id EntityID, fn func(*T)) bool {
	c, ok := s.data[id]
	if !ok {
		return false
	}
	fn(&c)
	s.data[id] = c
	return true
}

func (s *ComponentStore[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *ComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *ComponentStore[T]) Len() int {
	return len(s.data)
}

// IDs returns the IDs holding this component in ascending order.
func (s *ComponentStore[T]) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Each visits components in ascending ID order. Map order never leaks out
// of the store.
func (s *ComponentStore[T]) Each(fn func(EntityID, T)) {
	for _, id := range s.IDs() {
		fn(id, s.data[id])
	}
}

func (s *ComponentStore[T]) Clone() *ComponentStore[T] {
	data := make(map[EntityID]T, len(s.data))
	for id, c := range s.data {
		data[id] = c
	}
	return &ComponentStore[T]{data: data}
}
