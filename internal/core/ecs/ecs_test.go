package ecs

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func mustCreate(t *testing.T, p *EntityPool) EntityID {
	t.Helper()
	id, err := p.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestEntityPoolNeverReusesIDs(t *testing.T) {
	p := NewEntityPool()
	a := mustCreate(t, p)
	b := mustCreate(t, p)
	p.Destroy(a)
	c := mustCreate(t, p)
	if a == c || b == c {
		t.Fatalf("expected fresh id, got a=%d b=%d c=%d", a, b, c)
	}
	if p.Alive(a) {
		t.Fatalf("destroyed id %d still alive", a)
	}
	if !slices.Equal(p.IDs(), []EntityID{b, c}) {
		t.Fatalf("unexpected live ids %v", p.IDs())
	}
}

func TestEntityPoolReserveAdvancesAllocator(t *testing.T) {
	p := NewEntityPool()
	if !p.Reserve(10) {
		t.Fatal("expected reserve to succeed")
	}
	if p.Reserve(10) {
		t.Fatal("expected duplicate reserve to fail")
	}
	if p.Reserve(0) {
		t.Fatal("expected zero id reserve to fail")
	}
	if got := mustCreate(t, p); got != 11 {
		t.Fatalf("expected 11 after reserve, got %d", got)
	}
}

func TestEntityPoolExhaustsInsteadOfWrapping(t *testing.T) {
	p := NewEntityPool()
	one := mustCreate(t, p)
	p.AdvanceTo(MaxEntityID)
	if got := mustCreate(t, p); got != MaxEntityID {
		t.Fatalf("expected %d, got %d", MaxEntityID, got)
	}
	for i := 0; i < 2; i++ {
		id, err := p.Create()
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("create %d: expected ErrPoolExhausted, got id=%d err=%v", i, id, err)
		}
	}
	if !slices.Equal(p.IDs(), []EntityID{one, MaxEntityID}) {
		t.Fatalf("unexpected live ids %v", p.IDs())
	}
}

func TestEntityPoolReserveRejectsTopID(t *testing.T) {
	p := NewEntityPool()
	if p.Reserve(EntityID(math.MaxUint64)) {
		t.Fatal("expected reserve of MaxUint64 to fail")
	}
	if !p.Reserve(MaxEntityID) {
		t.Fatal("expected reserve of MaxEntityID to succeed")
	}
	if _, err := p.Create(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected exhaustion after reserving the top id, got %v", err)
	}
	if p.Next() == 0 {
		t.Fatal("allocator wrapped to 0")
	}
}

func TestComponentStoreEachIsAscending(t *testing.T) {
	s := NewComponentStore[int]()
	for _, id := range []EntityID{9, 3, 7, 1} {
		s.Set(id, int(id)*10)
	}
	var seen []EntityID
	s.Each(func(id EntityID, v int) {
		if v != int(id)*10 {
			t.Fatalf("value mismatch for %d: %d", id, v)
		}
		seen = append(seen, id)
	})
	if !slices.Equal(seen, []EntityID{1, 3, 7, 9}) {
		t.Fatalf("unexpected order %v", seen)
	}
}

func TestComponentStoreCloneIsIndependent(t *testing.T) {
	s := NewComponentStore[int]()
	s.Set(1, 1)
	c := s.Clone()
	c.Update(1, func(v *int) { *v = 2 })
	c.Set(2, 5)
	if v, _ := s.Get(1); v != 1 {
		t.Fatalf("original mutated: %d", v)
	}
	if s.Has(2) {
		t.Fatal("original gained clone entry")
	}
}

func TestFlushDestroyQueueClearsStores(t *testing.T) {
	w := NewWorld()
	pos := NewComponentStore[int]()
	w.Registry().Register(pos)
	id, err := w.CreateEntity()
	if err != nil {
		t.Fatal(err)
	}
	pos.Set(id, 4)
	w.MarkForDestruction(id)
	w.MarkForDestruction(id)
	if !w.PendingDestruction(id) {
		t.Fatal("expected pending destruction")
	}
	w.FlushDestroyQueue()
	if w.Alive(id) || pos.Has(id) {
		t.Fatal("entity survived flush")
	}
}

func TestEach2VisitsIntersectionInOrder(t *testing.T) {
	a := NewComponentStore[string]()
	b := NewComponentStore[int]()
	for _, id := range []EntityID{5, 2, 8} {
		a.Set(id, "x")
	}
	for _, id := range []EntityID{8, 1, 2, 4} {
		b.Set(id, 1)
	}
	var seen []EntityID
	Each2(a, b, func(id EntityID, _ string, _ int) { seen = append(seen, id) })
	if !slices.Equal(seen, []EntityID{2, 8}) {
		t.Fatalf("unexpected intersection %v", seen)
	}
}
