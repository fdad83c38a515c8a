package delta

import (
	"bytes"
	"errors"
	"testing"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/sim"
)

type testSnap struct{ *sim.Snapshot }

func snap(tick uint64) *testSnap {
	return &testSnap{&sim.Snapshot{
		Tick:     tick,
		Entities: make(map[ecs.EntityID]sim.EntityRecord),
		Regions:  make(map[sim.RegionCoord]sim.Region),
	}}
}

func (s *testSnap) entity(id ecs.EntityID, version uint32, payload string) *testSnap {
	s.Entities[id] = sim.EntityRecord{ID: id, Version: version, Payload: []byte(payload)}
	return s
}

func (s *testSnap) region(x, y int32, payload string) *testSnap {
	c := sim.RegionCoord{X: x, Y: y}
	s.Regions[c] = sim.Region{Coord: c, Payload: []byte(payload)}
	return s
}

func mustMarshal(t *testing.T, b Batch) []byte {
	t.Helper()
	out, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return out
}

func TestEncodeNilPreviousAddsEverything(t *testing.T) {
	cur := snap(0).entity(3, 1, "c").entity(1, 1, "a").region(1, 0, "r10").region(0, 5, "r05")
	b := Encode(nil, cur.Snapshot)
	want := []Record{
		{Kind: EntityAdded, Entity: 1, Version: 1},
		{Kind: EntityAdded, Entity: 3, Version: 1},
		{Kind: RegionChanged, Region: sim.RegionCoord{X: 0, Y: 5}},
		{Kind: RegionChanged, Region: sim.RegionCoord{X: 1, Y: 0}},
	}
	if len(b.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(b.Records))
	}
	for i, w := range want {
		got := b.Records[i]
		if got.Kind != w.Kind || got.Entity != w.Entity || got.Region != w.Region || got.Version != w.Version {
			t.Fatalf("record %d: got %+v, want %+v", i, got, w)
		}
		if len(got.Payload) == 0 {
			t.Fatalf("record %d has no payload", i)
		}
	}
}

func TestEncodeClassifiesChanges(t *testing.T) {
	prev := snap(4).entity(1, 1, "a").entity(2, 1, "b").entity(5, 2, "e").region(0, 0, "x").region(1, 1, "y")
	cur := snap(5).entity(1, 1, "a").entity(2, 2, "b2").entity(7, 1, "g").region(0, 0, "x").region(1, 1, "z").region(2, 0, "w")

	b := Encode(prev.Snapshot, cur.Snapshot)
	if b.Tick != 5 {
		t.Fatalf("expected tick 5, got %d", b.Tick)
	}
	type key struct {
		kind Kind
		id   ecs.EntityID
		rc   sim.RegionCoord
		data string
	}
	want := []key{
		{EntityUpdated, 2, sim.RegionCoord{}, "b2"},
		{EntityRemoved, 5, sim.RegionCoord{}, ""},
		{EntityAdded, 7, sim.RegionCoord{}, "g"},
		{RegionChanged, 0, sim.RegionCoord{X: 1, Y: 1}, "z"},
		{RegionChanged, 0, sim.RegionCoord{X: 2, Y: 0}, "w"},
	}
	if len(b.Records) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(b.Records), b.Records)
	}
	for i, w := range want {
		r := b.Records[i]
		got := key{r.Kind, r.Entity, r.Region, string(r.Payload)}
		if got != w {
			t.Fatalf("record %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestEncodeVersionOnlyChangeIsUpdate(t *testing.T) {
	prev := snap(1).entity(1, 1, "a")
	cur := snap(2).entity(1, 2, "a")
	b := Encode(prev.Snapshot, cur.Snapshot)
	if len(b.Records) != 1 || b.Records[0].Kind != EntityUpdated {
		t.Fatalf("expected one update, got %+v", b.Records)
	}
}

func TestEncodeClearedRegion(t *testing.T) {
	prev := snap(1).region(3, 4, "rock")
	cur := snap(2)
	b := Encode(prev.Snapshot, cur.Snapshot)
	if len(b.Records) != 1 {
		t.Fatalf("expected one record, got %d", len(b.Records))
	}
	r := b.Records[0]
	if r.Kind != RegionChanged || !r.Cleared() || r.Region != (sim.RegionCoord{X: 3, Y: 4}) {
		t.Fatalf("expected cleared region (3,4), got %+v", r)
	}
}

func TestEncodeIdenticalSnapshotsIsEmpty(t *testing.T) {
	s := snap(9).entity(1, 4, "a").region(0, 0, "x")
	b := Encode(s.Snapshot, s.Snapshot)
	if len(b.Records) != 0 {
		t.Fatalf("expected no records, got %+v", b.Records)
	}
}

func TestEncodeIsStable(t *testing.T) {
	prev := snap(1)
	cur := snap(2)
	for i := ecs.EntityID(1); i <= 64; i++ {
		prev.entity(i, 1, "p")
		if i%3 != 0 {
			cur.entity(i, 2, "q")
		}
	}
	for x := int32(0); x < 8; x++ {
		cur.region(x, 7-x, "r")
	}
	first := mustMarshal(t, Encode(prev.Snapshot, cur.Snapshot))
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, mustMarshal(t, Encode(prev.Snapshot, cur.Snapshot))) {
			t.Fatal("encoding is not byte-stable")
		}
	}
}

func TestApplyInvertsEncode(t *testing.T) {
	prev := snap(4).entity(1, 1, "a").entity(2, 1, "b").entity(5, 2, "e").region(0, 0, "x").region(1, 1, "y")
	cur := snap(5).entity(1, 1, "a").entity(2, 2, "b2").entity(7, 1, "g").region(1, 1, "z").region(2, 0, "w")

	got, err := Apply(prev.Snapshot, Encode(prev.Snapshot, cur.Snapshot))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !got.Equal(cur.Snapshot) {
		t.Fatal("apply(prev, encode(prev, cur)) != cur")
	}
	if len(prev.Entities) != 3 || len(prev.Regions) != 2 {
		t.Fatal("apply modified its base")
	}
}

func TestApplyRejectsInconsistentBatch(t *testing.T) {
	base := snap(1).entity(1, 1, "a")
	cases := map[string]Record{
		"add existing":   {Kind: EntityAdded, Entity: 1, Version: 1},
		"update missing": {Kind: EntityUpdated, Entity: 2, Version: 1},
		"remove missing": {Kind: EntityRemoved, Entity: 2},
		"unknown kind":   {Kind: 42},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Apply(base.Snapshot, Batch{Tick: 2, Records: []Record{rec}}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBlockRoundTrip(t *testing.T) {
	prev := snap(10).entity(1, 1, "a").region(0, 0, "x")
	cur := snap(11).entity(2, 1, "bb").region(-1, 3, "neg")

	b := Encode(prev.Snapshot, cur.Snapshot)
	block := mustMarshal(t, b)
	if len(block) != b.Size() {
		t.Fatalf("block is %d bytes, Size says %d", len(block), b.Size())
	}
	if string(block[:4]) != Magic {
		t.Fatalf("missing magic: %q", block[:4])
	}

	back, err := UnmarshalBatch(block)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(mustMarshal(t, back), block) {
		t.Fatal("decoded batch re-encodes differently")
	}
	applied, err := Apply(prev.Snapshot, back)
	if err != nil {
		t.Fatalf("apply decoded: %v", err)
	}
	if !applied.Equal(cur.Snapshot) {
		t.Fatal("decoded batch does not reproduce current snapshot")
	}
}

func TestSizeUsesKeyWidthPerKind(t *testing.T) {
	b := Batch{Tick: 1, Records: []Record{
		{Kind: EntityAdded, Entity: 1, Version: 1, Payload: []byte("ab")},
		{Kind: RegionChanged, Region: sim.RegionCoord{X: 2, Y: -3}, Version: 1, Payload: []byte("xyz")},
	}}
	want := headerSize +
		recordFixedSize + entityKeySize + 2 +
		recordFixedSize + regionKeySize + 3
	if b.Size() != want {
		t.Fatalf("Size %d, want %d", b.Size(), want)
	}
	if block := mustMarshal(t, b); len(block) != want {
		t.Fatalf("block is %d bytes, want %d", len(block), want)
	}
}

func TestUnmarshalRejectsBadBlocks(t *testing.T) {
	good := mustMarshal(t, Encode(nil, snap(1).entity(1, 1, "a").Snapshot))
	cases := map[string][]byte{
		"empty":        nil,
		"bad magic":    append([]byte("XXXX"), good[4:]...),
		"bad format":   append(append([]byte{}, good[:4]...), append([]byte{9, 0}, good[6:]...)...),
		"truncated":    good[:len(good)-1],
		"trailing":     append(append([]byte{}, good...), 0),
		"huge count":   append(append([]byte{}, good[:14]...), 0xff, 0xff, 0xff, 0xff),
		"unknown kind": func() []byte { b := append([]byte{}, good...); b[headerSize] = 99; return b }(),
	}
	for name, block := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalBatch(block); !errors.Is(err, ErrBadBlock) {
				t.Fatalf("expected ErrBadBlock, got %v", err)
			}
		})
	}
}

func TestMoveForwardProducesSingleUpdate(t *testing.T) {
	core, err := sim.New([]byte(`{seed: 1}`))
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	defer core.Shutdown()

	first := Encode(core.Previous(), core.Current())
	if len(first.Records) != 1 || first.Records[0].Kind != EntityAdded {
		t.Fatalf("expected avatar added at tick 0, got %+v", first.Records)
	}

	if _, err := core.Tick(sim.NewFrame().Move(1, 0, 1).Bytes()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	b := Encode(core.Previous(), core.Current())
	if b.Tick != 1 || len(b.Records) != 1 {
		t.Fatalf("expected one record at tick 1, got tick %d %+v", b.Tick, b.Records)
	}
	r := b.Records[0]
	if r.Kind != EntityUpdated || r.Entity != 1 || r.Version != 2 {
		t.Fatalf("unexpected record %+v", r)
	}
	st, err := sim.DecodeEntity(r.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if st.Y != 1000 {
		t.Fatalf("expected avatar one step north, got %+v", st)
	}

	if _, err := core.Tick(sim.NewFrame().Bytes()); err != nil {
		t.Fatalf("idle tick: %v", err)
	}
	if idle := Encode(core.Previous(), core.Current()); len(idle.Records) != 0 {
		t.Fatalf("idle tick produced records: %+v", idle.Records)
	}
}

func TestReplayProducesIdenticalBlocks(t *testing.T) {
	cfg := []byte(`{seed: 42, entities: [{x: 100, y: 100, tag: avatar}, {x: 30000, y: 30000, tag: rat, wander: true}]}`)
	frames := [][]byte{
		sim.NewFrame().Move(1, 1, 0).Bytes(),
		sim.NewFrame().Spawn(500, 500, 0, "crate", []byte("k")).Bytes(),
		sim.NewFrame().EditRegion(0, 1, []byte("snow")).Bytes(),
		sim.NewFrame().Despawn(3).EditRegion(0, 1, nil).Bytes(),
	}
	run := func() [][]byte {
		core, err := sim.New(cfg)
		if err != nil {
			t.Fatalf("new core: %v", err)
		}
		defer core.Shutdown()
		out := [][]byte{mustMarshal(t, Encode(core.Previous(), core.Current()))}
		for _, f := range frames {
			if _, err := core.Tick(f); err != nil {
				t.Fatalf("tick: %v", err)
			}
			out = append(out, mustMarshal(t, Encode(core.Previous(), core.Current())))
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			t.Fatalf("block %d differs between runs", i)
		}
	}
}
