package event

import (
	"errors"
	"testing"
)

func TestDispatchFollowsEmissionOrderAcrossTypes(t *testing.T) {
	b := NewBus()
	var log []string
	Subscribe(b, func(e MoveIntent) error {
		log = append(log, "move")
		return nil
	})
	Subscribe(b, func(e DespawnIntent) error {
		log = append(log, "despawn")
		return nil
	})

	Emit(b, MoveIntent{Entity: 1})
	Emit(b, DespawnIntent{Entity: 2})
	Emit(b, MoveIntent{Entity: 3})
	if err := b.DispatchAll(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("events delivered before swap: %v", log)
	}

	b.SwapBuffers()
	if err := b.DispatchAll(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := []string{"move", "despawn", "move"}
	if len(log) != len(want) {
		t.Fatalf("got %v want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("got %v want %v", log, want)
		}
	}
}

func TestDispatchStopsOnHandlerError(t *testing.T) {
	b := NewBus()
	boom := errors.New("boom")
	calls := 0
	Subscribe(b, func(SetDataIntent) error {
		calls++
		return boom
	})
	Emit(b, SetDataIntent{Entity: 1})
	Emit(b, SetDataIntent{Entity: 2})
	b.SwapBuffers()
	if err := b.DispatchAll(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	if err := b.DispatchAll(); err != nil {
		t.Fatalf("front buffer not consumed: %v", err)
	}
}

func TestResetDropsQueuedEvents(t *testing.T) {
	b := NewBus()
	Emit(b, DespawnIntent{Entity: 1})
	if b.Pending() != 1 {
		t.Fatalf("expected pending event")
	}
	b.Reset()
	if b.Pending() != 0 {
		t.Fatal("reset kept events")
	}
}
