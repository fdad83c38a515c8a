package system

import (
	"errors"
	"strings"
	"testing"
)

type recordSystem struct {
	name  string
	phase Phase
	err   error
}

func (s recordSystem) Phase() Phase { return s.phase }

func (s recordSystem) Update(log *[]string) error {
	*log = append(*log, s.name)
	return s.err
}

func TestRunnerOrdersByPhaseStably(t *testing.T) {
	r := NewRunner[*[]string]()
	r.Register(recordSystem{name: "cleanup", phase: PhaseCleanup})
	r.Register(recordSystem{name: "update-a", phase: PhaseUpdate})
	r.Register(recordSystem{name: "input", phase: PhaseInput})
	r.Register(recordSystem{name: "update-b", phase: PhaseUpdate})

	var log []string
	if err := r.Tick(&log); err != nil {
		t.Fatalf("tick: %v", err)
	}
	want := "input,update-a,update-b,cleanup"
	if got := strings.Join(log, ","); got != want {
		t.Fatalf("order: got %s want %s", got, want)
	}
}

func TestRunnerStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner[*[]string]()
	r.Register(recordSystem{name: "input", phase: PhaseInput, err: boom})
	r.Register(recordSystem{name: "update", phase: PhaseUpdate})

	var log []string
	err := r.Tick(&log)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "input phase") {
		t.Fatalf("expected phase in error, got %q", err)
	}
	if len(log) != 1 {
		t.Fatalf("later systems ran: %v", log)
	}
}
