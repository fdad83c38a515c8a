package system

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: decode the input frame into intents
	PhasePreUpdate               // 1: dispatch intents to their handlers
	PhaseUpdate                  // 2: rules, AI
	PhasePostUpdate              // 3: movement integration, bounds
	PhaseCleanup                 // 4: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every tick system implements. C is the per-tick
// context the runner hands to each system.
type System[C any] interface {
	Phase() Phase
	Update(ctx C) error
}
