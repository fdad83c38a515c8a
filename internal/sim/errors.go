package sim

import "errors"

var (
	// ErrConfigInvalid reports an init config blob that cannot be parsed or
	// violates world invariants.
	ErrConfigInvalid = errors.New("sim: invalid config")
	// ErrMalformedInput reports an input frame that fails structural or
	// range validation.
	ErrMalformedInput = errors.New("sim: malformed input frame")
	// ErrRuleFault reports a failure inside the rule script hook.
	ErrRuleFault = errors.New("sim: rule script fault")
	// ErrExhausted reports that a tick would run past the tick index or the
	// entity ID space. The world is left as it was.
	ErrExhausted = errors.New("sim: counter exhausted")
	// ErrShutdown is returned by every operation on a core that was shut down.
	ErrShutdown = errors.New("sim: core is shut down")
)
