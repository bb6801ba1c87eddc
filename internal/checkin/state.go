package checkin

import "fmt"

// State is a check-in session's lifecycle position. Transitions are driven by
// pipeline completion events only; nothing outside this package mutates
// session state.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateScoring    State = "scoring"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// validTransitions is the full transition relation. Error is reachable from
// every active state; Complete is terminal except for the in-place fusion
// upgrade, which is not a state change.
var validTransitions = map[State][]State{
	StateIdle:       {StateCapturing, StateError},
	StateCapturing:  {StateProcessing, StateError},
	StateProcessing: {StateScoring, StateError},
	StateScoring:    {StateComplete, StateError},
	StateComplete:   {},
	StateError:      {},
}

// canTransition reports whether from → to is a legal step.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionError describes an illegal state step; it indicates a programming
// error in the pipeline orchestration, not bad user input.
func transitionError(from, to State) error {
	return fmt.Errorf("checkin: illegal transition %s -> %s", from, to)
}
