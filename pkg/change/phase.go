package change

import "fmt"

// Phase is a position in the change saga.
type Phase string

const (
	PhaseStart          Phase = "start"
	PhaseBackedUp       Phase = "backed-up"
	PhaseIntentFetched  Phase = "intent-fetched"
	PhaseRendered       Phase = "rendered"
	PhaseHygienePassed  Phase = "hygiene-passed"
	PhaseDeployed       Phase = "deployed"
	PhaseValidated      Phase = "validated"
	PhaseSucceeded      Phase = "succeeded"
	PhaseAborted        Phase = "aborted"
	PhaseRollingBack    Phase = "rolling-back"
	PhaseRolledBack     Phase = "rolled-back"
	PhaseRollbackFailed Phase = "rollback-failed"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseAborted, PhaseRolledBack, PhaseRollbackFailed:
		return true
	}
	return false
}

// transitions lists the legal successors of every non-terminal phase.
var transitions = map[Phase][]Phase{
	PhaseStart:         {PhaseBackedUp, PhaseAborted},
	PhaseBackedUp:      {PhaseIntentFetched, PhaseAborted},
	PhaseIntentFetched: {PhaseRendered, PhaseAborted},
	PhaseRendered:      {PhaseHygienePassed, PhaseAborted},
	PhaseHygienePassed: {PhaseDeployed, PhaseRollingBack, PhaseAborted},
	PhaseDeployed:      {PhaseValidated, PhaseRollingBack},
	PhaseValidated:     {PhaseSucceeded, PhaseRollingBack},
	PhaseRollingBack:   {PhaseRolledBack, PhaseRollbackFailed},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// TransitionKind classifies why a transition happened.
type TransitionKind string

const (
	KindSuccess          TransitionKind = "success"
	KindRetryableFailure TransitionKind = "retryable-failure"
	KindFatalFailure     TransitionKind = "fatal-failure"
)

// IllegalTransitionError is returned by Record.advance for a move the saga
// does not allow.
type IllegalTransitionError struct {
	From Phase
	To   Phase
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal phase transition %s -> %s", e.From, e.To)
}
