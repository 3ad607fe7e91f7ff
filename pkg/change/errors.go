package change

import (
	"errors"
	"fmt"

	"github.com/network-synapse/synapse/pkg/util"
)

// Outcome sentinels
var (
	ErrAborted         = errors.New("change aborted")
	ErrHygieneRejected = errors.New("rejected by hygiene gate")
	ErrRolledBack      = errors.New("deployed-then-failed, rolled back")
	ErrAlreadyFinished = errors.New("change already finished")
)

// ChangeError reports a saga that did not succeed.
type ChangeError struct {
	ID       string
	Hostname string
	Phase    Phase
	Step     string
	Outcome  Outcome
	Err      error
}

func (e *ChangeError) Error() string {
	prefix := fmt.Sprintf("change %s on %s", e.ID, e.Hostname)
	switch e.Outcome {
	case OutcomeHygieneRejected:
		return fmt.Sprintf("%s rejected by hygiene gate: %v", prefix, e.Err)
	case OutcomeRolledBack:
		if e.Step == StepValidate {
			return fmt.Sprintf("%s validation failed, rolled back: %v", prefix, e.Err)
		}
		return fmt.Sprintf("%s deployed-then-failed, rolled back: %v", prefix, e.Err)
	case OutcomeRollbackFailed:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s aborted at %s: %v", prefix, e.Step, e.Err)
}

// Unwrap exposes the outcome sentinel and the cause.
func (e *ChangeError) Unwrap() []error {
	var errs []error
	switch e.Outcome {
	case OutcomeAborted:
		errs = append(errs, ErrAborted)
	case OutcomeHygieneRejected:
		errs = append(errs, ErrHygieneRejected, ErrAborted)
	case OutcomeRolledBack:
		errs = append(errs, ErrRolledBack)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ExitCode maps a saga error onto the CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, util.ErrRollbackFailed):
		return 4
	case errors.Is(err, ErrRolledBack):
		return 3
	case errors.Is(err, ErrHygieneRejected):
		return 2
	}
	return 1
}
