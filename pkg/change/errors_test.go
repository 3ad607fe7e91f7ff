package change

import (
	"errors"
	"strings"
	"testing"

	"github.com/network-synapse/synapse/pkg/util"
)

func TestChangeErrorIs(t *testing.T) {
	cause := util.NewConnectivityError("set", "172.20.20.5", errors.New("reset"))
	rf := util.NewRollbackFailedError("leaf01", "chg-1", cause, errors.New("replace refused"))

	tests := []struct {
		name    string
		err     *ChangeError
		is      []error
		isNot   []error
		exit    int
		message string
	}{
		{
			name:    "aborted",
			err:     &ChangeError{ID: "chg-1", Hostname: "leaf01", Step: StepBackup, Outcome: OutcomeAborted, Err: cause},
			is:      []error{ErrAborted, util.ErrConnectivity},
			isNot:   []error{ErrRolledBack, ErrHygieneRejected},
			exit:    1,
			message: "aborted at backup",
		},
		{
			name:    "hygiene",
			err:     &ChangeError{ID: "chg-1", Hostname: "leaf01", Step: StepHygiene, Outcome: OutcomeHygieneRejected, Err: util.NewValidationError("bad")},
			is:      []error{ErrHygieneRejected, ErrAborted, util.ErrValidationFailed},
			isNot:   []error{ErrRolledBack},
			exit:    2,
			message: "rejected by hygiene gate",
		},
		{
			name:    "rolled back after deploy",
			err:     &ChangeError{ID: "chg-1", Hostname: "leaf01", Step: StepDeploy, Outcome: OutcomeRolledBack, Err: cause},
			is:      []error{ErrRolledBack, util.ErrConnectivity},
			isNot:   []error{ErrAborted},
			exit:    3,
			message: "deployed-then-failed, rolled back",
		},
		{
			name:    "rolled back after validation",
			err:     &ChangeError{ID: "chg-1", Hostname: "leaf01", Step: StepValidate, Outcome: OutcomeRolledBack, Err: util.NewValidationError("bgp")},
			is:      []error{ErrRolledBack},
			exit:    3,
			message: "validation failed, rolled back",
		},
		{
			name:    "rollback failed",
			err:     &ChangeError{ID: "chg-1", Hostname: "leaf01", Step: StepRestore, Outcome: OutcomeRollbackFailed, Err: rf},
			is:      []error{util.ErrRollbackFailed},
			isNot:   []error{ErrRolledBack, ErrAborted},
			exit:    4,
			message: "inconsistent state",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range tt.is {
				if !errors.Is(tt.err, target) {
					t.Errorf("errors.Is(%v) = false", target)
				}
			}
			for _, target := range tt.isNot {
				if errors.Is(tt.err, target) {
					t.Errorf("errors.Is(%v) = true", target)
				}
			}
			if got := ExitCode(tt.err); got != tt.exit {
				t.Errorf("ExitCode() = %d, want %d", got, tt.exit)
			}
			if !strings.Contains(tt.err.Error(), tt.message) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.message)
			}
		})
	}
}

func TestExitCodeNil(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("ExitCode(nil) != 0")
	}
	if ExitCode(errors.New("other")) != 1 {
		t.Error("plain error should exit 1")
	}
}
