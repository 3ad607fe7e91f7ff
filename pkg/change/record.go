package change

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/network-synapse/synapse/pkg/intent"
	"github.com/network-synapse/synapse/pkg/render"
	"github.com/network-synapse/synapse/pkg/validate"
)

// Steps of the saga. They name attempt counters, idempotency keys and
// metric labels.
const (
	StepBackup   = "backup"
	StepFetch    = "fetch"
	StepRender   = "render"
	StepHygiene  = "hygiene"
	StepDeploy   = "deploy"
	StepValidate = "validate"
	StepRestore  = "restore"
	StepStatus   = "status"
	StepRecover  = "recover"
)

// Outcome is how a finished saga ended.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeAborted         Outcome = "aborted"
	OutcomeHygieneRejected Outcome = "hygiene-rejected"
	OutcomeRolledBack      Outcome = "rolled-back"
	OutcomeRollbackFailed  Outcome = "rollback-failed"
)

// Idempotency key states
const (
	KeyStarted   = "started"
	KeySucceeded = "succeeded"
	KeyFailed    = "failed"
)

// Transition is one entry in a record's history.
type Transition struct {
	From  Phase          `json:"from"`
	To    Phase          `json:"to"`
	Kind  TransitionKind `json:"kind"`
	At    time.Time      `json:"at"`
	Error string         `json:"error,omitempty"`
}

// StepError is a failed attempt of one step.
type StepError struct {
	Step    string    `json:"step"`
	Attempt int       `json:"attempt"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Record is the journaled state of one change.
type Record struct {
	ID         string                       `json:"id"`
	Hostname   string                       `json:"hostname"`
	Address    string                       `json:"address"`
	Phase      Phase                        `json:"phase"`
	Backup     json.RawMessage              `json:"backup,omitempty"`
	BackupPath string                       `json:"backup_path,omitempty"`
	Intent     *intent.DeviceIntent         `json:"intent,omitempty"`
	Artifacts  *render.Artifacts            `json:"artifacts,omitempty"`
	Validation []*validate.ValidationResult `json:"validation,omitempty"`
	History    []Transition                 `json:"history"`
	StepErrors []StepError                  `json:"step_errors,omitempty"`
	Attempts   map[string]int               `json:"attempts"`
	Keys       map[string]string            `json:"idempotency_keys"`
	Outcome    Outcome                      `json:"outcome,omitempty"`
	Error      string                       `json:"error,omitempty"`
	StartedAt  time.Time                    `json:"started_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`
	FinishedAt *time.Time                   `json:"finished_at,omitempty"`
}

func newRecord(id, hostname, address string, now time.Time) *Record {
	return &Record{
		ID:        id,
		Hostname:  hostname,
		Address:   address,
		Phase:     PhaseStart,
		History:   []Transition{},
		Attempts:  make(map[string]int),
		Keys:      make(map[string]string),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the saga has finished.
func (r *Record) Terminal() bool {
	return r.Phase.Terminal()
}

// DeployAttempted reports whether any SET of the new config was issued.
func (r *Record) DeployAttempted() bool {
	return r.Attempts[StepDeploy] > 0
}

// advance moves the record to a new phase and appends to its history.
func (r *Record) advance(to Phase, kind TransitionKind, cause error, now time.Time) error {
	if !canTransition(r.Phase, to) {
		return &IllegalTransitionError{From: r.Phase, To: to}
	}
	t := Transition{From: r.Phase, To: to, Kind: kind, At: now}
	if cause != nil {
		t.Error = cause.Error()
	}
	r.History = append(r.History, t)
	r.Phase = to
	r.UpdatedAt = now
	return nil
}

// IdempotencyKey returns the key for one attempt of a step.
func IdempotencyKey(changeID, step string, attempt int) string {
	return fmt.Sprintf("%s/%s/%d", changeID, step, attempt)
}

// beginAttempt increments the step's counter and registers its key.
func (r *Record) beginAttempt(step string) (int, string) {
	r.Attempts[step]++
	n := r.Attempts[step]
	key := IdempotencyKey(r.ID, step, n)
	r.Keys[key] = KeyStarted
	return n, key
}

func (r *Record) stepFailed(step, key string, attempt int, err error, now time.Time) {
	r.Keys[key] = KeyFailed
	r.StepErrors = append(r.StepErrors, StepError{Step: step, Attempt: attempt, Error: err.Error(), At: now})
}

// StepSucceeded reports whether any attempt of step completed.
func (r *Record) StepSucceeded(step string) bool {
	prefix := r.ID + "/" + step + "/"
	for k, v := range r.Keys {
		if v == KeySucceeded && strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Summary is the short form used by listings.
type Summary struct {
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname"`
	Phase     Phase     `json:"phase"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the record's listing form.
func (r *Record) Summary() Summary {
	return Summary{
		ID:        r.ID,
		Hostname:  r.Hostname,
		Phase:     r.Phase,
		Outcome:   r.Outcome,
		StartedAt: r.StartedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
