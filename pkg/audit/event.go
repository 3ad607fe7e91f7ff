// Package audit records change sagas and device status changes as a
// JSON-lines trail.
package audit

import (
	"fmt"
	"os/user"
	"sync/atomic"
	"time"
)

// Operations recorded by the pipeline
const (
	OpChangeRun     = "change.run"
	OpChangeRecover = "change.recover"
	OpDeviceStatus  = "device.status"
	OpGenerate      = "generate"
	OpDrift         = "drift"
)

// Event represents one auditable action against a device
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	User      string            `json:"user"`
	Device    string            `json:"device"`
	Operation string            `json:"operation"`
	ChangeID  string            `json:"change_id,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	DryRun    bool              `json:"dry_run,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Operation   string
	ChangeID    string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithChange attaches the saga identity and where it ended
func (e *Event) WithChange(id, phase, outcome string) *Event {
	e.ChangeID = id
	e.Phase = phase
	e.Outcome = outcome
	return e
}

// WithDetail adds a free-form key/value
func (e *Event) WithDetail(key, value string) *Event {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	e.Error = ""
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithDryRun marks the event as not touching the device
func (e *Event) WithDryRun(dryRun bool) *Event {
	e.DryRun = dryRun
	return e
}

var idSeq atomic.Uint64

func generateID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), idSeq.Add(1))
}

// CurrentUser returns the login name of the invoking user, or "unknown".
func CurrentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}
