package audit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "spine01", OpChangeRun)

	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Device != "spine01" {
		t.Errorf("Device = %q, want %q", event.Device, "spine01")
	}
	if event.Operation != OpChangeRun {
		t.Errorf("Operation = %q, want %q", event.Operation, OpChangeRun)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", "spine01", OpChangeRun); other.ID == event.ID {
		t.Error("IDs should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("alice", "spine01", OpChangeRun).
		WithChange("chg-1", "validated", "succeeded").
		WithDetail("address", "172.20.20.3").
		WithSuccess().
		WithDuration(time.Second)

	if event.ChangeID != "chg-1" || event.Phase != "validated" || event.Outcome != "succeeded" {
		t.Errorf("change fields = %q/%q/%q", event.ChangeID, event.Phase, event.Outcome)
	}
	if event.Details["address"] != "172.20.20.3" {
		t.Errorf("Details = %v", event.Details)
	}
	if !event.Success {
		t.Error("Success should be true")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent("alice", "spine01", OpChangeRun).
		WithError(errors.New("deploy failed"))

	if event.Success {
		t.Error("Success should be false")
	}
	if event.Error != "deploy failed" {
		t.Errorf("Error = %q", event.Error)
	}

	event2 := NewEvent("alice", "spine01", "test").WithError(nil)
	if event2.Success {
		t.Error("Success should be false even with nil error")
	}
	if event2.Error != "" {
		t.Errorf("Error should be empty with nil error, got %q", event2.Error)
	}
}

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("alice", "spine01", OpChangeRun).
		WithChange("chg-1", "succeeded", "succeeded").
		WithSuccess()

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].User != "alice" || events[0].ChangeID != "chg-1" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("alice", "spine01", OpChangeRun).WithChange("c1", "succeeded", "succeeded").WithSuccess(),
		NewEvent("bob", "spine01", OpDeviceStatus).WithSuccess(),
		NewEvent("alice", "leaf01", OpChangeRun).WithChange("c2", "rolled-back", "rolled-back").WithError(errors.New("failed")),
		NewEvent("carol", "leaf02", OpChangeRecover).WithChange("c3", "rolled-back", "rolled-back").WithSuccess(),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by user", Filter{User: "alice"}, 2},
		{"by device", Filter{Device: "spine01"}, 2},
		{"by operation", Filter{Operation: OpChangeRun}, 2},
		{"by change", Filter{ChangeID: "c3"}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryTimeFilter(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	logger.Log(NewEvent("alice", "spine01", "test").WithSuccess())

	results, _ := logger.Query(Filter{
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	})
	if len(results) != 1 {
		t.Errorf("Expected 1 event in time range, got %d", len(results))
	}

	results, _ = logger.Query(Filter{StartTime: time.Now().Add(time.Hour)})
	if len(results) != 0 {
		t.Errorf("Expected 0 events outside time range, got %d", len(results))
	}
}

func TestFileLogger_SkipsMalformedLines(t *testing.T) {
	logger, path := newTestLogger(t, RotationConfig{})
	logger.Log(NewEvent("alice", "spine01", "test"))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()

	logger.Log(NewEvent("bob", "spine01", "test"))

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 valid events, got %d", len(results))
	}
}

func TestFileLogger_LogRotation(t *testing.T) {
	logger, path := newTestLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 2})

	for i := 0; i < 6; i++ {
		if err := logger.Log(NewEvent("alice", "spine01", OpChangeRun).WithSuccess()); err != nil {
			t.Fatalf("Log %d failed: %v", i, err)
		}
	}

	rotated, _ := filepath.Glob(path + ".*")
	if len(rotated) == 0 {
		t.Fatal("expected rotated files")
	}
	if len(rotated) > 2 {
		t.Errorf("expected at most 2 rotated files, got %d", len(rotated))
	}

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("live file should hold 1 event after rotation, got %d", len(results))
	}
}

func TestMemoryLogger(t *testing.T) {
	m := NewMemoryLogger()
	m.Log(NewEvent("alice", "spine01", OpChangeRun).WithSuccess())
	m.Log(NewEvent("alice", "leaf01", OpDeviceStatus).WithError(errors.New("x")))

	results, _ := m.Query(Filter{Device: "leaf01"})
	if len(results) != 1 || results[0].Operation != OpDeviceStatus {
		t.Errorf("results = %+v", results)
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)

	if err := Log(NewEvent("test", "test", "test")); err != nil {
		t.Errorf("Log with nil default should not error: %v", err)
	}
	results, err := Query(Filter{})
	if err != nil {
		t.Errorf("Query with nil default should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}

	m := NewMemoryLogger()
	SetDefaultLogger(m)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("alice", "spine01", "test").WithSuccess()); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	results, _ = Query(Filter{})
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}
}
