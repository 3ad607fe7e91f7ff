package change

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/network-synapse/synapse/pkg/config"
)

func TestDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := p.Delay(0); got != 5*time.Second {
		t.Errorf("Delay(0) = %s", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.PolicyConfig{MaxAttempts: 5, Multiplier: 0.5})
	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", p.MaxAttempts)
	}
	if p.Multiplier != 2 || p.InitialInterval != 5*time.Second || p.MaxInterval != time.Minute {
		t.Errorf("defaults not filled: %+v", p)
	}
}

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
		wantWaits int
	}{
		{"first try", []error{nil}, 1, nil, 0},
		{"second try", []error{errTransient, nil}, 2, nil, 1},
		{"exhausted", []error{errTransient, errTransient, errTransient}, 3, errTransient, 2},
		{"fatal", []error{errAbortTest}, 1, errAbortTest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			calls, retries := 0, 0
			err := DefaultRetryPolicy().Do(context.Background(), clock, isTransient,
				func(int, error, time.Duration) { retries++ },
				func(context.Context) error {
					calls++
					return tt.errs[calls-1]
				})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(clock.sleeps) != tt.wantWaits || retries != tt.wantWaits {
				t.Errorf("waits = %d, retries = %d, want %d", len(clock.sleeps), retries, tt.wantWaits)
			}
		})
	}
}

var errAbortTest = errors.New("fatal")

func TestDo_CancelledWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := DefaultRetryPolicy().Do(ctx, newFakeClock(), isTransient, nil, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	RetryPolicy{}.Do(context.Background(), newFakeClock(), isTransient, nil, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRealClockSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := RealClock().Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v", err)
	}
}
