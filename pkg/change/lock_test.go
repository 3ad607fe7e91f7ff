package change

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/network-synapse/synapse/pkg/util"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	if err := l.Acquire(ctx, "leaf01", "chg-1", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Acquire(ctx, "leaf01", "chg-2", time.Minute); !errors.Is(err, util.ErrDeviceLocked) {
		t.Errorf("second Acquire() error = %v, want ErrDeviceLocked", err)
	}
	if err := l.Acquire(ctx, "spine01", "chg-2", time.Minute); err != nil {
		t.Errorf("other device locked: %v", err)
	}
	if err := l.Release(ctx, "leaf01", "chg-2"); err == nil {
		t.Error("Release() by non-holder succeeded")
	}
	if err := l.Release(ctx, "leaf01", "chg-1"); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := l.Acquire(ctx, "leaf01", "chg-3", time.Minute); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
	if err := l.Release(ctx, "ghost", "chg-1"); err != nil {
		t.Errorf("Release() of free lock error = %v", err)
	}
}
