package change

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/network-synapse/synapse/pkg/util"
)

// Locker serializes changes per device. RedisJournal implements it across
// processes; MemoryLocker within one.
type Locker interface {
	Acquire(ctx context.Context, host, holder string, ttl time.Duration) error
	Release(ctx context.Context, host, holder string) error
}

// MemoryLocker is an in-process Locker. TTLs are ignored.
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]string
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, host, holder string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[host]; held {
		return util.ErrDeviceLocked
	}
	l.holders[host] = holder
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, host, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, held := l.holders[host]
	if !held {
		return nil
	}
	if current != holder {
		return fmt.Errorf("lock holder mismatch for %s", host)
	}
	delete(l.holders, host)
	return nil
}
