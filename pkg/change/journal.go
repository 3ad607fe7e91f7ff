package change

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/util"
)

// JournalFilter narrows Journal.List.
type JournalFilter struct {
	Device      string
	PendingOnly bool
	Limit       int
}

func (f JournalFilter) matches(r *Record) bool {
	if f.Device != "" && r.Hostname != f.Device {
		return false
	}
	if f.PendingOnly && r.Terminal() {
		return false
	}
	return true
}

// apply filters, orders newest first and truncates.
func (f JournalFilter) apply(records []*Record) []*Record {
	out := records[:0]
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Journal persists change records.
type Journal interface {
	Save(ctx context.Context, r *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, f JournalFilter) ([]*Record, error)
	Close() error
}

// NewJournal opens the configured backend.
func NewJournal(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Backend {
	case "", config.JournalFile:
		return NewFileJournal(cfg.Dir)
	case config.JournalRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedisJournal(client, cfg.Prefix), nil
	}
	return nil, fmt.Errorf("%w: unknown journal backend %q", util.ErrInvalidConfig, cfg.Backend)
}

// ============================================================================
// File backend
// ============================================================================

// FileJournal stores one JSON file per change.
type FileJournal struct {
	dir string
}

// NewFileJournal creates the directory if needed.
func NewFileJournal(dir string) (*FileJournal, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: journal dir is empty", util.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	return &FileJournal{dir: dir}, nil
}

func (j *FileJournal) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

// Save writes the record durably: a crash leaves the previous version or
// this one, never a partial file.
func (j *FileJournal) Save(_ context.Context, r *Record) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", r.ID, err)
	}

	if err := util.WriteFileAtomic(j.path(r.ID), data, 0644); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Load reads one record.
func (j *FileJournal) Load(_ context.Context, id string) (*Record, error) {
	data, err := os.ReadFile(j.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewNotFoundError("change", id)
		}
		return nil, fmt.Errorf("journal: read %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("journal: parse %s: %w", id, err)
	}
	return &r, nil
}

// List reads every record and filters in memory.
func (j *FileJournal) List(ctx context.Context, f JournalFilter) ([]*Record, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	var records []*Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := j.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			util.Warnf("journal: skipping %s: %v", name, err)
			continue
		}
		records = append(records, r)
	}
	return f.apply(records), nil
}

func (j *FileJournal) Close() error { return nil }

// ============================================================================
// Redis backend
// ============================================================================

// DefaultRedisPrefix namespaces every journal key.
const DefaultRedisPrefix = "synapse"

// RedisJournal stores records in Redis:
//
//	<prefix>:change:<id>            record JSON
//	<prefix>:device:<host>:changes  zset of ids scored by start time
//	<prefix>:changes:pending        set of non-terminal ids
//	<prefix>:lock:<host>            per-device lock hash
type RedisJournal struct {
	client *redis.Client
	prefix string
}

// NewRedisJournal wraps a client. An empty prefix uses DefaultRedisPrefix.
func NewRedisJournal(client *redis.Client, prefix string) *RedisJournal {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisJournal{client: client, prefix: prefix}
}

func (j *RedisJournal) recordKey(id string) string {
	return j.prefix + ":change:" + id
}

func (j *RedisJournal) deviceKey(host string) string {
	return j.prefix + ":device:" + host + ":changes"
}

func (j *RedisJournal) pendingKey() string {
	return j.prefix + ":changes:pending"
}

func (j *RedisJournal) lockKey(host string) string {
	return j.prefix + ":lock:" + host
}

// Ping checks the connection.
func (j *RedisJournal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}

// Save writes the record and its indexes in one transaction.
func (j *RedisJournal) Save(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", r.ID, err)
	}
	_, err = j.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, j.recordKey(r.ID), data, 0)
		p.ZAdd(ctx, j.deviceKey(r.Hostname), &redis.Z{Score: float64(r.StartedAt.Unix()), Member: r.ID})
		if r.Terminal() {
			p.SRem(ctx, j.pendingKey(), r.ID)
		} else {
			p.SAdd(ctx, j.pendingKey(), r.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal: save %s: %w", r.ID, err)
	}
	return nil
}

// Load reads one record.
func (j *RedisJournal) Load(ctx context.Context, id string) (*Record, error) {
	data, err := j.client.Get(ctx, j.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, util.NewNotFoundError("change", id)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: load %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("journal: parse %s: %w", id, err)
	}
	return &r, nil
}

// List uses the narrowest index the filter allows.
func (j *RedisJournal) List(ctx context.Context, f JournalFilter) ([]*Record, error) {
	var ids []string
	var err error
	switch {
	case f.PendingOnly:
		ids, err = j.client.SMembers(ctx, j.pendingKey()).Result()
	case f.Device != "":
		ids, err = j.client.ZRevRange(ctx, j.deviceKey(f.Device), 0, -1).Result()
	default:
		ids, err = j.scanIDs(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}

	var records []*Record
	for _, id := range ids {
		r, err := j.Load(ctx, id)
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, r)
	}
	return f.apply(records), nil
}

func (j *RedisJournal) scanIDs(ctx context.Context) ([]string, error) {
	prefix := j.recordKey("")
	var ids []string
	iter := j.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	return ids, iter.Err()
}

// Close closes the client.
func (j *RedisJournal) Close() error {
	return j.client.Close()
}

// acquireLockScript sets the lock hash only if it does not exist.
// Returns 1 on success, 0 if already held.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2])
redis.call("PEXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseLockScript deletes the lock if held by ARGV[1].
// Returns 1 on success, 0 on holder mismatch, -1 if absent.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
if redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Acquire takes the device lock, or returns util.ErrDeviceLocked.
func (j *RedisJournal) Acquire(ctx context.Context, host, holder string, ttl time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := acquireLockScript.Run(ctx, j.client, []string{j.lockKey(host)},
		holder, now, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", host, err)
	}
	if res == 0 {
		return util.ErrDeviceLocked
	}
	return nil
}

// Release drops the device lock if holder owns it.
func (j *RedisJournal) Release(ctx context.Context, host, holder string) error {
	res, err := releaseLockScript.Run(ctx, j.client, []string{j.lockKey(host)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", host, err)
	}
	if res == 0 {
		return fmt.Errorf("lock holder mismatch for %s", host)
	}
	return nil
}
