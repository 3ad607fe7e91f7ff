// Package backup archives running-config snapshots taken before changes.
//
// Layout:
//
//	<dir>/<host>/<timestamp>-<change-id>.json
//	<dir>/<host>/index.json
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/network-synapse/synapse/pkg/util"
)

// DefaultKeep is the number of backups retained per device.
const DefaultKeep = 10

const (
	indexFile       = "index.json"
	timestampFormat = "20060102T150405.000000000Z"
)

// Entry describes one archived backup.
type Entry struct {
	Host      string    `json:"host"`
	ChangeID  string    `json:"change_id"`
	File      string    `json:"file"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an on-disk backup archive.
type Store struct {
	dir  string
	keep int
	now  func() time.Time

	mu sync.Mutex
}

// NewStore creates a store rooted at dir. keep <= 0 uses DefaultKeep.
func NewStore(dir string, keep int) *Store {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{dir: dir, keep: keep, now: time.Now}
}

func (s *Store) hostDir(host string) string {
	return filepath.Join(s.dir, host)
}

// Save archives blob and prunes old entries.
func (s *Store) Save(host, changeID string, blob []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if host == "" {
		return Entry{}, fmt.Errorf("backup: empty host")
	}
	dir := s.hostDir(host)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("backup: create dir: %w", err)
	}

	now := s.now().UTC()
	e := Entry{
		Host:      host,
		ChangeID:  changeID,
		File:      fmt.Sprintf("%s-%s.json", now.Format(timestampFormat), changeID),
		Size:      len(blob),
		CreatedAt: now,
	}
	if err := util.WriteFileAtomic(filepath.Join(dir, e.File), blob, 0644); err != nil {
		return Entry{}, fmt.Errorf("backup: %w", err)
	}

	entries, err := s.readIndex(host)
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)
	sortNewestFirst(entries)

	if len(entries) > s.keep {
		for _, old := range entries[s.keep:] {
			if err := os.Remove(filepath.Join(dir, old.File)); err != nil && !os.IsNotExist(err) {
				util.Warnf("backup: prune %s: %v", old.File, err)
			}
		}
		entries = entries[:s.keep]
	}

	if err := s.writeIndex(host, entries); err != nil {
		return Entry{}, err
	}
	util.WithDevice(host).Debugf("archived backup %s (%d bytes)", e.File, e.Size)
	return e, nil
}

// List returns a device's backups, newest first.
func (s *Store) List(host string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex(host)
}

// Latest returns the newest backup for host.
func (s *Store) Latest(host string) (Entry, error) {
	entries, err := s.List(host)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, util.NewNotFoundError("backup", host)
	}
	return entries[0], nil
}

// Read returns the archived blob.
func (s *Store) Read(e Entry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.hostDir(e.Host), e.File))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewNotFoundError("backup", e.File)
		}
		return nil, fmt.Errorf("backup: read %s: %w", e.File, err)
	}
	return data, nil
}

// Path returns the file path of an entry.
func (s *Store) Path(e Entry) string {
	return filepath.Join(s.hostDir(e.Host), e.File)
}

func (s *Store) readIndex(host string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.hostDir(host), indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: read index: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("backup: parse index for %s: %w", host, err)
	}
	sortNewestFirst(entries)
	return entries, nil
}

func (s *Store) writeIndex(host string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: marshal index: %w", err)
	}
	path := filepath.Join(s.hostDir(host), indexFile)
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("backup: index: %w", err)
	}
	return nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
