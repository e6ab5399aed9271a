package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/models"
)

// DefaultMemoryRetention is the number of log entries of each kind kept by
// a MemoryStore.
const DefaultMemoryRetention = 10000

// MemoryStore implements Store in process memory. Logs are bounded: once
// retention is reached the oldest entries are discarded. Transactions are
// not isolated; BeginTx returns the store itself.
type MemoryStore struct {
	mu        sync.RWMutex
	retention int

	users   map[uuid.UUID]*models.User
	packets []*models.PacketRecord
	events  []*models.EventLog
	stats   []*models.StatsSnapshot
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultMemoryRetention
	}
	return &MemoryStore{
		retention: retention,
		users:     make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }
func (s *MemoryStore) Commit() error                              { return nil }
func (s *MemoryStore) Rollback() error                            { return nil }
func (s *MemoryStore) Close() error                               { return nil }

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return ErrDuplicateKey
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUserLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	return nil
}

func (s *MemoryStore) CreatePacketRecord(ctx context.Context, record *models.PacketRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	cp := *record

	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = appendBounded(s.packets, &cp, s.retention)
	return nil
}

func (s *MemoryStore) ListPacketRecords(ctx context.Context, filters PacketFilters, limit, offset int) ([]*models.PacketRecord, int64, error) {
	s.mu.RLock()
	var matched []*models.PacketRecord
	for _, p := range s.packets {
		if filters.match(p) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, limit, offset), int64(len(matched)), nil
}

func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = appendBounded(s.events, &cp, s.retention)
	return nil
}

func (s *MemoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	var matched []*models.EventLog
	for _, e := range s.events {
		if filters.match(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, limit, offset), int64(len(matched)), nil
}

func (s *MemoryStore) CreateStatsSnapshot(ctx context.Context, snap *models.StatsSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	cp := *snap

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = appendBounded(s.stats, &cp, s.retention)
	return nil
}

func (s *MemoryStore) ListStatsSnapshots(ctx context.Context, device string, limit, offset int) ([]*models.StatsSnapshot, int64, error) {
	s.mu.RLock()
	var matched []*models.StatsSnapshot
	for _, snap := range s.stats {
		if snap.Device == device {
			matched = append(matched, snap)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, limit, offset), int64(len(matched)), nil
}

func appendBounded[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if len(s) > max {
		s = append(s[:0:0], s[len(s)-max:]...)
	}
	return s
}

func page[T any](s []T, limit, offset int) []T {
	if offset >= len(s) {
		return nil
	}
	s = s[offset:]
	if limit > 0 && limit < len(s) {
		s = s[:limit]
	}
	return s
}
