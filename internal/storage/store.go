package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/radiolink/radiolink/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// Packet log methods
	CreatePacketRecord(ctx context.Context, record *models.PacketRecord) error
	ListPacketRecords(ctx context.Context, filters PacketFilters, limit, offset int) ([]*models.PacketRecord, int64, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Statistics snapshot methods
	CreateStatsSnapshot(ctx context.Context, snap *models.StatsSnapshot) error
	ListStatsSnapshots(ctx context.Context, device string, limit, offset int) ([]*models.StatsSnapshot, int64, error)

	// Close the store
	Close() error
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	Device    *string
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}

// PacketFilters represents filters for the packet log
type PacketFilters struct {
	Device    *string
	Direction *models.Direction
	StartTime *time.Time
	EndTime   *time.Time
}

func (f EventLogFilters) match(e *models.EventLog) bool {
	if f.Device != nil && e.Device != *f.Device {
		return false
	}
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.Level != nil && e.Level != *f.Level {
		return false
	}
	return inRange(e.CreatedAt, f.StartTime, f.EndTime)
}

func (f PacketFilters) match(p *models.PacketRecord) bool {
	if f.Device != nil && p.Device != *f.Device {
		return false
	}
	if f.Direction != nil && p.Direction != *f.Direction {
		return false
	}
	return inRange(p.CreatedAt, f.StartTime, f.EndTime)
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

// whereBuilder accumulates "AND col = $n" clauses with positional args.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(w.clauses, " AND ")
}

func (f EventLogFilters) where() *whereBuilder {
	w := &whereBuilder{}
	if f.Device != nil {
		w.add("device = $%d", *f.Device)
	}
	if f.Type != nil {
		w.add("type = $%d", *f.Type)
	}
	if f.Level != nil {
		w.add("level = $%d", *f.Level)
	}
	if f.StartTime != nil {
		w.add("created_at >= $%d", *f.StartTime)
	}
	if f.EndTime != nil {
		w.add("created_at <= $%d", *f.EndTime)
	}
	return w
}

func (f PacketFilters) where() *whereBuilder {
	w := &whereBuilder{}
	if f.Device != nil {
		w.add("device = $%d", *f.Device)
	}
	if f.Direction != nil {
		w.add("direction = $%d", *f.Direction)
	}
	if f.StartTime != nil {
		w.add("created_at >= $%d", *f.StartTime)
	}
	if f.EndTime != nil {
		w.add("created_at <= $%d", *f.EndTime)
	}
	return w
}
