// Package repo defines the persistence interfaces the services depend on.
// Implementations live in repo/postgres; tests substitute in-memory fakes.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/domain"
)

// ErrNotFound reports that a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrSequenceConflict reports that a concurrently inserted step event claimed
// the same per-run sequence number. The caller re-reads the sequence and
// retries; the row was not written.
var ErrSequenceConflict = errors.New("sequence conflict")

type RunFilter struct {
	// Username filters by case-insensitive substring match when non-empty.
	Username string
	Limit    int
}

type AuditFilter struct {
	Actor   string
	Action  string
	Details string
	Screen  string
	Start   *time.Time
	End     *time.Time
	Limit   int
}

// AuditRecord is the read model for stored audit rows.
type AuditRecord struct {
	ID         int64
	OccurredAt time.Time
	Actor      string
	Action     string
	Details    string
	Screen     string
}

// ProgressRepository manages simulation runs. Identity fields are immutable
// after CreateRun; UpdateRunResult touches score and completion only.
type ProgressRepository interface {
	CreateRun(ctx context.Context, run domain.SimulationRun) error
	UpdateRunResult(ctx context.Context, runID string, score *int, completed *bool) error
	Get(ctx context.Context, runID string) (domain.SimulationRun, error)
	GetByOwner(ctx context.Context, username, runID string) (domain.SimulationRun, error)
	ListByOwner(ctx context.Context, username string) ([]domain.SimulationRun, error)
	ListAll(ctx context.Context, filter RunFilter) ([]domain.SimulationRun, error)
}

// TimelineRepository manages the append-only step event log of a run.
type TimelineRepository interface {
	NextSequence(ctx context.Context, runID string) (int64, error)
	Append(ctx context.Context, event domain.StepEvent) (domain.StepEvent, error)
	Latest(ctx context.Context, runID string) (domain.StepEvent, error)
	ListByRun(ctx context.Context, runID string) ([]domain.StepEvent, error)
}

// LoginLogRepository stores flat login activity rows.
type LoginLogRepository interface {
	Insert(ctx context.Context, event domain.LoginEvent) error
	ListRecent(ctx context.Context, limit int) ([]domain.LoginEvent, error)
}

// AuditLogRepository reads back the audit trail written through
// platform/auditlog.
type AuditLogRepository interface {
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}
