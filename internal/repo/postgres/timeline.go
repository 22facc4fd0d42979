package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

type TimelineStore struct {
	db DB
}

const (
	// sequence uniqueness per run is enforced by simulation_steps_run_seq_uq;
	// a violation surfaces as repo.ErrSequenceConflict so the caller can
	// re-read the max and retry.
	insertStepQuery = `INSERT INTO simulation_steps (
		sim_uuid,
		step_index,
		sequence,
		decision,
		feedback,
		time_ms,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING sim_uuid, step_index, sequence, decision, feedback, time_ms, created_at`

	nextSequenceQuery = `SELECT COALESCE(MAX(sequence), 0) + 1
	 FROM simulation_steps
	 WHERE sim_uuid = $1`

	latestStepQuery = `SELECT sim_uuid, step_index, sequence, decision, feedback, time_ms, created_at
	 FROM simulation_steps
	 WHERE sim_uuid = $1
	 ORDER BY sequence DESC
	 LIMIT 1`

	listStepsByRunQuery = `SELECT sim_uuid, step_index, sequence, decision, feedback, time_ms, created_at
	 FROM simulation_steps
	 WHERE sim_uuid = $1
	 ORDER BY sequence ASC`
)

func NewTimelineStore(db DB) *TimelineStore {
	if db == nil {
		return nil
	}
	return &TimelineStore{db: db}
}

// NextSequence derives the next per-run ordering key from the stored maximum.
// The value is only a candidate until Append succeeds.
func (s *TimelineStore) NextSequence(ctx context.Context, runID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("timeline store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	var next int64
	if err := s.db.QueryRowContext(ctx, nextSequenceQuery, runID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return next, nil
}

func (s *TimelineStore) Append(ctx context.Context, event domain.StepEvent) (domain.StepEvent, error) {
	if s == nil || s.db == nil {
		return domain.StepEvent{}, fmt.Errorf("timeline store not initialized")
	}
	if err := event.Validate(); err != nil {
		return domain.StepEvent{}, err
	}

	inserted, err := scanStep(s.db.QueryRowContext(
		ctx,
		insertStepQuery,
		strings.TrimSpace(event.RunID),
		event.StepIndex,
		event.Sequence,
		strings.TrimSpace(event.Decision),
		nullString(event.Feedback),
		event.TimeMs,
		normalizeTime(event.CreatedAt),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.StepEvent{}, repo.ErrSequenceConflict
		}
		return domain.StepEvent{}, fmt.Errorf("insert step event: %w", err)
	}
	return inserted, nil
}

// Latest returns the most recently appended event, repo.ErrNotFound when the
// run has no timeline yet.
func (s *TimelineStore) Latest(ctx context.Context, runID string) (domain.StepEvent, error) {
	if s == nil || s.db == nil {
		return domain.StepEvent{}, fmt.Errorf("timeline store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.StepEvent{}, fmt.Errorf("run id is required")
	}
	return scanStep(s.db.QueryRowContext(ctx, latestStepQuery, runID))
}

func (s *TimelineStore) ListByRun(ctx context.Context, runID string) ([]domain.StepEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("timeline store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listStepsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.StepEvent, 0)
	for rows.Next() {
		event, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan step events: %w", err)
	}
	return events, nil
}

func scanStep(scanner rowScanner) (domain.StepEvent, error) {
	var event domain.StepEvent
	var feedback sql.NullString
	if err := scanner.Scan(
		&event.RunID,
		&event.StepIndex,
		&event.Sequence,
		&event.Decision,
		&feedback,
		&event.TimeMs,
		&event.CreatedAt,
	); err != nil {
		return domain.StepEvent{}, handleNotFound(err)
	}
	event.Feedback = feedback.String
	event.CreatedAt = event.CreatedAt.UTC()
	return event, nil
}
