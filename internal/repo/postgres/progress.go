package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

type ProgressStore struct {
	db DB
}

const (
	insertRunQuery = `INSERT INTO simulation_runs (
		sim_uuid,
		scenario_id,
		display_name,
		username,
		score,
		completed,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	updateRunResultQuery = `UPDATE simulation_runs
	 SET score = $2, completed = $3
	 WHERE sim_uuid = $1`

	selectRunQuery = `SELECT sim_uuid, scenario_id, display_name, username, score, completed, created_at
	 FROM simulation_runs
	 WHERE sim_uuid = $1`

	selectRunByOwnerQuery = `SELECT sim_uuid, scenario_id, display_name, username, score, completed, created_at
	 FROM simulation_runs
	 WHERE username = $1 AND sim_uuid = $2`

	listRunsByOwnerQuery = `SELECT sim_uuid, scenario_id, display_name, username, score, completed, created_at
	 FROM simulation_runs
	 WHERE username = $1
	 ORDER BY created_at DESC`
)

func NewProgressStore(db DB) *ProgressStore {
	if db == nil {
		return nil
	}
	return &ProgressStore{db: db}
}

func (s *ProgressStore) CreateRun(ctx context.Context, run domain.SimulationRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("progress store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(run.RunID),
		strings.TrimSpace(run.ScenarioID),
		strings.TrimSpace(run.DisplayName),
		strings.TrimSpace(run.Username),
		nullInt(run.Score),
		nullBool(run.Completed),
		normalizeTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert simulation run: %w", err)
	}
	return nil
}

// UpdateRunResult changes score and completion only. Identity fields are
// never touched regardless of what the caller sent alongside.
func (s *ProgressStore) UpdateRunResult(ctx context.Context, runID string, score *int, completed *bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("progress store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	result, err := s.db.ExecContext(ctx, updateRunResultQuery, runID, nullInt(score), nullBool(completed))
	if err != nil {
		return fmt.Errorf("update simulation run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update simulation run: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *ProgressStore) Get(ctx context.Context, runID string) (domain.SimulationRun, error) {
	if s == nil || s.db == nil {
		return domain.SimulationRun{}, fmt.Errorf("progress store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.SimulationRun{}, fmt.Errorf("run id is required")
	}
	return scanRun(s.db.QueryRowContext(ctx, selectRunQuery, runID))
}

func (s *ProgressStore) GetByOwner(ctx context.Context, username, runID string) (domain.SimulationRun, error) {
	if s == nil || s.db == nil {
		return domain.SimulationRun{}, fmt.Errorf("progress store not initialized")
	}
	username = strings.TrimSpace(username)
	runID = strings.TrimSpace(runID)
	if username == "" {
		return domain.SimulationRun{}, fmt.Errorf("username is required")
	}
	if runID == "" {
		return domain.SimulationRun{}, fmt.Errorf("run id is required")
	}
	return scanRun(s.db.QueryRowContext(ctx, selectRunByOwnerQuery, username, runID))
}

func (s *ProgressStore) ListByOwner(ctx context.Context, username string) ([]domain.SimulationRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("progress store not initialized")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	rows, err := s.db.QueryContext(ctx, listRunsByOwnerQuery, username)
	if err != nil {
		return nil, fmt.Errorf("list simulation runs: %w", err)
	}
	return collectRuns(rows)
}

func (s *ProgressStore) ListAll(ctx context.Context, filter repo.RunFilter) ([]domain.SimulationRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("progress store not initialized")
	}

	query := `SELECT sim_uuid, scenario_id, display_name, username, score, completed, created_at
	 FROM simulation_runs`
	args := make([]any, 0, 2)

	if username := strings.TrimSpace(filter.Username); username != "" {
		args = append(args, "%"+username+"%")
		query += " WHERE username ILIKE $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list simulation runs: %w", err)
	}
	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (domain.SimulationRun, error) {
	var run domain.SimulationRun
	var score sql.NullInt64
	var completed sql.NullBool
	if err := scanner.Scan(
		&run.RunID,
		&run.ScenarioID,
		&run.DisplayName,
		&run.Username,
		&score,
		&completed,
		&run.CreatedAt,
	); err != nil {
		return domain.SimulationRun{}, handleNotFound(err)
	}
	if score.Valid {
		v := int(score.Int64)
		run.Score = &v
	}
	if completed.Valid {
		v := completed.Bool
		run.Completed = &v
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]domain.SimulationRun, error) {
	defer rows.Close()

	runs := make([]domain.SimulationRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan simulation runs: %w", err)
	}
	return runs, nil
}
