package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

// appendAttempts bounds the retry loop around sequence assignment. Each
// conflict means another writer claimed the candidate sequence first; the
// next iteration re-reads the maximum.
const appendAttempts = 3

type Service struct {
	runs     repo.ProgressRepository
	timeline repo.TimelineRepository
	newID    func() string
	now      func() time.Time
}

func New(runs repo.ProgressRepository, timeline repo.TimelineRepository) *Service {
	if runs == nil || timeline == nil {
		return nil
	}
	return &Service{
		runs:     runs,
		timeline: timeline,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

type SaveInput struct {
	RunID       string
	ScenarioID  string
	DisplayName string
	Username    string
	Score       *int
	Completed   *bool
}

// Save creates a run when no identifier is supplied and otherwise updates
// the existing run's score and completion. Identity fields in the input are
// ignored on update; a missing run is an error, never an implicit create.
func (s *Service) Save(ctx context.Context, in SaveInput) (string, error) {
	if in.RunID != "" {
		if err := s.runs.UpdateRunResult(ctx, in.RunID, in.Score, in.Completed); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", err
			}
			return "", fmt.Errorf("update run: %w", err)
		}
		return in.RunID, nil
	}

	run := domain.SimulationRun{
		RunID:       s.newID(),
		ScenarioID:  in.ScenarioID,
		DisplayName: in.DisplayName,
		Username:    in.Username,
		Score:       in.Score,
		Completed:   in.Completed,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.RunID, nil
}

type StepInput struct {
	RunID     string
	StepIndex int
	Decision  string
	Feedback  string
	TimeMs    *int64
}

// RecordStep appends one step event to the run's timeline with a
// server-assigned sequence number and a resolved duration.
func (s *Service) RecordStep(ctx context.Context, in StepInput) (domain.StepEvent, error) {
	now := s.now().UTC()

	timeMs, err := s.resolveDuration(ctx, in.RunID, in.TimeMs, now)
	if err != nil {
		return domain.StepEvent{}, err
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		seq, err := s.timeline.NextSequence(ctx, in.RunID)
		if err != nil {
			return domain.StepEvent{}, fmt.Errorf("assign sequence: %w", err)
		}

		inserted, err := s.timeline.Append(ctx, domain.StepEvent{
			RunID:     in.RunID,
			StepIndex: in.StepIndex,
			Sequence:  seq,
			Decision:  in.Decision,
			Feedback:  in.Feedback,
			TimeMs:    timeMs,
			CreatedAt: now,
		})
		if err != nil {
			if errors.Is(err, repo.ErrSequenceConflict) {
				continue
			}
			return domain.StepEvent{}, fmt.Errorf("append step: %w", err)
		}
		return inserted, nil
	}
	return domain.StepEvent{}, fmt.Errorf("append step after %d attempts: %w", appendAttempts, repo.ErrSequenceConflict)
}

// resolveDuration keeps a plausible client-reported duration and otherwise
// derives one from elapsed time since the previous timeline event, falling
// back to the run's creation time. Durations never go negative.
func (s *Service) resolveDuration(ctx context.Context, runID string, reported *int64, now time.Time) (int64, error) {
	if reported != nil && *reported >= 0 && *reported < domain.MaxSaneStepDurationMs {
		return *reported, nil
	}

	var baseline time.Time
	latest, err := s.timeline.Latest(ctx, runID)
	switch {
	case err == nil:
		baseline = latest.CreatedAt
	case errors.Is(err, repo.ErrNotFound):
		run, err := s.runs.Get(ctx, runID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return 0, nil
			}
			return 0, fmt.Errorf("resolve duration: %w", err)
		}
		baseline = run.CreatedAt
	default:
		return 0, fmt.Errorf("resolve duration: %w", err)
	}

	elapsed := now.Sub(baseline).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, nil
}

// Detail returns the run only when both the identifier and the owner match.
func (s *Service) Detail(ctx context.Context, username, runID string) (domain.SimulationRun, error) {
	return s.runs.GetByOwner(ctx, username, runID)
}

// Timeline returns the run's step events in authoritative order.
func (s *Service) Timeline(ctx context.Context, runID string) ([]domain.StepEvent, error) {
	return s.timeline.ListByRun(ctx, runID)
}

func (s *Service) ListByUser(ctx context.Context, username string) ([]domain.SimulationRun, error) {
	return s.runs.ListByOwner(ctx, username)
}

func (s *Service) ListAll(ctx context.Context, filter repo.RunFilter) ([]domain.SimulationRun, error) {
	return s.runs.ListAll(ctx, filter)
}
