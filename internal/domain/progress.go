// Package domain holds the entities of the training platform: simulation
// runs, their step timelines, scenario content, and login events.
package domain

import (
	"errors"
	"strings"
	"time"
)

// MaxSaneStepDurationMs bounds a client-reported step duration. Anything at or
// above this is treated as garbage (typically an epoch timestamp sent where a
// duration was expected) and recomputed server-side.
const MaxSaneStepDurationMs int64 = 2_000_000_000

// SimulationRun is one attempt by one user at one scenario. The identifier,
// scenario, owner, and display name are fixed at creation; only score and
// completion are mutable afterwards.
type SimulationRun struct {
	RunID       string
	ScenarioID  string
	DisplayName string
	Username    string
	Score       *int
	Completed   *bool
	CreatedAt   time.Time
}

func (r SimulationRun) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ScenarioID) == "" {
		return errors.New("scenario id is required")
	}
	if strings.TrimSpace(r.DisplayName) == "" {
		return errors.New("display name is required")
	}
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	return nil
}

// StepEvent is one recorded decision inside a run's timeline. Sequence is the
// server-assigned ordering key; StepIndex is whatever the client claimed and
// is kept only for display.
type StepEvent struct {
	RunID     string
	StepIndex int
	Sequence  int64
	Decision  string
	Feedback  string
	TimeMs    int64
	CreatedAt time.Time
}

func (e StepEvent) Validate() error {
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(e.Decision) == "" {
		return errors.New("decision is required")
	}
	if e.Sequence < 1 {
		return errors.New("sequence must be >= 1")
	}
	if e.TimeMs < 0 {
		return errors.New("time_ms must be >= 0")
	}
	return nil
}
