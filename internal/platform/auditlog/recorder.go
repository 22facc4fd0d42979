package auditlog

import (
	"context"
	"log/slog"
	"time"
)

// Recorder is the fire-and-forget audit capability handed to request
// handlers. Record returns the insert error so the ignore-failures policy is
// spelled out at every call site (`_ = recorder.Record(...)`) instead of
// being swallowed in here; the failure is still logged for operators.
type Recorder struct {
	logger  *slog.Logger
	q       QueryRower
	timeout time.Duration
}

func NewRecorder(logger *slog.Logger, q QueryRower) *Recorder {
	if q == nil {
		return nil
	}
	return &Recorder{
		logger:  logger,
		q:       q,
		timeout: 750 * time.Millisecond,
	}
}

func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.q == nil {
		return nil
	}
	recordCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := Insert(recordCtx, r.q, event)
	if err != nil && r.logger != nil {
		r.logger.Warn("audit record failed",
			"action", event.Action,
			"actor", event.Actor,
			"error", err.Error(),
		)
	}
	return err
}
