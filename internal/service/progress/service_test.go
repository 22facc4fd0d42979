package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

type fakeRunRepo struct {
	runs map[string]domain.SimulationRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]domain.SimulationRun{}}
}

func (f *fakeRunRepo) CreateRun(ctx context.Context, run domain.SimulationRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if _, ok := f.runs[run.RunID]; ok {
		return fmt.Errorf("duplicate run id %s", run.RunID)
	}
	f.runs[run.RunID] = run
	return nil
}

func (f *fakeRunRepo) UpdateRunResult(ctx context.Context, runID string, score *int, completed *bool) error {
	run, ok := f.runs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	run.Score = score
	run.Completed = completed
	f.runs[runID] = run
	return nil
}

func (f *fakeRunRepo) Get(ctx context.Context, runID string) (domain.SimulationRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return domain.SimulationRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) GetByOwner(ctx context.Context, username, runID string) (domain.SimulationRun, error) {
	run, ok := f.runs[runID]
	if !ok || run.Username != username {
		return domain.SimulationRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) ListByOwner(ctx context.Context, username string) ([]domain.SimulationRun, error) {
	out := make([]domain.SimulationRun, 0)
	for _, run := range f.runs {
		if run.Username == username {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRunRepo) ListAll(ctx context.Context, filter repo.RunFilter) ([]domain.SimulationRun, error) {
	out := make([]domain.SimulationRun, 0)
	needle := strings.ToLower(filter.Username)
	for _, run := range f.runs {
		if needle != "" && !strings.Contains(strings.ToLower(run.Username), needle) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeTimelineRepo enforces the same (run, sequence) uniqueness the schema
// does, and can inject extra conflicts to exercise the retry loop.
type fakeTimelineRepo struct {
	events           map[string][]domain.StepEvent
	injectConflicts  int
	appendCalls      int
	nextSequenceErrs error
}

func newFakeTimelineRepo() *fakeTimelineRepo {
	return &fakeTimelineRepo{events: map[string][]domain.StepEvent{}}
}

func (f *fakeTimelineRepo) NextSequence(ctx context.Context, runID string) (int64, error) {
	if f.nextSequenceErrs != nil {
		return 0, f.nextSequenceErrs
	}
	var max int64
	for _, event := range f.events[runID] {
		if event.Sequence > max {
			max = event.Sequence
		}
	}
	return max + 1, nil
}

func (f *fakeTimelineRepo) Append(ctx context.Context, event domain.StepEvent) (domain.StepEvent, error) {
	f.appendCalls++
	if err := event.Validate(); err != nil {
		return domain.StepEvent{}, err
	}
	if f.injectConflicts > 0 {
		f.injectConflicts--
		// simulate a concurrent writer winning the sequence slot
		f.events[event.RunID] = append(f.events[event.RunID], domain.StepEvent{
			RunID:     event.RunID,
			Sequence:  event.Sequence,
			Decision:  "concurrent",
			CreatedAt: event.CreatedAt,
		})
		return domain.StepEvent{}, repo.ErrSequenceConflict
	}
	for _, existing := range f.events[event.RunID] {
		if existing.Sequence == event.Sequence {
			return domain.StepEvent{}, repo.ErrSequenceConflict
		}
	}
	f.events[event.RunID] = append(f.events[event.RunID], event)
	return event, nil
}

func (f *fakeTimelineRepo) Latest(ctx context.Context, runID string) (domain.StepEvent, error) {
	events := f.events[runID]
	if len(events) == 0 {
		return domain.StepEvent{}, repo.ErrNotFound
	}
	latest := events[0]
	for _, event := range events[1:] {
		if event.Sequence > latest.Sequence {
			latest = event
		}
	}
	return latest, nil
}

func (f *fakeTimelineRepo) ListByRun(ctx context.Context, runID string) ([]domain.StepEvent, error) {
	events := append([]domain.StepEvent(nil), f.events[runID]...)
	sort.Slice(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}

func newTestService(runs *fakeRunRepo, timeline *fakeTimelineRepo) *Service {
	svc := New(runs, timeline)
	if svc == nil {
		panic("nil service")
	}
	return svc
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestSaveCreatesFreshRunIDs(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		id, err := svc.Save(context.Background(), SaveInput{
			ScenarioID:  "phish-01",
			DisplayName: "Phishing Triage",
			Username:    "analyst",
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated run id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("run id %s returned twice", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSaveUpdatesResultFieldsOnly(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	id, err := svc.Save(context.Background(), SaveInput{
		ScenarioID:  "phish-01",
		DisplayName: "Phishing Triage",
		Username:    "analyst",
		Score:       intPtr(10),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// the update carries different identity fields; they must be ignored
	got, err := svc.Save(context.Background(), SaveInput{
		RunID:       id,
		ScenarioID:  "other-scenario",
		DisplayName: "Other Name",
		Username:    "someone-else",
		Score:       intPtr(80),
		Completed:   boolPtr(true),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != id {
		t.Fatalf("update returned %s, want %s", got, id)
	}

	run := runs.runs[id]
	if run.ScenarioID != "phish-01" || run.Username != "analyst" || run.DisplayName != "Phishing Triage" {
		t.Fatalf("identity fields changed: %+v", run)
	}
	if run.Score == nil || *run.Score != 80 {
		t.Fatalf("score not updated: %+v", run.Score)
	}

	if _, err := svc.Save(context.Background(), SaveInput{RunID: id, Score: intPtr(95)}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if run := runs.runs[id]; run.Score == nil || *run.Score != 95 {
		t.Fatalf("last write must win, got %+v", run.Score)
	}
}

func TestSaveUnknownRunFailsNotFound(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	_, err := svc.Save(context.Background(), SaveInput{RunID: "missing", Score: intPtr(1)})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if len(runs.runs) != 0 {
		t.Fatalf("update of missing run must not create one")
	}
}

func TestRecordStepSequenceIgnoresStepIndex(t *testing.T) {
	runs := newFakeRunRepo()
	timeline := newFakeTimelineRepo()
	svc := newTestService(runs, timeline)

	id, err := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	for _, stepIndex := range []int{3, 1, 2} {
		if _, err := svc.RecordStep(context.Background(), StepInput{
			RunID:     id,
			StepIndex: stepIndex,
			Decision:  "choice",
			TimeMs:    int64Ptr(100),
		}); err != nil {
			t.Fatalf("record step %d: %v", stepIndex, err)
		}
	}

	events, err := svc.Timeline(context.Background(), id)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len=%d, want 3", len(events))
	}
	wantIndexes := []int{3, 1, 2}
	for i, event := range events {
		if event.Sequence != int64(i+1) {
			t.Fatalf("event %d sequence=%d, want %d", i, event.Sequence, i+1)
		}
		if event.StepIndex != wantIndexes[i] {
			t.Fatalf("event %d step_index=%d, want %d", i, event.StepIndex, wantIndexes[i])
		}
	}
}

func TestRecordStepDurationPassthrough(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})
	event, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "choice", TimeMs: int64Ptr(1500)})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.TimeMs != 1500 {
		t.Fatalf("TimeMs=%d, want 1500", event.TimeMs)
	}
}

func TestRecordStepBackfillsFromPreviousEvent(t *testing.T) {
	runs := newFakeRunRepo()
	timeline := newFakeTimelineRepo()
	svc := newTestService(runs, timeline)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})
	if _, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "first", TimeMs: int64Ptr(10)}); err != nil {
		t.Fatalf("first step: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Second) }
	event, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "second"})
	if err != nil {
		t.Fatalf("second step: %v", err)
	}
	if event.TimeMs != 2000 {
		t.Fatalf("TimeMs=%d, want 2000", event.TimeMs)
	}
}

func TestRecordStepBackfillsFromRunCreation(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})

	svc.now = func() time.Time { return base.Add(5 * time.Second) }
	event, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "first"})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.TimeMs != 5000 {
		t.Fatalf("TimeMs=%d, want 5000", event.TimeMs)
	}
}

func TestRecordStepRejectsImplausibleDuration(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})

	svc.now = func() time.Time { return base.Add(3 * time.Second) }
	event, err := svc.RecordStep(context.Background(), StepInput{
		RunID:    id,
		Decision: "first",
		TimeMs:   int64Ptr(99_999_999_999), // an epoch timestamp, not a duration
	})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.TimeMs != 3000 {
		t.Fatalf("TimeMs=%d, want backfilled 3000", event.TimeMs)
	}
}

func TestRecordStepDurationNeverNegative(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base.Add(10 * time.Second) }
	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})

	// clock moved backwards relative to the run's creation
	svc.now = func() time.Time { return base }
	event, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "first"})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.TimeMs != 0 {
		t.Fatalf("TimeMs=%d, want 0", event.TimeMs)
	}
}

func TestRecordStepUnknownRunDerivesZero(t *testing.T) {
	svc := newTestService(newFakeRunRepo(), newFakeTimelineRepo())

	event, err := svc.RecordStep(context.Background(), StepInput{RunID: "ghost", Decision: "choice"})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.TimeMs != 0 {
		t.Fatalf("TimeMs=%d, want 0 when no baseline exists", event.TimeMs)
	}
}

func TestRecordStepRetriesOnSequenceConflict(t *testing.T) {
	runs := newFakeRunRepo()
	timeline := newFakeTimelineRepo()
	svc := newTestService(runs, timeline)

	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})

	timeline.injectConflicts = 1
	event, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "choice", TimeMs: int64Ptr(10)})
	if err != nil {
		t.Fatalf("record step: %v", err)
	}
	if event.Sequence != 2 {
		t.Fatalf("Sequence=%d, want 2 after losing slot 1 to a concurrent writer", event.Sequence)
	}
	if timeline.appendCalls != 2 {
		t.Fatalf("appendCalls=%d, want 2", timeline.appendCalls)
	}
}

func TestRecordStepGivesUpAfterBoundedRetries(t *testing.T) {
	runs := newFakeRunRepo()
	timeline := newFakeTimelineRepo()
	svc := newTestService(runs, timeline)

	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "u"})

	timeline.injectConflicts = appendAttempts
	_, err := svc.RecordStep(context.Background(), StepInput{RunID: id, Decision: "choice", TimeMs: int64Ptr(10)})
	if !errors.Is(err, repo.ErrSequenceConflict) {
		t.Fatalf("err=%v, want ErrSequenceConflict", err)
	}
	if timeline.appendCalls != appendAttempts {
		t.Fatalf("appendCalls=%d, want %d", timeline.appendCalls, appendAttempts)
	}
}

func TestDetailScopedToOwner(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	id, _ := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: "analyst"})

	if _, err := svc.Detail(context.Background(), "analyst", id); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := svc.Detail(context.Background(), "intruder", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound for wrong owner", err)
	}
}

func TestListAllFiltersBySubstring(t *testing.T) {
	runs := newFakeRunRepo()
	svc := newTestService(runs, newFakeTimelineRepo())

	for _, name := range []string{"alice", "bob", "malice"} {
		if _, err := svc.Save(context.Background(), SaveInput{ScenarioID: "s", DisplayName: "n", Username: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	all, err := svc.ListAll(context.Background(), repo.RunFilter{Username: "Alice"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len=%d, want 2 case-insensitive substring matches", len(all))
	}
}
