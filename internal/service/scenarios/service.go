// Package scenarios serves authored scenario documents out of object
// storage: listing summaries for the picker, fetching full documents,
// and validated uploads.
package scenarios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/storage/objectstore"
)

var (
	// ErrNotFound means no stored document matched the scenario id.
	ErrNotFound = errors.New("scenario not found")
	// ErrBadDocument means the uploaded document failed decoding or validation.
	ErrBadDocument = errors.New("invalid scenario document")
)

// maxDocumentBytes caps a single scenario document read from storage.
const maxDocumentBytes = 1 << 20

var scenarioExtensions = []string{".json", ".yaml", ".yml"}

type Service struct {
	store  objectstore.Store
	bucket string
	logger *slog.Logger
}

func New(store objectstore.Store, bucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, bucket: bucket, logger: logger}
}

// List returns a summary for every decodable scenario document in the
// bucket. Malformed documents are skipped with a warning rather than
// failing the whole listing.
func (s *Service) List(ctx context.Context) ([]domain.ScenarioSummary, error) {
	objects, err := s.store.List(ctx, s.bucket, "")
	if err != nil {
		return nil, fmt.Errorf("list scenario objects: %w", err)
	}

	summaries := make([]domain.ScenarioSummary, 0, len(objects))
	for _, object := range objects {
		if !hasScenarioExtension(object.Key) {
			continue
		}
		scenario, err := s.load(ctx, object.Key)
		if err != nil {
			s.logger.Warn("skipping undecodable scenario", "key", object.Key, "error", err)
			continue
		}
		summaries = append(summaries, scenario.Summary())
	}
	return summaries, nil
}

// Get fetches the full scenario document by id, trying each accepted
// extension as the object key and falling back to a scan over the bucket
// for documents whose key does not match their declared id.
func (s *Service) Get(ctx context.Context, scenarioID string) (domain.Scenario, error) {
	for _, ext := range scenarioExtensions {
		scenario, err := s.load(ctx, scenarioID+ext)
		if err == nil {
			return scenario, nil
		}
	}

	objects, err := s.store.List(ctx, s.bucket, "")
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("list scenario objects: %w", err)
	}
	for _, object := range objects {
		if !hasScenarioExtension(object.Key) {
			continue
		}
		scenario, err := s.load(ctx, object.Key)
		if err != nil {
			continue
		}
		if scenario.ScenarioID == scenarioID {
			return scenario, nil
		}
	}
	return domain.Scenario{}, ErrNotFound
}

// Upload decodes the document according to the filename extension,
// validates it, and stores it keyed by the declared scenario id. The
// returned value is the stored scenario.
func (s *Service) Upload(ctx context.Context, filename string, body io.Reader) (domain.Scenario, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !hasScenarioExtension(filename) {
		return domain.Scenario{}, fmt.Errorf("%w: unsupported extension %q", ErrBadDocument, ext)
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes+1))
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("read upload: %w", err)
	}
	if len(raw) > maxDocumentBytes {
		return domain.Scenario{}, fmt.Errorf("%w: document exceeds %d bytes", ErrBadDocument, maxDocumentBytes)
	}

	var scenario domain.Scenario
	switch ext {
	case ".json":
		if err := json.Unmarshal(raw, &scenario); err != nil {
			return domain.Scenario{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &scenario); err != nil {
			return domain.Scenario{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	}
	if err := scenario.Validate(); err != nil {
		return domain.Scenario{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}

	key := scenario.ScenarioID + ext
	contentType := "application/json"
	if ext != ".json" {
		contentType = "application/yaml"
	}
	if err := s.store.Put(ctx, s.bucket, key, strings.NewReader(string(raw)), int64(len(raw)), contentType); err != nil {
		return domain.Scenario{}, fmt.Errorf("store scenario: %w", err)
	}
	return scenario, nil
}

// Delete removes the stored document for the scenario id, whichever
// extension it was stored under.
func (s *Service) Delete(ctx context.Context, scenarioID string) error {
	for _, ext := range scenarioExtensions {
		key := scenarioID + ext
		if _, err := s.load(ctx, key); err != nil {
			continue
		}
		if err := s.store.Delete(ctx, s.bucket, key); err != nil {
			return fmt.Errorf("delete scenario: %w", err)
		}
		return nil
	}
	return ErrNotFound
}

func (s *Service) load(ctx context.Context, key string) (domain.Scenario, error) {
	body, _, err := s.store.Get(ctx, s.bucket, key)
	if err != nil {
		return domain.Scenario{}, err
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes+1))
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(raw) > maxDocumentBytes {
		return domain.Scenario{}, fmt.Errorf("%s exceeds %d bytes", key, maxDocumentBytes)
	}

	var scenario domain.Scenario
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &scenario)
	default:
		err = json.Unmarshal(raw, &scenario)
	}
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return scenario, nil
}

func hasScenarioExtension(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, allowed := range scenarioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
