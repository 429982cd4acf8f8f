package collector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/backoff"
	"github.com/user/seller-collector/internal/classify"
	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/monitoring"
	"github.com/user/seller-collector/internal/session"
)

// Fetcher resolves a target locator into its sub-records. Implementations
// return domain.ErrUnauthenticated when the service rejects the session.
type Fetcher interface {
	Fetch(ctx context.Context, handle *session.Handle, locator string, maxItems int) ([]domain.SubRecord, error)
}

// Classifier is the external title-classification oracle.
type Classifier interface {
	Classify(ctx context.Context, key string) (domain.Classification, error)
}

// Exporter produces the checkpoint artifacts.
type Exporter interface {
	ExportIntermediate(results []domain.CollectionResult) (string, error)
	ExportFinal(results []domain.CollectionResult) (string, error)
}

// Task executes the per-entity collection steps: acquire a session, fetch
// sub-records under the fetch retry budget, then classify with early
// termination.
type Task struct {
	sessions    *session.Manager
	serviceID   string
	fetcher     Fetcher
	classifier  Classifier
	tokenizer   classify.Tokenizer
	fetchPolicy backoff.Policy
	maxItems    int
	maxTokens   int
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

func NewTask(
	sessions *session.Manager,
	serviceID string,
	fetcher Fetcher,
	classifier Classifier,
	tokenizer classify.Tokenizer,
	fetchPolicy backoff.Policy,
	maxItems int,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Task {
	return &Task{
		sessions:    sessions,
		serviceID:   serviceID,
		fetcher:     fetcher,
		classifier:  classifier,
		tokenizer:   tokenizer,
		fetchPolicy: fetchPolicy,
		maxItems:    maxItems,
		maxTokens:   2,
		metrics:     metrics,
		logger:      logger,
	}
}

// Fetch collects up to maxItems sub-records for the target. Every attempt
// re-ensures the session first, so a reactive expiry detected on one
// attempt is repaired by a fresh login on the next. Retry exhaustion yields
// an entity-scoped *domain.ConnError; auth failures surface unchanged and
// are fatal for the service.
func (t *Task) Fetch(ctx context.Context, target domain.CollectionTarget) (*domain.CollectionResult, error) {
	var subRecords []domain.SubRecord
	attempt := 0

	err := t.fetchPolicy.Retry(ctx, func(ctx context.Context) error {
		attempt++
		handle, err := t.sessions.EnsureValid(ctx, t.serviceID)
		if err != nil {
			// Login failures will not self-correct within this task.
			return backoff.Permanent(err)
		}

		start := time.Now()
		recs, err := t.fetcher.Fetch(ctx, handle, target.Locator, t.maxItems)
		t.metrics.FetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				// Reactive expiry detection: force a re-login before the
				// next attempt instead of re-probing a dead session.
				t.sessions.Invalidate(ctx, t.serviceID)
			}
			t.logger.Warn("fetch attempt failed",
				zap.String("entity", target.EntityID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		subRecords = recs
		return nil
	})
	if err != nil {
		var authErr *domain.AuthError
		var proxyErr *domain.ProxyAuthError
		if errors.As(err, &authErr) || errors.As(err, &proxyErr) {
			return nil, err
		}
		return nil, &domain.ConnError{Locator: target.Locator, Attempts: attempt, Err: err}
	}

	partial := len(subRecords) < t.maxItems
	if partial {
		// Expected for small sellers; not a failure.
		t.logger.Warn("fewer sub-records than requested",
			zap.String("entity", target.EntityID),
			zap.Int("got", len(subRecords)),
			zap.Int("want", t.maxItems))
	}

	return &domain.CollectionResult{
		EntityID:       target.EntityID,
		Name:           target.Name,
		Locator:        target.Locator,
		SubRecords:     subRecords,
		Classification: domain.ClassUnknown,
		Partial:        partial,
	}, nil
}

// Classify walks the result's sub-records in order and stops at the first
// positive hit, recording how many records were left unexamined. Classifier
// errors mark a single record unknown and never abort the entity.
func (t *Task) Classify(ctx context.Context, result *domain.CollectionResult) {
	unknowns := 0

	for i, rec := range result.SubRecords {
		key, degraded := classify.ClassificationKey(t.tokenizer, rec.Label, t.maxTokens)
		if degraded {
			t.metrics.TokenizerDegraded.Inc()
			t.logger.Warn("tokenizer unavailable, naive key derivation",
				zap.String("entity", result.EntityID))
		}

		class, err := t.classifier.Classify(ctx, key)
		if err != nil {
			t.logger.Warn("classifier unavailable for sub-record",
				zap.String("entity", result.EntityID),
				zap.Int("index", i),
				zap.Error(err))
			t.metrics.IncErrorsTotal(string(domain.KindClassifier))
			unknowns++
			continue
		}

		switch class {
		case domain.ClassPositive:
			result.Classification = domain.ClassPositive
			result.SkippedCount = len(result.SubRecords) - i - 1
			t.logger.Info("positive classification, terminating early",
				zap.String("entity", result.EntityID),
				zap.Int("position", i+1),
				zap.Int("skipped", result.SkippedCount))
			return
		case domain.ClassUnknown:
			unknowns++
		case domain.ClassNegative:
			// Keep going.
		}
	}

	if len(result.SubRecords) > 0 && unknowns == len(result.SubRecords) {
		result.Classification = domain.ClassUnknown
		return
	}
	result.Classification = domain.ClassNegative
}
