package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/monitoring"
)

// Orchestrator schedules entity collection tasks under a concurrency cap
// and aggregates their outcomes. Task failures are isolated: one entity's
// error never cancels a sibling. The run is split into a fetch phase and a
// classification phase so the intermediate checkpoint always sees every
// seller's raw sub-records.
type Orchestrator struct {
	task        *Task
	exporter    Exporter
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	concurrency int
	minPrice    int
	softTimeout time.Duration
}

func NewOrchestrator(
	task *Task,
	exporter Exporter,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	concurrency int,
	minPrice int,
	softTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		task:        task,
		exporter:    exporter,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		minPrice:    minPrice,
		softTimeout: softTimeout,
	}
}

// Run collects and classifies every admitted target. Each admitted target
// ends up in exactly one of run.Results or run.Failures. A service-fatal
// authentication error aborts scheduling, but everything fetched before the
// abort is still handed to the intermediate checkpoint, and both the
// partial run and the error are returned.
func (o *Orchestrator) Run(ctx context.Context, targets []domain.CollectionTarget) (*domain.CollectionRun, error) {
	run := &domain.CollectionRun{StartedAt: time.Now()}

	admitted := o.admit(targets)
	o.logger.Info("collection run starting",
		zap.Int("targets", len(targets)),
		zap.Int("admitted", len(admitted)),
		zap.Int("concurrency", o.concurrency))

	stopWatchdog := o.watchdog(run.StartedAt)
	defer stopWatchdog()

	results, failures, fatal := o.fetchAll(ctx, admitted)

	if _, err := o.exporter.ExportIntermediate(results); err != nil {
		// The checkpoint is best-effort; collected data stays in memory.
		o.logger.Error("intermediate export failed", zap.Error(err))
	}

	if fatal == nil {
		o.classifyAll(ctx, results)
		if _, err := o.exporter.ExportFinal(results); err != nil {
			o.logger.Error("final export failed", zap.Error(err))
		}
	}

	run.Results = results
	run.Failures = failures
	run.FinishedAt = time.Now()

	summary := run.Summarize()
	for _, res := range run.Results {
		o.metrics.IncClassification(string(res.Classification))
		o.metrics.IncSellersProcessed("collected")
	}
	for _, f := range run.Failures {
		o.metrics.IncSellersProcessed("failed")
		o.metrics.IncErrorsTotal(string(f.ErrorKind))
	}
	o.logger.Info("collection run finished",
		zap.Int("positive", summary.Positive),
		zap.Int("negative", summary.Negative),
		zap.Int("unknown", summary.Unknown),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))

	return run, fatal
}

// admit applies the threshold gate before any task is created.
func (o *Orchestrator) admit(targets []domain.CollectionTarget) []domain.CollectionTarget {
	admitted := make([]domain.CollectionTarget, 0, len(targets))
	for _, t := range targets {
		if t.TotalPrice < o.minPrice {
			o.logger.Debug("target below admission threshold",
				zap.String("entity", t.EntityID),
				zap.Int("total_price", t.TotalPrice),
				zap.Int("min_price", o.minPrice))
			continue
		}
		admitted = append(admitted, t)
	}
	return admitted
}

// fetchAll runs the fetch step for every target, FIFO, at most concurrency
// at a time. Outcomes are kept in target order. When a fatal error is
// observed, targets not yet scheduled are recorded as failed without
// running.
func (o *Orchestrator) fetchAll(ctx context.Context, targets []domain.CollectionTarget) ([]domain.CollectionResult, []domain.CollectionFailure, error) {
	type outcome struct {
		result *domain.CollectionResult
		err    error
	}
	outcomes := make([]outcome, len(targets))

	var mu sync.Mutex
	var fatal error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, target := range targets {
		mu.Lock()
		aborted := fatal
		mu.Unlock()
		if aborted != nil {
			outcomes[i] = outcome{err: aborted}
			continue
		}

		g.Go(func() error {
			result, err := o.task.Fetch(gctx, target)
			outcomes[i] = outcome{result: result, err: err}
			if err != nil && isServiceFatal(err) {
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
			}
			// Always nil: a task failure must not cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	var results []domain.CollectionResult
	var failures []domain.CollectionFailure
	for i, out := range outcomes {
		switch {
		case out.result != nil:
			results = append(results, *out.result)
		case out.err != nil:
			failures = append(failures, domain.CollectionFailure{
				EntityID:  targets[i].EntityID,
				ErrorKind: domain.KindOf(out.err),
				Err:       out.err,
			})
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return results, failures, fatal
}

// classifyAll runs the classification step for every fetched result under
// the same concurrency cap.
func (o *Orchestrator) classifyAll(ctx context.Context, results []domain.CollectionResult) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range results {
		g.Go(func() error {
			o.task.Classify(gctx, &results[i])
			return nil
		})
	}
	_ = g.Wait()
}

// watchdog logs a warning once the soft wall-clock budget is exceeded. It
// never cancels anything: partial results beat aborted ones.
func (o *Orchestrator) watchdog(startedAt time.Time) func() {
	if o.softTimeout <= 0 {
		return func() {}
	}
	timer := time.NewTimer(o.softTimeout)
	done := make(chan struct{})
	go func() {
		select {
		case <-timer.C:
			o.logger.Warn("soft time budget exceeded, run continues",
				zap.Duration("budget", o.softTimeout),
				zap.Duration("elapsed", time.Since(startedAt)))
		case <-done:
			timer.Stop()
		}
	}()
	return func() { close(done) }
}

func isServiceFatal(err error) bool {
	var authErr *domain.AuthError
	var proxyErr *domain.ProxyAuthError
	return errors.As(err, &authErr) || errors.As(err, &proxyErr)
}
