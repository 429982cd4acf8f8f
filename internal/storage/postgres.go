package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/seller-collector/internal/domain"
)

// RunStore persists completed collection runs for later inspection.
type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(connStr string) (*RunStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *RunStore) Close() {
	s.db.Close()
}

// SaveRun writes the run, its per-seller results and its failures within a
// single transaction.
func (s *RunStore) SaveRun(ctx context.Context, run *domain.CollectionRun) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	summary := run.Summarize()
	var runID int
	err = tx.QueryRow(ctx,
		`INSERT INTO collection_runs (started_at, finished_at, positive, negative, unknown, failed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		run.StartedAt, run.FinishedAt, summary.Positive, summary.Negative, summary.Unknown, summary.Failed,
	).Scan(&runID)
	if err != nil {
		return err
	}

	if len(run.Results) > 0 {
		batch := &pgx.Batch{}
		for _, res := range run.Results {
			batch.Queue(
				`INSERT INTO collection_results (run_id, entity_id, seller_name, locator, classification, partial, skipped_count, sub_record_count)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				runID, res.EntityID, res.Name, res.Locator, string(res.Classification),
				res.Partial, res.SkippedCount, len(res.SubRecords))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	if len(run.Failures) > 0 {
		batch := &pgx.Batch{}
		for _, f := range run.Failures {
			reason := ""
			if f.Err != nil {
				reason = f.Err.Error()
			}
			batch.Queue(
				`INSERT INTO collection_failures (run_id, entity_id, error_kind, reason)
				 VALUES ($1, $2, $3, $4)`,
				runID, f.EntityID, string(f.ErrorKind), reason)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// RunSummary is the stored view of a finished run.
type RunSummary struct {
	ID         int       `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Positive   int       `json:"positive"`
	Negative   int       `json:"negative"`
	Unknown    int       `json:"unknown"`
	Failed     int       `json:"failed"`
}

// LatestRun returns the most recent stored run summary.
func (s *RunStore) LatestRun(ctx context.Context) (*RunSummary, error) {
	var summary RunSummary
	err := s.db.QueryRow(ctx,
		`SELECT id, started_at, finished_at, positive, negative, unknown, failed
		 FROM collection_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&summary.ID, &summary.StartedAt, &summary.FinishedAt,
		&summary.Positive, &summary.Negative, &summary.Unknown, &summary.Failed)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("not_found")
	}
	return &summary, err
}
