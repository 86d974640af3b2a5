// Package ledger persists batch runs and per-job outcomes.
package ledger

import (
	"context"
	"fmt"
	"time"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
	"genbatch/internal/sqlinline"
)

// Run describes a batch at start.
type Run struct {
	ID          string
	StartedAt   time.Time
	Total       int
	Concurrency int
	MaxAttempts int
}

// Recorder receives run lifecycle events.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	RecordOutcome(ctx context.Context, runID string, rec domain.JobRecord) error
	FinishRun(ctx context.Context, runID string, res domain.BatchResult) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, Run) error { return nil }
func (NopRecorder) RecordOutcome(context.Context, string, domain.JobRecord) error { return nil }
func (NopRecorder) FinishRun(context.Context, string, domain.BatchResult) error { return nil }

// RunSummary is one row of the run history.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Submitted  int
	Attempts   int
	Completed  int
	Failed     int
	TimedOut   int
}

// PGRecorder writes to generation_runs and generation_outcomes.
type PGRecorder struct {
	db infra.SQLExecutor
}

func NewPGRecorder(db infra.SQLExecutor) *PGRecorder {
	return &PGRecorder{db: db}
}

// EnsureSchema creates the ledger tables when missing.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateGenerationRuns, sqlinline.QCreateGenerationOutcomes} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ledger: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PGRecorder) StartRun(ctx context.Context, run Run) error {
	if _, err := r.db.Exec(ctx, sqlinline.QInsertGenerationRun,
		run.ID, run.StartedAt, run.Total, run.Concurrency, run.MaxAttempts); err != nil {
		return fmt.Errorf("ledger: start run: %w", err)
	}
	return nil
}

func (r *PGRecorder) RecordOutcome(ctx context.Context, runID string, rec domain.JobRecord) error {
	o := rec.Outcome
	jobIDs := o.JobIDs
	if jobIDs == nil {
		jobIDs = []string{}
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertGenerationOutcome,
		runID, rec.SpecID, rec.Destination, string(o.Kind), o.ArtifactPath, o.Reason,
		o.Attempts, jobIDs, o.Duration.Milliseconds()); err != nil {
		return fmt.Errorf("ledger: record outcome %s: %w", rec.SpecID, err)
	}
	return nil
}

func (r *PGRecorder) FinishRun(ctx context.Context, runID string, res domain.BatchResult) error {
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	if _, err := r.db.Exec(ctx, sqlinline.QFinishGenerationRun,
		runID, finished, res.Submitted, res.Attempts, res.Completed, res.Failed, res.TimedOut); err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *PGRecorder) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, sqlinline.QListGenerationRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.Total, &s.Submitted,
			&s.Attempts, &s.Completed, &s.Failed, &s.TimedOut); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	return out, nil
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*PGRecorder)(nil)
)
