// Package batch runs many job specs against one backend in bounded chunks and
// aggregates their outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"genbatch/internal/backoff"
	"genbatch/internal/domain"
	"genbatch/internal/infra"
	"genbatch/internal/ledger"
	"genbatch/internal/poller"
	"genbatch/internal/retry"
)

// ReasonNotStarted marks specs never dispatched before the batch ended.
const ReasonNotStarted = "not started"

// Backend is the generation service as seen by the orchestrator.
type Backend interface {
	retry.Submitter
	Health(ctx context.Context) error
}

// Observer is called once per outcome, in completion order, from the
// orchestrator goroutine.
type Observer func(rec domain.JobRecord, done, total int)

// Config wires an Orchestrator. Zero durations fall back to the defaults of
// the original batch runner.
type Config struct {
	Backend   Backend
	Poller    *poller.Poller
	Builder   retry.PayloadBuilder
	Collector retry.Collector

	PollInterval time.Duration
	PollTimeout  time.Duration
	RetryBackoff backoff.Strategy
	// ChunkPause separates chunks. Negative disables it.
	ChunkPause time.Duration
	// SubmitRate paces first submissions within a chunk, per second. Zero
	// disables pacing.
	SubmitRate float64
	// BatchTimeout bounds the whole run. Zero means no bound.
	BatchTimeout time.Duration

	Observer Observer
	Recorder ledger.Recorder
	Logger   *infra.Logger
}

// Orchestrator sequences job specs through the retry controller.
type Orchestrator struct {
	cfg    Config
	logger infra.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil || cfg.Poller == nil || cfg.Builder == nil || cfg.Collector == nil {
		return nil, errors.New("batch: backend, poller, builder and collector are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = poller.DefaultInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 120 * time.Second
	}
	if cfg.RetryBackoff == nil {
		cfg.RetryBackoff = backoff.NewConstant(5 * time.Second)
	}
	if cfg.ChunkPause == 0 {
		cfg.ChunkPause = 5 * time.Second
	}
	if cfg.Recorder == nil {
		cfg.Recorder = ledger.NopRecorder{}
	}
	o := &Orchestrator{cfg: cfg, logger: infra.DiscardLogger()}
	if cfg.Logger != nil {
		o.logger = *cfg.Logger
	}
	return o, nil
}

// RunBatch runs specs with at most concurrency jobs in flight. Job failures
// are recorded in the result; the only returned error is a backend that is
// unreachable at start, which wraps domain.ErrBatchAbort.
func (o *Orchestrator) RunBatch(ctx context.Context, specs []domain.JobSpec, concurrency, maxAttemptsPerJob int) (domain.BatchResult, error) {
	res := domain.BatchResult{StartedAt: time.Now()}
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttemptsPerJob < 1 {
		maxAttemptsPerJob = 1
	}

	if err := o.cfg.Backend.Health(ctx); err != nil {
		o.logger.Error().Err(err).Msg("batch: backend unreachable, aborting")
		res.FinishedAt = time.Now()
		return res, fmt.Errorf("batch: %w: %w", domain.ErrBatchAbort, err)
	}

	if o.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()
	}
	// Ledger writes must outlive batch cancellation.
	recordCtx := context.WithoutCancel(ctx)

	runID := uuid.NewString()
	log := o.logger.With().Str("run_id", runID).Logger()
	if err := o.cfg.Recorder.StartRun(recordCtx, ledger.Run{
		ID:          runID,
		StartedAt:   res.StartedAt,
		Total:       len(specs),
		Concurrency: concurrency,
		MaxAttempts: maxAttemptsPerJob,
	}); err != nil {
		log.Warn().Err(err).Msg("batch: ledger start failed")
	}

	trackerCtx, stopTracker := context.WithCancel(ctx)
	tracker := o.cfg.Poller.NewTracker(o.cfg.PollInterval, o.cfg.PollTimeout)
	go tracker.Run(trackerCtx)

	controller, err := retry.NewController(retry.Options{
		Builder:   o.cfg.Builder,
		Submitter: o.cfg.Backend,
		Awaiter:   tracker,
		Collector: o.cfg.Collector,
		Backoff:   o.cfg.RetryBackoff,
		Logger:    &log,
	})
	if err != nil {
		stopTracker()
		<-tracker.Done()
		return res, err
	}

	limit := rate.Inf
	if o.cfg.SubmitRate > 0 {
		limit = rate.Limit(o.cfg.SubmitRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	record := func(rec domain.JobRecord) {
		res.Record(rec)
		o.logOutcome(log, rec)
		if err := o.cfg.Recorder.RecordOutcome(recordCtx, runID, rec); err != nil {
			log.Warn().Err(err).Str("spec_id", rec.SpecID).Msg("batch: ledger record failed")
		}
		if o.cfg.Observer != nil {
			o.cfg.Observer(rec, len(res.Outcomes), len(specs))
		}
	}

	log.Info().
		Int("specs", len(specs)).
		Int("concurrency", concurrency).
		Int("max_attempts", maxAttemptsPerJob).
		Msg("batch: run started")

	outcomes := make(chan domain.JobRecord, concurrency)
	dispatched := 0
	seq := 0
	for start := 0; start < len(specs); start += concurrency {
		if ctx.Err() != nil {
			break
		}
		if start > 0 && o.cfg.ChunkPause > 0 {
			if err := backoff.Wait(ctx, o.cfg.ChunkPause); err != nil {
				break
			}
		}
		end := min(start+concurrency, len(specs))
		chunk := specs[start:end]

		// First attempts go out in spec order before any job is awaited.
		firsts := make([]retry.Attempt, len(chunk))
		seqs := make([]int, len(chunk))
		for i, spec := range chunk {
			seq++
			seqs[i] = seq
			if err := limiter.Wait(ctx); err != nil {
				firsts[i] = retry.Attempt{Number: 1, Err: err}
				continue
			}
			firsts[i] = controller.Submit(ctx, spec, seq, 1)
		}
		dispatched = end
		res.Submitted += len(chunk)

		var g errgroup.Group
		for i, spec := range chunk {
			g.Go(func() error {
				out := controller.Resume(ctx, spec, seqs[i], maxAttemptsPerJob, &firsts[i])
				outcomes <- domain.JobRecord{SpecID: spec.ID, Destination: spec.Destination, Outcome: out}
				return nil
			})
		}
		for range chunk {
			record(<-outcomes)
		}
		_ = g.Wait()
		log.Debug().Int("chunk_start", start).Int("chunk_size", len(chunk)).Msg("batch: chunk finished")
	}

	for _, spec := range specs[dispatched:] {
		record(domain.JobRecord{
			SpecID:      spec.ID,
			Destination: spec.Destination,
			Outcome:     domain.JobOutcome{Kind: domain.OutcomeTimedOut, Reason: ReasonNotStarted},
		})
	}

	stopTracker()
	<-tracker.Done()

	res.FinishedAt = time.Now()
	if err := o.cfg.Recorder.FinishRun(recordCtx, runID, res); err != nil {
		log.Warn().Err(err).Msg("batch: ledger finish failed")
	}
	log.Info().
		Int("submitted", res.Submitted).
		Int("attempts", res.Attempts).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("timed_out", res.TimedOut).
		Dur("elapsed", res.Elapsed()).
		Msg("batch: run finished")
	return res, nil
}

func (o *Orchestrator) logOutcome(log infra.Logger, rec domain.JobRecord) {
	ev := log.Info()
	if !rec.Outcome.Succeeded() {
		ev = log.Warn().Str("reason", rec.Outcome.Reason)
	}
	ev.Str("spec_id", rec.SpecID).
		Str("destination", rec.Destination).
		Str("kind", string(rec.Outcome.Kind)).
		Int("attempts", rec.Outcome.Attempts).
		Strs("job_ids", rec.Outcome.JobIDs).
		Str("artifact", rec.Outcome.ArtifactPath).
		Dur("duration", rec.Outcome.Duration).
		Msg("batch: job finished")
}
