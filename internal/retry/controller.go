// Package retry runs a job spec through build, submit, await and collect with
// a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"genbatch/internal/backoff"
	"genbatch/internal/domain"
	"genbatch/internal/infra"
)

// ReasonCanceled is the outcome reason when the caller gives up.
const ReasonCanceled = "canceled"

// ErrBuild marks an attempt whose payload could not be rendered. Rebuilding
// the same spec fails the same way, so it ends the job without a retry.
var ErrBuild = errors.New("payload build failed")

// PayloadBuilder renders a fresh payload for one attempt.
type PayloadBuilder interface {
	Build(spec domain.JobSpec, attempt, seq int) (domain.Payload, error)
}

// Submitter sends a payload to the backend and returns its job id.
type Submitter interface {
	Submit(ctx context.Context, payload domain.Payload) (string, error)
}

// Awaiter blocks until a submitted job resolves.
type Awaiter interface {
	Await(ctx context.Context, h domain.JobHandle) (domain.ArtifactRef, error)
}

// Collector copies a completed job's artifact to its destination.
type Collector interface {
	Collect(ctx context.Context, ref domain.ArtifactRef, destinationName string) (string, error)
}

// Attempt is the result of one submission.
type Attempt struct {
	Number int
	Handle domain.JobHandle
	Err    error
}

// Options configures a Controller.
type Options struct {
	Builder   PayloadBuilder
	Submitter Submitter
	Awaiter   Awaiter
	Collector Collector
	// Backoff defaults to a constant 5s.
	Backoff backoff.Strategy
	Logger  *infra.Logger
	Now     func() time.Time
}

// Controller drives attempt sequences. It holds no per-job state and is safe
// for concurrent use.
type Controller struct {
	builder   PayloadBuilder
	submitter Submitter
	awaiter   Awaiter
	collector Collector
	backoff   backoff.Strategy
	logger    infra.Logger
	now       func() time.Time
}

func NewController(opts Options) (*Controller, error) {
	if opts.Builder == nil || opts.Submitter == nil || opts.Awaiter == nil || opts.Collector == nil {
		return nil, errors.New("retry: builder, submitter, awaiter and collector are required")
	}
	c := &Controller{
		builder:   opts.Builder,
		submitter: opts.Submitter,
		awaiter:   opts.Awaiter,
		collector: opts.Collector,
		backoff:   opts.Backoff,
		logger:    infra.DiscardLogger(),
		now:       opts.Now,
	}
	if c.backoff == nil {
		c.backoff = backoff.NewConstant(5 * time.Second)
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Submit builds and submits attempt number n of spec.
func (c *Controller) Submit(ctx context.Context, spec domain.JobSpec, seq, n int) Attempt {
	payload, err := c.builder.Build(spec, n, seq)
	if err != nil {
		return Attempt{Number: n, Err: fmt.Errorf("retry: %w: %w", ErrBuild, err)}
	}
	submittedAt := c.now()
	jobID, err := c.submitter.Submit(ctx, payload)
	if err != nil {
		return Attempt{Number: n, Err: err}
	}
	return Attempt{Number: n, Handle: domain.JobHandle{
		Spec:        spec,
		JobID:       jobID,
		Prefix:      payload.Prefix,
		Seed:        payload.Seed,
		Attempt:     n,
		SubmittedAt: submittedAt,
	}}
}

// SubmitWithRetry runs spec until it completes or maxAttempts are used. Every
// path ends in a JobOutcome.
func (c *Controller) SubmitWithRetry(ctx context.Context, spec domain.JobSpec, maxAttempts int) domain.JobOutcome {
	return c.Resume(ctx, spec, 0, maxAttempts, nil)
}

// Resume is SubmitWithRetry where the first attempt may already have been
// submitted by the caller. seq is the sequence number used for filename
// prefixes.
func (c *Controller) Resume(ctx context.Context, spec domain.JobSpec, seq, maxAttempts int, first *Attempt) domain.JobOutcome {
	start := c.now()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	out := domain.JobOutcome{}
	finish := func(kind domain.OutcomeKind, reason string) domain.JobOutcome {
		out.Kind = kind
		out.Reason = reason
		out.Duration = c.now().Sub(start)
		return out
	}
	log := c.logger.With().Str("spec_id", spec.ID).Str("destination", spec.Destination).Logger()

	var lastErr error
	rejected := false
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 {
			if err := backoff.Wait(ctx, c.backoff.Delay(n-1)); err != nil {
				return finish(domain.OutcomeTimedOut, ReasonCanceled)
			}
		}

		var att Attempt
		if n == 1 && first != nil {
			att = *first
		} else {
			att = c.Submit(ctx, spec, seq, n)
		}
		out.Attempts = n

		if att.Err != nil {
			lastErr = att.Err
			rejected = errors.Is(att.Err, domain.ErrRejected)
			if errors.Is(att.Err, ErrBuild) {
				log.Error().Err(att.Err).Int("attempt", n).Msg("retry: payload build failed")
				return finish(domain.OutcomeFailed, att.Err.Error())
			}
			if ctx.Err() != nil {
				return finish(domain.OutcomeTimedOut, ReasonCanceled)
			}
			msg := "retry: submission failed"
			if rejected {
				msg = "retry: submission rejected"
			}
			log.Warn().Err(att.Err).Int("attempt", n).Msg(msg)
			continue
		}
		rejected = false
		out.JobIDs = append(out.JobIDs, att.Handle.JobID)

		ref, err := c.awaiter.Await(ctx, att.Handle)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return finish(domain.OutcomeTimedOut, ReasonCanceled)
			}
			log.Warn().Err(err).Int("attempt", n).Str("job_id", att.Handle.JobID).Msg("retry: job did not complete")
			continue
		}

		path, err := c.collector.Collect(ctx, ref, spec.Destination)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return finish(domain.OutcomeTimedOut, ReasonCanceled)
			}
			log.Warn().Err(err).Int("attempt", n).Str("job_id", att.Handle.JobID).Msg("retry: collect failed")
			continue
		}
		out.ArtifactPath = path
		return finish(domain.OutcomeCompleted, "")
	}

	reason := "attempts exhausted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	if rejected {
		return finish(domain.OutcomeSubmissionRejected, reason)
	}
	return finish(domain.OutcomeFailed, reason)
}
