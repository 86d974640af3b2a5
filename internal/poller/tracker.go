// Package poller waits for submitted jobs to reach a terminal state.
//
// Every tracked job is a small state machine (submitted, polling, then
// completed, failed or timed out). One scheduler goroutine owns all job state
// and wakes for the earliest pending poll or deadline; status queries run in
// their own goroutines so a slow query never delays sibling jobs.
package poller

import (
	"context"
	"errors"
	"time"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
)

// StatusSource answers whether the backend has finished a job.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (domain.CompletionStatus, error)
}

type state int

const (
	stateSubmitted state = iota
	statePolling
	stateCompleted
	stateFailed
	stateTimedOut
)

func (s state) String() string {
	switch s {
	case stateSubmitted:
		return "submitted"
	case statePolling:
		return "polling"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the terminal resolution of one tracked handle.
type Result struct {
	Handle domain.JobHandle
	Ref    domain.ArtifactRef
	Err    error
	Polls  int
}

type job struct {
	handle   domain.JobHandle
	state    state
	deadline time.Time
	nextPoll time.Time
	inFlight bool
	polls    int
	lastErr  error
	out      chan Result
}

type queryResult struct {
	job     *job
	started time.Time
	status  domain.CompletionStatus
	err     error
}

// Tracker polls many jobs concurrently. Run must be running for Add and Await
// to make progress.
type Tracker struct {
	source       StatusSource
	interval     time.Duration
	timeout      time.Duration
	queryTimeout time.Duration
	logger       infra.Logger

	addCh    chan *job
	removeCh chan *job
	done     chan struct{}
}

func newTracker(source StatusSource, interval, timeout, queryTimeout time.Duration, logger infra.Logger) *Tracker {
	switch {
	case interval <= 0:
		interval = DefaultInterval
	case interval < MinInterval:
		interval = MinInterval
	}
	if queryTimeout <= 0 || queryTimeout > timeout {
		queryTimeout = timeout
	}
	return &Tracker{
		source:       source,
		interval:     interval,
		timeout:      timeout,
		queryTimeout: queryTimeout,
		logger:       logger,
		addCh:        make(chan *job),
		removeCh:     make(chan *job),
		done:         make(chan struct{}),
	}
}

// Add starts tracking h. The timeout is measured from the moment the tracker
// accepts the job. The returned channel receives exactly one Result.
func (t *Tracker) Add(h domain.JobHandle) <-chan Result {
	j := &job{handle: h, state: stateSubmitted, out: make(chan Result, 1)}
	select {
	case t.addCh <- j:
	case <-t.done:
		j.out <- Result{Handle: h, Err: &PollError{JobID: h.JobID, Kind: KindTimedOut, Cause: ErrStopped}}
	}
	return j.out
}

// Await tracks h and blocks until it resolves or ctx is done. A job whose
// caller gives up is dropped from the active set.
func (t *Tracker) Await(ctx context.Context, h domain.JobHandle) (domain.ArtifactRef, error) {
	j := &job{handle: h, state: stateSubmitted, out: make(chan Result, 1)}
	select {
	case t.addCh <- j:
	case <-t.done:
		return domain.ArtifactRef{}, &PollError{JobID: h.JobID, Kind: KindTimedOut, Cause: ErrStopped}
	case <-ctx.Done():
		return domain.ArtifactRef{}, &PollError{JobID: h.JobID, Kind: KindTimedOut, Cause: ctx.Err()}
	}
	select {
	case res := <-j.out:
		return res.Ref, res.Err
	case <-ctx.Done():
		select {
		case t.removeCh <- j:
		case <-t.done:
		}
		return domain.ArtifactRef{}, &PollError{JobID: h.JobID, Kind: KindTimedOut, Cause: ctx.Err()}
	}
}

// Done is closed once Run has returned.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Run drives every tracked job until ctx is done. On return all still-active
// jobs are resolved as timed out and no query goroutine remains.
func (t *Tracker) Run(ctx context.Context) {
	active := make(map[*job]struct{})
	results := make(chan queryResult)
	queryCtx, cancelQueries := context.WithCancel(ctx)
	inFlight := 0

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	defer func() {
		cancelQueries()
		for inFlight > 0 {
			<-results
			inFlight--
		}
		close(t.done)
	}()

	for {
		var wake <-chan time.Time
		if next, ok := t.nextEvent(active); ok {
			timer.Reset(time.Until(next))
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			for j := range active {
				t.resolve(j, stateTimedOut, Result{Err: &PollError{JobID: j.handle.JobID, Kind: KindTimedOut, Cause: ctx.Err()}})
			}
			return
		case j := <-t.addCh:
			now := time.Now()
			j.state = statePolling
			j.deadline = now.Add(t.timeout)
			j.nextPoll = now
			active[j] = struct{}{}
		case j := <-t.removeCh:
			delete(active, j)
		case r := <-results:
			inFlight--
			t.apply(active, r)
		case <-wake:
		}

		now := time.Now()
		for j := range active {
			if !now.Before(j.deadline) {
				t.logger.Warn().
					Str("job_id", j.handle.JobID).
					Int("polls", j.polls).
					Dur("timeout", t.timeout).
					Msg("poller: job timed out")
				t.resolve(j, stateTimedOut, Result{Err: &PollError{JobID: j.handle.JobID, Kind: KindTimedOut, Cause: j.lastErr}})
				delete(active, j)
				continue
			}
			if !j.inFlight && !now.Before(j.nextPoll) {
				j.inFlight = true
				inFlight++
				go t.query(queryCtx, j, results)
			}
		}
	}
}

func (t *Tracker) nextEvent(active map[*job]struct{}) (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(ts time.Time) {
		if !found || ts.Before(next) {
			next = ts
			found = true
		}
	}
	for j := range active {
		consider(j.deadline)
		if !j.inFlight {
			consider(j.nextPoll)
		}
	}
	return next, found
}

func (t *Tracker) query(ctx context.Context, j *job, results chan<- queryResult) {
	started := time.Now()
	qctx, cancel := context.WithTimeout(ctx, t.queryTimeout)
	status, err := t.source.Status(qctx, j.handle.JobID)
	cancel()
	// Run drains results after canceling queryCtx, so this send always lands.
	results <- queryResult{job: j, started: started, status: status, err: err}
}

func (t *Tracker) apply(active map[*job]struct{}, r queryResult) {
	j := r.job
	j.inFlight = false
	j.polls++
	if _, ok := active[j]; !ok {
		return
	}
	j.nextPoll = r.started.Add(t.interval)

	switch {
	case r.err != nil:
		if errors.Is(r.err, context.Canceled) {
			return
		}
		j.lastErr = &PollError{JobID: j.handle.JobID, Kind: KindTransient, Cause: r.err}
		t.logger.Warn().Err(r.err).
			Str("job_id", j.handle.JobID).
			Int("polls", j.polls).
			Msg("poller: status query failed, will retry")
	case r.status.Done && r.status.Failed:
		t.resolve(j, stateFailed, Result{Err: &PollError{JobID: j.handle.JobID, Kind: KindFailed, Cause: errors.New(r.status.Message)}})
		delete(active, j)
	case r.status.Done:
		t.logger.Debug().
			Str("job_id", j.handle.JobID).
			Int("polls", j.polls).
			Int("files", len(r.status.Files)).
			Msg("poller: job completed")
		t.resolve(j, stateCompleted, Result{Ref: domain.ArtifactRef{
			JobID:       j.handle.JobID,
			Prefix:      j.handle.Prefix,
			SubmittedAt: j.handle.SubmittedAt,
			Files:       r.status.Files,
		}})
		delete(active, j)
	}
}

func (t *Tracker) resolve(j *job, terminal state, res Result) {
	j.state = terminal
	res.Handle = j.handle
	res.Polls = j.polls
	j.out <- res
}
