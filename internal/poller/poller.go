package poller

import (
	"context"
	"time"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
)

const (
	// DefaultInterval replaces a non-positive poll interval.
	DefaultInterval = 2 * time.Second
	// MinInterval is the shortest gap between two polls of one job.
	MinInterval = time.Millisecond
)

// Options configures a Poller.
type Options struct {
	// QueryTimeout bounds one status call. Zero means the job timeout.
	QueryTimeout time.Duration
	Logger       *infra.Logger
}

// Poller creates trackers bound to a status source.
type Poller struct {
	source       StatusSource
	queryTimeout time.Duration
	logger       infra.Logger
}

func New(source StatusSource, opts Options) *Poller {
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Poller{source: source, queryTimeout: opts.QueryTimeout, logger: logger}
}

// NewTracker returns a tracker that polls each job at most once per interval
// and gives up after timeout. A non-positive interval means DefaultInterval.
func (p *Poller) NewTracker(interval, timeout time.Duration) *Tracker {
	return newTracker(p.source, interval, timeout, p.queryTimeout, p.logger)
}

// AwaitCompletion polls a single job until it completes, fails, times out or
// ctx is done.
func (p *Poller) AwaitCompletion(ctx context.Context, h domain.JobHandle, interval, timeout time.Duration) (domain.ArtifactRef, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := p.NewTracker(interval, timeout)
	go tracker.Run(ctx)
	defer func() {
		cancel()
		<-tracker.Done()
	}()

	res := <-tracker.Add(h)
	return res.Ref, res.Err
}
