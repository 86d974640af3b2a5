package poller

import (
	"errors"
	"fmt"

	"genbatch/internal/domain"
)

// ErrStopped is the cause reported for jobs added after the tracker exited.
var ErrStopped = errors.New("poller: tracker stopped")

// Kind classifies a PollError.
type Kind string

const (
	KindTimedOut  Kind = "timed_out"
	KindTransient Kind = "transient"
	KindFailed    Kind = "failed"
)

// PollError reports why waiting on a job ended without an artifact, or why a
// single status query failed (KindTransient).
type PollError struct {
	JobID string
	Kind  Kind
	Cause error
}

func (e *PollError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("poller: job %s %s", e.JobID, e.Kind)
	}
	return fmt.Sprintf("poller: job %s %s: %v", e.JobID, e.Kind, e.Cause)
}

func (e *PollError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindTimedOut:
		sentinel = domain.ErrTimedOut
	case KindTransient:
		sentinel = domain.ErrTransient
	}
	errs := make([]error, 0, 2)
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
