package collector

import (
	"fmt"

	"genbatch/internal/domain"
)

// Kind classifies a CollectError.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindIOFailure Kind = "io_failure"
)

// CollectError reports why no artifact was copied for a job.
type CollectError struct {
	JobID  string
	Prefix string
	Kind   Kind
	Cause  error
}

func (e *CollectError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("collector: job %s (prefix %s): %s", e.JobID, e.Prefix, e.Kind)
	}
	return fmt.Sprintf("collector: job %s (prefix %s): %s: %v", e.JobID, e.Prefix, e.Kind, e.Cause)
}

func (e *CollectError) Unwrap() []error {
	sentinel := domain.ErrArtifactIO
	if e.Kind == KindNotFound {
		sentinel = domain.ErrArtifactNotFound
	}
	if e.Cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Cause}
}
