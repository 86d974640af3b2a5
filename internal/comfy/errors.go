package comfy

import (
	"fmt"

	"genbatch/internal/domain"
)

// SubmissionError reports a failed submit call. Status is zero for transport
// failures. Rejected marks a backend refusal of the payload itself.
type SubmissionError struct {
	Status   int
	Body     string
	Rejected bool
	Cause    error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Rejected:
		return fmt.Sprintf("comfy: prompt rejected: %s", e.Body)
	case e.Status != 0 && e.Cause == nil:
		return fmt.Sprintf("comfy: submit status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("comfy: submit status %d: %v", e.Status, e.Cause)
	default:
		return fmt.Sprintf("comfy: submit: %v", e.Cause)
	}
}

func (e *SubmissionError) Unwrap() []error {
	errs := []error{domain.ErrSubmission}
	if e.Rejected {
		errs = append(errs, domain.ErrRejected)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
