package domain

import "time"

// JobSpec describes one artifact to produce. Request is opaque to the core and
// is handed to the payload builder on every attempt.
type JobSpec struct {
	ID          string
	Destination string
	Request     any
}

// Payload is the body submitted for a single attempt. Seed and Prefix identify
// the attempt; a retry always builds a new Payload.
type Payload struct {
	Body   any
	Seed   int64
	Prefix string
}

// JobHandle is created on successful submission and never mutated.
type JobHandle struct {
	Spec        JobSpec
	JobID       string
	Prefix      string
	Seed        int64
	Attempt     int
	SubmittedAt time.Time
}

// OutputFile is an output reported by the backend for a completed job.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ArtifactRef points at the output of a completed job.
type ArtifactRef struct {
	JobID       string
	Prefix      string
	SubmittedAt time.Time
	Files       []OutputFile
}

// OutcomeKind enumerates terminal job states.
type OutcomeKind string

const (
	OutcomeCompleted          OutcomeKind = "completed"
	OutcomeFailed             OutcomeKind = "failed"
	OutcomeTimedOut           OutcomeKind = "timed_out"
	OutcomeSubmissionRejected OutcomeKind = "submission_rejected"
)

// JobOutcome is the terminal result of a JobSpec's attempt sequence.
type JobOutcome struct {
	Kind         OutcomeKind
	ArtifactPath string
	Reason       string
	Attempts     int
	JobIDs       []string
	Duration     time.Duration
}

// Succeeded reports whether the outcome carries an artifact.
func (o JobOutcome) Succeeded() bool {
	return o.Kind == OutcomeCompleted
}

// JobRecord pairs a spec id with its outcome.
type JobRecord struct {
	SpecID      string
	Destination string
	Outcome     JobOutcome
}

// BatchResult aggregates a run. Outcomes are in completion order.
type BatchResult struct {
	Submitted  int
	Attempts   int
	Completed  int
	Failed     int
	TimedOut   int
	Outcomes   []JobRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// Record appends an outcome and updates the counters.
func (r *BatchResult) Record(rec JobRecord) {
	r.Outcomes = append(r.Outcomes, rec)
	r.Attempts += rec.Outcome.Attempts
	switch rec.Outcome.Kind {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeTimedOut:
		r.TimedOut++
	default:
		r.Failed++
	}
}

// Elapsed returns the wall time of the run.
func (r BatchResult) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AveragePerJob returns the mean wall time per completed job.
func (r BatchResult) AveragePerJob() time.Duration {
	if r.Completed == 0 {
		return 0
	}
	return r.Elapsed() / time.Duration(r.Completed)
}

// CompletionStatus is one status observation of a submitted job.
type CompletionStatus struct {
	Done    bool
	Failed  bool
	Message string
	Files   []OutputFile
}
