package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genbatch/internal/backoff"
	"genbatch/internal/comfy"
	"genbatch/internal/domain"
	"genbatch/internal/poller"
)

type fakeBuilder struct {
	mu   sync.Mutex
	seed int64
}

func (b *fakeBuilder) Build(spec domain.JobSpec, attempt, seq int) (domain.Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seed++
	return domain.Payload{Body: spec.ID, Seed: b.seed, Prefix: fmt.Sprintf("%s_%04d_a%d", spec.Destination, seq, attempt)}, nil
}

type fakeBackend struct {
	mu        sync.Mutex
	submitErr []error
	awaitErr  []error
	payloads  []domain.Payload
	awaited   []domain.JobHandle
	block     bool
}

func (f *fakeBackend) Submit(_ context.Context, p domain.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	n := len(f.payloads)
	if n <= len(f.submitErr) && f.submitErr[n-1] != nil {
		return "", f.submitErr[n-1]
	}
	return fmt.Sprintf("job-%d", n), nil
}

func (f *fakeBackend) Await(ctx context.Context, h domain.JobHandle) (domain.ArtifactRef, error) {
	f.mu.Lock()
	f.awaited = append(f.awaited, h)
	n := len(f.awaited)
	block := f.block
	var err error
	if n <= len(f.awaitErr) {
		err = f.awaitErr[n-1]
	}
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.ArtifactRef{}, &poller.PollError{JobID: h.JobID, Kind: poller.KindTimedOut, Cause: ctx.Err()}
	}
	if err != nil {
		return domain.ArtifactRef{}, err
	}
	return domain.ArtifactRef{JobID: h.JobID, Prefix: h.Prefix}, nil
}

func (f *fakeBackend) Collect(_ context.Context, ref domain.ArtifactRef, dest string) (string, error) {
	return "/dest/" + dest + "/" + ref.Prefix, nil
}

func newController(t *testing.T, f *fakeBackend) *Controller {
	t.Helper()
	c, err := NewController(Options{
		Builder:   &fakeBuilder{},
		Submitter: f,
		Awaiter:   f,
		Collector: f,
		Backoff:   backoff.NewConstant(time.Millisecond),
	})
	require.NoError(t, err)
	return c
}

var spec = domain.JobSpec{ID: "spec-1", Destination: "cards"}

func TestSubmitWithRetrySucceedsFirstAttempt(t *testing.T) {
	f := &fakeBackend{}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 3)

	assert.Equal(t, domain.OutcomeCompleted, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []string{"job-1"}, out.JobIDs)
	assert.Equal(t, "/dest/cards/cards_0000_a1", out.ArtifactPath)
}

func TestSubmitWithRetryAlwaysFailing(t *testing.T) {
	boom := &comfy.SubmissionError{Status: 500, Body: "boom"}
	f := &fakeBackend{submitErr: []error{boom, boom, boom, boom}}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 3)

	assert.Equal(t, domain.OutcomeFailed, out.Kind)
	assert.Equal(t, 3, out.Attempts)
	assert.Contains(t, out.Reason, "boom")
	require.Len(t, f.payloads, 3)

	seeds := map[int64]bool{}
	prefixes := map[string]bool{}
	for _, p := range f.payloads {
		seeds[p.Seed] = true
		prefixes[p.Prefix] = true
	}
	assert.Len(t, seeds, 3)
	assert.Len(t, prefixes, 3)
}

func TestSubmitWithRetryRecoversFromTimeout(t *testing.T) {
	timeout := &poller.PollError{JobID: "job-1", Kind: poller.KindTimedOut}
	f := &fakeBackend{awaitErr: []error{timeout}}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 3)

	assert.Equal(t, domain.OutcomeCompleted, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []string{"job-1", "job-2"}, out.JobIDs)
	assert.Equal(t, "/dest/cards/cards_0000_a2", out.ArtifactPath)
}

func TestSubmitWithRetryRetriesRejectedSubmissions(t *testing.T) {
	bad := &comfy.SubmissionError{Status: 400, Body: "bad node", Rejected: true}
	f := &fakeBackend{submitErr: []error{bad, bad, bad}}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 3)

	assert.Equal(t, domain.OutcomeSubmissionRejected, out.Kind)
	assert.Equal(t, 3, out.Attempts)
	assert.Contains(t, out.Reason, "bad node")
	require.Len(t, f.payloads, 3)
	seeds := map[int64]bool{}
	for _, p := range f.payloads {
		seeds[p.Seed] = true
	}
	assert.Len(t, seeds, 3)
}

func TestSubmitWithRetryRecoversAfterRejection(t *testing.T) {
	bad := &comfy.SubmissionError{Status: 400, Body: "bad node", Rejected: true}
	f := &fakeBackend{submitErr: []error{bad}}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 3)

	assert.Equal(t, domain.OutcomeCompleted, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []string{"job-2"}, out.JobIDs)
}

func TestSubmitWithRetryRejectionThenTimeoutIsFailed(t *testing.T) {
	bad := &comfy.SubmissionError{Status: 400, Body: "bad node", Rejected: true}
	timeout := &poller.PollError{JobID: "job-2", Kind: poller.KindTimedOut}
	f := &fakeBackend{submitErr: []error{bad}, awaitErr: []error{timeout}}
	out := newController(t, f).SubmitWithRetry(context.Background(), spec, 2)

	assert.Equal(t, domain.OutcomeFailed, out.Kind)
	assert.Equal(t, 2, out.Attempts)
}

type failingBuilder struct{ calls int }

func (b *failingBuilder) Build(domain.JobSpec, int, int) (domain.Payload, error) {
	b.calls++
	return domain.Payload{}, errors.New("unsupported request type int")
}

func TestSubmitWithRetryBuildErrorFailsWithoutRetry(t *testing.T) {
	f := &fakeBackend{}
	b := &failingBuilder{}
	c, err := NewController(Options{
		Builder:   b,
		Submitter: f,
		Awaiter:   f,
		Collector: f,
		Backoff:   backoff.NewConstant(time.Hour),
	})
	require.NoError(t, err)

	out := c.SubmitWithRetry(context.Background(), spec, 3)
	assert.Equal(t, domain.OutcomeFailed, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Contains(t, out.Reason, "unsupported request type")
	assert.Equal(t, 1, b.calls)
	assert.Empty(t, f.payloads)
}

func TestSubmitWithRetryCanceled(t *testing.T) {
	f := &fakeBackend{block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := newController(t, f).SubmitWithRetry(ctx, spec, 3)
	assert.Equal(t, domain.OutcomeTimedOut, out.Kind)
	assert.Equal(t, ReasonCanceled, out.Reason)
	assert.Equal(t, 1, out.Attempts)
}

func TestResumeUsesPreparedFirstAttempt(t *testing.T) {
	f := &fakeBackend{}
	c := newController(t, f)
	first := c.Submit(context.Background(), spec, 7, 1)
	require.NoError(t, first.Err)
	assert.Equal(t, "cards_0007_a1", first.Handle.Prefix)

	out := c.Resume(context.Background(), spec, 7, 3, &first)
	assert.Equal(t, domain.OutcomeCompleted, out.Kind)
	assert.Len(t, f.payloads, 1, "prepared attempt must not be resubmitted")
}

func TestResumeRetriesFailedPreparedAttempt(t *testing.T) {
	f := &fakeBackend{}
	c := newController(t, f)
	first := Attempt{Number: 1, Err: errors.New("connection refused")}

	out := c.Resume(context.Background(), spec, 2, 3, &first)
	assert.Equal(t, domain.OutcomeCompleted, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, f.payloads, 1)
	assert.Equal(t, "cards_0002_a2", f.payloads[0].Prefix)
}

func TestNewControllerRequiresCollaborators(t *testing.T) {
	_, err := NewController(Options{})
	assert.Error(t, err)
}
