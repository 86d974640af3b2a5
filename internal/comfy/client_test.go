package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genbatch/internal/domain"
)

func TestSubmitSendsPromptAndClientID(t *testing.T) {
	var captured submitRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/prompt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "job-1", "number": 3})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL + "/", ClientID: "runner"})
	id, err := client.Submit(context.Background(), domain.Payload{Body: map[string]any{"1": "node"}, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "runner", captured.ClientID)
	assert.Equal(t, map[string]any{"1": "node"}, captured.Prompt)
}

func TestSubmitGeneratesClientID(t *testing.T) {
	client := NewClient(Options{})
	assert.Len(t, client.ClientID(), 36)
}

func TestSubmitClassifiesFailures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantRejected bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "bad request with node errors", status: http.StatusBadRequest, body: `{"error":{"type":"prompt_outputs_failed_validation"},"node_errors":{"4":{"errors":[]}}}`, wantRejected: true},
		{name: "bad request without detail", status: http.StatusBadRequest, body: `{}`},
		{name: "ok without id", status: http.StatusOK, body: `{"number":1}`},
		{name: "ok with garbage", status: http.StatusOK, body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := NewClient(Options{BaseURL: ts.URL})
			_, err := client.Submit(context.Background(), domain.Payload{Body: map[string]any{}})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrSubmission)
			assert.Equal(t, tt.wantRejected, errors.Is(err, domain.ErrRejected))

			var subErr *SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.status, subErr.Status)
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: url})
	_, err := client.Submit(context.Background(), domain.Payload{Body: map[string]any{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSubmission)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Zero(t, subErr.Status)
	assert.False(t, subErr.Rejected)
}

func TestHistoryFoundAndPending(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history/done":
			_, _ = w.Write([]byte(`{"done":{"outputs":{"9":{"images":[{"filename":"b_00001_.png","subfolder":"","type":"output"}]},"3":{"images":[{"filename":"a_00001_.png","subfolder":"sub","type":"output"},{"filename":"p.png","type":"temp"}]}},"status":{"status_str":"success","completed":true}}}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	entry, found, err := client.History(context.Background(), "done")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, entry.Failed())
	assert.Equal(t, []domain.OutputFile{
		{Filename: "a_00001_.png", Subfolder: "sub", Type: "output"},
		{Filename: "b_00001_.png", Subfolder: "", Type: "output"},
	}, entry.Files())

	_, found, err = client.History(context.Background(), "pending")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHistoryErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	_, _, err := client.History(context.Background(), "x")
	assert.Error(t, err)
}

func TestQueueAndHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/queue":
			_, _ = w.Write([]byte(`{"queue_running":[[0,"a"]],"queue_pending":[[1,"b"],[2,"c"]]}`))
		case "/system_stats":
			_, _ = w.Write([]byte(`{"system":{"os":"posix"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	q, err := client.Queue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueState{Running: 1, Pending: 2}, q)
	assert.False(t, q.Idle())
	assert.NoError(t, client.Health(context.Background()))
}

func TestHealthUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: url})
	assert.Error(t, client.Health(context.Background()))
}

func TestStatusMapsHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history/ok":
			_, _ = w.Write([]byte(`{"ok":{"outputs":{"9":{"images":[{"filename":"x_00001_.png","type":"output"}]}},"status":{"status_str":"success"}}}`))
		case "/history/bad":
			_, _ = w.Write([]byte(`{"bad":{"outputs":{},"status":{"status_str":"error"}}}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	ctx := context.Background()

	st, err := client.Status(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, st.Done)
	assert.False(t, st.Failed)
	require.Len(t, st.Files, 1)

	st, err = client.Status(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, st.Done)
	assert.True(t, st.Failed)

	st, err = client.Status(ctx, "queued")
	require.NoError(t, err)
	assert.False(t, st.Done)
}
