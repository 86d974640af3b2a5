// Package comfy talks to a ComfyUI-compatible generation backend over HTTP.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
)

// Options configures the backend client.
type Options struct {
	BaseURL        string
	ClientID       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs submit, history, queue and health calls. It never retries;
// every method issues exactly one request.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id"`
}

type submitResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	Error      json.RawMessage `json:"error,omitempty"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
}

// HistoryEntry is the completion record the backend keeps for a job.
type HistoryEntry struct {
	Outputs map[string]struct {
		Images []domain.OutputFile `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// Files flattens the reported outputs in node order.
func (h HistoryEntry) Files() []domain.OutputFile {
	var files []domain.OutputFile
	for _, node := range sortedKeys(h.Outputs) {
		for _, img := range h.Outputs[node].Images {
			if img.Type == "" || img.Type == "output" {
				files = append(files, img)
			}
		}
	}
	return files
}

// Failed reports whether the backend finished the job with an execution error.
func (h HistoryEntry) Failed() bool {
	return strings.EqualFold(h.Status.StatusStr, "error")
}

// QueueState summarizes the backend queue.
type QueueState struct {
	Running int
	Pending int
}

// Idle reports whether nothing is queued or running.
func (q QueueState) Idle() bool {
	return q.Running == 0 && q.Pending == 0
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8188"
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.DiscardLogger()
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ClientID returns the identifier sent with every submission.
func (c *Client) ClientID() string {
	return c.clientID
}

// Submit queues one payload and returns the backend job id.
func (c *Client) Submit(ctx context.Context, payload domain.Payload) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: payload.Body, ClientID: c.clientID})
	if err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("encode payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &SubmissionError{Status: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	var decoded submitResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode != http.StatusOK {
		subErr := &SubmissionError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusBadRequest && decodeErr == nil &&
			(hasContent(decoded.NodeErrors) || hasContent(decoded.Error)) {
			subErr.Rejected = true
		}
		return "", subErr
	}
	if decodeErr != nil {
		return "", &SubmissionError{Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", decodeErr)}
	}
	jobID := strings.TrimSpace(decoded.PromptID)
	if jobID == "" {
		return "", &SubmissionError{Status: resp.StatusCode, Cause: errors.New("empty prompt_id")}
	}
	c.logger.Debug().
		Str("job_id", jobID).
		Str("prefix", payload.Prefix).
		Int64("seed", payload.Seed).
		Msg("comfy: queued prompt")
	return jobID, nil
}

// History fetches the history entry for jobID. found is false while the job
// is queued or running.
func (c *Client) History(ctx context.Context, jobID string) (HistoryEntry, bool, error) {
	endpoint := c.baseURL + "/history/" + url.PathEscape(jobID)
	var history map[string]HistoryEntry
	if err := c.getJSON(ctx, endpoint, &history); err != nil {
		return HistoryEntry{}, false, err
	}
	entry, ok := history[jobID]
	return entry, ok, nil
}

// Queue reports the number of running and pending jobs.
func (c *Client) Queue(ctx context.Context) (QueueState, error) {
	var raw struct {
		Running []json.RawMessage `json:"queue_running"`
		Pending []json.RawMessage `json:"queue_pending"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/queue", &raw); err != nil {
		return QueueState{}, err
	}
	return QueueState{Running: len(raw.Running), Pending: len(raw.Pending)}, nil
}

// Health checks that the backend answers its system stats endpoint.
func (c *Client) Health(ctx context.Context) error {
	var discard json.RawMessage
	if err := c.getJSON(ctx, c.baseURL+"/system_stats", &discard); err != nil {
		return fmt.Errorf("comfy: health check: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("comfy: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("comfy: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("comfy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("comfy: decode response: %w", err)
	}
	return nil
}

func hasContent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}

// sortedKeys orders node ids numerically when they parse as integers.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Status maps the history entry for jobID onto a completion observation.
func (c *Client) Status(ctx context.Context, jobID string) (domain.CompletionStatus, error) {
	entry, found, err := c.History(ctx, jobID)
	if err != nil {
		return domain.CompletionStatus{}, err
	}
	if !found {
		return domain.CompletionStatus{}, nil
	}
	status := domain.CompletionStatus{Done: true, Files: entry.Files()}
	if entry.Failed() {
		status.Failed = true
		status.Message = "backend reported execution error"
	}
	return status, nil
}
