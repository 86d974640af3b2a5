package simulator

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genbatch/internal/middleware"
)

type promptRequest struct {
	Prompt   map[string]graphNode `json:"prompt"`
	ClientID string               `json:"client_id"`
}

type historyStatus struct {
	StatusStr string     `json:"status_str"`
	Completed bool       `json:"completed"`
	Messages  [][]string `json:"messages"`
}

type historyEntry struct {
	Prompt  []any                     `json:"prompt"`
	Outputs map[string]map[string]any `json:"outputs"`
	Status  historyStatus             `json:"status"`
}

// Handler returns the HTTP surface of the simulator.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.Recoverer, middleware.Logger(s.logger))

	r.With(middleware.RateLimit(s.submitLimit, 1)).Post("/prompt", s.handlePrompt)
	r.Get("/history", s.handleHistoryList)
	r.Get("/history/{id}", s.handleHistory)
	r.Get("/queue", s.handleQueue)
	r.Get("/system_stats", s.handleSystemStats)
	return r
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.json(w, http.StatusBadRequest, map[string]any{
			"error":       map[string]string{"type": "invalid_prompt", "message": err.Error()},
			"node_errors": map[string]any{},
		})
		return
	}

	j, fate, err := s.enqueue(req.Prompt, req.ClientID)
	switch fate {
	case FailReject:
		s.json(w, http.StatusBadRequest, map[string]any{
			"error":       map[string]string{"type": "prompt_outputs_failed_validation", "message": err.Error()},
			"node_errors": map[string]any{"7": map[string]any{"errors": []string{err.Error()}, "class_type": "SaveImage"}},
		})
		return
	case FailUnavailable:
		s.json(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Debug().
		Str("job_id", j.id).
		Str("prefix", j.prefix).
		Str("client_id", req.ClientID).
		Msg("simulator: prompt queued")
	s.json(w, http.StatusOK, map[string]any{"prompt_id": j.id, "number": j.number, "node_errors": map[string]any{}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	s.advance()
	out := map[string]historyEntry{}
	if j, ok := s.jobs[id]; ok && j.finalized {
		out[id] = entryOf(j)
	}
	s.mu.Unlock()
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("max_items"))
	s.mu.Lock()
	s.advance()
	out := map[string]historyEntry{}
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if j := s.jobs[s.order[i]]; j.finalized {
			out[j.id] = entryOf(j)
		}
	}
	s.mu.Unlock()
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.advance()
	pending := s.pending()
	s.mu.Unlock()

	running := []any{}
	queued := []any{}
	for i, j := range pending {
		item := []any{j.number, j.id, map[string]any{}, map[string]any{"client_id": j.clientID}, []string{"7"}}
		if i == 0 {
			running = append(running, item)
			continue
		}
		queued = append(queued, item)
	}
	s.json(w, http.StatusOK, map[string]any{"queue_running": running, "queue_pending": queued})
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]any{
		"system": map[string]any{"os": "simulator", "comfyui_version": "sim", "embedded_python": false},
		"devices": []map[string]any{{"name": "cpu", "type": "cpu", "vram_total": 0, "vram_free": 0}},
	})
}

func entryOf(j *job) historyEntry {
	e := historyEntry{
		Prompt:  []any{j.number, j.id, j.prompt, map[string]any{"client_id": j.clientID}, []string{"7"}},
		Outputs: map[string]map[string]any{},
		Status:  historyStatus{StatusStr: "success", Completed: true, Messages: [][]string{}},
	}
	if j.err != "" {
		e.Status = historyStatus{StatusStr: "error", Messages: [][]string{{"execution_error", j.err}}}
		return e
	}
	e.Outputs["7"] = map[string]any{"images": j.files}
	return e
}
