// Package simulator is an in-process stand-in for a ComfyUI backend. It
// accepts API-format graphs, completes them after a delay and writes a small
// PNG per job into its output directory.
package simulator

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"genbatch/internal/infra"
)

// Failure selects how the simulator mistreats a submission.
type Failure int

const (
	FailNone Failure = iota
	// FailReject answers the submission with 400 and node errors.
	FailReject
	// FailUnavailable answers the submission with 503.
	FailUnavailable
	// FailExecution accepts the job and later reports an execution error.
	FailExecution
	// FailDrop accepts the job and never completes it.
	FailDrop
)

// FailureFunc decides the fate of the n-th submission (1-based) carrying
// prefix.
type FailureFunc func(prefix string, n int) Failure

// Options configures a Server.
type Options struct {
	OutputDir string
	// Delay is how long a job stays queued before completing.
	Delay time.Duration
	// Failure is consulted for every submission. Nil accepts everything.
	Failure FailureFunc
	// SubmitLimit caps POST /prompt per client per second. Zero disables it.
	SubmitLimit float64
	Logger      *infra.Logger
	Now         func() time.Time
}

type job struct {
	id        string
	number    int
	clientID  string
	prefix    string
	prompt    map[string]graphNode
	readyAt   time.Time
	failure   Failure
	finalized bool
	files     []outputFile
	err       string
}

type graphNode struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

type outputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Server holds simulator state. It is safe for concurrent use.
type Server struct {
	outputDir   string
	delay       time.Duration
	failure     FailureFunc
	submitLimit float64
	logger      infra.Logger
	now         func() time.Time

	mu       sync.Mutex
	jobs     map[string]*job
	order    []string
	number   int
	counters map[string]int
	seen     map[string]int
}

func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("simulator: output dir is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("simulator: ensure output dir: %w", err)
	}
	s := &Server{
		outputDir:   opts.OutputDir,
		delay:       opts.Delay,
		failure:     opts.Failure,
		submitLimit: opts.SubmitLimit,
		logger:      infra.DiscardLogger(),
		now:         opts.Now,
		jobs:        make(map[string]*job),
		counters:    make(map[string]int),
		seen:        make(map[string]int),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// OutputDir is where generated images are written.
func (s *Server) OutputDir() string {
	return s.outputDir
}

// Submissions returns how many prompts carrying prefix were received.
func (s *Server) Submissions(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[prefix]
}

// enqueue validates and stores a graph. It returns the failure chosen for the
// submission so the handler can answer accordingly.
func (s *Server) enqueue(prompt map[string]graphNode, clientID string) (*job, Failure, error) {
	prefix, err := savePrefix(prompt)
	if err != nil {
		return nil, FailReject, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[prefix]++
	fate := FailNone
	if s.failure != nil {
		fate = s.failure(prefix, s.seen[prefix])
	}
	switch fate {
	case FailReject:
		return nil, fate, fmt.Errorf("prompt for %s failed validation", prefix)
	case FailUnavailable:
		return nil, fate, errors.New("backend busy")
	}

	s.number++
	j := &job{
		id:       uuid.NewString(),
		number:   s.number,
		clientID: clientID,
		prefix:   prefix,
		prompt:   prompt,
		readyAt:  s.now().Add(s.delay),
		failure:  fate,
	}
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
	return j, fate, nil
}

// advance finalizes every job whose delay has elapsed. Callers hold s.mu.
func (s *Server) advance() {
	now := s.now()
	for _, id := range s.order {
		j := s.jobs[id]
		if j.finalized || j.failure == FailDrop || now.Before(j.readyAt) {
			continue
		}
		j.finalized = true
		if j.failure == FailExecution {
			j.err = "simulated execution error"
			s.logger.Debug().Str("job_id", j.id).Msg("simulator: job failed")
			continue
		}
		file, err := s.render(j)
		if err != nil {
			j.err = err.Error()
			s.logger.Error().Err(err).Str("job_id", j.id).Msg("simulator: write output")
			continue
		}
		j.files = []outputFile{file}
		s.logger.Debug().Str("job_id", j.id).Str("file", file.Filename).Msg("simulator: job completed")
	}
}

func (s *Server) render(j *job) (outputFile, error) {
	subfolder, base := path.Split(j.prefix)
	subfolder = strings.Trim(subfolder, "/")
	s.counters[j.prefix]++
	name := fmt.Sprintf("%s_%05d_.png", base, s.counters[j.prefix])

	dir := filepath.Join(s.outputDir, filepath.FromSlash(subfolder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return outputFile{}, err
	}
	width, height := dimensions(j.prompt)
	if err := writePNG(filepath.Join(dir, name), width, height, j.number); err != nil {
		return outputFile{}, err
	}
	return outputFile{Filename: name, Subfolder: subfolder, Type: "output"}, nil
}

// pending returns queued and running jobs in submission order.
func (s *Server) pending() []*job {
	var out []*job
	for _, id := range s.order {
		if j := s.jobs[id]; !j.finalized {
			out = append(out, j)
		}
	}
	return out
}

func savePrefix(prompt map[string]graphNode) (string, error) {
	if len(prompt) == 0 {
		return "", errors.New("prompt has no nodes")
	}
	ids := make([]string, 0, len(prompt))
	for id := range prompt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := prompt[id]
		if n.ClassType != "SaveImage" {
			continue
		}
		prefix, _ := n.Inputs["filename_prefix"].(string)
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			prefix = "ComfyUI"
		}
		if strings.Contains(prefix, "..") {
			return "", fmt.Errorf("node %s: invalid filename_prefix", id)
		}
		return prefix, nil
	}
	return "", errors.New("prompt has no output node")
}

func dimensions(prompt map[string]graphNode) (int, int) {
	w, h := 8, 8
	for _, n := range prompt {
		if n.ClassType != "EmptyLatentImage" {
			continue
		}
		if v := intInput(n.Inputs["width"]); v > 0 {
			w = v / 64
		}
		if v := intInput(n.Inputs["height"]); v > 0 {
			h = v / 64
		}
	}
	return max(w, 1), max(h, 1)
}

func intInput(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}
