// Package workflow builds ComfyUI API-format node graphs for product shots.
package workflow

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"genbatch/internal/domain"
	"genbatch/internal/naming"
)

const (
	defaultCheckpoint = "v1-5-pruned-emaonly-fp16.safetensors"
	defaultNegative   = "blurry, low quality, text, watermark, signature, logo, bad anatomy"
	maxSeed           = 1 << 32
)

// Node is one entry of an API-format graph.
type Node struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

// Graph maps node ids to nodes. Links are [nodeID, outputSlot] pairs.
type Graph map[string]Node

// Settings tunes the generated graph. Zero values pick defaults; checkpoints
// whose name contains "turbo" default to 4 steps at cfg 1.0.
type Settings struct {
	Checkpoint string
	Width      int
	Height     int
	Steps      int
	CFG        float64
	Sampler    string
	Scheduler  string
	Negative   string
}

func (s Settings) normalized() Settings {
	if s.Checkpoint == "" {
		s.Checkpoint = defaultCheckpoint
	}
	turbo := strings.Contains(strings.ToLower(s.Checkpoint), "turbo")
	if s.Width <= 0 {
		s.Width = 512
	}
	if s.Height <= 0 {
		s.Height = 512
	}
	if s.Steps <= 0 {
		s.Steps = 12
		if turbo {
			s.Steps = 4
		}
	}
	if s.CFG <= 0 {
		s.CFG = 7.0
		if turbo {
			s.CFG = 1.0
		}
	}
	if s.Sampler == "" {
		s.Sampler = "euler"
	}
	if s.Scheduler == "" {
		s.Scheduler = "normal"
	}
	if s.Negative == "" {
		s.Negative = defaultNegative
	}
	return s
}

// SeedSource yields sampler seeds.
type SeedSource interface {
	Seed() int64
}

// SeedFunc adapts a function to SeedSource.
type SeedFunc func() int64

func (f SeedFunc) Seed() int64 { return f() }

// RandomSeeds draws seeds uniformly from [1, 2^32].
func RandomSeeds() SeedSource {
	return SeedFunc(func() int64 { return rand.Int64N(maxSeed) + 1 })
}

// Builder turns job specs into submission payloads. It is safe for
// concurrent use when its SeedSource is.
type Builder struct {
	settings Settings
	seeds    SeedSource
}

func NewBuilder(settings Settings, seeds SeedSource) *Builder {
	if seeds == nil {
		seeds = RandomSeeds()
	}
	return &Builder{settings: settings.normalized(), seeds: seeds}
}

// Prefix is the SaveImage filename prefix for one attempt of the seq-th job.
func Prefix(destination string, seq, attempt int) string {
	return fmt.Sprintf("%s_%04d_a%d", naming.Slug(destination), seq, attempt)
}

// Build renders a fresh payload for the given attempt. Every call draws a new
// seed.
func (b *Builder) Build(spec domain.JobSpec, attempt, seq int) (domain.Payload, error) {
	req, err := requestOf(spec)
	if err != nil {
		return domain.Payload{}, err
	}
	seed := b.seeds.Seed()
	prefix := Prefix(spec.Destination, seq, attempt)
	negative := strings.TrimSpace(req.Negative)
	if negative == "" {
		negative = b.settings.Negative
	}
	return domain.Payload{
		Body:   b.graph(req.PositivePrompt(), negative, seed, prefix),
		Seed:   seed,
		Prefix: prefix,
	}, nil
}

func (b *Builder) graph(positive, negative string, seed int64, prefix string) Graph {
	s := b.settings
	return Graph{
		"1": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{
			"ckpt_name": s.Checkpoint,
		}},
		"2": {ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": positive,
			"clip": []any{"1", 1},
		}},
		"3": {ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": negative,
			"clip": []any{"1", 1},
		}},
		"4": {ClassType: "KSampler", Inputs: map[string]any{
			"seed":         seed,
			"steps":        s.Steps,
			"cfg":          s.CFG,
			"sampler_name": s.Sampler,
			"scheduler":    s.Scheduler,
			"denoise":      1.0,
			"model":        []any{"1", 0},
			"positive":     []any{"2", 0},
			"negative":     []any{"3", 0},
			"latent_image": []any{"5", 0},
		}},
		"5": {ClassType: "EmptyLatentImage", Inputs: map[string]any{
			"width":      s.Width,
			"height":     s.Height,
			"batch_size": 1,
		}},
		"6": {ClassType: "VAEDecode", Inputs: map[string]any{
			"samples": []any{"4", 0},
			"vae":     []any{"1", 2},
		}},
		"7": {ClassType: "SaveImage", Inputs: map[string]any{
			"filename_prefix": prefix,
			"images":          []any{"6", 0},
		}},
	}
}

func requestOf(spec domain.JobSpec) (Request, error) {
	switch r := spec.Request.(type) {
	case Request:
		return r, nil
	case *Request:
		if r != nil {
			return *r, nil
		}
	case string:
		return Request{Prompt: r}, nil
	}
	return Request{}, fmt.Errorf("workflow: spec %s: unsupported request type %T", spec.ID, spec.Request)
}
