package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of a generation run. It is loaded once and passed
// explicitly into the orchestrator and its collaborators.
type Config struct {
	AppEnv      string
	DatabaseURL string

	ComfyURL       string
	ComfyOutputDir string
	HTTPTimeout    time.Duration

	DestDir    string
	DestSubdir string

	Concurrency    int
	MaxAttempts    int
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RetryBackoff   time.Duration
	ChunkPause     time.Duration
	SubmitRate     float64
	BatchTimeout   time.Duration
	TargetCount    int
	CatalogPath    string
	Checkpoint     string
	ImageWidth     int
	ImageHeight    int
	SamplerSteps   int
	SamplerCFG     float64
	SamplerName    string
	Scheduler      string
	NegativePrompt string

	SimPort        string
	SimDelay       time.Duration
	SimSubmitLimit int
}

// LoadConfig loads an optional .env file, then reads configuration from
// environment variables, applies defaults where needed and validates the
// result.
func LoadConfig() (*Config, error) {
	cfg := ReadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for callers that apply their
// own overrides before calling Validate.
func ReadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ComfyURL:       strings.TrimRight(getEnv("COMFY_URL", "http://localhost:8188"), "/"),
		ComfyOutputDir: getEnv("COMFY_OUTPUT_DIR", "./comfyui/output"),
		HTTPTimeout:    time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)),
		DestDir:        getEnv("DEST_DIR", "assets/images"),
		DestSubdir:     getEnv("DEST_SUBDIR", "products"),
		Concurrency:    getEnvInt("BATCH_CONCURRENCY", 10),
		MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
		PollInterval:   time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		PollTimeout:    time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 120)),
		RetryBackoff:   time.Second * time.Duration(getEnvInt("RETRY_BACKOFF_SECONDS", 5)),
		ChunkPause:     time.Second * time.Duration(getEnvInt("CHUNK_PAUSE_SECONDS", 5)),
		SubmitRate:     getEnvFloat("SUBMIT_RATE_PER_SECOND", 10),
		BatchTimeout:   time.Second * time.Duration(getEnvInt("BATCH_TIMEOUT_SECONDS", 0)),
		TargetCount:    getEnvInt("TARGET_COUNT", 100),
		CatalogPath:    os.Getenv("CATALOG_PATH"),
		Checkpoint:     getEnv("CHECKPOINT", "v1-5-pruned-emaonly-fp16.safetensors"),
		ImageWidth:     getEnvInt("IMAGE_WIDTH", 512),
		ImageHeight:    getEnvInt("IMAGE_HEIGHT", 512),
		SamplerSteps:   getEnvInt("SAMPLER_STEPS", 0),
		SamplerCFG:     getEnvFloat("SAMPLER_CFG", 0),
		SamplerName:    getEnv("SAMPLER_NAME", "euler"),
		Scheduler:      getEnv("SAMPLER_SCHEDULER", "normal"),
		NegativePrompt: getEnv("NEGATIVE_PROMPT", "blurry, low quality, text, watermark, signature, logo, bad anatomy"),
		SimPort:        getEnv("SIM_PORT", "8188"),
		SimDelay:       time.Millisecond * time.Duration(getEnvInt("SIM_DELAY_MS", 1500)),
		SimSubmitLimit: getEnvInt("SIM_SUBMIT_LIMIT_PER_MINUTE", 0),
	}
}

// Validate rejects settings the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if c.ComfyURL == "" {
		return errors.New("COMFY_URL is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL_MS must be positive")
	}
	if c.PollTimeout < c.PollInterval {
		return errors.New("POLL_TIMEOUT_SECONDS must not be shorter than the poll interval")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
