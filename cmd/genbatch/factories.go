package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/urfave/cli.v2"

	"genbatch/internal/backoff"
	"genbatch/internal/batch"
	"genbatch/internal/collector"
	"genbatch/internal/comfy"
	"genbatch/internal/infra"
	"genbatch/internal/ledger"
	"genbatch/internal/poller"
	"genbatch/internal/storage"
	"genbatch/internal/workflow"
)

// loadConfig reads the environment, applies command-line overrides and only
// then validates.
func loadConfig(c *cli.Context) (*infra.Config, error) {
	cfg := infra.ReadConfig()
	if c.IsSet(flagComfyURL) {
		cfg.ComfyURL = c.String(flagComfyURL)
	}
	if c.IsSet(flagOutputDir) {
		cfg.ComfyOutputDir = c.String(flagOutputDir)
	}
	if c.IsSet(flagDestDir) {
		cfg.DestDir = c.String(flagDestDir)
	}
	if c.IsSet(flagConcurrency) {
		cfg.Concurrency = c.Int(flagConcurrency)
	}
	if c.IsSet(flagAttempts) {
		cfg.MaxAttempts = c.Int(flagAttempts)
	}
	if c.IsSet(flagCount) {
		cfg.TargetCount = c.Int(flagCount)
	}
	if c.IsSet(flagCatalog) {
		cfg.CatalogPath = c.String(flagCatalog)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newClient(cfg *infra.Config, logger *infra.Logger) *comfy.Client {
	return comfy.NewClient(comfy.Options{
		BaseURL:        cfg.ComfyURL,
		Logger:         logger,
		RequestTimeout: cfg.HTTPTimeout,
	})
}

func newOrchestrator(cfg *infra.Config, client *comfy.Client, rec ledger.Recorder, obs batch.Observer, logger *infra.Logger) (*batch.Orchestrator, error) {
	store, err := storage.NewFileStore(cfg.DestDir)
	if err != nil {
		return nil, err
	}
	coll, err := collector.New(collector.Options{
		OutputDir: filepath.Clean(cfg.ComfyOutputDir),
		Store:     store,
		Layout:    collector.ProductLayout{Subdir: cfg.DestSubdir},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	builder := workflow.NewBuilder(workflow.Settings{
		Checkpoint: cfg.Checkpoint,
		Width:      cfg.ImageWidth,
		Height:     cfg.ImageHeight,
		Steps:      cfg.SamplerSteps,
		CFG:        cfg.SamplerCFG,
		Sampler:    cfg.SamplerName,
		Scheduler:  cfg.Scheduler,
		Negative:   cfg.NegativePrompt,
	}, nil)

	chunkPause := cfg.ChunkPause
	if chunkPause == 0 {
		chunkPause = -1
	}
	return batch.New(batch.Config{
		Backend:      client,
		Poller:       poller.New(client, poller.Options{QueryTimeout: cfg.HTTPTimeout, Logger: logger}),
		Builder:      builder,
		Collector:    coll,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		RetryBackoff: backoff.NewConstant(cfg.RetryBackoff),
		ChunkPause:   chunkPause,
		SubmitRate:   cfg.SubmitRate,
		BatchTimeout: cfg.BatchTimeout,
		Observer:     obs,
		Recorder:     rec,
		Logger:       logger,
	})
}

// newLedger connects the run ledger when DATABASE_URL is set. The returned
// close func is always safe to call.
func newLedger(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*ledger.PGRecorder, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	rec := ledger.NewPGRecorder(infra.NewSQLRunner(pool, logger))
	if err := rec.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	return rec, closePool(pool), nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}
