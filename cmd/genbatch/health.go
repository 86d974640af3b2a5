package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/urfave/cli.v2"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
)

func runHealth(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	client := newClient(cfg, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBatchAbort, err)
	}
	q, err := client.Queue(ctx)
	if err != nil {
		return err
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "%s is up (running %d, pending %d)\n", cfg.ComfyURL, q.Running, q.Pending)
	return nil
}
