package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/urfave/cli.v2"

	"genbatch/internal/infra"
)

func runList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required to list runs")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, closeLedger, err := newLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	runs, err := rec.ListRuns(ctx, c.Int(flagLimit))
	if err != nil {
		return err
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(out, "%s  %s  total=%d completed=%d failed=%d timed_out=%d attempts=%d  %s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Total, r.Completed, r.Failed, r.TimedOut, r.Attempts, finished)
	}
	return nil
}
