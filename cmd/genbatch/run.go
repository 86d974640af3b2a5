package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v2"

	"genbatch/internal/batch"
	"genbatch/internal/catalog"
	"genbatch/internal/domain"
	"genbatch/internal/infra"
	"genbatch/internal/ledger"
	"genbatch/pkg/zip"
)

func runBatch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records := catalog.DefaultProducts()
	if cfg.CatalogPath != "" {
		if records, err = catalog.Load(cfg.CatalogPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	specs := catalog.Specs(records, cfg.TargetCount)

	var rec ledger.Recorder = ledger.NopRecorder{}
	pg, closeLedger, err := newLedger(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("genbatch: ledger unavailable, continuing without it")
	} else if pg != nil {
		rec = pg
	}
	defer closeLedger()

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	observer := func(r domain.JobRecord, done, total int) {
		o := r.Outcome
		switch o.Kind {
		case domain.OutcomeCompleted:
			fmt.Fprintf(out, "[%d/%d] ok      %s -> %s (%d attempt(s), %s)\n", done, total, r.Destination, o.ArtifactPath, o.Attempts, o.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(out, "[%d/%d] %-7s %s: %s (%d attempt(s))\n", done, total, o.Kind, r.Destination, o.Reason, o.Attempts)
		}
	}

	client := newClient(cfg, &logger)
	orch, err := newOrchestrator(cfg, client, rec, observer, &logger)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	fmt.Fprintf(out, "generating %d image(s) against %s, %d at a time\n", len(specs), cfg.ComfyURL, cfg.Concurrency)
	res, err := orch.RunBatch(ctx, specs, cfg.Concurrency, cfg.MaxAttempts)
	if err != nil {
		return err
	}
	printSummary(out, res)

	if dst := c.String(flagArchive); dst != "" {
		n, err := writeArchive(dst, cfg.DestDir, res)
		if err != nil {
			logger.Error().Err(err).Str("archive", dst).Msg("genbatch: archive failed")
		} else {
			fmt.Fprintf(out, "archived %d image(s) to %s\n", n, dst)
		}
	}
	return nil
}

// writeArchive zips every completed artifact, keyed by its path under root.
func writeArchive(dst, root string, res domain.BatchResult) (int, error) {
	var entries []zip.Entry
	for _, r := range res.Outcomes {
		if !r.Outcome.Succeeded() {
			continue
		}
		name, err := filepath.Rel(root, r.Outcome.ArtifactPath)
		if err != nil {
			name = filepath.Base(r.Outcome.ArtifactPath)
		}
		entries = append(entries, zip.Entry{Name: filepath.ToSlash(name), Path: r.Outcome.ArtifactPath})
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := zip.Write(f, entries)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func printSummary(w io.Writer, res domain.BatchResult) {
	fmt.Fprintln(w, "summary")
	fmt.Fprintf(w, "  specs:     %d\n", len(res.Outcomes))
	fmt.Fprintf(w, "  submitted: %d\n", res.Submitted)
	fmt.Fprintf(w, "  attempts:  %d\n", res.Attempts)
	fmt.Fprintf(w, "  completed: %d\n", res.Completed)
	fmt.Fprintf(w, "  failed:    %d\n", res.Failed)
	fmt.Fprintf(w, "  timed out: %d\n", res.TimedOut)
	fmt.Fprintf(w, "  elapsed:   %s\n", res.Elapsed().Round(time.Second))
	if res.Completed > 0 {
		fmt.Fprintf(w, "  per image: %s\n", res.AveragePerJob().Round(100*time.Millisecond))
	}
	for _, r := range res.Outcomes {
		if r.Outcome.Kind == domain.OutcomeTimedOut && r.Outcome.Reason == batch.ReasonNotStarted {
			fmt.Fprintln(w, "  note: the batch deadline stopped the run before every spec was dispatched")
			break
		}
	}
}
