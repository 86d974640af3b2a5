package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genbatch/internal/infra"
	"genbatch/internal/simulator"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := simulator.New(simulator.Options{
		OutputDir:   cfg.ComfyOutputDir,
		Delay:       cfg.SimDelay,
		SubmitLimit: float64(cfg.SimSubmitLimit) / 60,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("simbackend: init failed")
	}

	srv := infra.NewHTTPServer(cfg.SimPort, sim.Handler())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("simbackend: shutdown")
		}
	}()

	logger.Info().
		Str("port", cfg.SimPort).
		Str("output_dir", sim.OutputDir()).
		Dur("delay", cfg.SimDelay).
		Msg("simbackend: listening")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("simbackend: server stopped")
	}
}
