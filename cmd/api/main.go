package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dashroute/internal/api"
	"dashroute/internal/buildinfo"
	"dashroute/internal/config"
	"dashroute/internal/logging"
	"dashroute/internal/milp"
	"dashroute/internal/pipeline"
)

func main() {
	configPath := flag.String("config", os.Getenv("DASHROUTE_CONFIG"), "config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Log)

	solver, err := milp.NewSolver(cfg.Solver.Provider)
	if err != nil {
		log.Fatal().Err(err).Msg("init solver")
	}
	runner, err := pipeline.NewRunner(cfg, solver)
	if err != nil {
		log.Fatal().Err(err).Msg("init pipeline")
	}
	srvDeps, err := api.NewServer(cfg, runner)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("version", buildinfo.Version).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Running plans are cancelled and recorded as failed.
		srvDeps.Close()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
