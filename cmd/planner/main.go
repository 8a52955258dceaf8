// Command planner batches a delivery CSV, solves one routing model per batch
// and writes the route point table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"dashroute/internal/artifact"
	"dashroute/internal/buildinfo"
	"dashroute/internal/config"
	"dashroute/internal/geo"
	"dashroute/internal/ingest"
	"dashroute/internal/logging"
	"dashroute/internal/milp"
	"dashroute/internal/model"
	"dashroute/internal/pipeline"
)

const (
	exitOK      = 0
	exitError   = 1
	exitPartial = 2
)

// newSolver is swapped in tests.
var newSolver = milp.NewSolver

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

const usage = `usage:
  planner solve    -in deliveries.csv -out routes.csv [-config file]
  planner replay   -in deliveries.csv -batch N -solution batch_NNN.solution.json [-model batch_NNN.model.yaml] [-out routes.csv] [-config file]
  planner evaluate -in deliveries.csv -routes routes.csv [-config file]
  planner version`

func run(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stdout, usage)
		return exitError
	}
	var err error
	code := exitOK
	switch args[0] {
	case "solve":
		code, err = solve(ctx, args[1:], stdout)
	case "replay":
		err = replay(args[1:], stdout)
	case "evaluate":
		code, err = evaluate(args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, "planner", buildinfo.String())
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
	default:
		fmt.Fprintln(stdout, usage)
		return exitError
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Error().Err(err).Str("command", args[0]).Msg("planner failed")
		}
		return exitError
	}
	return code
}

// setup parses the shared flags plus any registered by extra, then loads
// configuration and installs the logger.
func setup(name string, args []string, extra func(*flag.FlagSet)) (config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DASHROUTE_CONFIG"), "config file (yaml)")
	extra(fs)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

func readDeliveries(path string, cfg config.Config) ([]model.Delivery, error) {
	if path == "" {
		return nil, errors.New("-in is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ingest.ReadDeliveries(f, cfg.Time.Epoch)
}

func writeRows(path string, rows []model.RoutePoint, stdout io.Writer) error {
	if path == "" || path == "-" {
		return ingest.WriteRoutePoints(stdout, rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ingest.WriteRoutePoints(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newRunner(cfg config.Config) (*pipeline.Runner, error) {
	solver, err := newSolver(cfg.Solver.Provider)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cfg, solver)
}

func solve(ctx context.Context, args []string, stdout io.Writer) (int, error) {
	var in, out string
	cfg, err := setup("solve", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in, "in", "", "delivery CSV")
		fs.StringVar(&out, "out", "", "route point CSV (default stdout)")
	})
	if err != nil {
		return exitError, err
	}
	ds, err := readDeliveries(in, cfg)
	if err != nil {
		return exitError, err
	}
	runner, err := newRunner(cfg)
	if err != nil {
		return exitError, err
	}
	res, err := runner.Run(ctx, ds)
	if err != nil {
		return exitError, err
	}
	if err := writeRows(out, res.Rows, stdout); err != nil {
		return exitError, fmt.Errorf("write routes: %w", err)
	}
	if out != "" && out != "-" {
		printReports(stdout, res.Reports)
	}
	for _, f := range res.Failures {
		log.Error().Err(f).Int("batch", f.Batch).Str("kind", f.Kind.Error()).Msg("batch produced no routes")
	}
	if res.Failed() {
		return exitPartial, nil
	}
	return exitOK, nil
}

func printReports(w io.Writer, reports []model.BatchReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tORDERS\tDASHERS\tSTATUS\tOPTIMAL\tOBJECTIVE\tSOLVE_MS\tROUTES")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%t\t%.0f\t%d\t%d\n", r.Index, r.Deliveries, r.Dashers, r.Status, r.Optimal, r.Objective, r.SolveMs, r.Routes)
	}
	_ = tw.Flush()
}

func replay(args []string, stdout io.Writer) error {
	var in, solution, modelPath, out string
	var index int
	cfg, err := setup("replay", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in, "in", "", "delivery CSV the solution was computed from")
		fs.IntVar(&index, "batch", -1, "batch index")
		fs.StringVar(&solution, "solution", "", "persisted solution JSON")
		fs.StringVar(&modelPath, "model", "", "persisted model YAML to check the rebuilt model against")
		fs.StringVar(&out, "out", "", "route point CSV (default stdout)")
	})
	if err != nil {
		return err
	}
	if solution == "" || index < 0 {
		return errors.New("-batch and -solution are required")
	}
	ds, err := readDeliveries(in, cfg)
	if err != nil {
		return err
	}
	sol, err := artifact.ReadSolution(solution)
	if err != nil {
		return err
	}
	var stored *milp.Model
	if modelPath != "" {
		if stored, err = artifact.ReadModel(modelPath); err != nil {
			return err
		}
	}
	// Replay never calls the engine.
	runner, err := pipeline.NewRunner(cfg, nil)
	if err != nil {
		return err
	}
	rows, a, err := runner.Replay(ds, index, sol, stored)
	if err != nil {
		return err
	}
	log.Info().Int("batch", index).Bool("optimal", a.Optimal).Float64("objective", a.Objective).Int("rows", len(rows)).Msg("replayed")
	return writeRows(out, rows, stdout)
}

func evaluate(args []string, stdout io.Writer) (int, error) {
	var in, routes string
	cfg, err := setup("evaluate", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in, "in", "", "delivery CSV")
		fs.StringVar(&routes, "routes", "", "route point CSV")
	})
	if err != nil {
		return exitError, err
	}
	ds, err := readDeliveries(in, cfg)
	if err != nil {
		return exitError, err
	}
	f, err := os.Open(routes)
	if err != nil {
		return exitError, err
	}
	defer func() { _ = f.Close() }()
	rows, err := ingest.ReadRoutePoints(f)
	if err != nil {
		return exitError, err
	}
	tm, err := geo.NewTravelModel(cfg.Travel.SpeedMPS)
	if err != nil {
		return exitError, err
	}
	ev := pipeline.Evaluate(rows, ds, tm, cfg.Time.Epoch)
	fmt.Fprintf(stdout, "deliveries: %d\nroutes: %d\naverage delivery time: %.2f min\nefficiency: %.4f deliveries/route-hour\n",
		ev.Deliveries, ev.Routes, ev.AvgDeliveryMinutes, ev.Efficiency)
	for _, v := range ev.Violations {
		fmt.Fprintf(stdout, "violation: %s\n", v)
	}
	if !ev.OK() {
		return exitPartial, nil
	}
	return exitOK, nil
}
