// Package pipeline runs the planner end to end: partition deliveries, build
// and solve one model per batch, decode the routes and assemble output rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dashroute/internal/artifact"
	"dashroute/internal/batch"
	"dashroute/internal/config"
	"dashroute/internal/geo"
	"dashroute/internal/metrics"
	"dashroute/internal/milp"
	"dashroute/internal/model"
	"dashroute/internal/opt"
	"dashroute/internal/routing"
)

// BatchError reports a batch that produced no rows. Kind is the sentinel the
// failure was classified as.
type BatchError struct {
	Batch int
	Kind  error
	Err   error
}

func (e *BatchError) Error() string { return e.Err.Error() }
func (e *BatchError) Unwrap() error { return e.Err }

var kinds = []error{
	opt.ErrInfeasible,
	opt.ErrTimeLimit,
	opt.ErrDecodeInconsistency,
	opt.ErrNoDashers,
	routing.ErrEmptyBatch,
	opt.ErrSolver,
}

func classify(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return opt.ErrSolver
}

// Result is the outcome of a run. Rows are in batch order; Reports has one
// entry per batch.
type Result struct {
	Rows     []model.RoutePoint
	Reports  []model.BatchReport
	Failures []*BatchError
}

func (r *Result) Failed() bool { return len(r.Failures) > 0 }

type Runner struct {
	Travel      geo.TravelModel
	Partitioner batch.Partitioner
	Reference   routing.Reference
	// Dashers returns the dasher count for a batch of n orders.
	Dashers func(n int) int
	Epoch   time.Time
	Solver  milp.Solver
	Options milp.Options
	Workers int
	// Artifacts, when set, receives the model and raw solution of every batch.
	Artifacts *artifact.Dir
	// Observer is called from worker goroutines as each batch finishes.
	Observer func(model.BatchReport)
}

// NewRunner wires a Runner from configuration.
func NewRunner(cfg config.Config, solver milp.Solver) (*Runner, error) {
	tm, err := geo.NewTravelModel(cfg.Travel.SpeedMPS)
	if err != nil {
		return nil, err
	}
	ref, err := routing.ParseReference(cfg.Objective.Reference)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		Travel: tm,
		Partitioner: batch.Partitioner{
			Policy:   batch.Policy(cfg.Batch.Policy),
			Size:     cfg.Batch.Size,
			Clusters: cfg.Batch.Clusters,
		},
		Reference: ref,
		Dashers:   cfg.DashersFor,
		Epoch:     cfg.Time.Epoch,
		Solver:    solver,
		Options:   milp.Options{TimeLimit: cfg.Solver.TimeLimit, MIPGap: cfg.Solver.MIPGap, Verbose: cfg.Solver.Verbose},
		Workers:   cfg.Solver.Workers,
	}
	if cfg.Artifacts.Dir != "" {
		if r.Artifacts, err = artifact.NewDir(cfg.Artifacts.Dir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) dashers(n int) int {
	if r.Dashers == nil {
		return n
	}
	return r.Dashers(n)
}

type outcome struct {
	report     model.BatchReport
	assignment *opt.Assignment
	err        error
}

// Run solves every batch of ds. A failing batch never stops the others; it
// is listed in Result.Failures and contributes no rows. The returned error is
// reserved for problems that affect the whole run.
func (r *Runner) Run(ctx context.Context, ds []model.Delivery) (*Result, error) {
	if r.Solver == nil {
		return nil, errors.New("pipeline: no solver configured")
	}
	batches, err := r.Partitioner.Partition(ds)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	log.Info().Int("deliveries", len(ds)).Int("batches", len(batches)).Str("policy", string(r.Partitioner.Policy)).Msg("planning")

	outs := make([]outcome, len(batches))
	var g errgroup.Group
	g.SetLimit(max(1, r.Workers))
	for i, b := range batches {
		g.Go(func() error {
			outs[i] = r.solveBatch(ctx, b)
			if r.Observer != nil {
				r.Observer(outs[i].report)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	routeBase := 0
	for i, b := range batches {
		o := outs[i]
		res.Reports = append(res.Reports, o.report)
		if o.err != nil {
			res.Failures = append(res.Failures, &BatchError{Batch: b.Index, Kind: classify(o.err), Err: o.err})
		} else {
			rows := o.assignment.RoutePoints(r.Epoch.Unix(), routeBase)
			metrics.RoutePointsTotal.Add(float64(len(rows)))
			res.Rows = append(res.Rows, rows...)
		}
		routeBase += o.report.Dashers
	}
	return res, nil
}

func (r *Runner) solveBatch(ctx context.Context, b batch.Batch) outcome {
	rep := model.BatchReport{Index: b.Index, Deliveries: len(b.Deliveries), Dashers: r.dashers(len(b.Deliveries))}
	lg := log.With().Int("batch", b.Index).Int("deliveries", rep.Deliveries).Int("dashers", rep.Dashers).Logger()
	fail := func(status string, err error) outcome {
		rep.Status = status
		rep.Error = err.Error()
		metrics.BatchesTotal.WithLabelValues(status).Inc()
		lg.Warn().Err(err).Str("status", status).Msg("batch failed")
		return outcome{report: rep, err: err}
	}

	f, err := r.formulate(b)
	if err != nil {
		return fail("error", err)
	}
	rep.Variables = f.Model.NumVars()
	rep.Constraints = f.Model.NumConstraints()
	if r.Artifacts != nil {
		if err := r.Artifacts.WriteModel(b.Index, f.Model); err != nil {
			lg.Warn().Err(err).Msg("write model artifact")
		}
	}

	start := time.Now()
	res, err := r.Solver.Solve(opt.NewContext(ctx, f), f.Model, r.Options)
	elapsed := time.Since(start)
	if res != nil && res.RunTime > 0 {
		elapsed = res.RunTime
	}
	rep.SolveMs = elapsed.Milliseconds()
	status := "error"
	if res != nil {
		status = res.Status.String()
		if r.Artifacts != nil {
			if err := r.Artifacts.WriteSolution(b.Index, f.Model, res); err != nil {
				lg.Warn().Err(err).Msg("write solution artifact")
			}
		}
	}
	metrics.SolveSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
	if err != nil {
		return fail(status, fmt.Errorf("batch %d: %w: %w", b.Index, opt.ErrSolver, err))
	}

	a, err := opt.Interpret(f, res)
	if err != nil {
		return fail(status, err)
	}
	rep.Status = status
	rep.Optimal = a.Optimal
	rep.Objective = a.Objective
	rep.Routes = a.Served()
	metrics.BatchesTotal.WithLabelValues(status).Inc()
	metrics.BatchObjective.Observe(a.Objective)
	lg.Info().
		Str("status", status).
		Bool("optimal", a.Optimal).
		Float64("objective", a.Objective).
		Int64("solve_ms", rep.SolveMs).
		Int("routes", rep.Routes).
		Msg("batch solved")
	return outcome{report: rep, assignment: a}
}

func (r *Runner) formulate(b batch.Batch) (*opt.Formulation, error) {
	g, err := routing.Build(b.Index, b.Deliveries, r.Travel, r.Reference)
	if err != nil {
		return nil, fmt.Errorf("batch %d: %w", b.Index, err)
	}
	f, err := opt.Formulate(g, r.dashers(len(b.Deliveries)))
	if err != nil {
		return nil, fmt.Errorf("batch %d: %w", b.Index, err)
	}
	return f, nil
}
