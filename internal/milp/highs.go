package milp

import (
	"context"
	"fmt"
	"time"

	"github.com/nextmv-io/sdk/mip"
)

const highsProvider = "highs"

// HighsSolver runs models on HiGHS through the nextmv mip SDK.
type HighsSolver struct{}

func NewHighsSolver() *HighsSolver { return &HighsSolver{} }

// NewSolver returns the adapter for a configured provider name.
func NewSolver(provider string) (Solver, error) {
	switch provider {
	case highsProvider, "":
		return NewHighsSolver(), nil
	}
	return nil, fmt.Errorf("unsupported solver provider %q", provider)
}

func (h *HighsSolver) Solve(ctx context.Context, m *Model, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := opts.TimeLimit
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); limit <= 0 || left < limit {
			limit = left
		}
	}
	if limit <= 0 {
		return nil, context.DeadlineExceeded
	}

	nm, vars := translate(m)
	solver, err := mip.NewSolver(highsProvider, nm)
	if err != nil {
		return nil, fmt.Errorf("highs: new solver: %w", err)
	}
	so := mip.NewSolveOptions()
	if err := so.SetMaximumDuration(limit); err != nil {
		return nil, fmt.Errorf("highs: time limit: %w", err)
	}
	if err := so.SetMIPGapRelative(opts.MIPGap); err != nil {
		return nil, fmt.Errorf("highs: mip gap: %w", err)
	}
	if opts.Verbose {
		so.SetVerbosity(mip.Low)
	} else {
		so.SetVerbosity(mip.Off)
	}

	type outcome struct {
		sol mip.Solution
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sol, err := solver.Solve(so)
		done <- outcome{sol, err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		// The engine stops on its own at the time limit; the goroutine drains
		// into the buffered channel.
		return nil, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return &Result{Status: Error}, fmt.Errorf("highs: solve: %w", out.err)
	}
	res := readSolution(out.sol, vars)
	if res.Status.HasValues() {
		// The engine never sees the objective constant.
		res.Objective += m.objective.Constant
	}
	return res, nil
}

func translate(m *Model) (mip.Model, []mip.Var) {
	nm := mip.NewModel()
	vars := make([]mip.Var, len(m.vars))
	for i, v := range m.vars {
		if v.Kind == Binary {
			vars[i] = nm.NewBool()
			continue
		}
		vars[i] = nm.NewFloat(v.Lower, v.Upper)
	}

	obj := nm.Objective()
	obj.SetMinimize()
	for _, t := range m.objective.Terms {
		obj.NewTerm(t.Coef, vars[t.Var])
	}

	for _, c := range m.constraints {
		sense := mip.LessThanOrEqual
		if c.Rel == Equal {
			sense = mip.Equal
		}
		row := nm.NewConstraint(sense, c.RHS)
		for _, t := range c.Terms {
			row.NewTerm(t.Coef, vars[t.Var])
		}
	}
	return nm, vars
}

func readSolution(sol mip.Solution, vars []mip.Var) *Result {
	if sol == nil {
		return &Result{Status: Error}
	}
	res := &Result{RunTime: sol.RunTime()}
	switch {
	case sol.HasValues() && sol.IsOptimal():
		res.Status = Optimal
	case sol.HasValues():
		res.Status = Feasible
	case sol.IsInfeasible():
		res.Status = Infeasible
	case sol.IsTimeOut():
		res.Status = TimeLimit
	default:
		res.Status = Error
	}
	if !res.Status.HasValues() {
		return res
	}
	res.Objective = sol.ObjectiveValue()
	res.Values = make([]float64, len(vars))
	for i, v := range vars {
		res.Values[i] = sol.Value(v)
	}
	return res
}
