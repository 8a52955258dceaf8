package milp

import (
	"context"
	"time"
)

type Status uint8

const (
	StatusUnknown Status = iota
	// Optimal: proven optimum.
	Optimal
	// Feasible: the time limit hit with an incumbent in hand.
	Feasible
	Infeasible
	// TimeLimit: the time limit hit before any incumbent was found.
	TimeLimit
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	case TimeLimit:
		return "time_limit"
	case Error:
		return "error"
	}
	return "unknown"
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) Status {
	for _, st := range []Status{Optimal, Feasible, Infeasible, TimeLimit, Error} {
		if st.String() == s {
			return st
		}
	}
	return StatusUnknown
}

// HasValues reports whether a result carries a usable assignment.
func (s Status) HasValues() bool { return s == Optimal || s == Feasible }

type Options struct {
	TimeLimit time.Duration
	// MIPGap is the relative optimality gap at which search may stop.
	MIPGap  float64
	Verbose bool
}

type Result struct {
	Status    Status
	Objective float64
	// Values is indexed by Var.
	Values  []float64
	RunTime time.Duration
}

// Value reads back v. Absent values read as 0.
func (r *Result) Value(v Var) float64 {
	if r == nil || v < 0 || int(v) >= len(r.Values) {
		return 0
	}
	return r.Values[v]
}

// Solver hands a model to an optimization engine. Implementations must
// return within opts.TimeLimit or when ctx is done, whichever is first.
type Solver interface {
	Solve(ctx context.Context, m *Model, opts Options) (*Result, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, m *Model, opts Options) (*Result, error)

func (f SolverFunc) Solve(ctx context.Context, m *Model, opts Options) (*Result, error) {
	return f(ctx, m, opts)
}
