// Package opttest provides an exhaustive reference solver for tiny batches.
// It is meant for tests: the cost grows as dashers^orders * (2k)!.
package opttest

import (
	"context"
	"errors"
	"math"

	"dashroute/internal/milp"
	"dashroute/internal/opt"
	"dashroute/internal/routing"
)

// MaxOrders bounds the batch size Solve accepts.
const MaxOrders = 4

var ErrTooLarge = errors.New("opttest: batch too large for exhaustive search")

type plan struct {
	cost float64
	seq  []int
}

// Solve returns the values of a cheapest assignment for f. Every dasher runs
// its stops in an earliest-start schedule; idle variables take the smallest
// values the model admits.
func Solve(f *opt.Formulation) ([]float64, error) {
	g := f.Graph
	k := g.Orders()
	if k > MaxOrders {
		return nil, ErrTooLarge
	}

	best := make([]plan, 1<<k)
	for mask := range best {
		best[mask] = bestSequence(g, mask)
	}

	assign := make([]int, k)
	var bestAssign []int
	bestCost := math.Inf(1)
	for {
		masks := make([]int, f.Dashers)
		for o, d := range assign {
			masks[d] |= 1 << o
		}
		cost := 0.0
		for _, m := range masks {
			cost += best[m].cost
		}
		if cost < bestCost-1e-9 {
			bestCost = cost
			bestAssign = append(bestAssign[:0], assign...)
		}
		if !next(assign, f.Dashers) {
			break
		}
	}

	masks := make([]int, f.Dashers)
	for o, d := range bestAssign {
		masks[d] |= 1 << o
	}
	values := make([]float64, f.Model.NumVars())
	for d, m := range masks {
		fill(f, d, best[m].seq, values)
	}
	return values, nil
}

// Solver adapts Solve to milp.Solver. The formulation must be attached to ctx
// with opt.NewContext.
func Solver() milp.Solver {
	return milp.SolverFunc(func(ctx context.Context, m *milp.Model, _ milp.Options) (*milp.Result, error) {
		f, ok := opt.FromContext(ctx)
		if !ok || f.Model != m {
			return nil, errors.New("opttest: formulation missing from context")
		}
		values, err := Solve(f)
		if err != nil {
			return nil, err
		}
		return &milp.Result{Status: milp.Optimal, Values: values, Objective: m.Objective().Eval(values)}, nil
	})
}

// next advances assign as a base-d counter; false after the last value.
func next(assign []int, d int) bool {
	for i := range assign {
		assign[i]++
		if assign[i] < d {
			return true
		}
		assign[i] = 0
	}
	return false
}

func bestSequence(g *routing.Graph, mask int) plan {
	k := g.Orders()
	var stops []int
	for o := 0; o < k; o++ {
		if mask&(1<<o) != 0 {
			stops = append(stops, g.Restaurant(o), g.Customer(o))
		}
	}
	best := plan{cost: math.Inf(1)}
	if len(stops) == 0 {
		return plan{}
	}
	used := make([]bool, g.Len())
	seq := make([]int, 0, len(stops))
	var walk func()
	walk = func() {
		if len(seq) == len(stops) {
			if c := schedule(g, seq, nil); c < best.cost-1e-9 {
				best = plan{cost: c, seq: append([]int(nil), seq...)}
			}
			return
		}
		for _, s := range stops {
			if used[s] {
				continue
			}
			if g.Nodes[s].Role == routing.Customer && !used[g.Partner(s)] {
				continue
			}
			used[s] = true
			seq = append(seq, s)
			walk()
			seq = seq[:len(seq)-1]
			used[s] = false
		}
	}
	walk()
	return best
}

type timing struct{ t, w float64 }

// schedule runs seq earliest-first from Source and returns the summed
// customer latency. When times is non-nil it receives t and w per node.
func schedule(g *routing.Graph, seq []int, times map[int]timing) float64 {
	cost := 0.0
	prev, depart := g.Source(), 0.0
	for _, v := range seq {
		t := math.Max(depart+g.Travel(prev, v), g.Nodes[v].LowerBound)
		w := 0.0
		if g.Nodes[v].Role == routing.Restaurant {
			w = math.Max(0, g.ReadyTime(v)-t)
		} else {
			cost += t - g.ReferenceTime(v)
		}
		if times != nil {
			times[v] = timing{t, w}
		}
		prev, depart = v, t+w
	}
	if times != nil {
		times[g.Sink()] = timing{t: depart}
	}
	return cost
}

func fill(f *opt.Formulation, d int, seq []int, values []float64) {
	g := f.Graph
	times := map[int]timing{g.Source(): {}}
	schedule(g, seq, times)

	path := append([]int{g.Source()}, seq...)
	path = append(path, g.Sink())
	for i := 0; i+1 < len(path); i++ {
		x, _ := f.X(d, path[i], path[i+1])
		values[x] = 1
	}
	pos := map[int]int{}
	for i, v := range path {
		pos[v] = i
	}

	for i := 0; i < g.Len(); i++ {
		tm, visited := times[i]
		switch {
		case visited:
			values[f.U(d, i)] = float64(pos[i])
		case g.Nodes[i].Role == routing.Restaurant:
			tm = timing{t: 0, w: math.Max(0, g.ReadyTime(i))}
		case g.Nodes[i].Role == routing.Customer:
			tm = timing{t: g.Nodes[i].LowerBound}
			values[f.U(d, i)] = 1
		}
		values[f.T(d, i)] = tm.t
		values[f.W(d, i)] = tm.w
	}
}
