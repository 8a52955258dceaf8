// Package opt formulates the dasher routing model for one batch and turns a
// solver assignment back into timed routes.
package opt

import (
	"errors"
	"fmt"

	"dashroute/internal/milp"
	"dashroute/internal/routing"
)

var ErrNoDashers = errors.New("at least one dasher is required")

// Formulation is the model for one batch plus dense lookups from
// (dasher, node) and (dasher, from, to) to variable handles.
type Formulation struct {
	Graph   *routing.Graph
	Dashers int
	Model   *milp.Model

	// BigM relaxes time propagation on unused arcs; OrderM does the same for
	// visit order.
	BigM   float64
	OrderM float64

	x       [][]milp.Var // [d][i*|N|+j], NoVar for useless arcs
	t, w, u [][]milp.Var // [d][i]
}

// Formulate builds the routing model of g for the given number of dashers.
//
// Per dasher d and node i: x[d,i,j] binary arc use, t[d,i] arrival,
// w[d,i] wait before departing and u[d,i] visit order. The objective sums
// t[d,c] - ref(c) over all dashers and customers; a customer a dasher does
// not visit contributes zero at the optimum.
func Formulate(g *routing.Graph, dashers int) (*Formulation, error) {
	if dashers < 1 {
		return nil, fmt.Errorf("formulate batch %d: %w", g.Batch, ErrNoDashers)
	}
	n := g.Len()
	h := g.Horizon()
	f := &Formulation{
		Graph:   g,
		Dashers: dashers,
		Model:   milp.NewModel(),
		BigM:    2*h + g.MaxTravel() - g.Floor(),
		OrderM:  float64(n),
		x:       make([][]milp.Var, dashers),
		t:       make([][]milp.Var, dashers),
		w:       make([][]milp.Var, dashers),
		u:       make([][]milp.Var, dashers),
	}
	f.addVariables()
	f.addObjective()
	for d := 0; d < dashers; d++ {
		f.addDegree(d)
		f.addFlow(d)
		f.addOrder(d)
		f.addTime(d)
		f.addReadyWait(d)
		f.addPairing(d)
		f.addCustomerWait(d)
	}
	f.addCoverage()
	return f, nil
}

func (f *Formulation) addVariables() {
	g, m := f.Graph, f.Model
	n, h := g.Len(), g.Horizon()
	for d := 0; d < f.Dashers; d++ {
		f.x[d] = make([]milp.Var, n*n)
		f.t[d] = make([]milp.Var, n)
		f.w[d] = make([]milp.Var, n)
		f.u[d] = make([]milp.Var, n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if g.Useless(i, j) {
					f.x[d][i*n+j] = milp.NoVar
					continue
				}
				f.x[d][i*n+j] = m.AddBinary(fmt.Sprintf("x_d%d_%s_%s", d, g.Label(i), g.Label(j)))
			}
		}
		for i := 0; i < n; i++ {
			lb := g.Nodes[i].LowerBound
			f.t[d][i] = m.AddContinuous(fmt.Sprintf("t_d%d_%s", d, g.Label(i)), lb, h)
			f.w[d][i] = m.AddContinuous(fmt.Sprintf("w_d%d_%s", d, g.Label(i)), 0, h)
			f.u[d][i] = m.AddContinuous(fmt.Sprintf("u_d%d_%s", d, g.Label(i)), 0, float64(n-1))
		}
	}
}

func (f *Formulation) addObjective() {
	g := f.Graph
	var obj milp.Expr
	for d := 0; d < f.Dashers; d++ {
		for k := 0; k < g.Orders(); k++ {
			c := g.Customer(k)
			obj.Add(1, f.t[d][c]).AddConstant(-g.ReferenceTime(c))
		}
	}
	f.Model.SetObjective(obj)
}

// inbound and outbound sum the existing arc variables at node i.
func (f *Formulation) inbound(d, i int) milp.Expr {
	var e milp.Expr
	n := f.Graph.Len()
	for j := 0; j < n; j++ {
		if v := f.x[d][j*n+i]; v != milp.NoVar {
			e.Add(1, v)
		}
	}
	return e
}

func (f *Formulation) outbound(d, i int) milp.Expr {
	var e milp.Expr
	n := f.Graph.Len()
	for j := 0; j < n; j++ {
		if v := f.x[d][i*n+j]; v != milp.NoVar {
			e.Add(1, v)
		}
	}
	return e
}

func (f *Formulation) addDegree(d int) {
	g, m := f.Graph, f.Model
	m.AddConstraint(fmt.Sprintf("leave_source_d%d", d), f.outbound(d, g.Source()), milp.Equal, milp.Const(1))
	m.AddConstraint(fmt.Sprintf("enter_sink_d%d", d), f.inbound(d, g.Sink()), milp.Equal, milp.Const(1))
}

func (f *Formulation) addFlow(d int) {
	g := f.Graph
	for i := 0; i < g.Len(); i++ {
		if !g.Physical(i) {
			continue
		}
		f.Model.AddConstraint(fmt.Sprintf("flow_d%d_%s", d, g.Label(i)), f.inbound(d, i), milp.Equal, f.outbound(d, i))
	}
}

// addOrder adds u[i] + 1 <= u[j] + OrderM*(1 - x[i,j]) on every arc.
func (f *Formulation) addOrder(d int) {
	g := f.Graph
	n := g.Len()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := f.x[d][i*n+j]
			if x == milp.NoVar {
				continue
			}
			var lhs milp.Expr
			lhs.Add(1, f.u[d][i]).Add(-1, f.u[d][j]).Add(f.OrderM, x)
			f.Model.AddConstraint(fmt.Sprintf("order_d%d_%s_%s", d, g.Label(i), g.Label(j)), lhs, milp.LessEqual, milp.Const(f.OrderM-1))
		}
	}
}

// addTime adds t[i] + w[i] + travel(i,j) <= t[j] + BigM*(1 - x[i,j]).
func (f *Formulation) addTime(d int) {
	g := f.Graph
	n := g.Len()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := f.x[d][i*n+j]
			if x == milp.NoVar {
				continue
			}
			var lhs milp.Expr
			lhs.Add(1, f.t[d][i]).Add(1, f.w[d][i]).Add(-1, f.t[d][j]).Add(f.BigM, x)
			f.Model.AddConstraint(fmt.Sprintf("time_d%d_%s_%s", d, g.Label(i), g.Label(j)), lhs, milp.LessEqual, milp.Const(f.BigM-g.Travel(i, j)))
		}
	}
}

func (f *Formulation) addReadyWait(d int) {
	g := f.Graph
	for k := 0; k < g.Orders(); k++ {
		r := g.Restaurant(k)
		f.Model.AddConstraint(fmt.Sprintf("ready_d%d_%s", d, g.Label(r)), milp.Sum(f.t[d][r], f.w[d][r]), milp.GreaterEqual, milp.Const(g.ReadyTime(r)))
	}
}

// addPairing keeps both legs of a delivery on one dasher, in order.
func (f *Formulation) addPairing(d int) {
	g, m := f.Graph, f.Model
	for k := 0; k < g.Orders(); k++ {
		r, c := g.Restaurant(k), g.Customer(k)

		// Relaxed when d does not visit c so its idle t[d,c] rests at ref(c).
		lhs := f.inbound(d, c)
		for i := range lhs.Terms {
			lhs.Terms[i].Coef = f.BigM
		}
		lhs.Add(1, f.t[d][r]).Add(1, f.w[d][r]).Add(-1, f.t[d][c])
		m.AddConstraint(fmt.Sprintf("pickup_first_d%d_%d", d, k), lhs, milp.LessEqual, milp.Const(f.BigM-g.Travel(r, c)))

		var ord milp.Expr
		ord.Add(1, f.u[d][r]).Add(-1, f.u[d][c])
		m.AddConstraint(fmt.Sprintf("pickup_order_d%d_%d", d, k), ord, milp.LessEqual, milp.Const(-1))

		m.AddConstraint(fmt.Sprintf("same_dasher_d%d_%d", d, k), f.inbound(d, r), milp.Equal, f.inbound(d, c))
	}
}

func (f *Formulation) addCustomerWait(d int) {
	g := f.Graph
	for k := 0; k < g.Orders(); k++ {
		c := g.Customer(k)
		f.Model.AddConstraint(fmt.Sprintf("no_wait_d%d_%s", d, g.Label(c)), milp.Sum(f.w[d][c]), milp.Equal, milp.Const(0))
	}
}

// addCoverage makes every physical node entered exactly once over all dashers.
func (f *Formulation) addCoverage() {
	g := f.Graph
	for i := 0; i < g.Len(); i++ {
		if !g.Physical(i) {
			continue
		}
		var in milp.Expr
		for d := 0; d < f.Dashers; d++ {
			e := f.inbound(d, i)
			in.Terms = append(in.Terms, e.Terms...)
		}
		f.Model.AddConstraint(fmt.Sprintf("cover_%s", g.Label(i)), in, milp.Equal, milp.Const(1))
	}
}

// X returns the arc variable, or false if the arc is useless.
func (f *Formulation) X(d, i, j int) (milp.Var, bool) {
	v := f.x[d][i*f.Graph.Len()+j]
	return v, v != milp.NoVar
}

func (f *Formulation) T(d, i int) milp.Var { return f.t[d][i] }
func (f *Formulation) W(d, i int) milp.Var { return f.w[d][i] }
func (f *Formulation) U(d, i int) milp.Var { return f.u[d][i] }
