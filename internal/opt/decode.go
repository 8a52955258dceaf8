package opt

import (
	"errors"
	"fmt"
	"math"

	"dashroute/internal/milp"
	"dashroute/internal/model"
	"dashroute/internal/routing"
)

var (
	ErrInfeasible          = errors.New("infeasible")
	ErrTimeLimit           = errors.New("time limit reached without a solution")
	ErrSolver              = errors.New("solver failed")
	ErrDecodeInconsistency = errors.New("decode inconsistency")
)

// CheckTolerance is the relative slack allowed when verifying a returned
// assignment against the model.
const CheckTolerance = 1e-5

type Stop struct {
	Node       int
	Role       routing.Role
	DeliveryID int64
	Arrival    float64
	Wait       float64
}

// Departure is when the dasher leaves the stop; for a restaurant this is the
// pickup time.
func (s Stop) Departure() float64 { return s.Arrival + s.Wait }

// Route lists the physical stops of one dasher in visiting order.
type Route struct {
	Dasher int
	Stops  []Stop
}

type Assignment struct {
	Batch  int
	Routes []Route
	// Optimal is false when the engine stopped at its time limit.
	Optimal   bool
	Objective float64
	// Latency sums customer arrival minus reference time over the batch.
	Latency float64
}

// Interpret maps an engine result onto the batch's routes. Statuses without an
// assignment become ErrInfeasible, ErrTimeLimit or ErrSolver. An assignment
// that violates the model is ErrDecodeInconsistency.
func Interpret(f *Formulation, res *milp.Result) (*Assignment, error) {
	if res == nil {
		return nil, fmt.Errorf("batch %d: %w: no result", f.Graph.Batch, ErrSolver)
	}
	switch res.Status {
	case milp.Optimal, milp.Feasible:
	case milp.Infeasible:
		return nil, fmt.Errorf("batch %d: %w", f.Graph.Batch, ErrInfeasible)
	case milp.TimeLimit:
		return nil, fmt.Errorf("batch %d: %w", f.Graph.Batch, ErrTimeLimit)
	default:
		return nil, fmt.Errorf("batch %d: %w: status %s", f.Graph.Batch, ErrSolver, res.Status)
	}
	if err := f.Model.Check(res.Values, CheckTolerance); err != nil {
		return nil, fmt.Errorf("batch %d: %w: %v", f.Graph.Batch, ErrDecodeInconsistency, err)
	}
	a, err := Decode(f, res.Value)
	if err != nil {
		return nil, err
	}
	a.Optimal = res.Status == milp.Optimal
	a.Objective = res.Objective
	return a, nil
}

// Decode follows used arcs (value > 0.5) from Source to Sink for every dasher.
// Each walk is bounded by the node count. Duplicate successors, cycles, dead
// ends, stray arcs, nodes visited twice or never, and drop-offs that precede
// their pickup are all reported as ErrDecodeInconsistency.
func Decode(f *Formulation, value func(milp.Var) float64) (*Assignment, error) {
	g := f.Graph
	n := g.Len()
	fail := func(format string, args ...any) error {
		return fmt.Errorf("batch %d: %w: %s", g.Batch, ErrDecodeInconsistency, fmt.Sprintf(format, args...))
	}

	a := &Assignment{Batch: g.Batch, Routes: make([]Route, f.Dashers)}
	visits := make([]int, n)
	succ := make([]int, n)
	for d := 0; d < f.Dashers; d++ {
		for i := range succ {
			succ[i] = -1
		}
		used := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				x, ok := f.X(d, i, j)
				if !ok || value(x) <= 0.5 {
					continue
				}
				if succ[i] >= 0 {
					return nil, fail("dasher %d leaves %s twice", d, g.Label(i))
				}
				succ[i] = j
				used++
			}
		}

		route := Route{Dasher: d}
		cur := g.Source()
		for steps := 0; ; steps++ {
			if steps >= n {
				return nil, fail("dasher %d does not reach sink within %d steps", d, n)
			}
			next := succ[cur]
			if next < 0 {
				return nil, fail("dasher %d route ends at %s", d, g.Label(cur))
			}
			if next == g.Sink() {
				break
			}
			if !g.Physical(next) {
				return nil, fail("dasher %d enters %s", d, g.Label(next))
			}
			visits[next]++
			route.Stops = append(route.Stops, Stop{
				Node:       next,
				Role:       g.Nodes[next].Role,
				DeliveryID: g.DeliveryID(next),
				Arrival:    value(f.T(d, next)),
				Wait:       value(f.W(d, next)),
			})
			cur = next
		}
		if used != len(route.Stops)+1 {
			return nil, fail("dasher %d uses %d arcs off its route", d, used-len(route.Stops)-1)
		}
		if err := checkPrecedence(g, route); err != nil {
			return nil, fail("dasher %d: %v", d, err)
		}
		a.Routes[d] = route
	}

	for i := 0; i < n; i++ {
		if g.Physical(i) && visits[i] != 1 {
			return nil, fail("%s visited %d times", g.Label(i), visits[i])
		}
	}
	for _, r := range a.Routes {
		for _, s := range r.Stops {
			if s.Role == routing.Customer {
				a.Latency += s.Arrival - g.ReferenceTime(s.Node)
			}
		}
	}
	return a, nil
}

func checkPrecedence(g *routing.Graph, r Route) error {
	pos := make(map[int]int, len(r.Stops))
	for i, s := range r.Stops {
		pos[s.Node] = i
	}
	for i, s := range r.Stops {
		p, ok := pos[g.Partner(s.Node)]
		if !ok {
			return fmt.Errorf("%s without %s", g.Label(s.Node), g.Label(g.Partner(s.Node)))
		}
		if s.Role == routing.Restaurant && p < i {
			return fmt.Errorf("%s dropped before pickup", g.Label(g.Partner(s.Node)))
		}
	}
	return nil
}

// Served reports how many dashers have at least one stop.
func (a *Assignment) Served() int {
	n := 0
	for _, r := range a.Routes {
		if len(r.Stops) > 0 {
			n++
		}
	}
	return n
}

// RoutePoints renders the assignment as output rows. A dasher's route id is
// routeBase plus its index in the batch; idle dashers emit nothing. epoch is
// the unix time that model times are relative to.
func (a *Assignment) RoutePoints(epoch int64, routeBase int) []model.RoutePoint {
	var out []model.RoutePoint
	for _, r := range a.Routes {
		for idx, s := range r.Stops {
			rp := model.RoutePoint{RouteID: routeBase + r.Dasher, PointIndex: idx, DeliveryID: s.DeliveryID}
			if s.Role == routing.Restaurant {
				rp.Type = model.Pickup
				rp.Time = epoch + int64(math.Round(s.Departure()))
			} else {
				rp.Type = model.DropOff
				rp.Time = epoch + int64(math.Round(s.Arrival))
			}
			out = append(out, rp)
		}
	}
	return out
}
