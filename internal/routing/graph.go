// Package routing builds the per-batch node arena and travel matrix that the
// routing model is formulated over.
package routing

import (
	"errors"
	"fmt"
	"math"

	"dashroute/internal/geo"
	"dashroute/internal/model"
)

type Role uint8

const (
	Restaurant Role = iota
	Customer
	Source
	Sink
)

func (r Role) String() string {
	switch r {
	case Restaurant:
		return "restaurant"
	case Customer:
		return "customer"
	case Source:
		return "source"
	case Sink:
		return "sink"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Reference selects the time a customer's latency is measured from.
type Reference uint8

const (
	FoodReady Reference = iota
	CreatedAt
)

func ParseReference(s string) (Reference, error) {
	switch s {
	case "food_ready", "":
		return FoodReady, nil
	case "created_at":
		return CreatedAt, nil
	}
	return 0, fmt.Errorf("unknown objective reference %q", s)
}

func (r Reference) String() string {
	if r == CreatedAt {
		return "created_at"
	}
	return "food_ready"
}

var ErrEmptyBatch = errors.New("empty batch")

type Node struct {
	Index int
	Role  Role
	// Order is the position of the owning delivery in the batch, -1 for
	// Source and Sink.
	Order int
	Point model.GeoPoint
	// LowerBound is the earliest admissible arrival time.
	LowerBound float64
}

// Graph is the node arena for one batch. Restaurants occupy indices 0..n-1,
// customers n..2n-1, then Source and Sink.
type Graph struct {
	Batch      int
	Deliveries []model.Delivery
	Nodes      []Node
	Reference  Reference

	travel    []float64
	maxTravel float64
	horizon   float64
	floor     float64
}

// Build constructs the arena for a batch. Physical travel times are rounded
// to whole seconds; Source and Sink are zero-cost anchors.
func Build(index int, ds []model.Delivery, tm geo.TravelModel, ref Reference) (*Graph, error) {
	n := len(ds)
	if n == 0 {
		return nil, fmt.Errorf("build graph for batch %d: %w", index, ErrEmptyBatch)
	}
	g := &Graph{Batch: index, Deliveries: ds, Reference: ref}
	size := 2*n + 2
	g.Nodes = make([]Node, size)
	for k, d := range ds {
		g.Nodes[k] = Node{Index: k, Role: Restaurant, Order: k, Point: d.Pickup}
		g.Nodes[n+k] = Node{Index: n + k, Role: Customer, Order: k, Point: d.Dropoff, LowerBound: g.referenceOf(d)}
	}
	g.Nodes[2*n] = Node{Index: 2 * n, Role: Source, Order: -1}
	g.Nodes[2*n+1] = Node{Index: 2*n + 1, Role: Sink, Order: -1}

	g.travel = make([]float64, size*size)
	for i := 0; i < 2*n; i++ {
		for j := i + 1; j < 2*n; j++ {
			s := tm.WholeSeconds(g.Nodes[i].Point, g.Nodes[j].Point)
			g.travel[i*size+j] = s
			g.travel[j*size+i] = s
			g.maxTravel = math.Max(g.maxTravel, s)
		}
	}

	top := 0.0
	for k, d := range ds {
		top = math.Max(top, float64(d.FoodReadyTime))
		top = math.Max(top, g.Nodes[n+k].LowerBound)
		g.floor = math.Min(g.floor, g.Nodes[n+k].LowerBound)
	}
	// Earliest schedule of any route: every departure is bounded by the latest
	// release time plus one longest hop per arc on the path.
	g.horizon = top + float64(size-1)*g.maxTravel
	return g, nil
}

func (g *Graph) referenceOf(d model.Delivery) float64 {
	if g.Reference == CreatedAt {
		return float64(d.CreatedAt)
	}
	return float64(d.FoodReadyTime)
}

func (g *Graph) Len() int    { return len(g.Nodes) }
func (g *Graph) Orders() int { return len(g.Deliveries) }

func (g *Graph) Restaurant(k int) int { return k }
func (g *Graph) Customer(k int) int   { return g.Orders() + k }
func (g *Graph) Source() int          { return 2 * g.Orders() }
func (g *Graph) Sink() int            { return 2*g.Orders() + 1 }

// Physical reports whether i is a restaurant or customer node.
func (g *Graph) Physical(i int) bool { return i < 2*g.Orders() }

func (g *Graph) Travel(i, j int) float64 { return g.travel[i*len(g.Nodes)+j] }
func (g *Graph) MaxTravel() float64      { return g.maxTravel }

// Horizon bounds every arrival and wait in an earliest-start schedule.
func (g *Graph) Horizon() float64 { return g.horizon }

// Floor is the smallest lower bound of any node, never above zero.
func (g *Graph) Floor() float64 { return g.floor }

// Partner maps a restaurant to its customer and back. Source and Sink have no
// partner and return -1.
func (g *Graph) Partner(i int) int {
	n := g.Orders()
	switch {
	case i < n:
		return i + n
	case i < 2*n:
		return i - n
	}
	return -1
}

// ReadyTime is the food-ready time of the delivery owning node i.
func (g *Graph) ReadyTime(i int) float64 {
	if o := g.Nodes[i].Order; o >= 0 {
		return float64(g.Deliveries[o].FoodReadyTime)
	}
	return 0
}

// ReferenceTime is the latency origin of the delivery owning node i.
func (g *Graph) ReferenceTime(i int) float64 {
	if o := g.Nodes[i].Order; o >= 0 {
		return g.referenceOf(g.Deliveries[o])
	}
	return 0
}

// DeliveryID of the order owning node i, or 0 for Source and Sink.
func (g *Graph) DeliveryID(i int) int64 {
	if o := g.Nodes[i].Order; o >= 0 {
		return g.Deliveries[o].ID
	}
	return 0
}

// Useless reports arcs no route can use: self loops, arcs into Source or out
// of Sink, Source straight to a customer, a restaurant straight to Sink and a
// customer back to its own restaurant.
func (g *Graph) Useless(i, j int) bool {
	src, sink := g.Source(), g.Sink()
	ri, rj := g.Nodes[i].Role, g.Nodes[j].Role
	switch {
	case i == j:
		return true
	case j == src || i == sink:
		return true
	case i == src && rj == Customer:
		return true
	case ri == Restaurant && j == sink:
		return true
	case ri == Customer && rj == Restaurant && g.Partner(i) == j:
		return true
	}
	return false
}

// Label names a node for artifacts and logs.
func (g *Graph) Label(i int) string {
	switch g.Nodes[i].Role {
	case Restaurant:
		return fmt.Sprintf("r%d", g.Nodes[i].Order)
	case Customer:
		return fmt.Sprintf("c%d", g.Nodes[i].Order)
	case Source:
		return "source"
	}
	return "sink"
}
