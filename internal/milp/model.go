// Package milp is a small engine-neutral description of a mixed-integer
// linear program plus the port through which it is handed to a solver.
package milp

import (
	"errors"
	"fmt"
	"math"
)

// Var is a handle to a variable of one Model.
type Var int

// NoVar marks an absent variable, e.g. an arc that was never created.
const NoVar Var = -1

type Kind uint8

const (
	Continuous Kind = iota
	Binary
)

func (k Kind) String() string {
	if k == Binary {
		return "binary"
	}
	return "continuous"
}

type Variable struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64
}

type Term struct {
	Coef float64
	Var  Var
}

// Expr is a linear expression: sum of terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Add appends coef*v and returns e for chaining.
func (e *Expr) Add(coef float64, v Var) *Expr {
	e.Terms = append(e.Terms, Term{Coef: coef, Var: v})
	return e
}

// AddConstant adds c to the constant part.
func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// Sum builds 1*v for every v.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Coef: 1, Var: v})
	}
	return e
}

// Const is an expression with no terms.
func Const(c float64) Expr { return Expr{Constant: c} }

// Eval computes e under the given values.
func (e Expr) Eval(values []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

type Relation uint8

const (
	LessEqual Relation = iota
	Equal
	GreaterEqual
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	}
	return "<="
}

// Constraint is stored normalized as Terms (<= or =) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Rel   Relation
	RHS   float64
}

type Model struct {
	vars        []Variable
	constraints []Constraint
	objective   Expr
	byName      map[string]Var
}

func NewModel() *Model {
	return &Model{byName: map[string]Var{}}
}

func (m *Model) AddBinary(name string) Var {
	return m.addVar(Variable{Name: name, Kind: Binary, Lower: 0, Upper: 1})
}

// AddContinuous adds a variable bounded by [lb, ub]. Use math.Inf(1) for no
// upper bound.
func (m *Model) AddContinuous(name string, lb, ub float64) Var {
	return m.addVar(Variable{Name: name, Kind: Continuous, Lower: lb, Upper: ub})
}

func (m *Model) addVar(v Variable) Var {
	id := Var(len(m.vars))
	m.vars = append(m.vars, v)
	if v.Name != "" {
		m.byName[v.Name] = id
	}
	return id
}

// AddConstraint records lhs rel rhs. Both sides are moved left so the stored
// form has all variables on the left and a single constant on the right;
// >= is flipped to <=.
func (m *Model) AddConstraint(name string, lhs Expr, rel Relation, rhs Expr) {
	merged := make(map[Var]float64, len(lhs.Terms)+len(rhs.Terms))
	order := make([]Var, 0, len(lhs.Terms)+len(rhs.Terms))
	push := func(v Var, c float64) {
		if _, ok := merged[v]; !ok {
			order = append(order, v)
		}
		merged[v] += c
	}
	for _, t := range lhs.Terms {
		push(t.Var, t.Coef)
	}
	for _, t := range rhs.Terms {
		push(t.Var, -t.Coef)
	}
	c := Constraint{Name: name, Rel: rel, RHS: rhs.Constant - lhs.Constant}
	for _, v := range order {
		if coef := merged[v]; coef != 0 {
			c.Terms = append(c.Terms, Term{Coef: coef, Var: v})
		}
	}
	if rel == GreaterEqual {
		for i := range c.Terms {
			c.Terms[i].Coef = -c.Terms[i].Coef
		}
		c.RHS = -c.RHS
		c.Rel = LessEqual
	}
	m.constraints = append(m.constraints, c)
}

// SetObjective sets the expression to minimize.
func (m *Model) SetObjective(e Expr) { m.objective = e }

func (m *Model) Objective() Expr           { return m.objective }
func (m *Model) Variables() []Variable     { return m.vars }
func (m *Model) Constraints() []Constraint { return m.constraints }
func (m *Model) NumVars() int              { return len(m.vars) }
func (m *Model) NumConstraints() int       { return len(m.constraints) }

func (m *Model) Variable(v Var) Variable { return m.vars[v] }

// Lookup resolves a variable by name.
func (m *Model) Lookup(name string) (Var, bool) {
	v, ok := m.byName[name]
	return v, ok
}

// Values maps named values onto a dense slice. Unknown names are an error;
// variables missing from the map are left at 0.
func (m *Model) Values(named map[string]float64) ([]float64, error) {
	out := make([]float64, len(m.vars))
	for name, val := range named {
		v, ok := m.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		if math.IsNaN(val) {
			return nil, fmt.Errorf("variable %q is NaN", name)
		}
		out[v] = val
	}
	return out, nil
}

// Named is the inverse of Values.
func (m *Model) Named(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, val := range values {
		if i < len(m.vars) && m.vars[i].Name != "" {
			out[m.vars[i].Name] = val
		}
	}
	return out
}

var ErrModelMismatch = errors.New("models differ")

// Diff reports the first structural difference between m and o: variables,
// constraints and objective must match in order, name and coefficient.
func (m *Model) Diff(o *Model) error {
	mismatch := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrModelMismatch, fmt.Sprintf(format, args...))
	}
	if len(m.vars) != len(o.vars) {
		return mismatch("%d variables, other has %d", len(m.vars), len(o.vars))
	}
	for i, v := range m.vars {
		w := o.vars[i]
		if v.Name != w.Name || v.Kind != w.Kind || !near(v.Lower, w.Lower) || !near(v.Upper, w.Upper) {
			return mismatch("variable %d is %s %s [%g,%g], other has %s %s [%g,%g]",
				i, v.Name, v.Kind, v.Lower, v.Upper, w.Name, w.Kind, w.Lower, w.Upper)
		}
	}
	if len(m.constraints) != len(o.constraints) {
		return mismatch("%d constraints, other has %d", len(m.constraints), len(o.constraints))
	}
	for i, c := range m.constraints {
		d := o.constraints[i]
		if c.Name != d.Name || c.Rel != d.Rel || !near(c.RHS, d.RHS) || !sameTerms(c.Terms, d.Terms) {
			return mismatch("constraint %d (%s) differs", i, c.Name)
		}
	}
	if !near(m.objective.Constant, o.objective.Constant) || !sameTerms(m.objective.Terms, o.objective.Terms) {
		return mismatch("objective differs")
	}
	return nil
}

func sameTerms(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Var != b[i].Var || !near(a[i].Coef, b[i].Coef) {
			return false
		}
	}
	return true
}

func near(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
