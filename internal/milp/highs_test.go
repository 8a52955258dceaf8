package milp

import (
	"testing"
	"time"

	"github.com/nextmv-io/sdk/mip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	m := NewModel()
	x := m.AddBinary("x")
	y := m.AddContinuous("y", -2, 40)
	var obj Expr
	obj.Add(3, x).Add(1, y).AddConstant(7)
	m.SetObjective(obj)
	m.AddConstraint("cap", Sum(x, y), LessEqual, Const(10))
	m.AddConstraint("tie", Sum(y), Equal, Const(4))
	m.AddConstraint("floor", Sum(y), GreaterEqual, Const(1))

	nm, vars := translate(m)
	require.Len(t, vars, 2)
	require.Len(t, nm.Vars(), 2)
	assert.True(t, vars[x].IsBool())
	require.True(t, vars[y].IsFloat())
	fy, ok := vars[y].(mip.Float)
	require.True(t, ok)
	assert.Equal(t, -2.0, fy.LowerBound())
	assert.Equal(t, 40.0, fy.UpperBound())

	assert.False(t, nm.Objective().IsMaximize())
	terms := nm.Objective().Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, 3.0, terms[0].Coefficient())
	assert.Equal(t, vars[x].Index(), terms[0].Var().Index())

	rows := nm.Constraints()
	require.Len(t, rows, 3)
	assert.Equal(t, mip.LessThanOrEqual, rows[0].Sense())
	assert.Equal(t, 10.0, rows[0].RightHandSide())
	assert.Len(t, rows[0].Terms(), 2)
	assert.Equal(t, mip.Equal, rows[1].Sense())
	assert.Equal(t, 4.0, rows[1].RightHandSide())
	// >= rows arrive normalized: -y <= -1.
	assert.Equal(t, mip.LessThanOrEqual, rows[2].Sense())
	assert.Equal(t, -1.0, rows[2].RightHandSide())
	assert.Equal(t, -1.0, rows[2].Terms()[0].Coefficient())
}

// fakeSolution answers the status and value queries the adapter makes.
type fakeSolution struct {
	mip.Solution
	values     bool
	optimal    bool
	infeasible bool
	timeout    bool
	objective  float64
	byIndex    map[int]float64
}

func (s fakeSolution) HasValues() bool         { return s.values }
func (s fakeSolution) IsOptimal() bool         { return s.optimal }
func (s fakeSolution) IsInfeasible() bool      { return s.infeasible }
func (s fakeSolution) IsTimeOut() bool         { return s.timeout }
func (s fakeSolution) ObjectiveValue() float64 { return s.objective }
func (s fakeSolution) RunTime() time.Duration  { return 1500 * time.Millisecond }
func (s fakeSolution) Value(v mip.Var) float64 { return s.byIndex[v.Index()] }

func TestReadSolution(t *testing.T) {
	m := NewModel()
	m.AddBinary("x")
	m.AddContinuous("y", 0, 10)
	_, vars := translate(m)
	values := map[int]float64{vars[0].Index(): 1, vars[1].Index(): 6.5}

	cases := map[string]struct {
		sol        mip.Solution
		want       Status
		wantValues []float64
	}{
		"optimal": {
			sol:        fakeSolution{values: true, optimal: true, objective: 12, byIndex: values},
			want:       Optimal,
			wantValues: []float64{1, 6.5},
		},
		"time limit with incumbent": {
			sol:        fakeSolution{values: true, timeout: true, objective: 12, byIndex: values},
			want:       Feasible,
			wantValues: []float64{1, 6.5},
		},
		"time limit without incumbent": {
			sol:  fakeSolution{timeout: true},
			want: TimeLimit,
		},
		"infeasible": {
			sol:  fakeSolution{infeasible: true},
			want: Infeasible,
		},
		"no status": {
			sol:  fakeSolution{},
			want: Error,
		},
		"nil": {
			sol:  nil,
			want: Error,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := readSolution(tc.sol, vars)
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, tc.wantValues, res.Values)
			if tc.want.HasValues() {
				assert.Equal(t, 12.0, res.Objective)
				assert.Equal(t, 1500*time.Millisecond, res.RunTime)
			} else {
				assert.Zero(t, res.Objective)
			}
		})
	}
}
