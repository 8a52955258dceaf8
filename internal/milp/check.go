package milp

import (
	"errors"
	"fmt"
	"math"
)

var ErrViolated = errors.New("constraint violated")

const integralityTol = 1e-4

// Check verifies values against every bound and constraint. Binary values are
// snapped to 0 or 1 first, as a solver's integrality tolerance would otherwise
// leak into big-M rows. tol is relative to the magnitude of each row.
func (m *Model) Check(values []float64, tol float64) error {
	if len(values) != len(m.vars) {
		return fmt.Errorf("%w: got %d values for %d variables", ErrViolated, len(values), len(m.vars))
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	for i, v := range m.vars {
		x := vals[i]
		if math.IsNaN(x) {
			return fmt.Errorf("%w: %s is NaN", ErrViolated, v.Name)
		}
		if v.Kind == Binary {
			if math.Abs(x-math.Round(x)) > integralityTol {
				return fmt.Errorf("%w: %s = %g is not integral", ErrViolated, v.Name, x)
			}
			x = math.Round(x)
			vals[i] = x
		}
		scale := 1 + math.Abs(x)
		if x < v.Lower-tol*scale || x > v.Upper+tol*scale {
			return fmt.Errorf("%w: %s = %g outside [%g, %g]", ErrViolated, v.Name, x, v.Lower, v.Upper)
		}
	}
	for _, c := range m.constraints {
		lhs, scale := 0.0, 1+math.Abs(c.RHS)
		for _, t := range c.Terms {
			p := t.Coef * vals[t.Var]
			lhs += p
			scale += math.Abs(p)
		}
		slack := tol * scale
		switch c.Rel {
		case Equal:
			if math.Abs(lhs-c.RHS) > slack {
				return fmt.Errorf("%w: %s: %g != %g", ErrViolated, c.Name, lhs, c.RHS)
			}
		default:
			if lhs > c.RHS+slack {
				return fmt.Errorf("%w: %s: %g > %g", ErrViolated, c.Name, lhs, c.RHS)
			}
		}
	}
	return nil
}
