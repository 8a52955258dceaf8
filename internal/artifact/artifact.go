// Package artifact persists per-batch models and raw solver output so a batch
// can be inspected or decoded again without re-solving.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"dashroute/internal/milp"
)

// Dir writes artifacts under one directory, one pair of files per batch.
type Dir struct {
	Path string
}

func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir %s: %w", path, err)
	}
	return &Dir{Path: path}, nil
}

func (d *Dir) ModelPath(batch int) string {
	return filepath.Join(d.Path, fmt.Sprintf("batch_%03d.model.yaml", batch))
}

func (d *Dir) SolutionPath(batch int) string {
	return filepath.Join(d.Path, fmt.Sprintf("batch_%03d.solution.json", batch))
}

type VariableDoc struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"`
	Lower float64 `yaml:"lb"`
	Upper float64 `yaml:"ub"`
}

type TermDoc struct {
	Coef float64 `yaml:"c"`
	Var  string  `yaml:"v"`
}

type ConstraintDoc struct {
	Name  string    `yaml:"name"`
	Terms []TermDoc `yaml:"terms"`
	Rel   string    `yaml:"rel"`
	RHS   float64   `yaml:"rhs"`
}

type ObjectiveDoc struct {
	Sense    string    `yaml:"sense"`
	Terms    []TermDoc `yaml:"terms"`
	Constant float64   `yaml:"constant"`
}

// ModelDoc is the on-disk form of a milp.Model.
type ModelDoc struct {
	Batch       int             `yaml:"batch"`
	Variables   []VariableDoc   `yaml:"variables"`
	Objective   ObjectiveDoc    `yaml:"objective"`
	Constraints []ConstraintDoc `yaml:"constraints"`
}

func (d *Dir) WriteModel(batch int, m *milp.Model) error {
	doc := EncodeModel(batch, m)
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode model batch %d: %w", batch, err)
	}
	return os.WriteFile(d.ModelPath(batch), b, 0o644)
}

func EncodeModel(batch int, m *milp.Model) ModelDoc {
	vars := m.Variables()
	terms := func(ts []milp.Term) []TermDoc {
		out := make([]TermDoc, len(ts))
		for i, t := range ts {
			out[i] = TermDoc{Coef: t.Coef, Var: vars[t.Var].Name}
		}
		return out
	}
	doc := ModelDoc{Batch: batch}
	for _, v := range vars {
		doc.Variables = append(doc.Variables, VariableDoc{Name: v.Name, Kind: v.Kind.String(), Lower: v.Lower, Upper: v.Upper})
	}
	obj := m.Objective()
	doc.Objective = ObjectiveDoc{Sense: "minimize", Terms: terms(obj.Terms), Constant: obj.Constant}
	for _, c := range m.Constraints() {
		doc.Constraints = append(doc.Constraints, ConstraintDoc{Name: c.Name, Terms: terms(c.Terms), Rel: c.Rel.String(), RHS: c.RHS})
	}
	return doc
}

// ReadModel loads a model written by WriteModel.
func ReadModel(path string) (*milp.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc ModelDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return doc.Model()
}

func (doc ModelDoc) Model() (*milp.Model, error) {
	m := milp.NewModel()
	for _, v := range doc.Variables {
		if v.Kind == milp.Binary.String() {
			m.AddBinary(v.Name)
		} else {
			m.AddContinuous(v.Name, v.Lower, v.Upper)
		}
	}
	expr := func(ts []TermDoc) (milp.Expr, error) {
		var e milp.Expr
		for _, t := range ts {
			v, ok := m.Lookup(t.Var)
			if !ok {
				return e, fmt.Errorf("unknown variable %q", t.Var)
			}
			e.Add(t.Coef, v)
		}
		return e, nil
	}
	obj, err := expr(doc.Objective.Terms)
	if err != nil {
		return nil, err
	}
	obj.AddConstant(doc.Objective.Constant)
	m.SetObjective(obj)
	for _, c := range doc.Constraints {
		lhs, err := expr(c.Terms)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.Name, err)
		}
		rel := milp.LessEqual
		if c.Rel == milp.Equal.String() {
			rel = milp.Equal
		}
		m.AddConstraint(c.Name, lhs, rel, milp.Const(c.RHS))
	}
	return m, nil
}

// Solution is the raw engine output keyed by variable name.
type Solution struct {
	Batch     int                `json:"batch"`
	Status    string             `json:"status"`
	Objective float64            `json:"objective"`
	RunTimeMs int64              `json:"runTimeMs"`
	UsedArcs  []string           `json:"usedArcs,omitempty"`
	Values    map[string]float64 `json:"values,omitempty"`
}

func EncodeSolution(batch int, m *milp.Model, res *milp.Result) Solution {
	s := Solution{Batch: batch, Status: res.Status.String(), Objective: res.Objective, RunTimeMs: res.RunTime.Milliseconds()}
	if !res.Status.HasValues() {
		return s
	}
	s.Values = m.Named(res.Values)
	for i, v := range m.Variables() {
		if v.Kind == milp.Binary && res.Values[i] > 0.5 {
			s.UsedArcs = append(s.UsedArcs, v.Name)
		}
	}
	sort.Strings(s.UsedArcs)
	return s
}

func (d *Dir) WriteSolution(batch int, m *milp.Model, res *milp.Result) error {
	b, err := json.MarshalIndent(EncodeSolution(batch, m, res), "", "  ")
	if err != nil {
		return fmt.Errorf("encode solution batch %d: %w", batch, err)
	}
	return os.WriteFile(d.SolutionPath(batch), b, 0o644)
}

func ReadSolution(path string) (*Solution, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Solution
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode solution %s: %w", path, err)
	}
	return &s, nil
}

// Result maps the stored values back onto m's variables.
func (s *Solution) Result(m *milp.Model) (*milp.Result, error) {
	res := &milp.Result{Status: milp.ParseStatus(s.Status), Objective: s.Objective}
	if !res.Status.HasValues() {
		return res, nil
	}
	values, err := m.Values(s.Values)
	if err != nil {
		return nil, fmt.Errorf("solution batch %d: %w", s.Batch, err)
	}
	res.Values = values
	return res, nil
}
