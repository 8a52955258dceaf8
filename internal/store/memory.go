package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"dashroute/internal/model"
)

// Memory is a simple in-memory store used when no database URL is set.
type Memory struct {
	mu     sync.Mutex
	plans  map[string]model.Plan         // id -> plan
	ids    []string                      // sorted plan ids
	points map[string][]model.RoutePoint // plan id -> rows
}

func NewMemory() *Memory {
	return &Memory{
		plans:  map[string]model.Plan{},
		points: map[string][]model.RoutePoint{},
	}
}

func (m *Memory) CreatePlan(ctx context.Context, p model.Plan) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		i := sort.SearchStrings(m.ids, p.ID)
		m.ids = slices.Insert(m.ids, i, p.ID)
	}
	m.plans[p.ID] = clonePlan(p)
	return nil
}

func (m *Memory) UpdatePlan(ctx context.Context, p model.Plan) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		return ErrNotFound
	}
	m.plans[p.ID] = clonePlan(p)
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.Plan{}, ErrNotFound
	}
	return clonePlan(p), nil
}

// ListPlans pages through plans in id order; cursor is the last id seen.
func (m *Memory) ListPlans(ctx context.Context, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	limit = clampLimit(limit)
	start := 0
	if cursor != "" {
		start = sort.Search(len(m.ids), func(i int) bool { return m.ids[i] > cursor })
	}
	out := []model.Plan{}
	for _, id := range m.ids[start:] {
		if len(out) == limit {
			break
		}
		out = append(out, clonePlan(m.plans[id]))
	}
	var next string
	if len(out) == limit && start+limit < len(m.ids) {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SaveRoutePoints(ctx context.Context, planID string, rows []model.RoutePoint) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.plans[planID]; !ok {
		return ErrNotFound
	}
	m.points[planID] = slices.Clone(rows)
	return nil
}

func (m *Memory) ListRoutePoints(ctx context.Context, planID string) ([]model.RoutePoint, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.plans[planID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.points[planID]), nil
}

func clonePlan(p model.Plan) model.Plan {
	p.Batches = slices.Clone(p.Batches)
	if p.Evaluation != nil {
		ev := *p.Evaluation
		ev.Violations = slices.Clone(ev.Violations)
		p.Evaluation = &ev
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		p.FinishedAt = &t
	}
	return p
}
