package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashroute/internal/model"
)

func newPlan(t *testing.T) model.Plan {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return model.Plan{ID: id.String(), Status: model.PlanPending, CreatedAt: time.Now().UTC().Truncate(time.Millisecond), Deliveries: 3}
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	p := newPlan(t)
	require.NoError(t, s.CreatePlan(ctx, p))
	got, err := s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPending, got.Status)
	assert.Equal(t, 3, got.Deliveries)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Evaluation)

	done := time.Now().UTC().Truncate(time.Millisecond)
	p.Status = model.PlanPartial
	p.FinishedAt = &done
	p.Batches = []model.BatchReport{
		{Index: 0, Deliveries: 2, Dashers: 2, Status: "optimal", Optimal: true, Objective: 812, Routes: 1},
		{Index: 1, Deliveries: 1, Dashers: 1, Status: "infeasible", Error: "batch 1: infeasible"},
	}
	p.Evaluation = &model.Evaluation{Deliveries: 3, Routes: 1, AvgDeliveryMinutes: 14.5, Efficiency: 2.1, Violations: []string{"delivery 3 is not fully routed"}}
	require.NoError(t, s.UpdatePlan(ctx, p))

	got, err = s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPartial, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, done.Equal(*got.FinishedAt))
	assert.Equal(t, p.Batches, got.Batches)
	assert.Equal(t, p.Evaluation, got.Evaluation)

	rows := []model.RoutePoint{
		{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: 1422929400},
		{RouteID: 0, PointIndex: 1, DeliveryID: 2, Type: model.Pickup, Time: 1422929500},
		{RouteID: 0, PointIndex: 2, DeliveryID: 1, Type: model.DropOff, Time: 1422929700},
		{RouteID: 0, PointIndex: 3, DeliveryID: 2, Type: model.DropOff, Time: 1422929800},
	}
	require.NoError(t, s.SaveRoutePoints(ctx, p.ID, rows))
	back, err := s.ListRoutePoints(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, back)
	require.NoError(t, s.SaveRoutePoints(ctx, p.ID, rows[:2]))
	back, err = s.ListRoutePoints(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, back, 2)

	missing := newPlan(t)
	_, err = s.GetPlan(ctx, missing.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdatePlan(ctx, missing), ErrNotFound)
	assert.ErrorIs(t, s.SaveRoutePoints(ctx, missing.ID, rows), ErrNotFound)
	_, err = s.ListRoutePoints(ctx, missing.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Paging
	ids := []string{p.ID}
	for i := 0; i < 4; i++ {
		q := newPlan(t)
		require.NoError(t, s.CreatePlan(ctx, q))
		ids = append(ids, q.ID)
	}
	var seen []string
	cursor := ""
	for {
		page, next, err := s.ListPlans(ctx, cursor, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), 2)
		for _, pl := range page {
			seen = append(seen, pl.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, ids, seen)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newPlan(t)
	p.Batches = []model.BatchReport{{Index: 0, Status: "optimal"}}
	require.NoError(t, m.CreatePlan(ctx, p))

	got, err := m.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	got.Batches[0].Status = "tampered"

	again, err := m.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "optimal", again.Batches[0].Status)
}
