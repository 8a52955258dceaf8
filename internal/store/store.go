package store

import (
	"context"
	"errors"

	"dashroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, p model.Plan) error
	UpdatePlan(ctx context.Context, p model.Plan) error
	GetPlan(ctx context.Context, id string) (model.Plan, error)
	ListPlans(ctx context.Context, cursor string, limit int) (items []model.Plan, nextCursor string, err error)

	// Route points of a finished plan, in output order
	SaveRoutePoints(ctx context.Context, planID string, rows []model.RoutePoint) error
	ListRoutePoints(ctx context.Context, planID string) ([]model.RoutePoint, error)
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
