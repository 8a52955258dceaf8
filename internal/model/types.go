package model

import "time"

// Core domain types shared by the planner, store and API.

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Delivery is one order as read from the input. Times are seconds relative to
// the configured reference epoch.
type Delivery struct {
	ID            int64    `json:"id"`
	CreatedAt     int64    `json:"createdAt"`
	FoodReadyTime int64    `json:"foodReadyTime"`
	Pickup        GeoPoint `json:"pickup"`
	Dropoff       GeoPoint `json:"dropoff"`
	RegionID      int      `json:"regionId,omitempty"`
}

type StopType string

const (
	Pickup  StopType = "Pickup"
	DropOff StopType = "DropOff"
)

// RoutePoint is one output row. Time is unix seconds.
type RoutePoint struct {
	RouteID    int      `json:"routeId"`
	PointIndex int      `json:"pointIndex"`
	DeliveryID int64    `json:"deliveryId"`
	Type       StopType `json:"type"`
	Time       int64    `json:"time"`
}

// BatchReport summarizes the outcome of solving one batch.
type BatchReport struct {
	Index       int     `json:"index"`
	Deliveries  int     `json:"deliveries"`
	Dashers     int     `json:"dashers"`
	Variables   int     `json:"variables"`
	Constraints int     `json:"constraints"`
	Status      string  `json:"status"`
	Optimal     bool    `json:"optimal"`
	Objective   float64 `json:"objective"`
	SolveMs     int64   `json:"solveMs"`
	Routes      int     `json:"routes"`
	Error       string  `json:"error,omitempty"`
}

func (r BatchReport) Failed() bool { return r.Error != "" }

type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanSucceeded PlanStatus = "succeeded"
	PlanPartial   PlanStatus = "partial"
	PlanFailed    PlanStatus = "failed"
)

// Evaluation mirrors the offline solution checker: hard violations plus the
// two headline numbers used to compare plans.
type Evaluation struct {
	Deliveries         int      `json:"deliveries"`
	Routes             int      `json:"routes"`
	AvgDeliveryMinutes float64  `json:"avgDeliveryMinutes"`
	Efficiency         float64  `json:"efficiency"`
	Violations         []string `json:"violations,omitempty"`
}

func (e Evaluation) OK() bool { return len(e.Violations) == 0 }

type Plan struct {
	ID         string        `json:"id"`
	Status     PlanStatus    `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Deliveries int           `json:"deliveries"`
	Batches    []BatchReport `json:"batches"`
	Evaluation *Evaluation   `json:"evaluation,omitempty"`
	Error      string        `json:"error,omitempty"`
}
