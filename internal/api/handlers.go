package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dashroute/internal/ingest"
	"dashroute/internal/metrics"
	"dashroute/internal/model"
	"dashroute/internal/pipeline"
)

// PlansHandler handles POST/GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createPlan(w, r)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
				return
			}
			limit = n
		}
		items, next, err := s.Store.ListPlans(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// createPlan accepts a delivery CSV and solves it in the background. The
// response carries the pending plan; progress is on /v1/plans/{id}/events.
func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan submissions are rate limited", r.URL.Path)
		return
	}
	if s.Config.HTTP.MaxBodyMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Config.HTTP.MaxBodyMB<<20)
	}
	ds, err := ingest.ReadDeliveries(r.Body, s.Runner.Epoch)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "Body too large", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid deliveries", err.Error(), r.URL.Path)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create plan failed", err.Error(), r.URL.Path)
		return
	}
	plan := model.Plan{ID: id.String(), Status: model.PlanPending, CreatedAt: time.Now().UTC(), Deliveries: len(ds)}
	if err := s.Store.CreatePlan(r.Context(), plan); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create plan failed", err.Error(), r.URL.Path)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(plan, ds)
	}()
	w.Header().Set("Location", "/v1/plans/"+plan.ID)
	writeJSON(w, http.StatusAccepted, plan)
}

// execute runs the pipeline for a plan and records the outcome. Store writes
// outlive server shutdown so a cancelled plan is still marked failed.
func (s *Server) execute(plan model.Plan, ds []model.Delivery) {
	lg := log.With().Str("plan", plan.ID).Logger()
	storeCtx := context.WithoutCancel(s.ctx)

	plan.Status = model.PlanRunning
	if err := s.Store.UpdatePlan(storeCtx, plan); err != nil {
		lg.Error().Err(err).Msg("mark plan running")
	}
	s.Broker.Publish(plan.ID, Event{Type: EventPlanStarted, Data: map[string]any{"deliveries": len(ds)}})

	rn := *s.Runner
	rn.Observer = func(rep model.BatchReport) {
		s.Broker.Publish(plan.ID, Event{Type: EventBatchFinished, Data: map[string]any{"batch": rep}})
	}
	res, err := rn.Run(s.ctx, ds)
	doneAt := time.Now().UTC()
	plan.FinishedAt = &doneAt
	if err != nil {
		plan.Status = model.PlanFailed
		plan.Error = err.Error()
	} else {
		plan.Batches = res.Reports
		plan.Status = planStatus(res)
		ev := pipeline.Evaluate(res.Rows, ds, rn.Travel, rn.Epoch)
		plan.Evaluation = &ev
		if err := s.Store.SaveRoutePoints(storeCtx, plan.ID, res.Rows); err != nil {
			lg.Error().Err(err).Msg("save route points")
			plan.Status = model.PlanFailed
			plan.Error = err.Error()
		}
	}
	if err := s.Store.UpdatePlan(storeCtx, plan); err != nil {
		lg.Error().Err(err).Msg("record plan outcome")
	}
	metrics.PlansTotal.WithLabelValues(string(plan.Status)).Inc()
	lg.Info().Str("status", string(plan.Status)).Int("batches", len(plan.Batches)).Msg("plan finished")
	s.Broker.Publish(plan.ID, Event{Type: EventPlanFinished, Data: map[string]any{"status": plan.Status, "error": plan.Error}})
}

func planStatus(res *pipeline.Result) model.PlanStatus {
	switch {
	case !res.Failed():
		return model.PlanSucceeded
	case len(res.Failures) == len(res.Reports):
		return model.PlanFailed
	default:
		return model.PlanPartial
	}
}

func finished(st model.PlanStatus) bool {
	return st == model.PlanSucceeded || st == model.PlanPartial || st == model.PlanFailed
}

// PlanByIDHandler handles /v1/plans/{id}, /v1/plans/{id}/routes.csv and
// /v1/plans/{id}/events
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch sub {
	case "":
		plan, err := s.Store.GetPlan(r.Context(), id)
		if err != nil {
			s.storeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case "routes.csv":
		plan, err := s.Store.GetPlan(r.Context(), id)
		if err != nil {
			s.storeProblem(w, r, err)
			return
		}
		if !finished(plan.Status) {
			writeProblem(w, http.StatusConflict, "Plan not finished", "status is "+string(plan.Status), r.URL.Path)
			return
		}
		rows, err := s.Store.ListRoutePoints(r.Context(), id)
		if err != nil {
			s.storeProblem(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="routes-`+id+`.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := ingest.WriteRoutePoints(w, rows); err != nil {
			log.Warn().Err(err).Str("plan", id).Msg("write routes csv")
		}
	case "events":
		s.planEvents(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check connectivity of the Postgres store and redis broker when in use
	type pinger interface{ Ping(ctx context.Context) error }
	for _, dep := range []any{s.Store, s.Broker} {
		p, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
