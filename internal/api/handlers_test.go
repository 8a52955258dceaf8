package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashroute/internal/config"
	"dashroute/internal/model"
	"dashroute/internal/opt/opttest"
	"dashroute/internal/pipeline"
	"dashroute/internal/store"
)

const deliveriesCSV = `delivery_id,created_at,food_ready_time,pickup_lat,pickup_long,dropoff_lat,dropoff_long
101,2/3/15 2:00,2/3/15 2:10,37.7749,-122.4194,37.7800,-122.4150
102,2/3/15 2:01,2/3/15 2:12,37.7760,-122.4180,37.7700,-122.4120
103,2/3/15 2:02,2/3/15 2:15,37.7650,-122.4300,37.7690,-122.4250
`

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Batch.Size = 2
	cfg.HTTP.RateLimit = 0
	for _, fn := range mutate {
		fn(&cfg)
	}
	require.NoError(t, cfg.Validate())
	runner, err := pipeline.NewRunner(cfg, opttest.Solver())
	require.NoError(t, err)
	s := New(cfg, runner, store.NewMemory(), NewBroker())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func submit(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/plans", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getPlan(t *testing.T, ts *httptest.Server, id string) model.Plan {
	t.Helper()
	resp, err := http.Get(ts.URL + "/v1/plans/" + id)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p model.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func waitFinished(t *testing.T, ts *httptest.Server, id string) model.Plan {
	t.Helper()
	var p model.Plan
	require.Eventually(t, func() bool {
		p = getPlan(t, ts, id)
		return finished(p.Status)
	}, 10*time.Second, 20*time.Millisecond)
	return p
}

func TestHealthReady(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 200, rr.Code)
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, 200, rr.Code)
}

func TestPlanLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	resp := submit(t, ts, deliveriesCSV)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created model.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "/v1/plans/"+created.ID, resp.Header.Get("Location"))
	assert.Equal(t, 3, created.Deliveries)

	p := waitFinished(t, ts, created.ID)
	assert.Equal(t, model.PlanSucceeded, p.Status)
	assert.Len(t, p.Batches, 2)
	require.NotNil(t, p.Evaluation)
	assert.True(t, p.Evaluation.OK(), p.Evaluation.Violations)
	require.NotNil(t, p.FinishedAt)

	csvResp, err := http.Get(ts.URL + "/v1/plans/" + created.ID + "/routes.csv")
	require.NoError(t, err)
	defer func() { _ = csvResp.Body.Close() }()
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, "text/csv", csvResp.Header.Get("Content-Type"))
	recs, err := csv.NewReader(csvResp.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Route ID", recs[0][0])
	assert.Len(t, recs, 1+6)

	listResp, err := http.Get(ts.URL + "/v1/plans?limit=10")
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()
	var list struct {
		Items      []model.Plan `json:"items"`
		NextCursor string       `json:"nextCursor"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
	assert.Empty(t, list.NextCursor)
}

func TestCreatePlanRejectsBadCSV(t *testing.T) {
	_, ts := newTestServer(t)
	resp := submit(t, ts, "delivery_id,created_at\n1,2/3/15 2:00\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var prob Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prob))
	assert.Equal(t, "Invalid deliveries", prob.Title)
	assert.Contains(t, prob.Detail, "missing column")
}

func TestCreatePlanRateLimited(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) {
		c.HTTP.RateLimit = 0.001
		c.HTTP.RateBurst = 1
	})
	assert.Equal(t, http.StatusAccepted, submit(t, ts, deliveriesCSV).StatusCode)
	resp := submit(t, ts, deliveriesCSV)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestPlanNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/v1/plans/nope", "/v1/plans/nope/routes.csv", "/v1/plans/nope/events", "/v1/plans/x/unknown"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestRoutesCSVConflictWhilePending(t *testing.T) {
	s, ts := newTestServer(t)
	plan := model.Plan{ID: "0190b5a2-0000-7000-8000-000000000001", Status: model.PlanRunning, CreatedAt: time.Now()}
	require.NoError(t, s.Store.CreatePlan(context.Background(), plan))
	resp, err := http.Get(ts.URL + "/v1/plans/" + plan.ID + "/routes.csv")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestConfigHidesSecrets(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Redis.URL = "redis://:secret@localhost:6379/0" })
	resp, err := http.Get(ts.URL + "/v1/config")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["hasRedis"])
	raw, _ := json.Marshal(body)
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, body, "build")
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	_, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPathLabel(t *testing.T) {
	assert.Equal(t, "/v1/plans", pathLabel("/v1/plans"))
	assert.Equal(t, "/v1/plans/{id}", pathLabel("/v1/plans/abc"))
	assert.Equal(t, "/v1/plans/{id}/events", pathLabel("/v1/plans/abc/events"))
	assert.Equal(t, "/healthz", pathLabel("/healthz"))
}

func TestPlanEventsStream(t *testing.T) {
	s, ts := newTestServer(t)
	plan := model.Plan{ID: "0190b5a2-0000-7000-8000-000000000002", Status: model.PlanRunning, CreatedAt: time.Now()}
	require.NoError(t, s.Store.CreatePlan(context.Background(), plan))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/plans/" + plan.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventPlanSnapshot, evt.Type)

	s.Broker.Publish(plan.ID, Event{Type: EventBatchFinished, Data: map[string]any{"batch": 0}})
	s.Broker.Publish(plan.ID, Event{Type: EventPlanFinished, Data: map[string]any{"status": "succeeded"}})

	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventBatchFinished, evt.Type)
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventPlanFinished, evt.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestPlanEventsFinishedPlanClosesAfterSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	done := time.Now()
	plan := model.Plan{ID: "0190b5a2-0000-7000-8000-000000000003", Status: model.PlanSucceeded, CreatedAt: done, FinishedAt: &done}
	require.NoError(t, s.Store.CreatePlan(context.Background(), plan))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/plans/" + plan.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventPlanSnapshot, evt.Type)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
