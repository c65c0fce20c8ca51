package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"revlog/internal/config"
	"revlog/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		RateRPS:   1000,
		RateBurst: 1000,
		Solver: config.SolverDefaults{
			Variant:     "ils",
			Iterations:  50,
			TimeLimitMs: 5000,
			Alpha:       0.15,
			Beta:        0.02,
		},
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func createTestInstance(t *testing.T, s *Server) string {
	t.Helper()
	body := []byte(`{"name":"shops","capacity":5,"locations":[{"x":0,"y":0,"demand":0},{"x":10,"y":0,"demand":2},{"x":0,"y":10,"demand":2},{"x":10,"y":10,"demand":2}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create instance: got %d body %s", rr.Code, rr.Body.String())
	}
	var out model.InstanceOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode instance: %v", err)
	}
	return out.ID
}

func startSolve(t *testing.T, s *Server, body string) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("solve: got %d body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		SolveID string `json:"solveId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode solve: %v", err)
	}
	return resp.SolveID
}

func waitForSolve(t *testing.T, s *Server, id string) model.SolveOut {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := httptest.NewRecorder()
		s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+id, nil))
		if rr.Code != 200 {
			t.Fatalf("get solve: %d", rr.Code)
		}
		var out model.SolveOut
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode solve: %v", err)
		}
		if out.Status != "pending" && out.Status != "running" {
			return out
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("solve did not finish in time")
	return model.SolveOut{}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestInstanceLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)

	rr := httptest.NewRecorder()
	s.InstancesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances?limit=5", nil))
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}
	var idx struct {
		Items []model.InstanceOut `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &idx); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(idx.Items) != 1 || idx.Items[0].NumShops != 3 {
		t.Fatalf("unexpected list: %+v", idx.Items)
	}

	rr = httptest.NewRecorder()
	s.InstanceByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances/"+id, nil))
	if rr.Code != 200 {
		t.Fatalf("get: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.InstanceByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/instances/"+id, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.InstanceByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/instances/"+id, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rr.Code)
	}
}

func TestInstanceValidation(t *testing.T) {
	s := newTestServer(t)
	bad := []string{
		`{"capacity":5,"locations":[{"x":0,"y":0,"demand":0}]}`,                            // only depot
		`{"capacity":0,"locations":[{"x":0,"y":0,"demand":0},{"x":1,"y":1,"demand":1}]}`,  // zero capacity
		`{"capacity":5,"locations":[{"x":0,"y":0,"demand":3},{"x":1,"y":1,"demand":1}]}`,  // depot with demand
		`{"capacity":5,"locations":[{"x":0,"y":0,"demand":0},{"x":1,"y":1,"demand":-1}]}`, // negative shop demand
	}
	for i, body := range bad {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/instances", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		s.InstancesHandler(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("case %d: got %d, want 400", i, rr.Code)
		}
	}
}

func TestInstanceOverCapacityStoredButUnsolvable(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"capacity":5,"locations":[{"x":0,"y":0,"demand":0},{"x":3,"y":4,"demand":7}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.InstancesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201", rr.Code)
	}
	var out model.InstanceOut
	_ = json.Unmarshal(rr.Body.Bytes(), &out)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(`{"instanceId":"`+out.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("solve infeasible: got %d, want 422", rr.Code)
	}
}

func TestGenerateInstance(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"name":"gen","numShops":5,"capacity":10,"seed":7}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/instances/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.InstanceGenerateHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("generate: got %d body %s", rr.Code, rr.Body.String())
	}
	var out model.InstanceOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.NumShops != 5 || out.Capacity != 10 {
		t.Fatalf("unexpected instance: %+v", out)
	}
}

func TestSolveLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)
	solveID := startSolve(t, s, `{"instanceId":"`+id+`","iterations":30,"seed":1}`)

	out := waitForSolve(t, s, solveID)
	if out.Status != "completed" {
		t.Fatalf("status: got %s, want completed (err=%s)", out.Status, out.Error)
	}
	if out.Cost <= 0 {
		t.Fatalf("cost should be positive, got %f", out.Cost)
	}
	if out.Emissions <= 0 {
		t.Fatalf("emissions should be positive, got %f", out.Emissions)
	}
	if len(out.Routes) == 0 {
		t.Fatal("no routes in solve result")
	}
	if out.Stats == nil || out.Stats.Iterations != 30 {
		t.Fatalf("unexpected stats: %+v", out.Stats)
	}
	for _, r := range out.Routes {
		if r.Load > r.Capacity {
			t.Fatalf("route %d overloaded: %d > %d", r.RouteID, r.Load, r.Capacity)
		}
	}

	// report
	rr := httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+solveID+"/report", nil))
	if rr.Code != 200 {
		t.Fatalf("report: %d body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "REVERSE LOGISTICS SOLUTION ANALYSIS") {
		t.Fatalf("report missing header: %s", rr.Body.String())
	}

	// arcs.csv
	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+solveID+"/arcs.csv", nil))
	if rr.Code != 200 {
		t.Fatalf("arcs: %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "from,to\n") {
		t.Fatalf("arcs missing header: %s", rr.Body.String())
	}

	// list solves filtered by instance
	rr = httptest.NewRecorder()
	s.SolvesIndexHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves?instanceId="+id, nil))
	if rr.Code != 200 {
		t.Fatalf("list solves: %d", rr.Code)
	}
	var idx struct {
		Items []model.SolveOut `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &idx); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(idx.Items) != 1 {
		t.Fatalf("expected 1 solve, got %d", len(idx.Items))
	}
}

func TestSolveUnknownInstance(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(`{"instanceId":"inst_missing"}`))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
}

func TestSolveVariantHandling(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(`{"instanceId":"`+id+`","variant":"exact"}`))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("exact variant: got %d, want 501", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(`{"instanceId":"`+id+`","variant":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown variant: got %d, want 400", rr.Code)
	}

	solveID := startSolve(t, s, `{"instanceId":"`+id+`","variant":"greedy"}`)
	out := waitForSolve(t, s, solveID)
	if out.Status != "completed" {
		t.Fatalf("greedy status: %s", out.Status)
	}
	if out.Stats == nil || out.Stats.Iterations != 1 {
		t.Fatalf("greedy should run one pass: %+v", out.Stats)
	}
}

func TestSolveForbiddenRole(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader(`{"instanceId":"`+id+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", rr.Code)
	}
}

func TestStopFinishedSolveConflicts(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)
	solveID := startSolve(t, s, `{"instanceId":"`+id+`","iterations":10}`)
	waitForSolve(t, s, solveID)

	rr := httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solves/"+solveID+"/stop", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("stop finished: got %d, want 409", rr.Code)
	}
}

func TestSolveCompletedEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)
	subBody := []byte(`{"url":"https://example.invalid/hook","events":["solve.completed"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	req.Header.Set("Content-Type", "application/json")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "shh") {
		t.Fatal("secret leaked in subscription response")
	}

	id := createTestInstance(t, s)
	solveID := startSolve(t, s, `{"instanceId":"`+id+`","iterations":10}`)
	out := waitForSolve(t, s, solveID)
	if out.Status != "completed" {
		t.Fatalf("status: %s", out.Status)
	}

	// the enqueue happens moments after the solve turns terminal, on the
	// finishing goroutine
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rr = httptest.NewRecorder()
		s.WebhookDeliveriesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil))
		if rr.Code != 200 {
			t.Fatalf("deliveries: %d", rr.Code)
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil {
			t.Fatalf("decode deliveries: %v", err)
		}
		if len(dres.Items) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(dres.Items) == 0 {
		t.Fatal("expected at least one delivery")
	}
}

func TestAdminSolverConfig(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", strings.NewReader(`{"config":{"variant":"greedy","iterations":25}}`))
	req.Header.Set("X-Role", "viewer")
	s.AdminSolverConfigHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer put: got %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", strings.NewReader(`{"config":{"variant":"greedy","iterations":25}}`))
	s.AdminSolverConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("admin put: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SolverConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solver/config", nil))
	if rr.Code != 200 {
		t.Fatalf("get config: %d", rr.Code)
	}
	var resp struct {
		Defaults model.SolverConfig `json:"defaults"`
		Variants []string           `json:"variants"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Defaults.Variant != "greedy" || resp.Defaults.Iterations != 25 {
		t.Fatalf("persisted config not applied: %+v", resp.Defaults)
	}
	if len(resp.Variants) == 0 {
		t.Fatal("variants should be listed")
	}
}

func TestAdminSolveMetrics(t *testing.T) {
	s := newTestServer(t)
	id := createTestInstance(t, s)
	solveID := startSolve(t, s, `{"instanceId":"`+id+`","iterations":10}`)
	waitForSolve(t, s, solveID)

	rr := httptest.NewRecorder()
	s.AdminSolveMetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/solve-metrics?instanceId="+id, nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: %d", rr.Code)
	}
	var resp struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 metrics row, got %d", len(resp.Items))
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int)           { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush()                      {}

func TestSolveEventsSSE(t *testing.T) {
	s := newTestServer(t)
	solveID := "sv_stream_test"

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/solves/"+solveID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.SolveByIDHandler(rec, sseReq)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(solveID, SSEEvent{Type: "progress", Data: map[string]any{"solveId": solveID, "iteration": 3}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.buf.Bytes(), []byte("event: progress")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.buf.Bytes(), []byte("event: progress")) {
		t.Fatalf("SSE did not contain progress event. Body: %s", rec.buf.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
