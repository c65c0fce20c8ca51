package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"revlog/internal/cvrp"
	"revlog/internal/dataset"
	"revlog/internal/model"
	"revlog/internal/report"
	"revlog/internal/store"
)

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.InstanceIn
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateInstanceIn(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		in := instanceFromIn(&req)
		out, err := s.Store.CreateInstance(r.Context(), req.Name, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListInstances(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InstanceGenerateHandler handles POST /v1/instances/generate
func (s *Server) InstanceGenerateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateGenerateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid generate request", err.Error(), r.URL.Path)
		return
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	in, err := dataset.Generate(req.NumShops, req.Capacity, seed)
	if err != nil {
		if errors.Is(err, cvrp.ErrDemandExceedsCapacity) {
			writeProblem(w, http.StatusUnprocessableEntity, "Infeasible instance", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Generate failed", err.Error(), r.URL.Path)
		return
	}
	in.Alpha, in.Beta = req.Alpha, req.Beta
	out, err := s.Store.CreateInstance(r.Context(), req.Name, in)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// InstanceByIDHandler handles GET/DELETE /v1/instances/{id}
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		_, out, err := s.Store.GetInstance(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodDelete:
		p := s.getPrincipal(r)
		if !p.CanSolve() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "operator or admin required", r.URL.Path)
			return
		}
		if err := s.Store.DeleteInstance(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Instance not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Delete failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "solve request rate exceeded", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}

	stored, _, err := s.Store.GetInstance(r.Context(), req.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	// copy before applying per-solve coefficients; the stored instance is
	// shared across concurrent solves
	ic := *stored
	inst := &ic

	defaults := s.solverDefaults(r.Context())
	variant := req.Variant
	if variant == "" {
		variant = defaults.Variant
	}
	if req.Alpha != nil {
		inst.Alpha = req.Alpha
	}
	if req.Beta != nil {
		inst.Beta = req.Beta
	}
	if inst.Alpha == nil {
		inst.Alpha = &defaults.Alpha
	}
	if inst.Beta == nil {
		inst.Beta = &defaults.Beta
	}
	inst.Method = variant

	v, err := cvrp.NewVariant(variant, inst)
	if err != nil {
		if errors.Is(err, cvrp.ErrVariantUnavailable) {
			writeProblem(w, http.StatusNotImplemented, "Variant unavailable", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid variant", err.Error(), r.URL.Path)
		return
	}
	if err := v.Build(); err != nil {
		if errors.Is(err, cvrp.ErrDemandExceedsCapacity) {
			writeProblem(w, http.StatusUnprocessableEntity, "Infeasible instance", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
		return
	}

	solve, err := s.Store.CreateSolve(r.Context(), req.InstanceID, variant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create solve failed", err.Error(), r.URL.Path)
		return
	}

	params := cvrp.Params{Seed: req.Seed, Verbose: req.Verbose, Iterations: defaults.Iterations}
	if req.Iterations > 0 {
		params.Iterations = req.Iterations
	}
	params.TimeLimit = time.Duration(defaults.TimeLimitMs) * time.Millisecond
	if req.TimeLimitMs > 0 {
		params.TimeLimit = time.Duration(req.TimeLimitMs) * time.Millisecond
	}
	s.Solver.Start(solve.ID, v, inst, params)

	writeJSON(w, http.StatusAccepted, map[string]any{"solveId": solve.ID, "status": store.SolvePending})
}

// SolvesIndexHandler handles GET /v1/solves
func (s *Server) SolvesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	instanceID := r.URL.Query().Get("instanceId")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListSolves(r.Context(), instanceID, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// SolveByIDHandler handles /v1/solves/{id} and its sub-resources:
// POST {id}/stop, GET {id}/events/stream, GET {id}/report, GET {id}/arcs.csv
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamSolveEvents(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "stop" {
		s.stopSolve(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "report" {
		s.solveReport(w, r, id, false)
		return
	}
	if len(parts) > 1 && parts[1] == "arcs.csv" {
		s.solveReport(w, r, id, true)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	solve, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Solve not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, solve)
}

func (s *Server) stopSolve(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator or admin required", r.URL.Path)
		return
	}
	solve, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Solve not found", err.Error(), r.URL.Path)
		return
	}
	if solve.Status != store.SolvePending && solve.Status != store.SolveRunning {
		writeProblem(w, http.StatusConflict, "Solve already finished", "status is "+solve.Status, r.URL.Path)
		return
	}
	if !s.Solver.Stop(id) {
		writeProblem(w, http.StatusConflict, "Solve not running", "no running task for solve on this replica", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"solveId": id, "status": "stopping"})
}

func (s *Server) streamSolveEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

func (s *Server) solveReport(w http.ResponseWriter, r *http.Request, id string, asCSV bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	solve, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Solve not found", err.Error(), r.URL.Path)
		return
	}
	if solve.Status != store.SolveCompleted && solve.Status != store.SolveStopped {
		writeProblem(w, http.StatusConflict, "Solve has no solution", "status is "+solve.Status, r.URL.Path)
		return
	}
	stored, _, err := s.Store.GetInstance(r.Context(), solve.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	ic := *stored
	inst := &ic
	inst.Method = solve.Variant

	rs := cvrp.RouteSet{}
	for _, rt := range solve.Routes {
		rs[rt.RouteID] = rt.Sequence
	}
	sol := cvrp.FromRoutes(inst, rs)

	if asCSV {
		w.Header().Set("Content-Type", "text/csv")
		if err := report.WriteArcsCSV(w, sol); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Report failed", err.Error(), r.URL.Path)
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.WriteText(w, inst, sol, time.Now().UTC()); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Report failed", err.Error(), r.URL.Path)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SolverConfigHandler returns the effective solver defaults.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d := s.solverDefaults(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"defaults": model.SolverConfig{
		Variant:     d.Variant,
		Iterations:  d.Iterations,
		TimeLimitMs: d.TimeLimitMs,
		Alpha:       d.Alpha,
		Beta:        d.Beta,
	}, "variants": cvrp.Variants()})
}

// AdminSolverConfigHandler gets or replaces the persisted solver defaults.
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetSolverConfig(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load failed", err.Error(), r.URL.Path)
			return
		}
		if cfg == nil {
			cfg = &model.SolverConfig{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config *model.SolverConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AdminSolveMetricsHandler handles GET /v1/admin/solve-metrics
func (s *Server) AdminSolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	instanceID := r.URL.Query().Get("instanceId")
	if instanceID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing instanceId", "", r.URL.Path)
		return
	}
	items, err := s.Store.ListSolveMetrics(r.Context(), instanceID, r.URL.Query().Get("variant"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "retry" || r.Method != http.MethodPost {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), parts[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.Store.(*store.Postgres); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func instanceFromIn(req *model.InstanceIn) *cvrp.Instance {
	n := len(req.Locations)
	x := make([]float64, n)
	y := make([]float64, n)
	demand := make([]int, n)
	for i, loc := range req.Locations {
		x[i], y[i], demand[i] = loc.X, loc.Y, loc.Demand
	}
	return &cvrp.Instance{
		X: x, Y: y, Demand: demand,
		Capacity: req.Capacity,
		Cost:     cvrp.CostMatrix(x, y),
		Alpha:    req.Alpha,
		Beta:     req.Beta,
	}
}
