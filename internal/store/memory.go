package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"revlog/internal/cvrp"
	"revlog/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	instances map[string]*memInstance
	instOrder []string
	solves    map[string]model.SolveOut
	solveIdx  []string

	subs []model.Subscription

	deliveries    map[string]*memDelivery
	deliveryOrder []string

	solverCfg *model.SolverConfig
	solveMx   map[string][]map[string]any // instanceID -> metric rows
}

type memInstance struct {
	inst *cvrp.Instance
	out  model.InstanceOut
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		instances:  map[string]*memInstance{},
		solves:     map[string]model.SolveOut{},
		deliveries: map[string]*memDelivery{},
		solveMx:    map[string][]map[string]any{},
	}
}

func (m *Memory) CreateInstance(ctx context.Context, name string, in *cvrp.Instance) (model.InstanceOut, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	id := uuid.New().String()
	out := model.InstanceOut{
		ID:        id,
		Name:      name,
		NumShops:  in.NumShops(),
		Capacity:  in.Capacity,
		Alpha:     in.Alpha,
		Beta:      in.Beta,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.instances[id] = &memInstance{inst: in, out: out}
	m.instOrder = append(m.instOrder, id)
	return out, nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (*cvrp.Instance, model.InstanceOut, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	mi, ok := m.instances[id]
	if !ok {
		return nil, model.InstanceOut{}, ErrNotFound
	}
	return mi.inst, mi.out, nil
}

func (m *Memory) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	return pageByID(m.instOrder, cursor, limit, func(id string) model.InstanceOut { return m.instances[id].out })
}

func (m *Memory) DeleteInstance(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return ErrNotFound
	}
	delete(m.instances, id)
	out := make([]string, 0, len(m.instOrder))
	for _, v := range m.instOrder {
		if v != id {
			out = append(out, v)
		}
	}
	m.instOrder = out
	return nil
}

func (m *Memory) CreateSolve(ctx context.Context, instanceID, variant string) (model.SolveOut, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.instances[instanceID]; !ok {
		return model.SolveOut{}, ErrNotFound
	}
	s := model.SolveOut{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		Variant:    variant,
		Status:     SolvePending,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	m.solves[s.ID] = s
	m.solveIdx = append(m.solveIdx, s.ID)
	return s, nil
}

func (m *Memory) SetSolveStatus(ctx context.Context, id, status string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	m.solves[id] = s
	return nil
}

func (m *Memory) FinishSolve(ctx context.Context, id string, out model.SolveOut) error {
	m.mu.Lock(); defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = out.Status
	s.Cost = out.Cost
	s.Emissions = out.Emissions
	s.Routes = out.Routes
	s.Stats = out.Stats
	s.Error = out.Error
	s.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	m.solves[id] = s
	return nil
}

func (m *Memory) GetSolve(ctx context.Context, id string) (model.SolveOut, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok {
		return model.SolveOut{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSolves(ctx context.Context, instanceID, cursor string, limit int) ([]model.SolveOut, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	ids := m.solveIdx
	if instanceID != "" {
		ids = nil
		for _, id := range m.solveIdx {
			if m.solves[id].InstanceID == instanceID {
				ids = append(ids, id)
			}
		}
	}
	return pageByID(ids, cursor, limit, func(id string) model.SolveOut { return m.solves[id] })
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	list := m.subs
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveryOrder = append(m.deliveryOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Attempts++
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) GetSolverConfig(ctx context.Context) (*model.SolverConfig, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if m.solverCfg == nil {
		return nil, nil
	}
	cfg := *m.solverCfg
	return &cfg, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, cfg model.SolverConfig) error {
	m.mu.Lock(); defer m.mu.Unlock()
	m.solverCfg = &cfg
	return nil
}

func (m *Memory) SaveSolveMetrics(ctx context.Context, instanceID, variant string, metrics map[string]any) error {
	m.mu.Lock(); defer m.mu.Unlock()
	items := m.solveMx[instanceID]
	metrics["variant"] = variant
	replaced := false
	for i := range items {
		if items[i]["variant"] == variant {
			items[i] = metrics
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, metrics)
	}
	m.solveMx[instanceID] = items
	return nil
}

func (m *Memory) ListSolveMetrics(ctx context.Context, instanceID, variant string) ([]map[string]any, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	items := m.solveMx[instanceID]
	if variant == "" {
		return append([]map[string]any(nil), items...), nil
	}
	out := []map[string]any{}
	for _, it := range items {
		if it["variant"] == variant {
			out = append(out, it)
		}
	}
	return out, nil
}

// pageByID walks an id slice from the cursor, mapping ids through get.
func pageByID[T any](ids []string, cursor string, limit int, get func(string) T) ([]T, string, error) {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []T{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, get(ids[i]))
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}
