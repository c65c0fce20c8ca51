package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"revlog/internal/model"
	"revlog/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}
type markRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type failRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	body := []byte(`{"id":"evt1"}`)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", EventSolveCompleted, srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventSolveCompleted {
		t.Fatalf("missing type header: %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify: sig=%q body=%q", gotSig, gotBody)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_FailAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "", EventSolveFailed, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
}

func TestPublisherEmitEnqueuesPerSubscription(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://a.example/h", Events: []string{EventSolveCompleted}, Secret: "s1"})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://b.example/h", Events: []string{EventSolveFailed}, Secret: "s2"})

	p := NewPublisher(m)
	p.Emit(ctx, EventSolveCompleted, map[string]any{"solveId": "s-1", "cost": 12.5})

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected one delivery, got %d", len(due))
	}
	var payload struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(due[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Type != EventSolveCompleted || payload.Data["solveId"] != "s-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("attempt 0 should back off 1s")
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("attempt 3 should back off 8s")
	}
	if nextBackoff(100) != 1024*time.Second {
		t.Fatalf("backoff should cap at attempt 10")
	}
}
