package store

import (
	"context"
	"errors"
	"time"

	"revlog/internal/cvrp"
	"revlog/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, name string, in *cvrp.Instance) (model.InstanceOut, error)
	GetInstance(ctx context.Context, id string) (*cvrp.Instance, model.InstanceOut, error)
	ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error)
	DeleteInstance(ctx context.Context, id string) error

	// Solves
	CreateSolve(ctx context.Context, instanceID, variant string) (model.SolveOut, error)
	SetSolveStatus(ctx context.Context, id, status string) error
	FinishSolve(ctx context.Context, id string, out model.SolveOut) error
	GetSolve(ctx context.Context, id string) (model.SolveOut, error)
	ListSolves(ctx context.Context, instanceID, cursor string, limit int) ([]model.SolveOut, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error

	// Solver config
	GetSolverConfig(ctx context.Context) (*model.SolverConfig, error)
	SaveSolverConfig(ctx context.Context, cfg model.SolverConfig) error

	// Solve metrics for admin views
	SaveSolveMetrics(ctx context.Context, instanceID, variant string, metrics map[string]any) error
	ListSolveMetrics(ctx context.Context, instanceID, variant string) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")

// Solve lifecycle states.
const (
	SolvePending   = "pending"
	SolveRunning   = "running"
	SolveCompleted = "completed"
	SolveFailed    = "failed"
	SolveStopped   = "stopped"
)
