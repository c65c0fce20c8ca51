package api

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"revlog/internal/config"
	"revlog/internal/store"
	"revlog/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Broker   EventBroker
	Solver   *SolveManager
	Defaults config.SolverDefaults

	limiter *rate.Limiter
}

// NewServer wires the server from config. With no DATABASE_URL the store is
// in-memory; with no REDIS_URL event fan-out stays process-local.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		broker = rb
	} else {
		broker = NewBroker()
	}

	pub := webhooks.NewPublisher(s)
	srv := &Server{
		Store:    s,
		Pub:      pub,
		Broker:   broker,
		Defaults: cfg.Solver,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
	}
	srv.Solver = NewSolveManager(s, pub, broker)
	return srv, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

// solverDefaults returns the effective defaults: the persisted admin config
// when present, otherwise the boot config.
func (s *Server) solverDefaults(ctx context.Context) config.SolverDefaults {
	d := s.Defaults
	if cfg, err := s.Store.GetSolverConfig(ctx); err == nil && cfg != nil {
		if cfg.Variant != "" {
			d.Variant = cfg.Variant
		}
		if cfg.Iterations > 0 {
			d.Iterations = cfg.Iterations
		}
		if cfg.TimeLimitMs > 0 {
			d.TimeLimitMs = cfg.TimeLimitMs
		}
		if cfg.Alpha > 0 {
			d.Alpha = cfg.Alpha
		}
		if cfg.Beta > 0 {
			d.Beta = cfg.Beta
		}
	}
	return d
}
