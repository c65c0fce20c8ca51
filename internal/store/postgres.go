package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"revlog/internal/cvrp"
	"revlog/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// EnsureSchema creates the tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id uuid PRIMARY KEY,
			name text,
			capacity int NOT NULL,
			alpha double precision,
			beta double precision,
			locations jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS solves (
			id uuid PRIMARY KEY,
			instance_id uuid NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			variant text NOT NULL,
			status text NOT NULL,
			cost double precision,
			emissions double precision,
			routes jsonb,
			stats jsonb,
			error text,
			created_at timestamptz NOT NULL DEFAULT now(),
			finished_at timestamptz
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id uuid PRIMARY KEY,
			url text NOT NULL,
			secret text NOT NULL,
			events jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id uuid PRIMARY KEY,
			subscription_id uuid NOT NULL,
			event_type text NOT NULL,
			url text NOT NULL,
			secret text NOT NULL,
			payload bytea NOT NULL,
			status text NOT NULL,
			attempts int NOT NULL DEFAULT 0,
			next_attempt_at timestamptz NOT NULL DEFAULT now(),
			last_error text,
			response_code int,
			latency_ms int,
			delivered_at timestamptz
		)`,
		`CREATE TABLE IF NOT EXISTS solver_config (
			id int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			cfg jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS solve_metrics (
			instance_id uuid NOT NULL,
			variant text NOT NULL,
			metrics jsonb NOT NULL,
			PRIMARY KEY (instance_id, variant)
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// pgLocation is the jsonb row shape of one instance location.
type pgLocation struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand int     `json:"demand"`
}

func (p *Postgres) CreateInstance(ctx context.Context, name string, in *cvrp.Instance) (model.InstanceOut, error) {
	id := uuid.New().String()
	locs := make([]pgLocation, len(in.X))
	for i := range in.X {
		locs[i] = pgLocation{X: in.X[i], Y: in.Y[i], Demand: in.Demand[i]}
	}
	blob, err := json.Marshal(locs)
	if err != nil {
		return model.InstanceOut{}, err
	}
	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `INSERT INTO instances (id, name, capacity, alpha, beta, locations, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, nullIfEmpty(name), in.Capacity, in.Alpha, in.Beta, blob, now)
	if err != nil {
		return model.InstanceOut{}, err
	}
	return model.InstanceOut{
		ID: id, Name: name, NumShops: in.NumShops(), Capacity: in.Capacity,
		Alpha: in.Alpha, Beta: in.Beta, CreatedAt: now.Format(time.RFC3339),
	}, nil
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (*cvrp.Instance, model.InstanceOut, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, name, capacity, alpha, beta, locations, created_at FROM instances WHERE id=$1`, id)
	var out model.InstanceOut
	var name sql.NullString
	var alpha, beta sql.NullFloat64
	var blob []byte
	var created time.Time
	if err := row.Scan(&out.ID, &name, &out.Capacity, &alpha, &beta, &blob, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out, ErrNotFound
		}
		return nil, out, err
	}
	out.Name = name.String
	out.CreatedAt = created.UTC().Format(time.RFC3339)

	var locs []pgLocation
	if err := json.Unmarshal(blob, &locs); err != nil {
		return nil, out, err
	}
	x := make([]float64, len(locs))
	y := make([]float64, len(locs))
	demand := make([]int, len(locs))
	for i, l := range locs {
		x[i], y[i], demand[i] = l.X, l.Y, l.Demand
	}
	// Built without the feasibility check so stored instances always load;
	// solvers re-validate before running.
	in := &cvrp.Instance{X: x, Y: y, Demand: demand, Capacity: out.Capacity, Cost: cvrp.CostMatrix(x, y)}
	if alpha.Valid {
		v := alpha.Float64
		in.Alpha = &v
		out.Alpha = &v
	}
	if beta.Valid {
		v := beta.Float64
		in.Beta = &v
		out.Beta = &v
	}
	out.NumShops = in.NumShops()
	return in, out, nil
}

func (p *Postgres) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, capacity, alpha, beta, jsonb_array_length(locations), created_at FROM instances WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, capacity, alpha, beta, jsonb_array_length(locations), created_at FROM instances ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := []model.InstanceOut{}
	var last string
	for rows.Next() {
		var o model.InstanceOut
		var name sql.NullString
		var alpha, beta sql.NullFloat64
		var numLocs int
		var created time.Time
		if err := rows.Scan(&o.ID, &name, &o.Capacity, &alpha, &beta, &numLocs, &created); err != nil {
			return nil, "", err
		}
		o.Name = name.String
		o.NumShops = numLocs - 1
		if alpha.Valid {
			v := alpha.Float64
			o.Alpha = &v
		}
		if beta.Valid {
			v := beta.Float64
			o.Beta = &v
		}
		o.CreatedAt = created.UTC().Format(time.RFC3339)
		out = append(out, o)
		last = o.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteInstance(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM instances WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateSolve(ctx context.Context, instanceID, variant string) (model.SolveOut, error) {
	var exists string
	err := p.db.QueryRowContext(ctx, `SELECT id::text FROM instances WHERE id=$1`, instanceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolveOut{}, ErrNotFound
	}
	if err != nil {
		return model.SolveOut{}, err
	}
	s := model.SolveOut{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		Variant:    variant,
		Status:     SolvePending,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solves (id, instance_id, variant, status) VALUES ($1,$2,$3,$4)`,
		s.ID, instanceID, variant, s.Status)
	if err != nil {
		return model.SolveOut{}, err
	}
	return s, nil
}

func (p *Postgres) SetSolveStatus(ctx context.Context, id, status string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE solves SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FinishSolve(ctx context.Context, id string, out model.SolveOut) error {
	routes, err := json.Marshal(out.Routes)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(out.Stats)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE solves SET status=$1, cost=$2, emissions=$3, routes=$4, stats=$5, error=$6, finished_at=now() WHERE id=$7`,
		out.Status, out.Cost, out.Emissions, routes, stats, nullIfEmpty(out.Error), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (model.SolveOut, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, instance_id::text, variant, status, cost, emissions, routes, stats, error, created_at, finished_at FROM solves WHERE id=$1`, id)
	return scanSolve(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSolve(row rowScanner) (model.SolveOut, error) {
	var s model.SolveOut
	var cost, emissions sql.NullFloat64
	var routes, stats []byte
	var errMsg sql.NullString
	var created time.Time
	var finished sql.NullTime
	if err := row.Scan(&s.ID, &s.InstanceID, &s.Variant, &s.Status, &cost, &emissions, &routes, &stats, &errMsg, &created, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.Cost = cost.Float64
	s.Emissions = emissions.Float64
	if len(routes) > 0 {
		_ = json.Unmarshal(routes, &s.Routes)
	}
	if len(stats) > 0 {
		_ = json.Unmarshal(stats, &s.Stats)
	}
	s.Error = errMsg.String
	s.CreatedAt = created.UTC().Format(time.RFC3339)
	if finished.Valid {
		s.FinishedAt = finished.Time.UTC().Format(time.RFC3339)
	}
	return s, nil
}

func (p *Postgres) ListSolves(ctx context.Context, instanceID, cursor string, limit int) ([]model.SolveOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, instance_id::text, variant, status, cost, emissions, routes, stats, error, created_at, finished_at FROM solves`
	args := []any{}
	where := ""
	if instanceID != "" {
		args = append(args, instanceID)
		where = ` WHERE instance_id=$1`
	}
	if cursor != "" {
		args = append(args, cursor)
		if where == "" {
			where = ` WHERE id::text > $1`
		} else {
			where += ` AND id::text > $2`
		}
	}
	args = append(args, limit)
	q += where + ` ORDER BY id LIMIT $` + itoa(len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := []model.SolveOut{}
	var last string
	for rows.Next() {
		s, err := scanSolve(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	events, err := json.Marshal(req.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, secret, events) VALUES ($1,$2,$3,$4)`,
		id, req.URL, req.Secret, events)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events ? $1`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(row rowScanner) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := row.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
		return s, err
	}
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, subscription_id::text, event_type, url, secret, payload, status, attempts FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now() WHERE id=$3`,
			responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4 WHERE id=$5`,
		lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3 WHERE id=$4`,
		lastError, responseCode, latencyMs, id)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries`
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, status)
	}
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url string
		var attempts int
		var lastError sql.NullString
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastError); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastError.String != "" {
			item["lastError"] = lastError.String
		}
		out = append(out, item)
	}
	return out, "", rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSolverConfig(ctx context.Context) (*model.SolverConfig, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `SELECT cfg FROM solver_config WHERE id=1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.SolverConfig
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, cfg model.SolverConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solver_config (id, cfg) VALUES (1, $1) ON CONFLICT (id) DO UPDATE SET cfg=EXCLUDED.cfg`, blob)
	return err
}

func (p *Postgres) SaveSolveMetrics(ctx context.Context, instanceID, variant string, metrics map[string]any) error {
	blob, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solve_metrics (instance_id, variant, metrics) VALUES ($1,$2,$3) ON CONFLICT (instance_id, variant) DO UPDATE SET metrics=EXCLUDED.metrics`,
		instanceID, variant, blob)
	return err
}

func (p *Postgres) ListSolveMetrics(ctx context.Context, instanceID, variant string) ([]map[string]any, error) {
	q := `SELECT variant, metrics FROM solve_metrics WHERE instance_id=$1`
	args := []any{instanceID}
	if variant != "" {
		q += ` AND variant=$2`
		args = append(args, variant)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var v string
		var blob []byte
		if err := rows.Scan(&v, &blob); err != nil {
			return nil, err
		}
		m := map[string]any{}
		_ = json.Unmarshal(blob, &m)
		m["variant"] = v
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func itoa(n int) string { return strconv.Itoa(n) }
