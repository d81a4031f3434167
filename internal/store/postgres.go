package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "intelliload/internal/model"
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

// MigrateDir applies *.sql files from dir in lexical order. Dev helper; a
// real deployment would use a migration tool.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return err
    }
    var files []string
    for _, e := range entries {
        if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
            files = append(files, filepath.Join(dir, e.Name()))
        }
    }
    sort.Strings(files)
    for _, f := range files {
        sqlBytes, err := os.ReadFile(f)
        if err != nil { return err }
        if _, err := p.db.Exec(string(sqlBytes)); err != nil { return err }
    }
    return nil
}

func (p *Postgres) CreateDataset(ctx context.Context, tenantID string, in model.DatasetIn) (model.Dataset, error) {
    id := uuid.New().String()
    frame, err := json.Marshal(in.Frame)
    if err != nil { return model.Dataset{}, err }
    var createdAt time.Time
    err = p.db.QueryRowContext(ctx, `INSERT INTO datasets (id, tenant_id, name, frame, created_at)
        VALUES ($1,$2,$3,$4,now()) RETURNING created_at`, id, tenantID, in.Name, frame).Scan(&createdAt)
    if err != nil { return model.Dataset{}, err }
    return model.Dataset{ID: id, TenantID: tenantID, Name: in.Name, Frame: in.Frame, CreatedAt: createdAt.UTC().Format(time.RFC3339)}, nil
}

func (p *Postgres) GetDataset(ctx context.Context, tenantID, id string) (model.Dataset, error) {
    var ds model.Dataset
    var frame []byte
    var createdAt time.Time
    err := p.db.QueryRowContext(ctx, `SELECT id::text, name, frame, created_at FROM datasets WHERE tenant_id=$1 AND id=$2`, tenantID, id).
        Scan(&ds.ID, &ds.Name, &frame, &createdAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return ds, ErrNotFound }
        return ds, err
    }
    ds.TenantID = tenantID
    ds.CreatedAt = createdAt.UTC().Format(time.RFC3339)
    if err := json.Unmarshal(frame, &ds.Frame); err != nil { return ds, err }
    return ds, nil
}

func (p *Postgres) ListDatasets(ctx context.Context, tenantID, cursor string, limit int) ([]model.Dataset, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, frame, created_at FROM datasets WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, frame, created_at FROM datasets WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Dataset{}
    var last string
    for rows.Next() {
        var ds model.Dataset
        var frame []byte
        var createdAt time.Time
        if err := rows.Scan(&ds.ID, &ds.Name, &frame, &createdAt); err != nil { return nil, "", err }
        ds.TenantID = tenantID
        ds.CreatedAt = createdAt.UTC().Format(time.RFC3339)
        if err := json.Unmarshal(frame, &ds.Frame); err != nil { return nil, "", err }
        out = append(out, ds)
        last = ds.ID
    }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) SaveSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
    if rec.ID == "" { rec.ID = uuid.New().String() }
    params, err := json.Marshal(rec.Parameters)
    if err != nil { return rec, err }
    result, err := json.Marshal(rec.Result)
    if err != nil { return rec, err }
    var createdAt time.Time
    err = p.db.QueryRowContext(ctx, `INSERT INTO solves (id, tenant_id, dataset_id, scenario, parameters, result, outcome, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING created_at`,
        rec.ID, rec.TenantID, nullIfEmpty(rec.DatasetID), nullIfEmpty(rec.Scenario), params, result, rec.Result.Summary.Outcome).Scan(&createdAt)
    if err != nil { return rec, err }
    rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
    return rec, nil
}

func (p *Postgres) GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error) {
    var rec model.SolveRecord
    var datasetID, scenario sql.NullString
    var params, result []byte
    var createdAt time.Time
    err := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(dataset_id::text,''), COALESCE(scenario,''), parameters, result, created_at
        FROM solves WHERE tenant_id=$1 AND id=$2`, tenantID, id).
        Scan(&rec.ID, &datasetID, &scenario, &params, &result, &createdAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return rec, ErrNotFound }
        return rec, err
    }
    rec.TenantID = tenantID
    rec.DatasetID = datasetID.String
    rec.Scenario = scenario.String
    rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
    if err := json.Unmarshal(params, &rec.Parameters); err != nil { return rec, err }
    if err := json.Unmarshal(result, &rec.Result); err != nil { return rec, err }
    return rec, nil
}

func (p *Postgres) ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveRecord, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, COALESCE(dataset_id::text,''), COALESCE(scenario,''), parameters, result, created_at
            FROM solves WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, COALESCE(dataset_id::text,''), COALESCE(scenario,''), parameters, result, created_at
            FROM solves WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.SolveRecord{}
    var last string
    for rows.Next() {
        var rec model.SolveRecord
        var datasetID, scenario sql.NullString
        var params, result []byte
        var createdAt time.Time
        if err := rows.Scan(&rec.ID, &datasetID, &scenario, &params, &result, &createdAt); err != nil { return nil, "", err }
        rec.TenantID = tenantID
        rec.DatasetID = datasetID.String
        rec.Scenario = scenario.String
        rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
        if err := json.Unmarshal(params, &rec.Parameters); err != nil { return nil, "", err }
        if err := json.Unmarshal(result, &rec.Result); err != nil { return nil, "", err }
        out = append(out, rec)
        last = rec.ID
    }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
        id, req.TenantID, req.URL, pqStringArray(req.Events), nullIfEmpty(req.Secret))
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, COALESCE(secret,'') FROM subscriptions WHERE tenant_id=$1 AND $2 = ANY(events)`, tenantID, eventType)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []string
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        s.TenantID = tenantID
        s.Events = events
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var events []string
        if err := rows.Scan(&s.ID, &s.URL, &events); err != nil { return nil, "", err }
        s.TenantID = tenantID
        s.Events = events
        out = append(out, s)
        last = s.ID
    }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
            nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, last_error, url FROM webhook_deliveries WHERE tenant_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        q += ` AND status=$2 ORDER BY id LIMIT $3`
        rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
    } else {
        q += ` ORDER BY id LIMIT $2`
        rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, eventType, st string
        var attempts int
        var nextAt sql.NullTime
        var lastErr, url sql.NullString
        if err := rows.Scan(&id, &eventType, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url.String}
        if nextAt.Valid { item["nextAttemptAt"] = nextAt.Time }
        if lastErr.String != "" { item["lastError"] = lastErr.String }
        out = append(out, item)
        last = id
    }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetEngineConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    var raw []byte
    err := p.db.QueryRowContext(ctx, `SELECT cfg FROM engine_config WHERE tenant_id=$1`, tenantID).Scan(&raw)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(raw, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveEngineConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    raw, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO engine_config (tenant_id, cfg, updated_at) VALUES ($1,$2,now())
        ON CONFLICT (tenant_id) DO UPDATE SET cfg=EXCLUDED.cfg, updated_at=now()`, tenantID, raw)
    return err
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func pqStringArray(v []string) any {
    if len(v) == 0 { return nil }
    return v
}

// computeDedupKey prefers the event id from the payload and falls back to a
// content hash, so retried Emits do not double-enqueue.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}
