package store

import (
    "context"
    "errors"
    "time"

    "intelliload/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Datasets (stored input frames)
    CreateDataset(ctx context.Context, tenantID string, in model.DatasetIn) (model.Dataset, error)
    GetDataset(ctx context.Context, tenantID, id string) (model.Dataset, error)
    ListDatasets(ctx context.Context, tenantID, cursor string, limit int) ([]model.Dataset, string, error)

    // Solve runs
    SaveSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error)
    GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error)
    ListSolves(ctx context.Context, tenantID, cursor string, limit int) ([]model.SolveRecord, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    // Engine config per tenant (default parameter overrides)
    GetEngineConfig(ctx context.Context, tenantID string) (map[string]any, error)
    SaveEngineConfig(ctx context.Context, tenantID string, cfg map[string]any) error
}

var ErrNotFound = errors.New("not found")
