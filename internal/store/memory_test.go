package store

import (
    "context"
    "testing"

    "intelliload/internal/model"
)

func TestMemoryDatasetsRoundTrip(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    frame := model.InputFrame{
        Vehicles:   []model.Vehicle{{VehicleID: "v1", CapacityUnits: 10}},
        Candidates: []model.OrderCandidateRow{{OrderID: "o1", VehicleID: "v1", DemandUnits: 2, Cost: 3, Feasible: true}},
    }
    ds, err := m.CreateDataset(ctx, "t1", model.DatasetIn{Name: "week-34", Frame: frame})
    if err != nil { t.Fatalf("create: %v", err) }
    got, err := m.GetDataset(ctx, "t1", ds.ID)
    if err != nil { t.Fatalf("get: %v", err) }
    if got.Name != "week-34" || len(got.Frame.Candidates) != 1 { t.Fatalf("roundtrip: %+v", got) }
    if _, err := m.GetDataset(ctx, "other", ds.ID); err != ErrNotFound {
        t.Fatalf("tenant isolation: %v", err)
    }
    items, next, err := m.ListDatasets(ctx, "t1", "", 10)
    if err != nil || len(items) != 1 || next != "" { t.Fatalf("list: %v %d %q", err, len(items), next) }
}

func TestMemorySolvesPagination(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    for i := 0; i < 3; i++ {
        if _, err := m.SaveSolve(ctx, model.SolveRecord{TenantID: "t1", Result: model.SolveResult{Summary: model.SolveSummary{Outcome: model.OutcomeOptimal}}}); err != nil {
            t.Fatalf("save: %v", err)
        }
    }
    page1, next, err := m.ListSolves(ctx, "t1", "", 2)
    if err != nil || len(page1) != 2 || next == "" { t.Fatalf("page1: %v %d %q", err, len(page1), next) }
    page2, next2, err := m.ListSolves(ctx, "t1", next, 2)
    if err != nil || len(page2) != 1 || next2 != "" { t.Fatalf("page2: %v %d %q", err, len(page2), next2) }
    if _, err := m.GetSolve(ctx, "t1", page1[0].ID); err != nil { t.Fatalf("get: %v", err) }
}

func TestMemorySubscriptionsAndDeliveries(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://hook", Events: []string{"solve.completed"}, Secret: "s"})
    if err != nil { t.Fatalf("sub: %v", err) }
    subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "solve.completed")
    if err != nil || len(subs) != 1 { t.Fatalf("for event: %v %d", err, len(subs)) }
    if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "solve.infeasible"); len(subs) != 0 {
        t.Fatalf("unexpected match: %d", len(subs))
    }

    id, err := m.EnqueueWebhook(ctx, "t1", sub.ID, "solve.completed", sub.URL, "s", []byte(`{}`))
    if err != nil { t.Fatalf("enqueue: %v", err) }
    due, err := m.FetchDueWebhookDeliveries(ctx, 10)
    if err != nil || len(due) != 1 { t.Fatalf("due: %v %d", err, len(due)) }
    if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 12); err != nil { t.Fatalf("mark: %v", err) }
    due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 0 { t.Fatalf("delivered item still due") }
}

func TestMemoryEngineConfig(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    if cfg, err := m.GetEngineConfig(ctx, "t1"); err != nil || cfg != nil {
        t.Fatalf("empty config: %v %v", cfg, err)
    }
    if err := m.SaveEngineConfig(ctx, "t1", map[string]any{"costWeight": 2.0}); err != nil { t.Fatalf("save: %v", err) }
    cfg, err := m.GetEngineConfig(ctx, "t1")
    if err != nil || cfg["costWeight"] != 2.0 { t.Fatalf("get: %v %v", cfg, err) }
}
