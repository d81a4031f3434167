package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "sort"
    "strings"
    "time"

    "intelliload/internal/engine"
    "intelliload/internal/metrics"
    "intelliload/internal/model"
    "intelliload/internal/scenario"
    "intelliload/internal/store"
    "intelliload/internal/webhooks"
)

// resolveFrame loads the dataset frame when the request references one.
func (s *Server) resolveFrame(ctx context.Context, tenant, datasetID string, frame *model.InputFrame) (model.InputFrame, error) {
    if frame != nil {
        return *frame, nil
    }
    ds, err := s.Store.GetDataset(ctx, tenant, datasetID)
    if err != nil {
        return model.InputFrame{}, err
    }
    return ds.Frame, nil
}

// overlayEngineConfig fills unset parameter and budget fields from the
// tenant's stored engine config before engine defaults apply. Explicit
// request values always win.
func (s *Server) overlayEngineConfig(ctx context.Context, tenant string, p model.ParameterSet, b model.Budget) (model.ParameterSet, model.Budget) {
    cfg, err := s.Store.GetEngineConfig(ctx, tenant)
    if err != nil || len(cfg) == 0 {
        return p, b
    }
    num := func(key string) (float64, bool) {
        f, ok := cfg[key].(float64)
        return f, ok
    }
    if p.CostWeight == 0 {
        if f, ok := num("costWeight"); ok { p.CostWeight = f }
    }
    if p.EmissionWeight == 0 {
        if f, ok := num("emissionWeight"); ok { p.EmissionWeight = f }
    }
    if p.UtilizationWeight == 0 {
        if f, ok := num("utilizationWeight"); ok { p.UtilizationWeight = f }
    }
    if p.UtilizationLow == 0 && p.UtilizationHigh == 0 {
        lo, okLo := num("utilizationLow")
        hi, okHi := num("utilizationHigh")
        if okLo && okHi {
            p.UtilizationLow, p.UtilizationHigh = lo, hi
        }
    }
    if p.UnassignedOrderPenalty == nil {
        if f, ok := num("unassignedOrderPenalty"); ok { p.UnassignedOrderPenalty = &f }
    }
    if p.EmissionCapKg == nil {
        if f, ok := num("emissionCapKg"); ok { p.EmissionCapKg = &f }
    }
    if b.TimeBudgetMs == 0 {
        if f, ok := num("timeBudgetMs"); ok && f > 0 { b.TimeBudgetMs = int(f) }
    }
    if b.MaxNodes == 0 {
        if f, ok := num("maxNodes"); ok && f > 0 { b.MaxNodes = int64(f) }
    }
    return p, b
}

// runSolve executes one solve, persists the record, and publishes events.
func (s *Server) runSolve(ctx context.Context, tenant, datasetID, scenarioName string, frame model.InputFrame, params model.ParameterSet, budget model.Budget) (model.SolveRecord, error) {
    params, budget = s.overlayEngineConfig(ctx, tenant, params, budget)
    start := time.Now()
    result, err := engine.Solve(ctx, frame, params, budget)
    if err != nil {
        return model.SolveRecord{}, err
    }
    metrics.SolveOutcomes.WithLabelValues(result.Summary.Outcome).Inc()
    metrics.SolveDuration.WithLabelValues(result.Summary.Outcome).Observe(time.Since(start).Seconds())

    rec, err := s.Store.SaveSolve(ctx, model.SolveRecord{
        TenantID:   tenant,
        DatasetID:  datasetID,
        Scenario:   scenarioName,
        Parameters: params,
        Result:     result,
    })
    if err != nil {
        return model.SolveRecord{}, err
    }

    statsKey := scenarioName
    if statsKey == "" { statsKey = "default" }
    engine.RecordStats(tenant, statsKey, engine.Stats{
        Outcome:          result.Summary.Outcome,
        ObjectiveValue:   result.Summary.ObjectiveValue,
        NodesExplored:    result.Summary.NodesExplored,
        WallMs:           result.Summary.WallMs,
        AssignedOrders:   result.Summary.AssignedOrders,
        UnassignedOrders: result.Summary.UnassignedOrders,
    })

    eventType := webhooks.EventSolveCompleted
    if result.Summary.Outcome == model.OutcomeInfeasible {
        eventType = webhooks.EventSolveInfeasible
    }
    data := map[string]any{
        "solveId":          rec.ID,
        "outcome":          result.Summary.Outcome,
        "objectiveValue":   result.Summary.ObjectiveValue,
        "assignedOrders":   result.Summary.AssignedOrders,
        "unassignedOrders": result.Summary.UnassignedOrders,
    }
    if result.Summary.Infeasibility != nil {
        data["constraint"] = result.Summary.Infeasibility.Constraint
    }
    s.Pub.Emit(ctx, tenant, eventType, data)
    s.Broker.Publish(rec.ID, SSEEvent{Type: eventType, Data: data})
    return rec, nil
}

// writeSolveError maps engine errors to problem responses.
func writeSolveError(w http.ResponseWriter, r *http.Request, err error) {
    var ve *engine.ValidationError
    if errors.As(err, &ve) {
        writeProblem(w, http.StatusBadRequest, "Invalid solve input", ve.Error(), r.URL.Path)
        return
    }
    var be *engine.BackendError
    if errors.As(err, &be) {
        writeProblem(w, http.StatusInternalServerError, "Solver failure", be.Error(), r.URL.Path)
        return
    }
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Dataset not found", err.Error(), r.URL.Path)
        return
    }
    writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), r.URL.Path)
}

// SolvesHandler handles POST/GET /v1/solves
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        pr := s.getPrincipal(r)
        if !pr.CanSolve() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
        if !s.allowSolve(w, r) { return }
        var req model.SolveRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSolveRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
            return
        }
        frame, err := s.resolveFrame(r.Context(), pr.Tenant, req.DatasetID, req.Frame)
        if err != nil {
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusNotFound, "Dataset not found", req.DatasetID, r.URL.Path)
                return
            }
            writeProblem(w, http.StatusInternalServerError, "Load dataset failed", err.Error(), r.URL.Path)
            return
        }
        rec, err := s.runSolve(r.Context(), pr.Tenant, req.DatasetID, "", frame, req.Parameters, req.Budget)
        if err != nil { writeSolveError(w, r, err); return }
        writeJSON(w, http.StatusOK, rec)
    case http.MethodGet:
        pr := s.getPrincipal(r)
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSolves(r.Context(), pr.Tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SolveByIDHandler handles GET /v1/solves/{id}, /v1/solves/{id}/assignments,
// and the SSE stream at /v1/solves/{id}/events/stream.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/solves/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 && parts[1] == "events" && len(parts) > 2 && parts[2] == "stream" {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        flusher, ok := w.(http.Flusher)
        if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
        w.Header().Set("Content-Type", "text/event-stream")
        w.Header().Set("Cache-Control", "no-cache")
        w.Header().Set("Connection", "keep-alive")
        ch := s.Broker.Subscribe(id)
        defer s.Broker.Unsubscribe(id, ch)
        // initial heartbeat
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
        flusher.Flush()
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
                fmt.Fprintf(w, "event: heartbeat\n")
                fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
                flusher.Flush()
            }
        }
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    rec, err := s.Store.GetSolve(r.Context(), pr.Tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Solve not found", err.Error(), r.URL.Path)
        return
    }
    if len(parts) > 1 && parts[1] == "assignments" {
        writeJSON(w, http.StatusOK, map[string]any{
            "solveId":     rec.ID,
            "assignments": rec.Result.Assignments,
            "summary":     rec.Result.Summary,
        })
        return
    }
    writeJSON(w, http.StatusOK, rec)
}

// ScenariosHandler handles POST /v1/scenarios: a what-if batch of parameter
// sets against one frame. Runs are ordered by objective, best first.
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.CanSolve() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
    if !s.allowSolve(w, r) { return }
    var req model.ScenarioRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateScenarioRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid scenario request", err.Error(), r.URL.Path)
        return
    }
    sets := req.Scenarios
    if req.YAML != "" {
        var err error
        sets, err = scenario.Load([]byte(req.YAML))
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid scenario YAML", err.Error(), r.URL.Path)
            return
        }
    }
    frame, err := s.resolveFrame(r.Context(), pr.Tenant, req.DatasetID, req.Frame)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Dataset not found", req.DatasetID, r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Load dataset failed", err.Error(), r.URL.Path)
        return
    }
    runs := make([]model.ScenarioRun, 0, len(sets))
    for _, sc := range sets {
        rec, err := s.runSolve(r.Context(), pr.Tenant, req.DatasetID, sc.Name, frame, sc.Parameters, req.Budget)
        if err != nil { writeSolveError(w, r, err); return }
        runs = append(runs, model.ScenarioRun{Name: sc.Name, SolveID: rec.ID, Summary: rec.Result.Summary})
    }
    sort.SliceStable(runs, func(i, j int) bool {
        a, b := runs[i].Summary, runs[j].Summary
        if (a.Outcome == model.OutcomeInfeasible) != (b.Outcome == model.OutcomeInfeasible) {
            return b.Outcome == model.OutcomeInfeasible
        }
        return a.ObjectiveValue < b.ObjectiveValue
    })
    s.Pub.Emit(r.Context(), pr.Tenant, webhooks.EventScenarioDone, map[string]any{"scenarios": len(runs)})
    writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// DatasetsHandler handles POST/GET /v1/datasets
func (s *Server) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
    pr := s.getPrincipal(r)
    switch r.Method {
    case http.MethodPost:
        if !pr.CanSolve() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
        var in model.DatasetIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if in.Name == "" { writeProblem(w, http.StatusBadRequest, "Invalid dataset", "name required", r.URL.Path); return }
        if err := engine.ValidateFrame(in.Frame); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid frame", err.Error(), r.URL.Path)
            return
        }
        ds, err := s.Store.CreateDataset(r.Context(), pr.Tenant, in)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create dataset failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, ds)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListDatasets(r.Context(), pr.Tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List datasets failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DatasetByIDHandler handles GET /v1/datasets/{id}
func (s *Server) DatasetByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    ds, err := s.Store.GetDataset(r.Context(), pr.Tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Dataset not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, ds)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    pr := s.getPrincipal(r)
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
        if req.TenantID == "" { req.TenantID = pr.Tenant }
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
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), pr.Tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if err := s.Store.DeleteSubscription(r.Context(), pr.Tenant, id); err != nil {
        writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// EngineConfigHandler returns default engine configuration overlaid with any
// tenant overrides.
func (s *Server) EngineConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/engine/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    defaults := map[string]any{
        "costWeight":             engine.DefaultCostWeight,
        "emissionWeight":         0.0,
        "utilizationWeight":      0.0,
        "utilizationLow":         engine.DefaultUtilizationLow,
        "utilizationHigh":        engine.DefaultUtilizationHigh,
        "unassignedOrderPenalty": engine.DefaultUnassignedOrderPenalty,
        "timeBudgetMs":           engine.DefaultTimeBudgetMs,
        "maxNodes":               engine.DefaultMaxNodes,
    }
    pr := s.getPrincipal(r)
    cfg, _ := s.Store.GetEngineConfig(r.Context(), pr.Tenant)
    if cfg != nil {
        for k, v := range cfg { defaults[k] = v }
    }
    writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// AdminEngineConfigHandler gets/sets the tenant engine config.
func (s *Server) AdminEngineConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/engine/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, _ := s.Store.GetEngineConfig(r.Context(), pr.Tenant)
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config map[string]any `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := s.Store.SaveEngineConfig(r.Context(), pr.Tenant, body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// EngineMetricsHandler returns per-scenario solve stats for the tenant.
func (s *Server) EngineMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"stats": engine.GetStats(pr.Tenant)})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), pr.Tenant, status, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "retry" || r.Method != http.MethodPost {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if err := s.Store.RetryWebhookDelivery(r.Context(), pr.Tenant, parts[0]); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
