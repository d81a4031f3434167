package api

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "intelliload/internal/model"
)

func fp(v float64) *float64 { return &v }

func newTestServer(t *testing.T) *Server {
    t.Helper()
    t.Setenv("DATABASE_URL", "")
    t.Setenv("REDIS_URL", "")
    t.Setenv("RATE_RPS", "0")
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        if err := json.NewEncoder(&buf).Encode(body); err != nil { t.Fatalf("encode body: %v", err) }
    }
    req := httptest.NewRequest(method, path, &buf)
    req.Header.Set("Content-Type", "application/json")
    for k, v := range hdr { req.Header.Set(k, v) }
    w := httptest.NewRecorder()
    h(w, req)
    return w
}

func testFrame() model.InputFrame {
    return model.InputFrame{
        Vehicles: []model.Vehicle{
            {VehicleID: "v1", CapacityUnits: 10},
            {VehicleID: "v2", CapacityUnits: 5},
        },
        Candidates: []model.OrderCandidateRow{
            {OrderID: "o1", VehicleID: "v1", DemandUnits: 4, Cost: 10, Feasible: true},
            {OrderID: "o1", VehicleID: "v2", DemandUnits: 4, Cost: 8, Feasible: true},
            {OrderID: "o2", VehicleID: "v1", DemandUnits: 4, Cost: 12, Feasible: true},
            {OrderID: "o2", VehicleID: "v2", DemandUnits: 4, Cost: 9, Feasible: true},
            {OrderID: "o3", VehicleID: "v1", DemandUnits: 6, Cost: 11, Feasible: true},
            {OrderID: "o3", VehicleID: "v2", DemandUnits: 6, Cost: 7, Feasible: true},
        },
    }
}

func TestHealthAndReady(t *testing.T) {
    s := newTestServer(t)
    if w := doJSON(t, s.HealthHandler, "GET", "/healthz", nil, nil); w.Code != 200 {
        t.Fatalf("healthz: %d", w.Code)
    }
    if w := doJSON(t, s.ReadyHandler, "GET", "/readyz", nil, nil); w.Code != 200 {
        t.Fatalf("readyz: %d", w.Code)
    }
}

func TestSolveEndToEnd(t *testing.T) {
    s := newTestServer(t)
    frame := testFrame()
    w := doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        Frame:      &frame,
        Parameters: model.ParameterSet{CostWeight: 1},
    }, nil)
    if w.Code != 200 { t.Fatalf("solve status %d: %s", w.Code, w.Body.String()) }
    var rec model.SolveRecord
    if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil { t.Fatalf("decode: %v", err) }
    if rec.ID == "" { t.Fatal("expected solve id") }
    if rec.Result.Summary.Outcome != model.OutcomeOptimal {
        t.Fatalf("outcome %s, want OPTIMAL", rec.Result.Summary.Outcome)
    }
    if len(rec.Result.Assignments) != 3 {
        t.Fatalf("got %d assignment rows, want 3", len(rec.Result.Assignments))
    }
    // o3 (demand 6) only fits the capacity-10 vehicle
    for _, a := range rec.Result.Assignments {
        if a.OrderID == "o3" && a.VehicleID != "v1" {
            t.Fatalf("o3 assigned to %s, want v1", a.VehicleID)
        }
    }

    // Fetch by ID
    w = doJSON(t, s.SolveByIDHandler, "GET", "/v1/solves/"+rec.ID, nil, nil)
    if w.Code != 200 { t.Fatalf("get solve: %d", w.Code) }

    // Assignments sub-resource
    w = doJSON(t, s.SolveByIDHandler, "GET", "/v1/solves/"+rec.ID+"/assignments", nil, nil)
    if w.Code != 200 { t.Fatalf("get assignments: %d", w.Code) }
    var sub struct {
        SolveID     string                `json:"solveId"`
        Assignments []model.AssignmentRow `json:"assignments"`
    }
    if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil { t.Fatalf("decode: %v", err) }
    if sub.SolveID != rec.ID || len(sub.Assignments) != 3 {
        t.Fatalf("assignments payload: %+v", sub)
    }

    // List
    w = doJSON(t, s.SolvesHandler, "GET", "/v1/solves", nil, nil)
    if w.Code != 200 { t.Fatalf("list solves: %d", w.Code) }
    var list struct{ Items []model.SolveRecord `json:"items"` }
    if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil { t.Fatalf("decode list: %v", err) }
    if len(list.Items) != 1 { t.Fatalf("got %d solves, want 1", len(list.Items)) }
}

func TestSolveRequestValidation(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{}, nil)
    if w.Code != http.StatusBadRequest {
        t.Fatalf("empty request: %d, want 400", w.Code)
    }
    frame := testFrame()
    w = doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        Frame: &frame, DatasetID: "ds_x",
    }, nil)
    if w.Code != http.StatusBadRequest {
        t.Fatalf("frame+datasetId: %d, want 400", w.Code)
    }
}

func TestSolveForbiddenForViewer(t *testing.T) {
    s := newTestServer(t)
    frame := testFrame()
    w := doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        Frame: &frame, Parameters: model.ParameterSet{CostWeight: 1},
    }, map[string]string{"X-Role": "viewer"})
    if w.Code != http.StatusForbidden {
        t.Fatalf("viewer solve: %d, want 403", w.Code)
    }
}

func TestDatasetFlow(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.DatasetsHandler, "POST", "/v1/datasets", model.DatasetIn{
        Name: "august-plan", Frame: testFrame(),
    }, nil)
    if w.Code != http.StatusCreated { t.Fatalf("create dataset: %d: %s", w.Code, w.Body.String()) }
    var ds model.Dataset
    if err := json.Unmarshal(w.Body.Bytes(), &ds); err != nil { t.Fatalf("decode: %v", err) }
    if ds.ID == "" { t.Fatal("expected dataset id") }

    w = doJSON(t, s.DatasetByIDHandler, "GET", "/v1/datasets/"+ds.ID, nil, nil)
    if w.Code != 200 { t.Fatalf("get dataset: %d", w.Code) }

    // Solve by dataset reference
    w = doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        DatasetID: ds.ID, Parameters: model.ParameterSet{CostWeight: 1},
    }, nil)
    if w.Code != 200 { t.Fatalf("solve by dataset: %d: %s", w.Code, w.Body.String()) }

    // Unknown dataset -> 404
    w = doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        DatasetID: "ds_missing", Parameters: model.ParameterSet{CostWeight: 1},
    }, nil)
    if w.Code != http.StatusNotFound { t.Fatalf("missing dataset: %d, want 404", w.Code) }

    // Invalid frame rejected at creation
    bad := testFrame()
    bad.Candidates[0].VehicleID = "v_ghost"
    w = doJSON(t, s.DatasetsHandler, "POST", "/v1/datasets", model.DatasetIn{Name: "bad", Frame: bad}, nil)
    if w.Code != http.StatusBadRequest { t.Fatalf("bad frame: %d, want 400", w.Code) }
}

func TestScenarioBatchOrdering(t *testing.T) {
    s := newTestServer(t)
    frame := testFrame()
    w := doJSON(t, s.ScenariosHandler, "POST", "/v1/scenarios", model.ScenarioRequest{
        Frame: &frame,
        Scenarios: []model.NamedParameterSet{
            {Name: "cost-heavy", Parameters: model.ParameterSet{CostWeight: 2}},
            {Name: "baseline", Parameters: model.ParameterSet{CostWeight: 1}},
        },
    }, nil)
    if w.Code != 200 { t.Fatalf("scenarios: %d: %s", w.Code, w.Body.String()) }
    var out struct{ Runs []model.ScenarioRun `json:"runs"` }
    if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil { t.Fatalf("decode: %v", err) }
    if len(out.Runs) != 2 { t.Fatalf("got %d runs, want 2", len(out.Runs)) }
    // cost-heavy doubles every term so baseline must sort first
    if out.Runs[0].Name != "baseline" {
        t.Fatalf("first run %s, want baseline", out.Runs[0].Name)
    }
    if out.Runs[0].Summary.ObjectiveValue > out.Runs[1].Summary.ObjectiveValue {
        t.Fatal("runs not sorted by objective")
    }
}

func TestScenarioYAML(t *testing.T) {
    s := newTestServer(t)
    frame := testFrame()
    yamlDoc := `scenarios:
  - name: green
    parameters:
      costWeight: 1
      emissionWeight: 5
  - name: cheap
    parameters:
      costWeight: 1
`
    w := doJSON(t, s.ScenariosHandler, "POST", "/v1/scenarios", model.ScenarioRequest{
        Frame: &frame, YAML: yamlDoc,
    }, nil)
    if w.Code != 200 { t.Fatalf("yaml scenarios: %d: %s", w.Code, w.Body.String()) }
    var out struct{ Runs []model.ScenarioRun `json:"runs"` }
    if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil { t.Fatalf("decode: %v", err) }
    if len(out.Runs) != 2 { t.Fatalf("got %d runs, want 2", len(out.Runs)) }
}

func TestSubscriptionsCRUD(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.SubscriptionsHandler, "POST", "/v1/subscriptions", model.SubscriptionRequest{
        URL: "https://hooks.example.com/intelliload", Events: []string{"solve.completed"}, Secret: "topsecret",
    }, nil)
    if w.Code != http.StatusCreated { t.Fatalf("create sub: %d: %s", w.Code, w.Body.String()) }
    var sub model.Subscription
    if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil { t.Fatalf("decode: %v", err) }
    if sub.Secret != "" { t.Fatal("secret must not be echoed") }

    w = doJSON(t, s.SubscriptionsHandler, "GET", "/v1/subscriptions", nil, nil)
    if w.Code != 200 { t.Fatalf("list subs: %d", w.Code) }
    var list struct{ Items []model.Subscription `json:"items"` }
    if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil { t.Fatalf("decode: %v", err) }
    if len(list.Items) != 1 || list.Items[0].Secret != "" {
        t.Fatalf("list payload: %+v", list.Items)
    }

    w = doJSON(t, s.SubscriptionByIDHandler, "DELETE", "/v1/subscriptions/"+sub.ID, nil, nil)
    if w.Code != http.StatusNoContent { t.Fatalf("delete sub: %d", w.Code) }
}

func TestEngineConfigOverrides(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.EngineConfigHandler, "GET", "/v1/engine/config", nil, nil)
    if w.Code != 200 { t.Fatalf("engine config: %d", w.Code) }
    var out struct{ Defaults map[string]any `json:"defaults"` }
    if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil { t.Fatalf("decode: %v", err) }
    if out.Defaults["utilizationLow"].(float64) != 0.5 {
        t.Fatalf("utilizationLow default: %v", out.Defaults["utilizationLow"])
    }

    w = doJSON(t, s.AdminEngineConfigHandler, "PUT", "/v1/admin/engine/config", map[string]any{
        "config": map[string]any{"utilizationLow": 0.4},
    }, nil)
    if w.Code != 200 { t.Fatalf("put config: %d: %s", w.Code, w.Body.String()) }

    w = doJSON(t, s.EngineConfigHandler, "GET", "/v1/engine/config", nil, nil)
    if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil { t.Fatalf("decode: %v", err) }
    if out.Defaults["utilizationLow"].(float64) != 0.4 {
        t.Fatalf("override not applied: %v", out.Defaults["utilizationLow"])
    }
}

func TestEngineConfigAppliedToSolves(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.AdminEngineConfigHandler, "PUT", "/v1/admin/engine/config", map[string]any{
        "config": map[string]any{"unassignedOrderPenalty": 5.0},
    }, nil)
    if w.Code != 200 { t.Fatalf("put config: %d: %s", w.Code, w.Body.String()) }

    // No feasible pairs, empty parameters: objective must use the stored
    // penalty override, not the engine default.
    frame := model.InputFrame{
        Vehicles: []model.Vehicle{{VehicleID: "v1", CapacityUnits: 10}},
        Candidates: []model.OrderCandidateRow{
            {OrderID: "o1", VehicleID: "v1", DemandUnits: 4, Feasible: false},
            {OrderID: "o2", VehicleID: "v1", DemandUnits: 4, Feasible: false},
        },
    }
    w = doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{Frame: &frame}, nil)
    if w.Code != 200 { t.Fatalf("solve: %d: %s", w.Code, w.Body.String()) }
    var rec model.SolveRecord
    if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil { t.Fatalf("decode: %v", err) }
    if got, want := rec.Result.Summary.ObjectiveValue, 10.0; got != want {
        t.Fatalf("objective: got %g want %g (stored penalty not applied)", got, want)
    }

    // Explicit request parameters still win over the stored config.
    w = doJSON(t, s.SolvesHandler, "POST", "/v1/solves", model.SolveRequest{
        Frame:      &frame,
        Parameters: model.ParameterSet{UnassignedOrderPenalty: fp(3)},
    }, nil)
    if w.Code != 200 { t.Fatalf("solve: %d: %s", w.Code, w.Body.String()) }
    if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil { t.Fatalf("decode: %v", err) }
    if got, want := rec.Result.Summary.ObjectiveValue, 6.0; got != want {
        t.Fatalf("objective: got %g want %g (request parameter overridden)", got, want)
    }
}

func TestEngineMetricsRequiresAdmin(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.EngineMetricsHandler, "GET", "/v1/admin/engine/metrics", nil, map[string]string{"X-Role": "planner"})
    if w.Code != http.StatusForbidden { t.Fatalf("planner metrics: %d, want 403", w.Code) }
    w = doJSON(t, s.EngineMetricsHandler, "GET", "/v1/admin/engine/metrics", nil, nil)
    if w.Code != 200 { t.Fatalf("admin metrics: %d", w.Code) }
}

func TestSolveRateLimit(t *testing.T) {
    s := newTestServer(t)
    t.Setenv("RATE_RPS", "1")
    t.Setenv("RATE_BURST", "1")
    s.Limiter = newLimiterFromEnv()
    frame := testFrame()
    body := model.SolveRequest{Frame: &frame, Parameters: model.ParameterSet{CostWeight: 1}}
    codes := []int{}
    for i := 0; i < 3; i++ {
        w := doJSON(t, s.SolvesHandler, "POST", "/v1/solves", body, nil)
        codes = append(codes, w.Code)
    }
    limited := false
    for _, c := range codes {
        if c == http.StatusTooManyRequests { limited = true }
    }
    if !limited { t.Fatalf("expected a 429 in %v", codes) }
}

func TestSolveNotFound(t *testing.T) {
    s := newTestServer(t)
    w := doJSON(t, s.SolveByIDHandler, "GET", fmt.Sprintf("/v1/solves/%s", "sv_missing"), nil, nil)
    if w.Code != http.StatusNotFound { t.Fatalf("missing solve: %d, want 404", w.Code) }
}
