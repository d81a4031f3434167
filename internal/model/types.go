package model

// Core domain types for the assignment engine and API.

// OrderCandidateRow is one pre-joined (order, vehicle) pairing with its
// evaluated cost, emission, and utilization figures. The frame arrives
// already joined and cleaned; the engine performs no enrichment.
type OrderCandidateRow struct {
    OrderID          string  `json:"orderId"`
    VehicleID        string  `json:"vehicleId"`
    DemandUnits      float64 `json:"demandUnits"`
    Cost             float64 `json:"cost"`
    EmissionKg       float64 `json:"emissionKg"`
    UtilizationRatio float64 `json:"utilizationRatio"`
    Feasible         bool    `json:"feasible"`
}

type Vehicle struct {
    VehicleID      string  `json:"vehicleId"`
    CapacityUnits  float64 `json:"capacityUnits"`
    FixedCost      float64 `json:"fixedCost,omitempty"`
    EmissionFactor float64 `json:"emissionFactor,omitempty"`
    Available      *bool   `json:"available,omitempty"`
}

// IsAvailable treats an omitted flag as available: absence of an optional
// field never activates a constraint.
func (v Vehicle) IsAvailable() bool { return v.Available == nil || *v.Available }

// InputFrame bundles the candidate rows with the vehicle table.
type InputFrame struct {
    Candidates []OrderCandidateRow `json:"candidates"`
    Vehicles   []Vehicle           `json:"vehicles"`
}

// ParameterSet tunes one solve. Zero-valued bounds and penalty are filled
// with defaults; see engine.ApplyDefaults.
type ParameterSet struct {
    CostWeight             float64  `json:"costWeight"`
    EmissionWeight         float64  `json:"emissionWeight"`
    UtilizationWeight      float64  `json:"utilizationWeight"`
    UtilizationLow         float64  `json:"utilizationLow,omitempty"`
    UtilizationHigh        float64  `json:"utilizationHigh,omitempty"`
    UnassignedOrderPenalty *float64 `json:"unassignedOrderPenalty,omitempty"`
    EmissionCapKg          *float64 `json:"emissionCapKg,omitempty"`
}

// Budget bounds the search effort.
type Budget struct {
    TimeBudgetMs int   `json:"timeBudgetMs,omitempty"`
    MaxNodes     int64 `json:"maxNodes,omitempty"`
}

// Solve outcomes.
const (
    OutcomeOptimal     = "OPTIMAL"
    OutcomeFeasible    = "FEASIBLE"
    OutcomeInfeasible  = "INFEASIBLE"
    OutcomeSolverError = "SOLVER_ERROR"
)

// Assignment row statuses.
const (
    StatusAssigned   = "ASSIGNED"
    StatusUnassigned = "UNASSIGNED"
)

// AssignmentRow is one output row per input order.
type AssignmentRow struct {
    OrderID          string  `json:"orderId"`
    Status           string  `json:"status"`
    VehicleID        string  `json:"vehicleId,omitempty"`
    Cost             float64 `json:"cost"`
    EmissionKg       float64 `json:"emissionKg"`
    UtilizationRatio float64 `json:"utilizationRatio"`
    UtilizationSlack float64 `json:"utilizationSlack"`
}

// VehicleLoad summarizes one vehicle's realized load.
type VehicleLoad struct {
    VehicleID     string   `json:"vehicleId"`
    DemandUnits   float64  `json:"demandUnits"`
    CapacityUnits float64  `json:"capacityUnits"`
    Utilization   float64  `json:"utilization"`
    Orders        []string `json:"orders"`
}

// Infeasibility names the constraint class that shut the model out.
type Infeasibility struct {
    Constraint string `json:"constraint"` // emission_cap, capacity
    Detail     string `json:"detail,omitempty"`
}

type SolveSummary struct {
    Outcome          string         `json:"outcome"`
    ObjectiveValue   float64        `json:"objectiveValue"`
    TotalCost        float64        `json:"totalCost"`
    TotalEmissionKg  float64        `json:"totalEmissionKg"`
    AssignedOrders   int            `json:"assignedOrders"`
    UnassignedOrders int            `json:"unassignedOrders"`
    VehiclesUsed     int            `json:"vehiclesUsed"`
    NodesExplored    int64          `json:"nodesExplored"`
    WallMs           int64          `json:"wallMs"`
    ProvedOptimal    bool           `json:"provedOptimal"`
    Infeasibility    *Infeasibility `json:"infeasibility,omitempty"`
}

type SolveResult struct {
    Summary      SolveSummary    `json:"summary"`
    Assignments  []AssignmentRow `json:"assignments"`
    VehicleLoads []VehicleLoad   `json:"vehicleLoads"`
}

// SolveRequest is the API body for POST /v1/solves. Exactly one of Frame or
// DatasetID must be set.
type SolveRequest struct {
    TenantID   string       `json:"tenantId,omitempty"`
    DatasetID  string       `json:"datasetId,omitempty"`
    Frame      *InputFrame  `json:"frame,omitempty"`
    Parameters ParameterSet `json:"parameters"`
    Budget     Budget       `json:"budget,omitempty"`
}

// SolveRecord is a persisted solve run.
type SolveRecord struct {
    ID         string       `json:"id"`
    TenantID   string       `json:"tenantId"`
    DatasetID  string       `json:"datasetId,omitempty"`
    Scenario   string       `json:"scenario,omitempty"`
    Parameters ParameterSet `json:"parameters"`
    Result     SolveResult  `json:"result"`
    CreatedAt  string       `json:"createdAt"`
}

// NamedParameterSet is one scenario in a what-if batch.
type NamedParameterSet struct {
    Name       string       `json:"name"`
    Parameters ParameterSet `json:"parameters"`
}

// ScenarioRequest runs several parameter sets against one frame.
type ScenarioRequest struct {
    TenantID  string              `json:"tenantId,omitempty"`
    DatasetID string              `json:"datasetId,omitempty"`
    Frame     *InputFrame         `json:"frame,omitempty"`
    Scenarios []NamedParameterSet `json:"scenarios,omitempty"`
    YAML      string              `json:"yaml,omitempty"`
    Budget    Budget              `json:"budget,omitempty"`
}

// ScenarioRun is one scenario's outcome within a batch response.
type ScenarioRun struct {
    Name    string       `json:"name"`
    SolveID string       `json:"solveId"`
    Summary SolveSummary `json:"summary"`
}

type DatasetIn struct {
    Name  string     `json:"name"`
    Frame InputFrame `json:"frame"`
}

type Dataset struct {
    ID        string     `json:"id"`
    TenantID  string     `json:"tenantId"`
    Name      string     `json:"name"`
    Frame     InputFrame `json:"frame"`
    CreatedAt string     `json:"createdAt"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
