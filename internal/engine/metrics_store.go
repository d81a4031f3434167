package engine

import "sync"

// Stats is the per-solve snapshot kept for the admin metrics view.
type Stats struct {
    Outcome          string  `json:"outcome"`
    ObjectiveValue   float64 `json:"objectiveValue"`
    NodesExplored    int64   `json:"nodesExplored"`
    WallMs           int64   `json:"wallMs"`
    AssignedOrders   int     `json:"assignedOrders"`
    UnassignedOrders int     `json:"unassignedOrders"`
}

type key struct {
    Tenant   string
    Scenario string
}

var (
    mu    sync.Mutex
    store = map[key]Stats{}
)

func RecordStats(tenant, scenario string, s Stats) {
    mu.Lock()
    store[key{Tenant: tenant, Scenario: scenario}] = s
    mu.Unlock()
}

func GetStats(tenant string) map[string]Stats {
    mu.Lock()
    defer mu.Unlock()
    out := map[string]Stats{}
    for k, v := range store {
        if k.Tenant == tenant {
            out[k.Scenario] = v
        }
    }
    return out
}
