package engine

import (
    "context"
    "math"
    "time"

    "intelliload/internal/model"
)

const eps = 1e-9

// solution is the solver's incumbent at the end of the search.
type solution struct {
    choice        []int // per order: candidate index, or -1 for unassigned
    objective     float64
    nodes         int64
    provedOptimal bool
}

// solveModel runs a deterministic depth-first branch-and-bound over the
// assignment decisions. Orders are expanded in ID order and candidates in
// (score, vehicleID) order, so identical inputs explore identical trees.
// The all-unassigned incumbent is always feasible, so exhausting the budget
// still yields a solution (provedOptimal=false).
func solveModel(ctx context.Context, m *assignModel, budget model.Budget) solution {
    n := len(m.orders)
    deadline := time.Now().Add(time.Duration(budget.TimeBudgetMs) * time.Millisecond)
    maxNodes := budget.MaxNodes

    // Admissible lower bound per suffix: each remaining order contributes at
    // least min(penalty, cheapest candidate score). Fixed costs are ignored
    // here, which keeps the bound admissible.
    suffix := make([]float64, n+1)
    for i := n - 1; i >= 0; i-- {
        best := m.penalty
        for _, c := range m.orders[i].candidates {
            if c.score < best {
                best = c.score
            }
        }
        suffix[i] = suffix[i+1] + best
    }

    remCap := make([]float64, len(m.vehicles))
    for i, v := range m.vehicles {
        remCap[i] = v.CapacityUnits
    }
    remEmission := math.Inf(1)
    if m.params.EmissionCapKg != nil {
        remEmission = *m.params.EmissionCapKg
    }
    activeOrders := make([]int, len(m.vehicles)) // orders on vehicle; fixed cost charged at 0 -> 1

    best := solution{
        choice:    make([]int, n),
        objective: m.penalty * float64(n),
    }
    for i := range best.choice {
        best.choice[i] = -1
    }

    choice := make([]int, n)
    var nodes int64
    stopped := false
    done := ctx.Done()

    var dfs func(i int, cur float64)
    dfs = func(i int, cur float64) {
        nodes++
        if nodes&1023 == 0 {
            select {
            case <-done:
                stopped = true
            default:
                if time.Now().After(deadline) {
                    stopped = true
                }
            }
        }
        if !stopped && maxNodes > 0 && nodes > maxNodes {
            stopped = true
        }
        if stopped {
            return
        }
        if i == n {
            if cur < best.objective-eps {
                best.objective = cur
                copy(best.choice, choice)
            }
            return
        }
        if cur+suffix[i] >= best.objective-eps {
            return
        }
        for ci, c := range m.orders[i].candidates {
            if c.demand > remCap[c.vehicle]+eps {
                continue
            }
            if c.emission > remEmission+eps {
                continue
            }
            delta := c.score
            if activeOrders[c.vehicle] == 0 {
                delta += m.vehicles[c.vehicle].FixedCost
            }
            remCap[c.vehicle] -= c.demand
            remEmission -= c.emission
            activeOrders[c.vehicle]++
            choice[i] = ci
            dfs(i+1, cur+delta)
            activeOrders[c.vehicle]--
            remEmission += c.emission
            remCap[c.vehicle] += c.demand
            if stopped {
                return
            }
        }
        choice[i] = -1
        dfs(i+1, cur+m.penalty)
    }
    if n > 0 {
        dfs(0, 0)
    }

    best.nodes = nodes
    best.provedOptimal = !stopped
    return best
}
