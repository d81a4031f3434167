package engine

import (
    "fmt"
    "math"
    "sort"

    "intelliload/internal/model"
)

// candidate is one modeled (order, vehicle) decision with its weighted
// objective contribution precomputed.
type candidate struct {
    vehicle   int // index into assignModel.vehicles
    vehicleID string
    demand    float64
    cost      float64
    emission  float64
    util      float64
    slack     float64 // utilization deviation: max(0, low-u, u-high)
    score     float64 // weighted contribution, excluding vehicle fixed cost
}

type orderVar struct {
    id         string
    demand     float64
    candidates []candidate
}

// assignModel is the built optimization model: one binary decision per
// remaining candidate pair plus an implicit unassigned option per order.
type assignModel struct {
    orders   []orderVar
    vehicles []model.Vehicle
    params   model.ParameterSet
    penalty  float64

    modeledPairs     int
    flaggedFeasible  int // rows with feasible=true before pruning
    prunedPairs      int // feasible-flagged rows dropped: demand exceeds capacity
    unavailablePairs int // feasible-flagged rows dropped: vehicle not available
    minPairEmission  float64
}

// buildModel turns a validated frame into an assignModel. Rows flagged
// infeasible upstream never become decisions; feasible rows whose vehicle is
// unavailable or whose single demand already exceeds the vehicle capacity are
// pruned here.
func buildModel(frame model.InputFrame, params model.ParameterSet) *assignModel {
    vehicles := append([]model.Vehicle(nil), frame.Vehicles...)
    sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].VehicleID < vehicles[j].VehicleID })
    vidx := make(map[string]int, len(vehicles))
    for i, v := range vehicles {
        vidx[v.VehicleID] = i
    }

    m := &assignModel{
        vehicles:        vehicles,
        params:          params,
        penalty:         *params.UnassignedOrderPenalty,
        minPairEmission: math.Inf(1),
    }

    byOrder := map[string]*orderVar{}
    var orderIDs []string
    for _, row := range frame.Candidates {
        ov := byOrder[row.OrderID]
        if ov == nil {
            ov = &orderVar{id: row.OrderID, demand: row.DemandUnits}
            byOrder[row.OrderID] = ov
            orderIDs = append(orderIDs, row.OrderID)
        }
        if !row.Feasible {
            continue
        }
        m.flaggedFeasible++
        vi := vidx[row.VehicleID]
        if !vehicles[vi].IsAvailable() {
            m.unavailablePairs++
            continue
        }
        if row.DemandUnits > vehicles[vi].CapacityUnits {
            m.prunedPairs++
            continue
        }
        c := candidate{
            vehicle:   vi,
            vehicleID: row.VehicleID,
            demand:    row.DemandUnits,
            cost:      row.Cost,
            emission:  row.EmissionKg,
            util:      row.UtilizationRatio,
            slack:     utilizationSlack(row.UtilizationRatio, params.UtilizationLow, params.UtilizationHigh),
        }
        c.score = params.CostWeight*c.cost + params.EmissionWeight*c.emission + params.UtilizationWeight*c.slack
        ov.candidates = append(ov.candidates, c)
        m.modeledPairs++
        if c.emission < m.minPairEmission {
            m.minPairEmission = c.emission
        }
    }

    sort.Strings(orderIDs)
    m.orders = make([]orderVar, 0, len(orderIDs))
    for _, id := range orderIDs {
        ov := byOrder[id]
        sort.Slice(ov.candidates, func(i, j int) bool {
            a, b := ov.candidates[i], ov.candidates[j]
            if a.score != b.score {
                return a.score < b.score
            }
            return a.vehicleID < b.vehicleID
        })
        m.orders = append(m.orders, *ov)
    }
    return m
}

// utilizationSlack linearizes the out-of-band deviation: the slack variable
// satisfies s >= low-u, s >= u-high, s >= 0, and takes the tight value.
func utilizationSlack(u, low, high float64) float64 {
    s := 0.0
    if d := low - u; d > s {
        s = d
    }
    if d := u - high; d > s {
        s = d
    }
    return s
}

// diagnose reports structural infeasibility before the search runs. A model
// with zero decisions but feasible-flagged rows means every pair was shut out
// by capacity; an emission cap below the cheapest single assignment leaves no
// pair selectable.
func (m *assignModel) diagnose() *model.Infeasibility {
    if m.modeledPairs == 0 {
        if m.flaggedFeasible > 0 {
            detail := fmt.Sprintf("all %d feasible pairs exceed vehicle capacity", m.prunedPairs)
            if m.unavailablePairs > 0 {
                detail = fmt.Sprintf("%d feasible pairs exceed vehicle capacity, %d reference unavailable vehicles", m.prunedPairs, m.unavailablePairs)
            }
            return &model.Infeasibility{Constraint: "capacity", Detail: detail}
        }
        return nil // nothing assignable; all-unassigned is the optimum
    }
    if cap := m.params.EmissionCapKg; cap != nil && *cap < m.minPairEmission {
        return &model.Infeasibility{
            Constraint: "emission_cap",
            Detail:     fmt.Sprintf("cap %g kg below minimum single-assignment emission %g kg", *cap, m.minPairEmission),
        }
    }
    return nil
}
