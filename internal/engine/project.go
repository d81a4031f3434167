package engine

import (
    "time"

    "intelliload/internal/model"
)

// project turns the solver incumbent into the caller-facing result: one row
// per order plus per-vehicle loads and summary totals.
func project(m *assignModel, sol solution, elapsed time.Duration) model.SolveResult {
    rows := make([]model.AssignmentRow, 0, len(m.orders))
    type load struct {
        demand float64
        orders []string
    }
    loads := make([]load, len(m.vehicles))

    var totalCost, totalEmission float64
    assigned := 0
    for i, ov := range m.orders {
        row := model.AssignmentRow{OrderID: ov.id, Status: model.StatusUnassigned}
        if ci := sol.choice[i]; ci >= 0 {
            c := ov.candidates[ci]
            row.Status = model.StatusAssigned
            row.VehicleID = c.vehicleID
            row.Cost = c.cost
            row.EmissionKg = c.emission
            row.UtilizationRatio = c.util
            row.UtilizationSlack = c.slack
            totalCost += c.cost
            totalEmission += c.emission
            loads[c.vehicle].demand += c.demand
            loads[c.vehicle].orders = append(loads[c.vehicle].orders, ov.id)
            assigned++
        }
        rows = append(rows, row)
    }

    vehicleLoads := make([]model.VehicleLoad, 0, len(m.vehicles))
    used := 0
    for i, v := range m.vehicles {
        vl := model.VehicleLoad{
            VehicleID:     v.VehicleID,
            DemandUnits:   loads[i].demand,
            CapacityUnits: v.CapacityUnits,
            Orders:        loads[i].orders,
        }
        if v.CapacityUnits > 0 {
            vl.Utilization = loads[i].demand / v.CapacityUnits
        }
        if len(loads[i].orders) > 0 {
            used++
            totalCost += v.FixedCost
        }
        vehicleLoads = append(vehicleLoads, vl)
    }

    outcome := model.OutcomeFeasible
    if sol.provedOptimal {
        outcome = model.OutcomeOptimal
    }
    return model.SolveResult{
        Summary: model.SolveSummary{
            Outcome:          outcome,
            ObjectiveValue:   sol.objective,
            TotalCost:        totalCost,
            TotalEmissionKg:  totalEmission,
            AssignedOrders:   assigned,
            UnassignedOrders: len(m.orders) - assigned,
            VehiclesUsed:     used,
            NodesExplored:    sol.nodes,
            WallMs:           elapsed.Milliseconds(),
            ProvedOptimal:    sol.provedOptimal,
        },
        Assignments:  rows,
        VehicleLoads: vehicleLoads,
    }
}

// projectInfeasible emits the all-unassigned row table with the binding
// constraint diagnosis attached.
func projectInfeasible(m *assignModel, inf *model.Infeasibility, elapsed time.Duration) model.SolveResult {
    rows := make([]model.AssignmentRow, 0, len(m.orders))
    for _, ov := range m.orders {
        rows = append(rows, model.AssignmentRow{OrderID: ov.id, Status: model.StatusUnassigned})
    }
    vehicleLoads := make([]model.VehicleLoad, 0, len(m.vehicles))
    for _, v := range m.vehicles {
        vehicleLoads = append(vehicleLoads, model.VehicleLoad{VehicleID: v.VehicleID, CapacityUnits: v.CapacityUnits})
    }
    return model.SolveResult{
        Summary: model.SolveSummary{
            Outcome:          model.OutcomeInfeasible,
            UnassignedOrders: len(m.orders),
            WallMs:           elapsed.Milliseconds(),
            Infeasibility:    inf,
        },
        Assignments:  rows,
        VehicleLoads: vehicleLoads,
    }
}
