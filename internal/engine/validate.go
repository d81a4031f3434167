package engine

import (
    "math"

    "intelliload/internal/model"
)

// Defaults applied to unset parameter and budget fields.
const (
    DefaultCostWeight             = 1.0
    DefaultUtilizationLow         = 0.5
    DefaultUtilizationHigh        = 0.9
    DefaultUnassignedOrderPenalty = 1000.0
    DefaultTimeBudgetMs           = 2000
    DefaultMaxNodes               = int64(2_000_000)
)

// ApplyDefaults fills unset parameter fields. Both utilization bounds at zero
// means unset; a deliberate [0, x] band keeps High non-zero.
func ApplyDefaults(p model.ParameterSet) model.ParameterSet {
    // CostWeight is a price multiplier; unset means identity, never
    // zero-as-active (a zero multiplier would erase the operating-cost term).
    if p.CostWeight == 0 {
        p.CostWeight = DefaultCostWeight
    }
    if p.UtilizationLow == 0 && p.UtilizationHigh == 0 {
        p.UtilizationLow = DefaultUtilizationLow
        p.UtilizationHigh = DefaultUtilizationHigh
    }
    if p.UnassignedOrderPenalty == nil {
        v := DefaultUnassignedOrderPenalty
        p.UnassignedOrderPenalty = &v
    }
    return p
}

func applyBudgetDefaults(b model.Budget) model.Budget {
    if b.TimeBudgetMs == 0 {
        b.TimeBudgetMs = DefaultTimeBudgetMs
    }
    if b.MaxNodes == 0 {
        b.MaxNodes = DefaultMaxNodes
    }
    return b
}

// ValidateParams checks a parameter set after defaults are applied.
func ValidateParams(p model.ParameterSet) error {
    if bad(p.CostWeight) || p.CostWeight < 0 {
        return invalidf("costWeight", "must be finite and >= 0")
    }
    if bad(p.EmissionWeight) || p.EmissionWeight < 0 {
        return invalidf("emissionWeight", "must be finite and >= 0")
    }
    if bad(p.UtilizationWeight) || p.UtilizationWeight < 0 {
        return invalidf("utilizationWeight", "must be finite and >= 0")
    }
    if bad(p.UtilizationLow) || p.UtilizationLow < 0 || p.UtilizationLow > 2 {
        return invalidf("utilizationLow", "must be in [0,2]")
    }
    if bad(p.UtilizationHigh) || p.UtilizationHigh < 0 || p.UtilizationHigh > 2 {
        return invalidf("utilizationHigh", "must be in [0,2]")
    }
    if p.UtilizationLow > p.UtilizationHigh {
        return invalidf("utilizationLow", "must be <= utilizationHigh")
    }
    if p.UnassignedOrderPenalty != nil && (bad(*p.UnassignedOrderPenalty) || *p.UnassignedOrderPenalty < 0) {
        return invalidf("unassignedOrderPenalty", "must be finite and >= 0")
    }
    if p.EmissionCapKg != nil && (bad(*p.EmissionCapKg) || *p.EmissionCapKg < 0) {
        return invalidf("emissionCapKg", "must be finite and >= 0")
    }
    return nil
}

// ValidateFrame checks the candidate rows against the vehicle table.
func ValidateFrame(f model.InputFrame) error {
    vehicles := map[string]struct{}{}
    for i, v := range f.Vehicles {
        if v.VehicleID == "" {
            return invalidf("vehicles", "row %d: vehicleId required", i)
        }
        if _, dup := vehicles[v.VehicleID]; dup {
            return invalidf("vehicles", "duplicate vehicleId %s", v.VehicleID)
        }
        vehicles[v.VehicleID] = struct{}{}
        if bad(v.CapacityUnits) || v.CapacityUnits < 0 {
            return invalidf("vehicles", "%s: capacityUnits must be finite and >= 0", v.VehicleID)
        }
        if v.IsAvailable() && v.CapacityUnits == 0 {
            return invalidf("vehicles", "%s: capacityUnits must be > 0 for an available vehicle", v.VehicleID)
        }
        if bad(v.FixedCost) || v.FixedCost < 0 {
            return invalidf("vehicles", "%s: fixedCost must be finite and >= 0", v.VehicleID)
        }
        if bad(v.EmissionFactor) || v.EmissionFactor < 0 {
            return invalidf("vehicles", "%s: emissionFactor must be finite and >= 0", v.VehicleID)
        }
    }
    seen := map[[2]string]struct{}{}
    demand := map[string]float64{}
    for i, c := range f.Candidates {
        if c.OrderID == "" {
            return invalidf("candidates", "row %d: orderId required", i)
        }
        if c.VehicleID == "" {
            return invalidf("candidates", "row %d: vehicleId required", i)
        }
        if _, ok := vehicles[c.VehicleID]; !ok {
            return invalidf("candidates", "row %d: unknown vehicleId %s", i, c.VehicleID)
        }
        k := [2]string{c.OrderID, c.VehicleID}
        if _, dup := seen[k]; dup {
            return invalidf("candidates", "duplicate pair (%s, %s)", c.OrderID, c.VehicleID)
        }
        seen[k] = struct{}{}
        if bad(c.DemandUnits) || c.DemandUnits < 0 {
            return invalidf("candidates", "row %d: demandUnits must be finite and >= 0", i)
        }
        if prev, ok := demand[c.OrderID]; ok && prev != c.DemandUnits {
            return invalidf("candidates", "order %s: conflicting demandUnits (%g vs %g)", c.OrderID, prev, c.DemandUnits)
        }
        demand[c.OrderID] = c.DemandUnits
        if bad(c.Cost) || c.Cost < 0 {
            return invalidf("candidates", "row %d: cost must be finite and >= 0", i)
        }
        if bad(c.EmissionKg) || c.EmissionKg < 0 {
            return invalidf("candidates", "row %d: emissionKg must be finite and >= 0", i)
        }
        if bad(c.UtilizationRatio) || c.UtilizationRatio < 0 {
            return invalidf("candidates", "row %d: utilizationRatio must be finite and >= 0", i)
        }
    }
    return nil
}

func validateBudget(b model.Budget) error {
    if b.TimeBudgetMs < 0 {
        return invalidf("budget.timeBudgetMs", "must be >= 0")
    }
    if b.MaxNodes < 0 {
        return invalidf("budget.maxNodes", "must be >= 0")
    }
    return nil
}

func bad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
