// Package engine implements the order-to-vehicle assignment optimizer: frame
// validation, model building, a deterministic branch-and-bound solve under a
// time/node budget, and projection into the result table.
package engine

import (
    "context"
    "fmt"
    "time"

    "intelliload/internal/model"
)

// Solve runs one synchronous solve. It is pure: no I/O, no shared state.
// Identical (frame, params, budget) inputs produce identical results.
//
// Errors: *ValidationError for rejected inputs, *BackendError for internal
// solver failures, ctx.Err() on cancellation. Infeasibility and budget
// exhaustion are not errors; they surface as the summary outcome
// (INFEASIBLE, or FEASIBLE with provedOptimal=false).
func Solve(ctx context.Context, frame model.InputFrame, params model.ParameterSet, budget model.Budget) (res model.SolveResult, err error) {
    defer func() {
        if r := recover(); r != nil {
            res = model.SolveResult{Summary: model.SolveSummary{Outcome: model.OutcomeSolverError}}
            err = &BackendError{Err: fmt.Errorf("panic: %v", r)}
        }
    }()

    params = ApplyDefaults(params)
    if err := ValidateParams(params); err != nil {
        return model.SolveResult{}, err
    }
    if err := ValidateFrame(frame); err != nil {
        return model.SolveResult{}, err
    }
    if err := validateBudget(budget); err != nil {
        return model.SolveResult{}, err
    }
    budget = applyBudgetDefaults(budget)

    start := time.Now()
    m := buildModel(frame, params)
    if inf := m.diagnose(); inf != nil {
        return projectInfeasible(m, inf, time.Since(start)), nil
    }
    sol := solveModel(ctx, m, budget)
    if ctx.Err() != nil {
        return model.SolveResult{}, ctx.Err()
    }
    return project(m, sol, time.Since(start)), nil
}
