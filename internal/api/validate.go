package api

import (
    "fmt"

    "intelliload/internal/model"
)

func validateSolveRequest(req *model.SolveRequest) error {
    if req.Frame == nil && req.DatasetID == "" {
        return fmt.Errorf("frame or datasetId required")
    }
    if req.Frame != nil && req.DatasetID != "" {
        return fmt.Errorf("frame and datasetId are mutually exclusive")
    }
    if req.Budget.TimeBudgetMs < 0 {
        return fmt.Errorf("budget.timeBudgetMs must be >= 0")
    }
    if req.Budget.MaxNodes < 0 {
        return fmt.Errorf("budget.maxNodes must be >= 0")
    }
    return nil
}

func validateScenarioRequest(req *model.ScenarioRequest) error {
    if req.Frame == nil && req.DatasetID == "" {
        return fmt.Errorf("frame or datasetId required")
    }
    if req.Frame != nil && req.DatasetID != "" {
        return fmt.Errorf("frame and datasetId are mutually exclusive")
    }
    if len(req.Scenarios) == 0 && req.YAML == "" {
        return fmt.Errorf("scenarios or yaml required")
    }
    if len(req.Scenarios) > 0 && req.YAML != "" {
        return fmt.Errorf("scenarios and yaml are mutually exclusive")
    }
    seen := map[string]struct{}{}
    for i, sc := range req.Scenarios {
        if sc.Name == "" {
            return fmt.Errorf("scenario %d: name required", i)
        }
        if _, dup := seen[sc.Name]; dup {
            return fmt.Errorf("duplicate scenario name %q", sc.Name)
        }
        seen[sc.Name] = struct{}{}
    }
    if req.Budget.TimeBudgetMs < 0 {
        return fmt.Errorf("budget.timeBudgetMs must be >= 0")
    }
    if req.Budget.MaxNodes < 0 {
        return fmt.Errorf("budget.maxNodes must be >= 0")
    }
    return nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
    if req.URL == "" {
        return fmt.Errorf("url required")
    }
    if len(req.Events) == 0 {
        return fmt.Errorf("events required")
    }
    return nil
}
