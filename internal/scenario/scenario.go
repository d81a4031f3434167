// Package scenario loads named parameter sets for what-if batch runs.
package scenario

import (
    "fmt"

    "gopkg.in/yaml.v3"

    "intelliload/internal/model"
)

// File is the on-disk scenario format:
//
//	scenarios:
//	  - name: baseline
//	    parameters:
//	      costWeight: 1.0
//	      emissionWeight: 0.2
//	  - name: green
//	    parameters:
//	      costWeight: 0.5
//	      emissionWeight: 2.0
//	      emissionCapKg: 1200
type File struct {
    Scenarios []Entry `yaml:"scenarios"`
}

type Entry struct {
    Name       string     `yaml:"name"`
    Parameters Parameters `yaml:"parameters"`
}

// Parameters mirrors model.ParameterSet with yaml tags.
type Parameters struct {
    CostWeight             float64  `yaml:"costWeight"`
    EmissionWeight         float64  `yaml:"emissionWeight"`
    UtilizationWeight      float64  `yaml:"utilizationWeight"`
    UtilizationLow         float64  `yaml:"utilizationLow"`
    UtilizationHigh        float64  `yaml:"utilizationHigh"`
    UnassignedOrderPenalty *float64 `yaml:"unassignedOrderPenalty"`
    EmissionCapKg          *float64 `yaml:"emissionCapKg"`
}

// Load parses scenario YAML and rejects empty or duplicate names.
func Load(data []byte) ([]model.NamedParameterSet, error) {
    var f File
    if err := yaml.Unmarshal(data, &f); err != nil {
        return nil, fmt.Errorf("parse scenarios: %w", err)
    }
    if len(f.Scenarios) == 0 {
        return nil, fmt.Errorf("no scenarios defined")
    }
    seen := map[string]struct{}{}
    out := make([]model.NamedParameterSet, 0, len(f.Scenarios))
    for i, e := range f.Scenarios {
        if e.Name == "" {
            return nil, fmt.Errorf("scenario %d: name required", i)
        }
        if _, dup := seen[e.Name]; dup {
            return nil, fmt.Errorf("duplicate scenario name %q", e.Name)
        }
        seen[e.Name] = struct{}{}
        out = append(out, model.NamedParameterSet{Name: e.Name, Parameters: model.ParameterSet{
            CostWeight:             e.Parameters.CostWeight,
            EmissionWeight:         e.Parameters.EmissionWeight,
            UtilizationWeight:      e.Parameters.UtilizationWeight,
            UtilizationLow:         e.Parameters.UtilizationLow,
            UtilizationHigh:        e.Parameters.UtilizationHigh,
            UnassignedOrderPenalty: e.Parameters.UnassignedOrderPenalty,
            EmissionCapKg:          e.Parameters.EmissionCapKg,
        }})
    }
    return out, nil
}
