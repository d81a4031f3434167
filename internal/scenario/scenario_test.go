package scenario

import "testing"

func TestLoad(t *testing.T) {
    data := []byte(`
scenarios:
  - name: baseline
    parameters:
      costWeight: 1.0
      emissionWeight: 0.2
  - name: green
    parameters:
      costWeight: 0.5
      emissionWeight: 2.0
      emissionCapKg: 1200
`)
    got, err := Load(data)
    if err != nil { t.Fatalf("load: %v", err) }
    if len(got) != 2 { t.Fatalf("want 2 scenarios, got %d", len(got)) }
    if got[0].Name != "baseline" || got[0].Parameters.CostWeight != 1 {
        t.Fatalf("baseline: %+v", got[0])
    }
    if got[1].Parameters.EmissionCapKg == nil || *got[1].Parameters.EmissionCapKg != 1200 {
        t.Fatalf("green cap: %+v", got[1].Parameters)
    }
}

func TestLoadRejectsDuplicates(t *testing.T) {
    data := []byte("scenarios:\n  - name: a\n  - name: a\n")
    if _, err := Load(data); err == nil {
        t.Fatal("expected duplicate name error")
    }
}

func TestLoadRejectsEmpty(t *testing.T) {
    if _, err := Load([]byte("scenarios: []\n")); err == nil {
        t.Fatal("expected empty error")
    }
    if _, err := Load([]byte("scenarios:\n  - parameters: {costWeight: 1}\n")); err == nil {
        t.Fatal("expected missing name error")
    }
}
