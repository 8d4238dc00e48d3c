package lc

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PlanStep is one build in a chain, in execution order.
type PlanStep struct {
	Package string         `json:"package"`
	Level   int            `json:"level"`
	Reason  string         `json:"reason"` // "trigger" or "dependent" or "prerequisite"
	Options PackageOptions `json:"options,omitempty"`
}

// Plan is a serialized build plan, reloadable for later execution.
type Plan struct {
	CreatedAt time.Time  `json:"created_at"`
	Engine    string     `json:"engine"`
	Triggers  []string   `json:"triggers"`
	Steps     []PlanStep `json:"steps"`
}

func WritePlan(path string, plan *Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read plan: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("malformed plan %s: %w", path, err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan %s has no steps", path)
	}
	seen := make(map[string]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.Package == "" {
			return nil, fmt.Errorf("plan %s: step %d has no package", path, i)
		}
		if seen[step.Package] {
			return nil, fmt.Errorf("plan %s: package %s appears twice", path, step.Package)
		}
		seen[step.Package] = true
	}
	return &plan, nil
}

// PrintPlan renders a plan for terminal review.
func PrintPlan(plan *Plan) {
	colArrow.Printf("=> Build plan (%d steps, triggers: %v)\n", len(plan.Steps), plan.Triggers)
	for i, step := range plan.Steps {
		fmt.Printf("  %2d. %-28s level=%d %s\n", i+1, step.Package, step.Level, step.Reason)
	}
}
