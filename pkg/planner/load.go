package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/llm"
)

// ParseJSON loads a plan from JSON and validates it.
func ParseJSON(data []byte) (*core.Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var plan core.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse json plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ParseYAML loads a plan from YAML and validates it.
func ParseYAML(data []byte) (*core.Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var plan core.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Fixed returns a planner that always yields the given plan. Used for
// offline runs that bypass the generator.
func Fixed(plan *core.Plan) *FixedPlanner {
	return &FixedPlanner{plan: plan}
}

// FixedPlanner replays a pre-built plan instead of calling the model.
type FixedPlanner struct {
	plan *core.Plan
}

func (f *FixedPlanner) Generate(ctx context.Context, req core.AgentRequest, history []llm.Message, catalog Catalog) (*core.Plan, error) {
	if f.plan == nil {
		return nil, fmt.Errorf("no plan configured")
	}
	clone := *f.plan
	clone.Steps = append([]core.PlanStep(nil), f.plan.Steps...)
	return &clone, nil
}

// LoadFile loads a plan from a .json, .yaml or .yml file. Used for offline
// runs that bypass the generator.
func LoadFile(path string) (*core.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported plan file extension: %s", path)
	}
}
