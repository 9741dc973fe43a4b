// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"fmt"

	"github.com/thebtf/conductor/pkg/models"
)

// StepDef declares one step of a session type's plan. Skippable steps
// may fail without failing the whole session.
type StepDef struct {
	Code      string
	Name      string
	Skippable bool
}

// Registry maps each session type to its ordered step plan. Plans are
// fixed at registration; the sequence a session is materialized with
// never changes afterwards.
type Registry struct {
	plans map[models.SessionType][]StepDef
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plans: make(map[models.SessionType][]StepDef)}
}

// Register installs the plan for a session type, replacing any
// previous one. Step codes must be unique within the plan.
func (r *Registry) Register(t models.SessionType, plan []StepDef) error {
	if len(plan) == 0 {
		return fmt.Errorf("plan for %s must have at least one step", t)
	}
	seen := make(map[string]bool, len(plan))
	for _, def := range plan {
		if def.Code == "" {
			return fmt.Errorf("plan for %s has a step without a code", t)
		}
		if seen[def.Code] {
			return fmt.Errorf("plan for %s has duplicate step code %q", t, def.Code)
		}
		seen[def.Code] = true
	}
	r.plans[t] = plan
	return nil
}

// Plan returns the ordered step plan for a session type.
func (r *Registry) Plan(t models.SessionType) ([]StepDef, error) {
	plan, ok := r.plans[t]
	if !ok {
		return nil, models.InvalidArgumentf("no step plan registered for session type %q", t)
	}
	return plan, nil
}

// Lookup returns the definition of one step within a plan.
func (r *Registry) Lookup(t models.SessionType, code string) (StepDef, bool) {
	for _, def := range r.plans[t] {
		if def.Code == code {
			return def, true
		}
	}
	return StepDef{}, false
}

// DefaultRegistry returns the built-in plans for the supported session
// types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must(r.Register(models.SessionTypeMaintenance, []StepDef{
		{Code: "analyze_dependencies", Name: "Analyze dependencies"},
		{Code: "plan_updates", Name: "Plan updates"},
		{Code: "apply_updates", Name: "Apply updates"},
		{Code: "run_tests", Name: "Run test suite"},
		{Code: "generate_report", Name: "Generate report", Skippable: true},
	}))
	must(r.Register(models.SessionTypeTestGeneration, []StepDef{
		{Code: "analyze_coverage", Name: "Analyze coverage"},
		{Code: "generate_tests", Name: "Generate tests"},
		{Code: "run_tests", Name: "Run generated tests"},
		{Code: "generate_report", Name: "Generate report", Skippable: true},
	}))
	must(r.Register(models.SessionTypeDeployment, []StepDef{
		{Code: "validate_environment", Name: "Validate environment"},
		{Code: "build", Name: "Build"},
		{Code: "deploy", Name: "Deploy"},
		{Code: "verify", Name: "Verify deployment"},
		{Code: "generate_report", Name: "Generate report", Skippable: true},
	}))
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
