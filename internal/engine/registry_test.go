// Package engine implements the session and step state machines and
// their concurrency-safe execution model.
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/conductor/pkg/models"
)

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(models.SessionTypeMaintenance, nil))
	assert.Error(t, r.Register(models.SessionTypeMaintenance, []StepDef{{Name: "No code"}}))
	assert.Error(t, r.Register(models.SessionTypeMaintenance, []StepDef{
		{Code: "build", Name: "Build"},
		{Code: "build", Name: "Build again"},
	}))

	require.NoError(t, r.Register(models.SessionTypeMaintenance, []StepDef{
		{Code: "build", Name: "Build"},
	}))
	plan, err := r.Plan(models.SessionTypeMaintenance)
	require.NoError(t, err)
	assert.Len(t, plan, 1)
}

func TestRegistryPlanUnknownType(t *testing.T) {
	_, err := NewRegistry().Plan(models.SessionTypeDeployment)
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
}

func TestDefaultRegistryCoversAllSessionTypes(t *testing.T) {
	r := DefaultRegistry()
	for _, sessionType := range []models.SessionType{
		models.SessionTypeMaintenance,
		models.SessionTypeTestGeneration,
		models.SessionTypeDeployment,
	} {
		plan, err := r.Plan(sessionType)
		require.NoError(t, err)
		require.NotEmpty(t, plan)

		// Every plan ends with a skippable report step.
		last := plan[len(plan)-1]
		assert.Equal(t, "generate_report", last.Code)
		assert.True(t, last.Skippable)

		def, ok := r.Lookup(sessionType, plan[0].Code)
		assert.True(t, ok)
		assert.Equal(t, plan[0], def)
	}
}
