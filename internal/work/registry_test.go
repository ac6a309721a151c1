package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&WorkType{ID: TypeExperimentRun, Priority: PriorityHigh})

	wt := registry.Get(TypeExperimentRun)
	require.NotNil(t, wt)
	assert.Equal(t, PriorityHigh, wt.Priority)

	assert.True(t, registry.Has(TypeExperimentRun))
	assert.False(t, registry.Has("nonexistent"))
	assert.Nil(t, registry.Get("nonexistent"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryReplacesSameID(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&WorkType{ID: TypeExperimentRun, Priority: PriorityLow})
	registry.Register(&WorkType{ID: TypeExperimentRun, Priority: PriorityHigh})

	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, PriorityHigh, registry.Get(TypeExperimentRun).Priority)
}

func TestRegistryByPriorityScanOrder(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&WorkType{ID: TypeChartCacheRefresh, Priority: PriorityLow})
	registry.Register(&WorkType{ID: TypeExperimentRun, Priority: PriorityHigh})
	registry.Register(&WorkType{ID: TypeRunEvaluation, Priority: PriorityMedium})

	ordered := registry.ByPriority()
	require.Len(t, ordered, 3)
	assert.Equal(t, TypeExperimentRun, ordered[0].ID)
	assert.Equal(t, TypeRunEvaluation, ordered[1].ID)
	assert.Equal(t, TypeChartCacheRefresh, ordered[2].ID)
}

func TestRegistryByPriorityTiesBreakOnID(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&WorkType{ID: "b-type", Priority: PriorityMedium})
	registry.Register(&WorkType{ID: "a-type", Priority: PriorityMedium})

	ordered := registry.ByPriority()
	require.Len(t, ordered, 2)
	assert.Equal(t, "a-type", ordered[0].ID)
	assert.Equal(t, "b-type", ordered[1].ID)
}

func TestRegistryIDsSorted(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&WorkType{ID: TypeRunEvaluation})
	registry.Register(&WorkType{ID: TypeChartCacheRefresh})
	registry.Register(&WorkType{ID: TypeExperimentRun})

	assert.Equal(t, []string{TypeChartCacheRefresh, TypeExperimentRun, TypeRunEvaluation}, registry.IDs())
}
