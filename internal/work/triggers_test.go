package work

import (
	"context"
	"testing"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTriggersWakeProcessorOnQueuedExperiment(t *testing.T) {
	registry := NewRegistry()
	work := &subjectList{pending: []string{"exp-1"}}

	registry.Register(&WorkType{
		ID:           TypeExperimentRun,
		Priority:     PriorityHigh,
		FindSubjects: work.find,
		Execute: func(ctx context.Context, subject string) error {
			work.complete(subject)
			return nil
		},
	})

	bus := events.NewBus(zerolog.Nop())
	p := newTestProcessor(registry, bus)
	go p.Run()
	defer p.Stop()

	RegisterTriggers(bus, p)

	bus.EmitData("experiments", &events.ExperimentQueuedData{
		ExperimentID: "exp-1",
		DatasetID:    "ds-1",
		Backend:      "local",
		Shots:        1024,
	})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"exp-1"}, work.done())
}

func TestTriggersWakeProcessorOnCompletedExperiment(t *testing.T) {
	registry := NewRegistry()
	charts := &subjectList{pending: []string{"run-1"}}

	registry.Register(&WorkType{
		ID:           TypeChartCacheRefresh,
		Priority:     PriorityLow,
		FindSubjects: charts.find,
		Execute: func(ctx context.Context, subject string) error {
			charts.complete(subject)
			return nil
		},
	})

	bus := events.NewBus(zerolog.Nop())
	p := newTestProcessor(registry, bus)
	go p.Run()
	defer p.Stop()

	RegisterTriggers(bus, p)

	bus.EmitData("experiments", &events.ExperimentCompletedData{
		ExperimentID: "exp-1",
		RunID:        "run-1",
		Fidelity:     0.97,
	})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []string{"run-1"}, charts.done())
}
