package work

import (
	"github.com/qfitlab/qfit/internal/events"
)

// RegisterTriggers subscribes the processor's wake-up to the bus events that
// create work. Handlers only nudge the trigger channel, so they are safe to
// run inline on the emitting goroutine.
func RegisterTriggers(bus *events.Bus, processor *Processor) {
	// A queued experiment is a new experiment_run subject.
	bus.Subscribe(events.ExperimentQueued, func(event *events.Event) {
		processor.Trigger()
	})

	// A completed experiment leaves a run whose chart is not cached yet.
	bus.Subscribe(events.ExperimentCompleted, func(event *events.Event) {
		processor.Trigger()
	})
}
