package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestBusDeliversToTypedSubscribers(t *testing.T) {
	bus := newTestBus()

	var received []*Event
	bus.Subscribe(ExperimentQueued, func(e *Event) {
		received = append(received, e)
	})

	bus.Emit(ExperimentQueued, "experiments", map[string]interface{}{
		"experiment_id": "exp-1",
	})
	bus.Emit(ExperimentCompleted, "experiments", nil)

	require.Len(t, received, 1)
	assert.Equal(t, ExperimentQueued, received[0].Type)
	assert.Equal(t, "experiments", received[0].Module)
	assert.Equal(t, "exp-1", received[0].Data["experiment_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBusSubscribeAllSeesEveryType(t *testing.T) {
	bus := newTestBus()

	var types []EventType
	bus.SubscribeAll(func(e *Event) {
		types = append(types, e.Type)
	})

	bus.Emit(ExperimentQueued, "experiments", nil)
	bus.Emit(BackupCompleted, "reliability", nil)
	bus.EmitError("work", errors.New("boom"), map[string]interface{}{"retries": 2})

	require.Len(t, types, 3)
	assert.Equal(t, []EventType{ExperimentQueued, BackupCompleted, ErrorOccurred}, types)
}

func TestBusEmitDataFlattensTypedPayload(t *testing.T) {
	bus := newTestBus()

	var received *Event
	bus.Subscribe(ShotProgress, func(e *Event) {
		received = e
	})

	bus.EmitData("backends", &ShotProgressData{
		RunID:     "run-9",
		Backend:   "remote",
		Completed: 512,
		Total:     1024,
	})

	require.NotNil(t, received)
	assert.Equal(t, "run-9", received.Data["run_id"])
	assert.Equal(t, "remote", received.Data["backend"])
	// JSON round-trip turns ints into float64 in the generic map
	assert.Equal(t, float64(512), received.Data["completed"])
	assert.Equal(t, float64(1024), received.Data["total"])
}

func TestBusHandlerCanSubscribeWithoutDeadlock(t *testing.T) {
	bus := newTestBus()

	fired := false
	bus.Subscribe(DatasetChanged, func(e *Event) {
		// Subscribing from inside a handler must not deadlock
		bus.Subscribe(SettingsChanged, func(e *Event) { fired = true })
	})

	bus.Emit(DatasetChanged, "datasets", nil)
	bus.Emit(SettingsChanged, "settings", nil)

	assert.True(t, fired)
}
