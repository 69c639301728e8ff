package eventbus

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowgate/pkg/api"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := New(nil)

	var order []string
	bus.Subscribe(api.EventWorkflowAdvanced, func(api.Event) { order = append(order, "first") })
	bus.Subscribe(api.EventWorkflowAdvanced, func(api.Event) { order = append(order, "second") })
	bus.Subscribe(api.EventLockAcquired, func(api.Event) { order = append(order, "other") })
	bus.SubscribeAll(func(api.Event) { order = append(order, "all") })

	n := bus.Publish(api.Event{Type: api.EventWorkflowAdvanced, WorkflowID: "wf1"})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "all"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(nil)

	calls := 0
	id := bus.Subscribe(api.EventLockExpired, func(api.Event) { calls++ })
	allID := bus.SubscribeAll(func(api.Event) { calls++ })

	bus.Publish(api.Event{Type: api.EventLockExpired})
	require.Equal(t, 2, calls)

	assert.True(t, bus.Unsubscribe(api.EventLockExpired, id))
	assert.False(t, bus.Unsubscribe(api.EventLockExpired, id))
	assert.False(t, bus.Unsubscribe(api.EventLockAcquired, allID))
	assert.True(t, bus.Unsubscribe("", allID))

	bus.Publish(api.Event{Type: api.EventLockExpired})
	assert.Equal(t, 2, calls)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	var buf bytes.Buffer
	bus := New(slog.New(slog.NewTextHandler(&buf, nil)))

	reached := false
	bus.Subscribe(api.EventOperationFailed, func(api.Event) { panic("listener bug") })
	bus.Subscribe(api.EventOperationFailed, func(api.Event) { reached = true })

	n := bus.Publish(api.Event{Type: api.EventOperationFailed})

	assert.Equal(t, 1, n)
	assert.True(t, reached)
	assert.Contains(t, buf.String(), "event_handler_panic")
}

func TestBus_HandlerMaySubscribeDuringPublish(t *testing.T) {
	bus := New(nil)

	late := 0
	bus.Subscribe(api.EventConfigUpdated, func(api.Event) {
		bus.Subscribe(api.EventConfigUpdated, func(api.Event) { late++ })
	})

	bus.Publish(api.Event{Type: api.EventConfigUpdated})
	assert.Equal(t, 0, late)

	bus.Publish(api.Event{Type: api.EventConfigUpdated})
	assert.Equal(t, 1, late)
}
