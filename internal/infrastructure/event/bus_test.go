package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/shared"
)

type syncEvent struct {
	shared.BaseDomainEvent
	System string `json:"system"`
}

func newSyncEvent(eventType string, tenantID uuid.UUID) *syncEvent {
	return &syncEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "AccountingConfig", uuid.New(), tenantID),
		System:          "TALLY",
	}
}

type recordingHandler struct {
	eventTypes []string
	mu         sync.Mutex
	handled    []shared.DomainEvent
	err        error
	panics     bool
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("handler blew up")
	}
	h.handled = append(h.handled, evt)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) handledEvents() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newRecordingHandler("accounting.sync.completed")
	bus.Subscribe(handler)

	evt := newSyncEvent("accounting.sync.completed", uuid.New())
	require.NoError(t, bus.Publish(context.Background(), evt))

	handled := handler.handledEvents()
	require.Len(t, handled, 1)
	assert.Equal(t, evt, handled[0])
	assert.EqualValues(t, 1, bus.PublishedCount())
	assert.EqualValues(t, 0, bus.FailedCount())
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newRecordingHandler("accounting.sync.error")
	bus.Subscribe(handler, "accounting.sync.error")

	require.NoError(t, bus.Publish(context.Background(),
		newSyncEvent("accounting.sync.error", uuid.New()),
		newSyncEvent("accounting.sync.error", uuid.New()),
	))

	assert.Len(t, handler.handledEvents(), 2)
	assert.EqualValues(t, 2, bus.PublishedCount())
}

func TestInMemoryEventBus_Publish_MultipleHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	first := newRecordingHandler("accounting.config.auto_paused")
	second := newRecordingHandler("accounting.config.auto_paused")
	bus.Subscribe(first)
	bus.Subscribe(second)

	require.NoError(t, bus.Publish(context.Background(),
		newSyncEvent("accounting.config.auto_paused", uuid.New())))

	assert.Len(t, first.handledEvents(), 1)
	assert.Len(t, second.handledEvents(), 1)
}

func TestInMemoryEventBus_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	wildcard := newRecordingHandler() // no event types means all events
	bus.Subscribe(wildcard)

	require.NoError(t, bus.Publish(context.Background(),
		newSyncEvent("accounting.sync.completed", uuid.New()),
		newSyncEvent("accounting.credential.updated", uuid.New()),
	))

	assert.Len(t, wildcard.handledEvents(), 2)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newRecordingHandler("accounting.sync.error")
	failing.err = errors.New("downstream unavailable")
	healthy := newRecordingHandler("accounting.sync.error")
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(),
		newSyncEvent("accounting.sync.error", uuid.New())))

	assert.Len(t, failing.handledEvents(), 1)
	assert.Len(t, healthy.handledEvents(), 1)
	assert.EqualValues(t, 1, bus.FailedCount())
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	panicking := newRecordingHandler("accounting.sync.error")
	panicking.panics = true
	healthy := newRecordingHandler("accounting.sync.error")
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), newSyncEvent("accounting.sync.error", uuid.New()))
	})

	assert.Len(t, healthy.handledEvents(), 1)
	assert.EqualValues(t, 1, bus.FailedCount())
}

func TestInMemoryEventBus_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newRecordingHandler("accounting.credential.updated")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(),
		newSyncEvent("accounting.sync.completed", uuid.New())))

	assert.Empty(t, handler.handledEvents())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newRecordingHandler("accounting.sync.completed")
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), newSyncEvent("accounting.sync.completed", uuid.New()))
	require.Len(t, handler.handledEvents(), 1)

	bus.Unsubscribe(handler)

	_ = bus.Publish(context.Background(), newSyncEvent("accounting.sync.completed", uuid.New()))
	assert.Len(t, handler.handledEvents(), 1)
}

func TestInMemoryEventBus_NilLogger(t *testing.T) {
	bus := NewInMemoryEventBus(nil)

	require.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), newSyncEvent("accounting.sync.completed", uuid.New()))
	})
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	ctx := context.Background()
	require.NoError(t, bus.Start(ctx))

	handler := newRecordingHandler("accounting.sync.completed")
	bus.Subscribe(handler)
	require.NoError(t, bus.Publish(ctx, newSyncEvent("accounting.sync.completed", uuid.New())))
	assert.Len(t, handler.handledEvents(), 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(stopCtx))
}
