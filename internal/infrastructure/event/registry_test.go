package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finplat/backend/internal/domain/shared"
)

type stubHandler struct {
	eventTypes []string
}

func newStubHandler(eventTypes ...string) *stubHandler {
	return &stubHandler{eventTypes: eventTypes}
}

func (h *stubHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	return nil
}

func (h *stubHandler) EventTypes() []string {
	return h.eventTypes
}

func TestHandlerRegistry_RegisterSpecificTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newStubHandler("accounting.sync.completed", "accounting.sync.error")

	registry.Register(handler, "accounting.sync.completed", "accounting.sync.error")

	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers("accounting.sync.completed"))
	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers("accounting.sync.error"))
	assert.Empty(t, registry.GetHandlers("accounting.config.auto_paused"))
}

func TestHandlerRegistry_RegisterWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newStubHandler()

	registry.Register(handler)

	assert.Len(t, registry.GetHandlers("accounting.sync.completed"), 1)
	assert.Len(t, registry.GetHandlers("anything.else"), 1)
}

func TestHandlerRegistry_TypedHandlersOrderedBeforeWildcards(t *testing.T) {
	registry := NewHandlerRegistry()
	typed := newStubHandler("accounting.sync.error")
	wildcard := newStubHandler()

	registry.Register(wildcard)
	registry.Register(typed, "accounting.sync.error")

	handlers := registry.GetHandlers("accounting.sync.error")
	assert.Equal(t, []shared.EventHandler{typed, wildcard}, handlers)

	assert.Equal(t, []shared.EventHandler{wildcard}, registry.GetHandlers("other.event"))
}

func TestHandlerRegistry_UnregisterTypedHandler(t *testing.T) {
	registry := NewHandlerRegistry()
	first := newStubHandler("accounting.sync.completed")
	second := newStubHandler("accounting.sync.completed")

	registry.Register(first, "accounting.sync.completed")
	registry.Register(second, "accounting.sync.completed")
	assert.Len(t, registry.GetHandlers("accounting.sync.completed"), 2)

	registry.Unregister(first)

	assert.Equal(t, []shared.EventHandler{second}, registry.GetHandlers("accounting.sync.completed"))
}

func TestHandlerRegistry_UnregisterWildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	wildcard := newStubHandler()

	registry.Register(wildcard)
	assert.Len(t, registry.GetHandlers("any.event"), 1)

	registry.Unregister(wildcard)

	assert.Empty(t, registry.GetHandlers("any.event"))
}

func TestHandlerRegistry_GetAllHandlers(t *testing.T) {
	registry := NewHandlerRegistry()
	first := newStubHandler("accounting.sync.completed")
	second := newStubHandler("accounting.credential.updated")
	wildcard := newStubHandler()

	registry.Register(first, "accounting.sync.completed")
	registry.Register(second, "accounting.credential.updated")
	registry.Register(wildcard)

	assert.Len(t, registry.GetAllHandlers(), 3)
}

func TestHandlerRegistry_GetAllHandlers_Deduplicates(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newStubHandler("accounting.sync.completed", "accounting.sync.error")

	registry.Register(handler, "accounting.sync.completed", "accounting.sync.error")

	assert.Len(t, registry.GetAllHandlers(), 1)
}
