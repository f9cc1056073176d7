package connectors

import (
	"sort"
	"sync"

	"github.com/finplat/backend/internal/domain/accounting"
)

// Registry routes system tags to connector factories via an explicit
// dispatch table.
type Registry struct {
	mu        sync.RWMutex
	factories map[accounting.AccountingSystem]accounting.ConnectorFactory
}

var _ accounting.ConnectorRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[accounting.AccountingSystem]accounting.ConnectorFactory),
	}
}

// NewDefaultRegistry creates a registry with all five vendor connectors
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(accounting.SystemTally, func() accounting.Connector { return NewTallyConnector() })
	r.Register(accounting.SystemQuickBooks, func() accounting.Connector { return NewQuickBooksConnector() })
	r.Register(accounting.SystemXero, func() accounting.Connector { return NewXeroConnector() })
	r.Register(accounting.SystemZohoBooks, func() accounting.Connector { return NewZohoBooksConnector() })
	r.Register(accounting.SystemSage, func() accounting.Connector { return NewSageConnector() })
	return r
}

// Register adds a factory for a system; last registration wins.
func (r *Registry) Register(system accounting.AccountingSystem, factory accounting.ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[system] = factory
}

// New creates an unconnected connector for the system.
func (r *Registry) New(system accounting.AccountingSystem) (accounting.Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[system]
	r.mu.RUnlock()
	if !ok {
		return nil, accounting.ErrConnectorNotRegistered
	}
	return factory(), nil
}

// Systems returns the registered system tags in stable order.
func (r *Registry) Systems() []accounting.AccountingSystem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	systems := make([]accounting.AccountingSystem, 0, len(r.factories))
	for system := range r.factories {
		systems = append(systems, system)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })
	return systems
}
