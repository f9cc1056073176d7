package accounting

import (
	"context"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Capabilities describes which operations and sync modes a connector
// actually supports. Callers must consult capabilities before invoking an
// operation rather than relying on a runtime failure.
type Capabilities struct {
	// Entities lists the entity types the connector can exchange
	Entities map[EntityType]bool
	// SupportsPull/SupportsPush describe the directions the vendor allows
	SupportsPull bool
	SupportsPush bool
	// SupportsTrialBalance/SupportsBankEntries flag the optional ledger
	// operations not every vendor exposes
	SupportsTrialBalance bool
	SupportsBankEntries  bool
}

// Supports returns true if the connector can exchange the entity type.
func (c Capabilities) Supports(entity EntityType) bool {
	return c.Entities[entity]
}

// SupportsDirection returns true if the connector allows the direction.
func (c Capabilities) SupportsDirection(d SyncDirection) bool {
	switch d {
	case SyncDirectionPull:
		return c.SupportsPull
	case SyncDirectionPush:
		return c.SupportsPush
	case SyncDirectionBidirectional:
		return c.SupportsPull && c.SupportsPush
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Connector port
// ---------------------------------------------------------------------------

// Connector is the port every accounting system adapter implements. It
// follows the Ports & Adapters pattern: the interface lives in the domain
// layer, concrete implementations (Tally, QuickBooks, Xero, Zoho Books,
// Sage) live in the infrastructure layer.
//
// Connectors carry their own request timeouts; the hub never imposes one
// on individual vendor calls.
type Connector interface {
	// System returns the accounting system this connector handles
	System() AccountingSystem

	// Capabilities returns the operations this connector supports
	Capabilities() Capabilities

	// Connect establishes a session using the decrypted settings
	Connect(ctx context.Context, settings *ConnectionSettings) error

	// Disconnect tears down the session
	Disconnect(ctx context.Context) error

	// TestConnection verifies the session is usable
	TestConnection(ctx context.Context) error

	// Customer operations
	ImportCustomers(ctx context.Context, filters ImportFilters) ([]Customer, *SyncResult, error)
	SyncCustomer(ctx context.Context, customer *Customer) (*SyncResult, error)
	UpdateCustomer(ctx context.Context, customer *Customer) (*SyncResult, error)
	DeleteCustomer(ctx context.Context, externalID string) (*SyncResult, error)

	// Invoice operations
	ImportInvoices(ctx context.Context, filters ImportFilters) ([]Invoice, *SyncResult, error)
	SyncInvoice(ctx context.Context, invoice *Invoice) (*SyncResult, error)
	UpdateInvoice(ctx context.Context, invoice *Invoice) (*SyncResult, error)
	DeleteInvoice(ctx context.Context, externalID string) (*SyncResult, error)

	// Payment and refund operations
	SyncPayment(ctx context.Context, payment *Payment) (*SyncResult, error)
	SyncRefund(ctx context.Context, refund *Refund) (*SyncResult, error)

	// Ledger operations
	ImportChartOfAccounts(ctx context.Context, filters ImportFilters) ([]ChartOfAccount, *SyncResult, error)
	ImportTrialBalance(ctx context.Context, filters ImportFilters) ([]TrialBalanceRow, *SyncResult, error)
	ImportGLAccounts(ctx context.Context, filters ImportFilters) ([]ChartOfAccount, *SyncResult, error)
	SyncJournalEntry(ctx context.Context, entry *JournalEntry) (*SyncResult, error)
	SyncBankEntry(ctx context.Context, entry *BankEntry) (*SyncResult, error)
}

// ConnectorFactory creates a fresh, unconnected connector instance for a
// system. The pool calls the factory on a miss, then Connect.
type ConnectorFactory func() Connector

// ConnectorRegistry resolves connector factories by system tag. Dispatch is
// by explicit table, never reflection.
type ConnectorRegistry interface {
	// Register adds a factory for a system; last registration wins
	Register(system AccountingSystem, factory ConnectorFactory)

	// New creates an unconnected connector for the system
	New(system AccountingSystem) (Connector, error)

	// Systems returns the registered system tags
	Systems() []AccountingSystem
}

// ---------------------------------------------------------------------------
// Connector pool port
// ---------------------------------------------------------------------------

// PooledConnection is a live connector session leased from the pool.
type PooledConnection interface {
	// ID identifies the pooled connection instance
	ID() uuid.UUID
	// Connector is the live connector session
	Connector() Connector
}

// ConnectorPool leases live connector sessions keyed by (tenant, system).
type ConnectorPool interface {
	// Acquire returns a live session for the config, blocking up to the
	// configured acquire timeout. The settings are the decrypted
	// credentials used when a new session must be dialed.
	Acquire(ctx context.Context, config *Config, settings *ConnectionSettings) (PooledConnection, error)

	// Release returns a session to the pool
	Release(id uuid.UUID)

	// Remove discards a session (e.g. after an authentication failure)
	Remove(id uuid.UUID)
}
