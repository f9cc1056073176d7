package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// System-agnostic record shapes exchanged with connectors. Vendor adapters
// translate these to and from their wire formats; callers never see a
// vendor-specific shape.

// Customer is the system-agnostic customer record.
type Customer struct {
	// PlatformID is our internal customer ID
	PlatformID uuid.UUID
	// ExternalID is the vendor-side identifier (empty before first sync)
	ExternalID string
	Name       string
	Email      string
	Phone      string
	TaxNumber  string
	// BillingAddress is a single-line billing address
	BillingAddress string
	Currency       string
	Balance        decimal.Decimal
	IsActive       bool
	UpdatedAt      time.Time
}

// InvoiceLine is one line item on an invoice.
type InvoiceLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
	// AccountCode is the ledger account the line posts to, if mapped
	AccountCode string
}

// Invoice is the system-agnostic invoice record.
type Invoice struct {
	PlatformID    uuid.UUID
	TenantID      uuid.UUID
	ExternalID    string
	InvoiceNumber string
	CustomerID    uuid.UUID
	// CustomerExternalID is the vendor-side customer reference
	CustomerExternalID string
	IssueDate          time.Time
	DueDate            time.Time
	Currency           string
	Subtotal           decimal.Decimal
	TaxTotal           decimal.Decimal
	Total              decimal.Decimal
	AmountDue          decimal.Decimal
	Status             string
	Lines              []InvoiceLine
	Notes              string
	UpdatedAt          time.Time
}

// Payment is the system-agnostic payment record.
type Payment struct {
	PlatformID uuid.UUID
	TenantID   uuid.UUID
	ExternalID string
	// InvoiceExternalID is the vendor-side invoice this payment applies to
	InvoiceExternalID string
	CustomerID        uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Method            string
	Reference         string
	PaidAt            time.Time
}

// Refund is the system-agnostic refund record.
type Refund struct {
	PlatformID uuid.UUID
	TenantID   uuid.UUID
	ExternalID string
	// PaymentExternalID is the vendor-side payment being refunded
	PaymentExternalID string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
	RefundedAt        time.Time
}

// ChartOfAccount is one account in the vendor's chart of accounts.
type ChartOfAccount struct {
	ExternalID  string
	Code        string
	Name        string
	Type        string
	SubType     string
	Currency    string
	Balance     decimal.Decimal
	IsActive    bool
	Description string
}

// TrialBalanceRow is one row of an imported trial balance.
type TrialBalanceRow struct {
	AccountExternalID string
	AccountCode       string
	AccountName       string
	Debit             decimal.Decimal
	Credit            decimal.Decimal
	AsOf              time.Time
}

// JournalLine is one debit/credit line of a journal entry.
type JournalLine struct {
	AccountCode string
	// AccountExternalID is the vendor-side account reference, if known
	AccountExternalID string
	Description       string
	Debit             decimal.Decimal
	Credit            decimal.Decimal
}

// JournalEntry is the system-agnostic journal entry record.
type JournalEntry struct {
	PlatformID  uuid.UUID
	TenantID    uuid.UUID
	ExternalID  string
	Reference   string
	EntryDate   time.Time
	Description string
	Lines       []JournalLine
}

// BankEntry is a bank transaction pushed to the vendor's bank ledger.
type BankEntry struct {
	PlatformID        uuid.UUID
	TenantID          uuid.UUID
	ExternalID        string
	BankAccountCode   string
	Amount            decimal.Decimal
	Currency          string
	Description       string
	TransactionDate   time.Time
	CounterpartyName  string
	CounterpartyIBAN  string
	IsCredit          bool
	StatementReference string
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// SyncResult is the outcome of a single connector operation.
type SyncResult struct {
	// Success indicates the operation succeeded on the vendor side
	Success bool
	// ExternalID is the vendor-side identifier for created/updated records
	ExternalID string
	// Error is the failure description when Success is false
	Error string
	// Warnings contains non-fatal issues encountered during the operation
	Warnings []string
	// RecordsProcessed/Succeeded/Failed count batch progress for imports
	RecordsProcessed int
	RecordsSucceeded int
	RecordsFailed    int
	// Duration is how long the vendor call took
	Duration time.Duration
}

// ConfigSyncResult pairs a per-config SyncResult with the config it came
// from, for fan-out aggregation.
type ConfigSyncResult struct {
	ConfigID uuid.UUID
	System   AccountingSystem
	Result   SyncResult
}

// ImportFilters narrows what an import operation pulls from the vendor.
type ImportFilters struct {
	// ModifiedSince limits the import to records changed after this time
	ModifiedSince *time.Time
	// ExternalIDs limits the import to specific vendor records
	ExternalIDs []string
	// PageSize overrides the config batch size when positive
	PageSize int
}
