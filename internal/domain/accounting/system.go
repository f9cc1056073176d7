package accounting

// ---------------------------------------------------------------------------
// AccountingSystem represents an external accounting product
// ---------------------------------------------------------------------------

// AccountingSystem identifies one of the supported external accounting systems.
type AccountingSystem string

const (
	// SystemTally represents the Tally desktop product (XML over HTTP)
	SystemTally AccountingSystem = "TALLY"
	// SystemQuickBooks represents QuickBooks Online (OAuth2 REST)
	SystemQuickBooks AccountingSystem = "QUICKBOOKS"
	// SystemXero represents Xero (OAuth2 REST)
	SystemXero AccountingSystem = "XERO"
	// SystemZohoBooks represents Zoho Books (API-key REST)
	SystemZohoBooks AccountingSystem = "ZOHO_BOOKS"
	// SystemSage represents Sage Business Cloud (API-key REST)
	SystemSage AccountingSystem = "SAGE"
)

// AllSystems returns every supported accounting system.
func AllSystems() []AccountingSystem {
	return []AccountingSystem{
		SystemTally,
		SystemQuickBooks,
		SystemXero,
		SystemZohoBooks,
		SystemSage,
	}
}

// IsValid returns true if the system tag is one of the supported systems.
func (s AccountingSystem) IsValid() bool {
	switch s {
	case SystemTally, SystemQuickBooks, SystemXero, SystemZohoBooks, SystemSage:
		return true
	default:
		return false
	}
}

// String returns the string representation of AccountingSystem.
func (s AccountingSystem) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the system.
func (s AccountingSystem) DisplayName() string {
	switch s {
	case SystemTally:
		return "Tally"
	case SystemQuickBooks:
		return "QuickBooks Online"
	case SystemXero:
		return "Xero"
	case SystemZohoBooks:
		return "Zoho Books"
	case SystemSage:
		return "Sage Business Cloud"
	default:
		return string(s)
	}
}

// AuthKind returns the authentication scheme the system uses.
func (s AccountingSystem) AuthKind() AuthKind {
	switch s {
	case SystemTally:
		return AuthKindHostCompany
	case SystemQuickBooks, SystemXero:
		return AuthKindOAuth2
	case SystemZohoBooks, SystemSage:
		return AuthKindAPIKey
	default:
		return AuthKindUnknown
	}
}

// AuthKind represents the credential shape an accounting system expects.
type AuthKind string

const (
	// AuthKindHostCompany is a host/port/company triple (Tally)
	AuthKindHostCompany AuthKind = "HOST_COMPANY"
	// AuthKindOAuth2 is an OAuth2 client + token set (QuickBooks, Xero)
	AuthKindOAuth2 AuthKind = "OAUTH2"
	// AuthKindAPIKey is an API key/secret pair (Zoho Books, Sage)
	AuthKindAPIKey AuthKind = "API_KEY"
	// AuthKindUnknown is returned for unrecognised systems
	AuthKindUnknown AuthKind = "UNKNOWN"
)

// ---------------------------------------------------------------------------
// SyncDirection
// ---------------------------------------------------------------------------

// SyncDirection represents which way data flows relative to the platform.
type SyncDirection string

const (
	// SyncDirectionPull imports data from the accounting system only
	SyncDirectionPull SyncDirection = "PULL"
	// SyncDirectionPush exports data to the accounting system only
	SyncDirectionPush SyncDirection = "PUSH"
	// SyncDirectionBidirectional syncs both ways
	SyncDirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

// IsValid returns true if the direction is valid.
func (d SyncDirection) IsValid() bool {
	switch d {
	case SyncDirectionPull, SyncDirectionPush, SyncDirectionBidirectional:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncDirection.
func (d SyncDirection) String() string {
	return string(d)
}

// AllowsPull returns true if the direction permits imports from the vendor.
func (d SyncDirection) AllowsPull() bool {
	return d == SyncDirectionPull || d == SyncDirectionBidirectional
}

// AllowsPush returns true if the direction permits exports to the vendor.
func (d SyncDirection) AllowsPush() bool {
	return d == SyncDirectionPush || d == SyncDirectionBidirectional
}

// ---------------------------------------------------------------------------
// EntityType
// ---------------------------------------------------------------------------

// EntityType identifies the kind of business record being synchronized.
type EntityType string

const (
	EntityTypeCustomer        EntityType = "CUSTOMER"
	EntityTypeInvoice         EntityType = "INVOICE"
	EntityTypePayment         EntityType = "PAYMENT"
	EntityTypeRefund          EntityType = "REFUND"
	EntityTypeChartOfAccounts EntityType = "CHART_OF_ACCOUNTS"
	EntityTypeTrialBalance    EntityType = "TRIAL_BALANCE"
	EntityTypeGLAccount       EntityType = "GL_ACCOUNT"
	EntityTypeJournalEntry    EntityType = "JOURNAL_ENTRY"
	EntityTypeBankEntry       EntityType = "BANK_ENTRY"
)

// IsValid returns true if the entity type is valid.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeCustomer, EntityTypeInvoice, EntityTypePayment, EntityTypeRefund,
		EntityTypeChartOfAccounts, EntityTypeTrialBalance, EntityTypeGLAccount,
		EntityTypeJournalEntry, EntityTypeBankEntry:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType.
func (e EntityType) String() string {
	return string(e)
}
