package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ConfigStatus
// ---------------------------------------------------------------------------

// ConfigStatus represents the lifecycle state of an accounting config.
type ConfigStatus string

const (
	// ConfigStatusActive indicates the config participates in syncs
	ConfigStatusActive ConfigStatus = "ACTIVE"
	// ConfigStatusPaused indicates syncs are suspended (manually or after
	// repeated failures)
	ConfigStatusPaused ConfigStatus = "PAUSED"
	// ConfigStatusError indicates the config needs attention (e.g. expired
	// or rejected credentials)
	ConfigStatusError ConfigStatus = "ERROR"
	// ConfigStatusInactive indicates the config was disabled by the tenant
	ConfigStatusInactive ConfigStatus = "INACTIVE"
)

// IsValid returns true if the status is valid.
func (s ConfigStatus) IsValid() bool {
	switch s {
	case ConfigStatusActive, ConfigStatusPaused, ConfigStatusError, ConfigStatusInactive:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConfigStatus.
func (s ConfigStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Connection settings (tagged union, one variant per auth kind)
// ---------------------------------------------------------------------------

// TallySettings holds connection settings for the Tally desktop product.
type TallySettings struct {
	Host    string `json:"host" validate:"required"`
	Port    int    `json:"port" validate:"required,min=1,max=65535"`
	Company string `json:"company" validate:"required"`
}

// OAuthSettings holds the OAuth2 credential set for cloud products.
type OAuthSettings struct {
	ClientID     string    `json:"client_id" validate:"required"`
	ClientSecret string    `json:"client_secret" validate:"required"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token" validate:"required"`
	TokenExpiry  time.Time `json:"token_expiry"`
	RealmID      string    `json:"realm_id"`
}

// APIKeySettings holds an API key/secret pair for key-authenticated products.
type APIKeySettings struct {
	APIKey    string `json:"api_key" validate:"required"`
	APISecret string `json:"api_secret" validate:"required"`
	BaseURL   string `json:"base_url"`
}

// ConnectionSettings is the tagged union of per-system credential shapes.
// Exactly one variant must be populated, matching the system's AuthKind.
// The whole structure is stored encrypted; it only exists in plaintext in
// memory between decryption and connector use.
type ConnectionSettings struct {
	System AccountingSystem `json:"system" validate:"required"`
	Tally  *TallySettings   `json:"tally,omitempty"`
	OAuth  *OAuthSettings   `json:"oauth,omitempty"`
	APIKey *APIKeySettings  `json:"api_key,omitempty"`
}

// Validate checks that the variant matching the system's auth kind is set
// and that no other variant is populated.
func (s *ConnectionSettings) Validate() error {
	if !s.System.IsValid() {
		return ErrInvalidSystem
	}
	switch s.System.AuthKind() {
	case AuthKindHostCompany:
		if s.Tally == nil || s.OAuth != nil || s.APIKey != nil {
			return ErrInvalidSettings
		}
	case AuthKindOAuth2:
		if s.OAuth == nil || s.Tally != nil || s.APIKey != nil {
			return ErrInvalidSettings
		}
	case AuthKindAPIKey:
		if s.APIKey == nil || s.Tally != nil || s.OAuth != nil {
			return ErrInvalidSettings
		}
	default:
		return ErrInvalidSystem
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sync settings
// ---------------------------------------------------------------------------

// ConflictStrategy tags how data conflicts are resolved during bidirectional
// sync. The hub records the strategy; resolution itself happens in the
// connector/vendor layer.
type ConflictStrategy string

const (
	ConflictStrategyPlatformWins ConflictStrategy = "PLATFORM_WINS"
	ConflictStrategyVendorWins   ConflictStrategy = "VENDOR_WINS"
	ConflictStrategyNewestWins   ConflictStrategy = "NEWEST_WINS"
	ConflictStrategyManual       ConflictStrategy = "MANUAL"
)

// IsValid returns true if the strategy is valid.
func (c ConflictStrategy) IsValid() bool {
	switch c {
	case ConflictStrategyPlatformWins, ConflictStrategyVendorWins,
		ConflictStrategyNewestWins, ConflictStrategyManual:
		return true
	default:
		return false
	}
}

// SyncSettings controls what and how a config syncs.
type SyncSettings struct {
	// Direction is the data flow relative to the platform
	Direction SyncDirection `json:"direction"`
	// FrequencyMinutes is how often scheduled syncs run
	FrequencyMinutes int `json:"frequency_minutes"`
	// Entities toggles sync per entity type
	Entities map[EntityType]bool `json:"entities"`
	// ConflictStrategy tags the configured conflict resolution
	ConflictStrategy ConflictStrategy `json:"conflict_strategy"`
	// BatchSize bounds how many records one sync attempt processes
	BatchSize int `json:"batch_size"`
}

// EntityEnabled returns true if syncing is enabled for the entity type.
// An absent toggle means disabled.
func (s SyncSettings) EntityEnabled(entity EntityType) bool {
	return s.Entities[entity]
}

// DefaultSyncSettings returns settings with sensible defaults: push-only,
// hourly, invoices and payments enabled, platform wins, batches of 100.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Direction:        SyncDirectionPush,
		FrequencyMinutes: 60,
		Entities: map[EntityType]bool{
			EntityTypeInvoice: true,
			EntityTypePayment: true,
		},
		ConflictStrategy: ConflictStrategyPlatformWins,
		BatchSize:        100,
	}
}

// ---------------------------------------------------------------------------
// AccountingConfig
// ---------------------------------------------------------------------------

// AutoPauseThreshold is the number of consecutive sync failures after which
// a config is automatically transitioned to PAUSED.
const AutoPauseThreshold = 5

// Config is one tenant's configuration for one accounting system.
// Unique per (tenant, system). Never hard-deleted; DeletedAt marks
// soft deletion.
type Config struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	System   AccountingSystem
	// Enabled gates participation in syncs
	Enabled bool
	// EncryptedSettings is the AEAD-encrypted ConnectionSettings blob
	EncryptedSettings string
	// Sync controls direction, frequency, entity toggles and batching
	Sync SyncSettings
	// Status is the lifecycle state
	Status ConfigStatus
	// LastSyncAt is when the last sync attempt finished
	LastSyncAt *time.Time
	// LastError is the most recent sync error text, cleared on success
	LastError string
	// ConsecutiveFailures counts sync failures since the last success
	ConsecutiveFailures int
	// LastConnectionTestAt / LastConnectionTestOK record the most recent
	// connection test
	LastConnectionTestAt *time.Time
	LastConnectionTestOK bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
}

// IsSyncable returns true if the config should participate in sync fan-out.
func (c *Config) IsSyncable() bool {
	return c.Enabled && c.DeletedAt == nil &&
		(c.Status == ConfigStatusActive || c.Status == ConfigStatusError)
}

// RecordSyncSuccess resets the failure counter and updates sync bookkeeping.
func (c *Config) RecordSyncSuccess(at time.Time) {
	c.LastSyncAt = &at
	c.LastError = ""
	c.ConsecutiveFailures = 0
	if c.Status == ConfigStatusError {
		c.Status = ConfigStatusActive
	}
}

// RecordSyncFailure bumps the failure counter and applies the auto-pause
// threshold. Returns true if the config transitioned to PAUSED.
func (c *Config) RecordSyncFailure(at time.Time, errText string) bool {
	c.LastSyncAt = &at
	c.LastError = errText
	c.ConsecutiveFailures++
	if c.ConsecutiveFailures >= AutoPauseThreshold && c.Status != ConfigStatusPaused {
		c.Status = ConfigStatusPaused
		return true
	}
	return false
}

// MarkAuthFailed transitions the config to ERROR so operators re-enter
// credentials. Sync failure bookkeeping still applies separately.
func (c *Config) MarkAuthFailed() {
	c.Status = ConfigStatusError
}

// RecordConnectionTest stores the outcome of a connection test.
func (c *Config) RecordConnectionTest(at time.Time, ok bool) {
	c.LastConnectionTestAt = &at
	c.LastConnectionTestOK = ok
}

// SoftDelete marks the config deleted without removing the row.
func (c *Config) SoftDelete(at time.Time) {
	c.DeletedAt = &at
	c.Enabled = false
	c.Status = ConfigStatusInactive
}

// ---------------------------------------------------------------------------
// ConfigRepository
// ---------------------------------------------------------------------------

// ConfigFilter defines filter criteria for listing configs.
type ConfigFilter struct {
	System         *AccountingSystem
	Status         *ConfigStatus
	Enabled        *bool
	IncludeDeleted bool
	Page           int
	PageSize       int
}

// ConfigRepository persists accounting configs.
type ConfigRepository interface {
	// Save creates or updates a config
	Save(ctx context.Context, config *Config) error

	// FindByID finds a config by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Config, error)

	// FindByTenantAndSystem finds the unique config for a (tenant, system)
	FindByTenantAndSystem(ctx context.Context, tenantID uuid.UUID, system AccountingSystem) (*Config, error)

	// FindEnabledForTenant returns all syncable configs for a tenant
	FindEnabledForTenant(ctx context.Context, tenantID uuid.UUID) ([]Config, error)

	// FindAll returns configs for a tenant matching the filter
	FindAll(ctx context.Context, tenantID uuid.UUID, filter ConfigFilter) ([]Config, error)

	// UpdateSyncOutcome persists the post-sync bookkeeping fields only
	// (status, last sync, last error, failure counter)
	UpdateSyncOutcome(ctx context.Context, config *Config) error

	// SoftDelete marks a config deleted
	SoftDelete(ctx context.Context, id uuid.UUID) error
}
