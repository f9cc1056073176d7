package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/finplat/backend/internal/domain/accounting"
)

// RegisterConfigRequest creates a config for one accounting system.
type RegisterConfigRequest struct {
	System   accounting.AccountingSystem   `json:"system" binding:"required"`
	Settings accounting.ConnectionSettings `json:"settings" binding:"required"`
	Sync     *accounting.SyncSettings      `json:"sync_settings"`
}

// UpdateSyncSettingsRequest replaces a config's sync settings.
type UpdateSyncSettingsRequest struct {
	Sync accounting.SyncSettings `json:"sync_settings" binding:"required"`
}

// UpdateCredentialsRequest rotates a config's connection settings.
type UpdateCredentialsRequest struct {
	Settings      accounting.ConnectionSettings `json:"settings" binding:"required"`
	UpdatedFields []string                      `json:"updated_fields" binding:"required,min=1"`
}

// ResolveErrorRequest transitions a sync error to a terminal resolution.
type ResolveErrorRequest struct {
	Status     accounting.ResolutionStatus `json:"status" binding:"required"`
	Notes      string                      `json:"notes"`
	ResolvedBy string                      `json:"resolved_by"`
}

// ImportRequest triggers a queued import fan-out.
type ImportRequest struct {
	System  *accounting.AccountingSystem `json:"system"`
	Filters accounting.ImportFilters     `json:"filters"`
}

// ConfigView is the external shape of a config. Encrypted settings never
// leave the service.
type ConfigView struct {
	ID                   uuid.UUID                   `json:"id"`
	System               accounting.AccountingSystem `json:"system"`
	Enabled              bool                        `json:"enabled"`
	Status               accounting.ConfigStatus     `json:"status"`
	Sync                 accounting.SyncSettings     `json:"sync_settings"`
	LastSyncAt           *time.Time                  `json:"last_sync_at,omitempty"`
	LastError            string                      `json:"last_error,omitempty"`
	ConsecutiveFailures  int                         `json:"consecutive_failures"`
	LastConnectionTestAt *time.Time                  `json:"last_connection_test_at,omitempty"`
	LastConnectionTestOK bool                        `json:"last_connection_test_ok"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

func toConfigView(cfg *accounting.Config) ConfigView {
	return ConfigView{
		ID:                   cfg.ID,
		System:               cfg.System,
		Enabled:              cfg.Enabled,
		Status:               cfg.Status,
		Sync:                 cfg.Sync,
		LastSyncAt:           cfg.LastSyncAt,
		LastError:            cfg.LastError,
		ConsecutiveFailures:  cfg.ConsecutiveFailures,
		LastConnectionTestAt: cfg.LastConnectionTestAt,
		LastConnectionTestOK: cfg.LastConnectionTestOK,
		CreatedAt:            cfg.CreatedAt,
		UpdatedAt:            cfg.UpdatedAt,
	}
}

func toConfigViews(configs []accounting.Config) []ConfigView {
	views := make([]ConfigView, 0, len(configs))
	for i := range configs {
		views = append(views, toConfigView(&configs[i]))
	}
	return views
}

// TestConnectionResponse is the outcome of a connection test.
type TestConnectionResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// JobView is the external shape of an enqueued job.
type JobView struct {
	ID       uuid.UUID `json:"id"`
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Priority int       `json:"priority"`
}
