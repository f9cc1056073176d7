package accounting

import (
	"errors"
	"fmt"
)

var (
	// Config errors
	ErrConfigNotFound      = errors.New("accounting: config not found")
	ErrConfigAlreadyExists = errors.New("accounting: config already exists for tenant and system")
	ErrConfigNotEnabled    = errors.New("accounting: config not enabled")
	ErrInvalidSystem       = errors.New("accounting: invalid accounting system")
	ErrInvalidSettings     = errors.New("accounting: invalid connection settings for system")

	// Connector errors
	ErrConnectorNotRegistered = errors.New("accounting: no connector registered for system")
	ErrOperationNotSupported  = errors.New("accounting: operation not supported by connector")
	ErrNotConnected           = errors.New("accounting: connector is not connected")

	// Record errors
	ErrSyncLogNotFound   = errors.New("accounting: sync log not found")
	ErrSyncErrorNotFound = errors.New("accounting: sync error not found")
	ErrJobNotFound       = errors.New("accounting: sync job not found")
)

// VendorError carries a vendor HTTP failure across the connector boundary
// so the classifier can use the status code and vendor error code instead
// of guessing from message text.
type VendorError struct {
	System     AccountingSystem
	StatusCode int
	Code       string
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface.
func (e *VendorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code=%s, status=%d)", e.System, e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status=%d)", e.System, e.Message, e.StatusCode)
}

// Unwrap returns the underlying cause, if any.
func (e *VendorError) Unwrap() error {
	return e.Err
}

// NewVendorError creates a VendorError for a failed vendor call.
func NewVendorError(system AccountingSystem, status int, code, message, endpoint string, err error) *VendorError {
	return &VendorError{
		System:     system,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Endpoint:   endpoint,
		Err:        err,
	}
}
