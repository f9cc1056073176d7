package accounting

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVendorError(t *testing.T) {
	t.Run("populates all fields", func(t *testing.T) {
		cause := errors.New("connection reset")
		ve := NewVendorError(SystemQuickBooks, 401, "3200", "token expired",
			"https://quickbooks.api.intuit.com/v3/company/123/customer", cause)

		assert.Equal(t, SystemQuickBooks, ve.System)
		assert.Equal(t, 401, ve.StatusCode)
		assert.Equal(t, "3200", ve.Code)
		assert.Equal(t, "token expired", ve.Message)
		assert.Equal(t, "https://quickbooks.api.intuit.com/v3/company/123/customer", ve.Endpoint)
		assert.Same(t, cause, ve.Err)
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		cause := errors.New("dial tcp: i/o timeout")
		ve := NewVendorError(SystemXero, 0, "", "request failed",
			"https://api.xero.com/api.xro/2.0/Invoices", cause)

		require.ErrorIs(t, ve, cause)
		assert.Same(t, cause, ve.Unwrap())
	})

	t.Run("unwrap is nil without a cause", func(t *testing.T) {
		ve := NewVendorError(SystemSage, 400, "", "bad request", "", nil)
		assert.NoError(t, ve.Unwrap())
	})

	t.Run("wrapped errors still expose the vendor error", func(t *testing.T) {
		ve := NewVendorError(SystemZohoBooks, 429, "E1001", "rate limit exceeded", "", nil)
		wrapped := fmt.Errorf("sync customer: %w", ve)

		var got *VendorError
		require.ErrorAs(t, wrapped, &got)
		assert.Equal(t, 429, got.StatusCode)
		assert.Equal(t, "E1001", got.Code)
	})
}

func TestVendorErrorError(t *testing.T) {
	t.Run("includes vendor code when present", func(t *testing.T) {
		ve := NewVendorError(SystemQuickBooks, 401, "3200", "token expired", "", nil)
		assert.Equal(t, "quickbooks: token expired (code=3200, status=401)", ve.Error())
	})

	t.Run("omits code when empty", func(t *testing.T) {
		ve := NewVendorError(SystemXero, 503, "", "service unavailable", "", nil)
		assert.Equal(t, "xero: service unavailable (status=503)", ve.Error())
	})
}
