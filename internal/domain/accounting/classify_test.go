package accounting

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_HTTPStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		category    ErrorCategory
		severity    ErrorSeverity
		retryable   bool
		maxRetries  int
		notifyAdmin bool
	}{
		{"401 unauthorized", 401, CategoryAuthentication, SeverityHigh, false, 0, true},
		{"403 forbidden", 403, CategoryAuthorization, SeverityHigh, false, 0, true},
		{"400 bad request", 400, CategoryValidation, SeverityMedium, false, 0, false},
		{"422 unprocessable", 422, CategoryValidation, SeverityMedium, false, 0, false},
		{"408 request timeout", 408, CategoryTimeout, SeverityLow, true, 5, false},
		{"504 gateway timeout", 504, CategoryTimeout, SeverityLow, true, 5, false},
		{"429 rate limited", 429, CategoryRateLimit, SeverityLow, true, 3, false},
		{"500 internal error", 500, CategorySystem, SeverityCritical, true, 3, true},
		{"503 unavailable", 503, CategorySystem, SeverityCritical, true, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVendorError(SystemQuickBooks, tt.status, "", "request failed", "/v3/company", nil)
			c := Classify(err)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.retryable, c.IsRetryable)
			assert.Equal(t, tt.maxRetries, c.MaxRetries)
			assert.Equal(t, tt.notifyAdmin, c.NotifyAdmin)
		})
	}
}

func TestClassify_NetworkErrorsPrecedeVendorStatus(t *testing.T) {
	// A wrapped ECONNRESET must classify as CONNECTION even if a vendor
	// status code is present further up the chain.
	inner := fmt.Errorf("write tcp 10.0.0.1:443: %w", syscall.ECONNRESET)
	err := NewVendorError(SystemXero, 500, "", "request failed", "/api.xro/2.0", inner)

	c := Classify(err)
	assert.Equal(t, CategoryConnection, c.Category)
	assert.Equal(t, SeverityLow, c.Severity)
	assert.True(t, c.IsRetryable)
	assert.Equal(t, 5, c.MaxRetries)
	assert.False(t, c.NotifyAdmin)
}

func TestClassify_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp 192.168.1.10:9000: %w", syscall.ECONNREFUSED)
	c := Classify(err)
	assert.Equal(t, CategoryConnection, c.Category)
	assert.True(t, c.IsRetryable)
}

func TestClassify_KeywordFallback(t *testing.T) {
	tests := []struct {
		message  string
		category ErrorCategory
	}{
		{"invalid credentials supplied", CategoryAuthentication},
		{"permission denied for resource", CategoryAuthorization},
		{"validation failed on line 3", CategoryValidation},
		{"unknown field mapping for ledger account", CategoryMapping},
		{"duplicate invoice number", CategoryConflict},
		{"operation timeout after 30s", CategoryTimeout},
		{"rate limit exceeded, retry later", CategoryRateLimit},
		{"something entirely unexpected", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			c := Classify(errors.New(tt.message))
			assert.Equal(t, tt.category, c.Category)
		})
	}
}

func TestClassify_NeverRetriesAuthCategories(t *testing.T) {
	for _, status := range []int{400, 401, 403, 422} {
		err := NewVendorError(SystemZohoBooks, status, "", "rejected", "", nil)
		c := Classify(err)
		assert.False(t, c.IsRetryable, "status %d must not be retryable", status)
		assert.Zero(t, c.MaxRetries)
	}
}

func TestClassify_SuggestedFixPerCategory(t *testing.T) {
	auth := Classify(NewVendorError(SystemSage, 401, "", "token rejected", "", nil))
	assert.Contains(t, auth.SuggestedFix, "credentials")

	rate := Classify(NewVendorError(SystemSage, 429, "", "too many requests", "", nil))
	assert.Contains(t, rate.SuggestedFix, "rate limit")
}

func TestSanitizeErrorText(t *testing.T) {
	in := `request failed: {"api_key": "sk_live_abc123", "company": "ACME", "password": hunter2}`
	out := SanitizeErrorText(in)

	assert.NotContains(t, out, "sk_live_abc123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "ACME")
	assert.Contains(t, out, "***")
}

func TestSanitizeStackTrace_CapsLength(t *testing.T) {
	long := make([]byte, maxStackTraceLen*2)
	for i := range long {
		long[i] = 'x'
	}
	out := SanitizeStackTrace(string(long))
	assert.Len(t, out, maxStackTraceLen)
}
