package accounting

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"syscall"
)

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Classification is the verdict for one handled exception.
type Classification struct {
	Category     ErrorCategory
	Severity     ErrorSeverity
	IsRetryable  bool
	MaxRetries   int
	NotifyAdmin  bool
	SuggestedFix string
}

// Classify derives category, severity, retryability and notification policy
// for an error. Precedence: known network error codes, then HTTP status from
// a VendorError, then keyword matching on the message, then UNKNOWN.
func Classify(err error) Classification {
	category := categorize(err)
	severity := severityFor(category)
	retryable := retryableFor(category)
	return Classification{
		Category:     category,
		Severity:     severity,
		IsRetryable:  retryable,
		MaxRetries:   maxRetriesFor(category),
		NotifyAdmin:  notifyAdminFor(category, severity),
		SuggestedFix: suggestedFixFor(category),
	}
}

func categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	// Network-level failures before anything the vendor said.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return CategoryConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryConnection
	}

	var vendorErr *VendorError
	if errors.As(err, &vendorErr) && vendorErr.StatusCode > 0 {
		switch {
		case vendorErr.StatusCode == 401:
			return CategoryAuthentication
		case vendorErr.StatusCode == 403:
			return CategoryAuthorization
		case vendorErr.StatusCode == 400 || vendorErr.StatusCode == 422:
			return CategoryValidation
		case vendorErr.StatusCode == 408 || vendorErr.StatusCode == 504:
			return CategoryTimeout
		case vendorErr.StatusCode == 429:
			return CategoryRateLimit
		case vendorErr.StatusCode >= 500:
			return CategorySystem
		}
	}

	return categorizeByMessage(err.Error())
}

func categorizeByMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "auth") || strings.Contains(lower, "credential"):
		return CategoryAuthentication
	case strings.Contains(lower, "permission") || strings.Contains(lower, "forbidden"):
		return CategoryAuthorization
	case strings.Contains(lower, "validation") || strings.Contains(lower, "invalid"):
		return CategoryValidation
	case strings.Contains(lower, "mapping") || strings.Contains(lower, "field"):
		return CategoryMapping
	case strings.Contains(lower, "conflict") || strings.Contains(lower, "duplicate"):
		return CategoryConflict
	case strings.Contains(lower, "timeout"):
		return CategoryTimeout
	case strings.Contains(lower, "rate limit"):
		return CategoryRateLimit
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network"):
		return CategoryConnection
	default:
		return CategoryUnknown
	}
}

func severityFor(category ErrorCategory) ErrorSeverity {
	switch category {
	case CategorySystem, CategoryDataIntegrity:
		return SeverityCritical
	case CategoryAuthentication, CategoryAuthorization:
		return SeverityHigh
	case CategoryValidation, CategoryMapping, CategoryConflict:
		return SeverityMedium
	case CategoryConnection, CategoryTimeout, CategoryRateLimit:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func retryableFor(category ErrorCategory) bool {
	switch category {
	case CategoryConnection, CategoryTimeout, CategoryRateLimit,
		CategorySystem, CategoryConflict:
		return true
	default:
		return false
	}
}

func maxRetriesFor(category ErrorCategory) int {
	switch category {
	case CategoryConnection, CategoryTimeout:
		return 5
	case CategoryRateLimit, CategorySystem:
		return 3
	case CategoryConflict:
		return 2
	default:
		return 0
	}
}

// notifyAdminFor triggers on CRITICAL or HIGH severity, or on an auth
// category, never on a purely transient one.
func notifyAdminFor(category ErrorCategory, severity ErrorSeverity) bool {
	switch category {
	case CategoryConnection, CategoryTimeout, CategoryRateLimit:
		return false
	case CategoryAuthentication, CategoryAuthorization:
		return true
	}
	return severity == SeverityCritical || severity == SeverityHigh
}

func suggestedFixFor(category ErrorCategory) string {
	switch category {
	case CategoryConnection:
		return "Verify the accounting system is reachable and the host/port settings are correct."
	case CategoryAuthentication:
		return "Re-enter or refresh the connection credentials for this accounting system."
	case CategoryAuthorization:
		return "Grant the connected app the required permissions in the accounting system."
	case CategoryValidation:
		return "Correct the offending field values and retry the sync."
	case CategoryMapping:
		return "Review the account and field mappings for this accounting system."
	case CategoryConflict:
		return "Resolve the conflicting or duplicate record before retrying."
	case CategoryTimeout:
		return "The accounting system responded slowly; the sync will be retried automatically."
	case CategoryRateLimit:
		return "The vendor rate limit was hit; the sync will be retried after a delay."
	case CategorySystem:
		return "The accounting system reported an internal error; contact the vendor if it persists."
	case CategoryDataIntegrity:
		return "Inspect the affected records for corruption before retrying."
	default:
		return "Inspect the error details and retry manually if appropriate."
	}
}

// ---------------------------------------------------------------------------
// Sanitization
// ---------------------------------------------------------------------------

// maxStackTraceLen caps stored stack traces.
const maxStackTraceLen = 4096

var secretFieldPattern = regexp.MustCompile(
	`(?i)("?(?:password|api_key|apikey|api_secret|token|access_token|refresh_token|client_secret|secret)"?\s*[:=]\s*)("[^"]*"|\S+)`)

// SanitizeErrorText masks credential-bearing fields in free-form error text
// so the raw error can be stored safely.
func SanitizeErrorText(text string) string {
	return secretFieldPattern.ReplaceAllString(text, `$1"***"`)
}

// SanitizeStackTrace redacts secrets and caps the trace length.
func SanitizeStackTrace(trace string) string {
	trace = SanitizeErrorText(trace)
	if len(trace) > maxStackTraceLen {
		trace = trace[:maxStackTraceLen]
	}
	return trace
}
