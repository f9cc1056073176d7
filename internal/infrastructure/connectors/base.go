package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finplat/backend/internal/domain/accounting"
)

// maxResponseSize caps vendor API responses (10MB).
const maxResponseSize = 10 * 1024 * 1024

// defaultRequestTimeout is the per-call HTTP timeout each connector carries;
// the hub never imposes one from outside.
const defaultRequestTimeout = 30 * time.Second

// vendorErrorBody is the error envelope shape most REST vendors return.
type vendorErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// doJSON performs one JSON request against a vendor API. Non-2xx responses
// become a VendorError carrying the HTTP status so classification can act
// on it.
func doJSON(ctx context.Context, client *http.Client, system accounting.AccountingSystem, method, url string, headers map[string]string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", system, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", system, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, accounting.NewVendorError(system, 0, "", "request failed", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, accounting.NewVendorError(system, resp.StatusCode, "", "read response", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope vendorErrorBody
		_ = json.Unmarshal(raw, &envelope)
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, accounting.NewVendorError(system, resp.StatusCode, envelope.Code, msg, url, nil)
	}
	return raw, nil
}

// unsupported returns the uniform result for operations a vendor does not
// expose. Callers are expected to gate on Capabilities first.
func unsupported(system accounting.AccountingSystem, op string) (*accounting.SyncResult, error) {
	return nil, fmt.Errorf("%s %s: %w", system, op, accounting.ErrOperationNotSupported)
}

// okResult builds a successful single-record result.
func okResult(externalID string, started time.Time) *accounting.SyncResult {
	return &accounting.SyncResult{
		Success:          true,
		ExternalID:       externalID,
		RecordsProcessed: 1,
		RecordsSucceeded: 1,
		Duration:         time.Since(started),
	}
}

// importResult builds a batch result for an import.
func importResult(processed, succeeded, failed int, started time.Time) *accounting.SyncResult {
	return &accounting.SyncResult{
		Success:          failed == 0,
		RecordsProcessed: processed,
		RecordsSucceeded: succeeded,
		RecordsFailed:    failed,
		Duration:         time.Since(started),
	}
}

// parseAmount parses a vendor-formatted amount string, returning zero for
// anything unparseable.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// pageSize resolves the effective page size for an import.
func pageSize(filters accounting.ImportFilters, fallback int) int {
	if filters.PageSize > 0 {
		return filters.PageSize
	}
	if fallback > 0 {
		return fallback
	}
	return 100
}
