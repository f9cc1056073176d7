package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finplat/backend/internal/domain/accounting"
)

const sageDefaultBaseURL = "https://api.accounting.sage.com/v3.1"

// SageConnector talks to Sage Business Cloud Accounting over its REST API
// using a long-lived API key as a bearer token.
type SageConnector struct {
	settings  *accounting.APIKeySettings
	baseURL   string
	client    *http.Client
	connected bool
}

var _ accounting.Connector = (*SageConnector)(nil)

// NewSageConnector creates an unconnected Sage connector.
func NewSageConnector() *SageConnector {
	return &SageConnector{
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// System returns the accounting system this connector handles.
func (c *SageConnector) System() accounting.AccountingSystem {
	return accounting.SystemSage
}

// Capabilities returns the operations Sage supports.
func (c *SageConnector) Capabilities() accounting.Capabilities {
	return accounting.Capabilities{
		Entities: map[accounting.EntityType]bool{
			accounting.EntityTypeCustomer:        true,
			accounting.EntityTypeInvoice:         true,
			accounting.EntityTypePayment:         true,
			accounting.EntityTypeChartOfAccounts: true,
			accounting.EntityTypeGLAccount:       true,
			accounting.EntityTypeJournalEntry:    true,
		},
		SupportsPull: true,
		SupportsPush: true,
	}
}

// Connect validates the settings and probes the API.
func (c *SageConnector) Connect(ctx context.Context, settings *accounting.ConnectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.System != accounting.SystemSage {
		return accounting.ErrInvalidSettings
	}
	c.settings = settings.APIKey
	c.baseURL = c.settings.BaseURL
	if c.baseURL == "" {
		c.baseURL = sageDefaultBaseURL
	}
	c.connected = true
	return c.TestConnection(ctx)
}

// Disconnect drops the session state.
func (c *SageConnector) Disconnect(ctx context.Context) error {
	c.connected = false
	c.settings = nil
	return nil
}

// TestConnection fetches the business record.
func (c *SageConnector) TestConnection(ctx context.Context) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	_, err := c.do(ctx, http.MethodGet, "/businesses", nil)
	return err
}

// ---------------------------------------------------------------------------
// Customer operations (Sage contacts)
// ---------------------------------------------------------------------------

func (c *SageConnector) ImportCustomers(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/contacts?contact_type_id=CUSTOMER&items_per_page=%d", pageSize(filters, 0)), nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Items []sageContact `json:"$items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable contacts response", c.baseURL, err)
	}

	customers := make([]accounting.Customer, 0, len(resp.Items))
	for _, sc := range resp.Items {
		customers = append(customers, accounting.Customer{
			ExternalID: sc.ID,
			Name:       sc.Name,
			Email:      sc.Email,
			TaxNumber:  sc.TaxNumber,
			IsActive:   true,
		})
	}
	return customers, importResult(len(customers), len(customers), 0, started), nil
}

func (c *SageConnector) SyncCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"contact": map[string]any{
			"name":             customer.Name,
			"contact_type_ids": []string{"CUSTOMER"},
			"email":            customer.Email,
			"tax_number":       customer.TaxNumber,
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/contacts", payload)
	if err != nil {
		return nil, err
	}
	var resp sageContact
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable contact response", c.baseURL, err)
	}
	return okResult(resp.ID, started), nil
}

func (c *SageConnector) UpdateCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"contact": map[string]any{"name": customer.Name, "email": customer.Email},
	}
	if _, err := c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(customer.ExternalID), payload); err != nil {
		return nil, err
	}
	return okResult(customer.ExternalID, started), nil
}

func (c *SageConnector) DeleteCustomer(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	if _, err := c.do(ctx, http.MethodDelete, "/contacts/"+url.PathEscape(externalID), nil); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

// ---------------------------------------------------------------------------
// Invoice and payment operations
// ---------------------------------------------------------------------------

func (c *SageConnector) ImportInvoices(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	started := time.Now()
	path := fmt.Sprintf("/sales_invoices?items_per_page=%d", pageSize(filters, 0))
	if filters.ModifiedSince != nil {
		path += "&updated_or_created_since=" + url.QueryEscape(filters.ModifiedSince.Format(time.RFC3339))
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Items []sageInvoice `json:"$items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable invoices response", c.baseURL, err)
	}

	invoices := make([]accounting.Invoice, 0, len(resp.Items))
	for _, si := range resp.Items {
		issue, _ := time.Parse("2006-01-02", si.Date)
		due, _ := time.Parse("2006-01-02", si.DueDate)
		invoices = append(invoices, accounting.Invoice{
			ExternalID:         si.ID,
			InvoiceNumber:      si.Reference,
			CustomerExternalID: si.Contact.ID,
			IssueDate:          issue,
			DueDate:            due,
			Total:              si.TotalAmount,
			AmountDue:          si.OutstandingAmount,
		})
	}
	return invoices, importResult(len(invoices), len(invoices), 0, started), nil
}

func (c *SageConnector) SyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(invoice.Lines))
	for _, l := range invoice.Lines {
		lines = append(lines, map[string]any{
			"description":    l.Description,
			"quantity":       l.Quantity,
			"unit_price":     l.UnitPrice,
			"ledger_account": map[string]string{"displayed_as": l.AccountCode},
		})
	}
	payload := map[string]any{
		"sales_invoice": map[string]any{
			"contact_id":    invoice.CustomerExternalID,
			"reference":     invoice.InvoiceNumber,
			"date":          invoice.IssueDate.Format("2006-01-02"),
			"due_date":      invoice.DueDate.Format("2006-01-02"),
			"invoice_lines": lines,
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/sales_invoices", payload)
	if err != nil {
		return nil, err
	}
	var resp sageInvoice
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable invoice response", c.baseURL, err)
	}
	return okResult(resp.ID, started), nil
}

func (c *SageConnector) UpdateInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"sales_invoice": map[string]any{"reference": invoice.InvoiceNumber},
	}
	if _, err := c.do(ctx, http.MethodPut, "/sales_invoices/"+url.PathEscape(invoice.ExternalID), payload); err != nil {
		return nil, err
	}
	return okResult(invoice.ExternalID, started), nil
}

func (c *SageConnector) DeleteInvoice(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	if _, err := c.do(ctx, http.MethodDelete, "/sales_invoices/"+url.PathEscape(externalID), nil); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

func (c *SageConnector) SyncPayment(ctx context.Context, payment *accounting.Payment) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"contact_payment": map[string]any{
			"total_amount": payment.Amount,
			"date":         payment.PaidAt.Format("2006-01-02"),
			"reference":    payment.Reference,
			"allocated_artefacts": []map[string]any{{
				"artefact_id": payment.InvoiceExternalID,
				"amount":      payment.Amount,
			}},
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/contact_payments", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable payment response", c.baseURL, err)
	}
	return okResult(resp.ID, started), nil
}

func (c *SageConnector) SyncRefund(ctx context.Context, refund *accounting.Refund) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemSage, "sync refund")
}

// ---------------------------------------------------------------------------
// Ledger operations
// ---------------------------------------------------------------------------

func (c *SageConnector) ImportChartOfAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.do(ctx, http.MethodGet, "/ledger_accounts", nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Items []struct {
			ID          string `json:"id"`
			DisplayedAs string `json:"displayed_as"`
			NominalCode int    `json:"nominal_code"`
			LedgerType  struct {
				ID string `json:"id"`
			} `json:"ledger_account_type"`
		} `json:"$items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable ledger accounts response", c.baseURL, err)
	}

	accounts := make([]accounting.ChartOfAccount, 0, len(resp.Items))
	for _, sa := range resp.Items {
		accounts = append(accounts, accounting.ChartOfAccount{
			ExternalID: sa.ID,
			Code:       fmt.Sprintf("%d", sa.NominalCode),
			Name:       sa.DisplayedAs,
			Type:       sa.LedgerType.ID,
			IsActive:   true,
		})
	}
	return accounts, importResult(len(accounts), len(accounts), 0, started), nil
}

func (c *SageConnector) ImportTrialBalance(ctx context.Context, filters accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	return nil, nil, fmt.Errorf("%s import trial balance: %w", accounting.SystemSage, accounting.ErrOperationNotSupported)
}

func (c *SageConnector) ImportGLAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return c.ImportChartOfAccounts(ctx, filters)
}

func (c *SageConnector) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		lines = append(lines, map[string]any{
			"details":        l.Description,
			"debit":          l.Debit,
			"credit":         l.Credit,
			"ledger_account": map[string]string{"displayed_as": l.AccountCode},
		})
	}
	payload := map[string]any{
		"journal": map[string]any{
			"date":          entry.EntryDate.Format("2006-01-02"),
			"reference":     entry.Reference,
			"description":   entry.Description,
			"journal_lines": lines,
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/journals", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemSage, 0, "BAD_JSON", "unparseable journal response", c.baseURL, err)
	}
	return okResult(resp.ID, started), nil
}

func (c *SageConnector) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemSage, "sync bank entry")
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

func (c *SageConnector) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.settings.APIKey,
	}
	return doJSON(ctx, c.client, accounting.SystemSage, method, c.baseURL+path, headers, payload)
}

// ---------------------------------------------------------------------------
// Sage wire shapes (minimal field coverage)
// ---------------------------------------------------------------------------

type sageContact struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	TaxNumber string `json:"tax_number,omitempty"`
}

type sageInvoice struct {
	ID                string          `json:"id,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	Date              string          `json:"date,omitempty"`
	DueDate           string          `json:"due_date,omitempty"`
	TotalAmount       decimal.Decimal `json:"total_amount,omitempty"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount,omitempty"`
	Contact           sageContact     `json:"contact,omitempty"`
}
