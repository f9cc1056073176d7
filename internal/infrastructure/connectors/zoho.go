package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finplat/backend/internal/domain/accounting"
)

const zohoDefaultBaseURL = "https://www.zohobooks.com/api/v3"

// ZohoBooksConnector talks to Zoho Books over its REST API. Auth is an API
// key sent as an OAuth-style header; APISecret carries the organization id
// Zoho scopes every request to.
type ZohoBooksConnector struct {
	settings  *accounting.APIKeySettings
	baseURL   string
	client    *http.Client
	connected bool
}

var _ accounting.Connector = (*ZohoBooksConnector)(nil)

// NewZohoBooksConnector creates an unconnected Zoho Books connector.
func NewZohoBooksConnector() *ZohoBooksConnector {
	return &ZohoBooksConnector{
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// System returns the accounting system this connector handles.
func (c *ZohoBooksConnector) System() accounting.AccountingSystem {
	return accounting.SystemZohoBooks
}

// Capabilities returns the operations Zoho Books supports.
func (c *ZohoBooksConnector) Capabilities() accounting.Capabilities {
	return accounting.Capabilities{
		Entities: map[accounting.EntityType]bool{
			accounting.EntityTypeCustomer:        true,
			accounting.EntityTypeInvoice:         true,
			accounting.EntityTypePayment:         true,
			accounting.EntityTypeRefund:          true,
			accounting.EntityTypeChartOfAccounts: true,
			accounting.EntityTypeGLAccount:       true,
			accounting.EntityTypeJournalEntry:    true,
		},
		SupportsPull: true,
		SupportsPush: true,
	}
}

// Connect validates the settings and probes the API.
func (c *ZohoBooksConnector) Connect(ctx context.Context, settings *accounting.ConnectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.System != accounting.SystemZohoBooks {
		return accounting.ErrInvalidSettings
	}
	c.settings = settings.APIKey
	c.baseURL = c.settings.BaseURL
	if c.baseURL == "" {
		c.baseURL = zohoDefaultBaseURL
	}
	c.connected = true
	return c.TestConnection(ctx)
}

// Disconnect drops the session state.
func (c *ZohoBooksConnector) Disconnect(ctx context.Context) error {
	c.connected = false
	c.settings = nil
	return nil
}

// TestConnection lists organizations, which any valid key can do.
func (c *ZohoBooksConnector) TestConnection(ctx context.Context) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	_, err := c.do(ctx, http.MethodGet, "/organizations", nil)
	return err
}

// ---------------------------------------------------------------------------
// Customer operations (Zoho contacts)
// ---------------------------------------------------------------------------

func (c *ZohoBooksConnector) ImportCustomers(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/contacts?contact_type=customer&per_page=%d", pageSize(filters, 0)), nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Contacts []zohoContact `json:"contacts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable contacts response", c.baseURL, err)
	}

	customers := make([]accounting.Customer, 0, len(resp.Contacts))
	for _, zc := range resp.Contacts {
		customers = append(customers, accounting.Customer{
			ExternalID: zc.ContactID,
			Name:       zc.ContactName,
			Email:      zc.Email,
			Phone:      zc.Phone,
			IsActive:   zc.Status == "active",
		})
	}
	return customers, importResult(len(customers), len(customers), 0, started), nil
}

func (c *ZohoBooksConnector) SyncCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := zohoContact{
		ContactName: customer.Name,
		Email:       customer.Email,
		Phone:       customer.Phone,
	}
	raw, err := c.do(ctx, http.MethodPost, "/contacts", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Contact zohoContact `json:"contact"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable contact response", c.baseURL, err)
	}
	return okResult(resp.Contact.ContactID, started), nil
}

func (c *ZohoBooksConnector) UpdateCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := zohoContact{ContactName: customer.Name, Email: customer.Email, Phone: customer.Phone}
	if _, err := c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(customer.ExternalID), payload); err != nil {
		return nil, err
	}
	return okResult(customer.ExternalID, started), nil
}

func (c *ZohoBooksConnector) DeleteCustomer(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	if _, err := c.do(ctx, http.MethodDelete, "/contacts/"+url.PathEscape(externalID), nil); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

// ---------------------------------------------------------------------------
// Invoice, payment and refund operations
// ---------------------------------------------------------------------------

func (c *ZohoBooksConnector) ImportInvoices(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	started := time.Now()
	path := fmt.Sprintf("/invoices?per_page=%d", pageSize(filters, 0))
	if filters.ModifiedSince != nil {
		path += "&last_modified_time=" + url.QueryEscape(filters.ModifiedSince.Format(time.RFC3339))
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Invoices []zohoInvoice `json:"invoices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable invoices response", c.baseURL, err)
	}

	invoices := make([]accounting.Invoice, 0, len(resp.Invoices))
	for _, zi := range resp.Invoices {
		issue, _ := time.Parse("2006-01-02", zi.Date)
		due, _ := time.Parse("2006-01-02", zi.DueDate)
		invoices = append(invoices, accounting.Invoice{
			ExternalID:         zi.InvoiceID,
			InvoiceNumber:      zi.InvoiceNumber,
			CustomerExternalID: zi.CustomerID,
			IssueDate:          issue,
			DueDate:            due,
			Total:              parseAmount(zi.Total.String()),
			AmountDue:          parseAmount(zi.Balance.String()),
			Status:             zi.Status,
		})
	}
	return invoices, importResult(len(invoices), len(invoices), 0, started), nil
}

func (c *ZohoBooksConnector) SyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(invoice.Lines))
	for _, l := range invoice.Lines {
		lines = append(lines, map[string]any{
			"description": l.Description,
			"quantity":    l.Quantity,
			"rate":        l.UnitPrice,
		})
	}
	payload := map[string]any{
		"customer_id":    invoice.CustomerExternalID,
		"invoice_number": invoice.InvoiceNumber,
		"date":           invoice.IssueDate.Format("2006-01-02"),
		"due_date":       invoice.DueDate.Format("2006-01-02"),
		"line_items":     lines,
	}
	raw, err := c.do(ctx, http.MethodPost, "/invoices", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Invoice zohoInvoice `json:"invoice"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable invoice response", c.baseURL, err)
	}
	return okResult(resp.Invoice.InvoiceID, started), nil
}

func (c *ZohoBooksConnector) UpdateInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{"invoice_number": invoice.InvoiceNumber}
	if _, err := c.do(ctx, http.MethodPut, "/invoices/"+url.PathEscape(invoice.ExternalID), payload); err != nil {
		return nil, err
	}
	return okResult(invoice.ExternalID, started), nil
}

func (c *ZohoBooksConnector) DeleteInvoice(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	if _, err := c.do(ctx, http.MethodDelete, "/invoices/"+url.PathEscape(externalID), nil); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

func (c *ZohoBooksConnector) SyncPayment(ctx context.Context, payment *accounting.Payment) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"amount":           payment.Amount,
		"date":             payment.PaidAt.Format("2006-01-02"),
		"reference_number": payment.Reference,
		"invoices": []map[string]any{{
			"invoice_id":     payment.InvoiceExternalID,
			"amount_applied": payment.Amount,
		}},
	}
	raw, err := c.do(ctx, http.MethodPost, "/customerpayments", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Payment struct {
			PaymentID string `json:"payment_id"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable payment response", c.baseURL, err)
	}
	return okResult(resp.Payment.PaymentID, started), nil
}

func (c *ZohoBooksConnector) SyncRefund(ctx context.Context, refund *accounting.Refund) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"date":        refund.RefundedAt.Format("2006-01-02"),
		"amount":      refund.Amount,
		"description": refund.Reason,
	}
	raw, err := c.do(ctx, http.MethodPost, "/creditnotes", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		CreditNote struct {
			CreditNoteID string `json:"creditnote_id"`
		} `json:"creditnote"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable credit note response", c.baseURL, err)
	}
	return okResult(resp.CreditNote.CreditNoteID, started), nil
}

// ---------------------------------------------------------------------------
// Ledger operations
// ---------------------------------------------------------------------------

func (c *ZohoBooksConnector) ImportChartOfAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.do(ctx, http.MethodGet, "/chartofaccounts", nil)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Accounts []struct {
			AccountID   string `json:"account_id"`
			AccountName string `json:"account_name"`
			AccountType string `json:"account_type"`
			IsActive    bool   `json:"is_active"`
		} `json:"chartofaccounts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable chart of accounts response", c.baseURL, err)
	}

	accounts := make([]accounting.ChartOfAccount, 0, len(resp.Accounts))
	for _, za := range resp.Accounts {
		accounts = append(accounts, accounting.ChartOfAccount{
			ExternalID: za.AccountID,
			Name:       za.AccountName,
			Type:       za.AccountType,
			IsActive:   za.IsActive,
		})
	}
	return accounts, importResult(len(accounts), len(accounts), 0, started), nil
}

func (c *ZohoBooksConnector) ImportTrialBalance(ctx context.Context, filters accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	return nil, nil, fmt.Errorf("%s import trial balance: %w", accounting.SystemZohoBooks, accounting.ErrOperationNotSupported)
}

func (c *ZohoBooksConnector) ImportGLAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return c.ImportChartOfAccounts(ctx, filters)
}

func (c *ZohoBooksConnector) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		debitOrCredit := "debit"
		amount := l.Debit
		if l.Credit.IsPositive() {
			debitOrCredit = "credit"
			amount = l.Credit
		}
		lines = append(lines, map[string]any{
			"account_id":      l.AccountExternalID,
			"description":     l.Description,
			"debit_or_credit": debitOrCredit,
			"amount":          amount,
		})
	}
	payload := map[string]any{
		"journal_date": entry.EntryDate.Format("2006-01-02"),
		"reference":    entry.Reference,
		"notes":        entry.Description,
		"line_items":   lines,
	}
	raw, err := c.do(ctx, http.MethodPost, "/journals", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Journal struct {
			JournalID string `json:"journal_id"`
		} `json:"journal"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemZohoBooks, 0, "BAD_JSON", "unparseable journal response", c.baseURL, err)
	}
	return okResult(resp.Journal.JournalID, started), nil
}

func (c *ZohoBooksConnector) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemZohoBooks, "sync bank entry")
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

func (c *ZohoBooksConnector) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	fullURL := c.baseURL + path + sep + "organization_id=" + url.QueryEscape(c.settings.APISecret)
	headers := map[string]string{
		"Authorization": "Zoho-oauthtoken " + c.settings.APIKey,
	}
	return doJSON(ctx, c.client, accounting.SystemZohoBooks, method, fullURL, headers, payload)
}

// ---------------------------------------------------------------------------
// Zoho wire shapes (minimal field coverage)
// ---------------------------------------------------------------------------

type zohoContact struct {
	ContactID   string `json:"contact_id,omitempty"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Status      string `json:"status,omitempty"`
}

type zohoInvoice struct {
	InvoiceID     string      `json:"invoice_id,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	CustomerID    string      `json:"customer_id,omitempty"`
	Date          string      `json:"date,omitempty"`
	DueDate       string      `json:"due_date,omitempty"`
	Status        string      `json:"status,omitempty"`
	Total         json.Number `json:"total,omitempty"`
	Balance       json.Number `json:"balance,omitempty"`
}
