package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finplat/backend/internal/domain/accounting"
)

const (
	xeroTokenURL = "https://identity.xero.com/connect/token"
	xeroAPIBase  = "https://api.xero.com/api.xro/2.0"
)

// XeroConnector talks to Xero over its REST API with the same OAuth2
// refresh-token flow as QuickBooks. RealmID carries the Xero tenant id sent
// on every request.
type XeroConnector struct {
	settings  *accounting.OAuthSettings
	client    *http.Client
	connected bool
}

var _ accounting.Connector = (*XeroConnector)(nil)

// NewXeroConnector creates an unconnected Xero connector.
func NewXeroConnector() *XeroConnector {
	return &XeroConnector{}
}

// System returns the accounting system this connector handles.
func (c *XeroConnector) System() accounting.AccountingSystem {
	return accounting.SystemXero
}

// Capabilities returns the operations Xero supports. Xero is the only cloud
// vendor here with a bank transactions API.
func (c *XeroConnector) Capabilities() accounting.Capabilities {
	return accounting.Capabilities{
		Entities: map[accounting.EntityType]bool{
			accounting.EntityTypeCustomer:        true,
			accounting.EntityTypeInvoice:         true,
			accounting.EntityTypePayment:         true,
			accounting.EntityTypeRefund:          true,
			accounting.EntityTypeChartOfAccounts: true,
			accounting.EntityTypeTrialBalance:    true,
			accounting.EntityTypeGLAccount:       true,
			accounting.EntityTypeJournalEntry:    true,
			accounting.EntityTypeBankEntry:       true,
		},
		SupportsPull:         true,
		SupportsPush:         true,
		SupportsTrialBalance: true,
		SupportsBankEntries:  true,
	}
}

// Connect builds the OAuth2 client and verifies the tenant connection.
func (c *XeroConnector) Connect(ctx context.Context, settings *accounting.ConnectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.System != accounting.SystemXero {
		return accounting.ErrInvalidSettings
	}
	if settings.OAuth.RealmID == "" {
		return accounting.ErrInvalidSettings
	}
	c.settings = settings.OAuth
	c.client = oauthClient(ctx, c.settings, xeroTokenURL)
	c.connected = true
	return c.TestConnection(ctx)
}

// Disconnect drops the session state.
func (c *XeroConnector) Disconnect(ctx context.Context) error {
	c.connected = false
	c.settings = nil
	c.client = nil
	return nil
}

// TestConnection fetches the organisation record.
func (c *XeroConnector) TestConnection(ctx context.Context) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	_, err := c.get(ctx, "/Organisation")
	return err
}

// ---------------------------------------------------------------------------
// Customer operations (Xero contacts)
// ---------------------------------------------------------------------------

func (c *XeroConnector) ImportCustomers(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.get(ctx, "/Contacts?where=IsCustomer==true")
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Contacts []xeroContact `json:"Contacts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable contacts response", xeroAPIBase, err)
	}

	customers := make([]accounting.Customer, 0, len(resp.Contacts))
	for _, xc := range resp.Contacts {
		customers = append(customers, accounting.Customer{
			ExternalID: xc.ContactID,
			Name:       xc.Name,
			Email:      xc.EmailAddress,
			TaxNumber:  xc.TaxNumber,
			IsActive:   xc.ContactStatus == "ACTIVE",
		})
	}
	return customers, importResult(len(customers), len(customers), 0, started), nil
}

func (c *XeroConnector) SyncCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Contacts": []xeroContact{{
			Name:         customer.Name,
			EmailAddress: customer.Email,
			TaxNumber:    customer.TaxNumber,
		}},
	}
	raw, err := c.post(ctx, "/Contacts", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Contacts []xeroContact `json:"Contacts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Contacts) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable contacts response", xeroAPIBase, err)
	}
	return okResult(resp.Contacts[0].ContactID, started), nil
}

func (c *XeroConnector) UpdateCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Contacts": []xeroContact{{
			ContactID:    customer.ExternalID,
			Name:         customer.Name,
			EmailAddress: customer.Email,
		}},
	}
	if _, err := c.post(ctx, "/Contacts", payload); err != nil {
		return nil, err
	}
	return okResult(customer.ExternalID, started), nil
}

func (c *XeroConnector) DeleteCustomer(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	// Xero archives contacts instead of deleting them.
	started := time.Now()
	payload := map[string]any{
		"Contacts": []map[string]string{{"ContactID": externalID, "ContactStatus": "ARCHIVED"}},
	}
	if _, err := c.post(ctx, "/Contacts", payload); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

// ---------------------------------------------------------------------------
// Invoice, payment and refund operations
// ---------------------------------------------------------------------------

func (c *XeroConnector) ImportInvoices(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.get(ctx, "/Invoices?where=Type==\"ACCREC\"")
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Invoices []xeroInvoice `json:"Invoices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable invoices response", xeroAPIBase, err)
	}

	invoices := make([]accounting.Invoice, 0, len(resp.Invoices))
	for _, xi := range resp.Invoices {
		invoices = append(invoices, accounting.Invoice{
			ExternalID:         xi.InvoiceID,
			InvoiceNumber:      xi.InvoiceNumber,
			CustomerExternalID: xi.Contact.ContactID,
			Subtotal:           xi.SubTotal,
			TaxTotal:           xi.TotalTax,
			Total:              xi.Total,
			AmountDue:          xi.AmountDue,
			Status:             xi.Status,
		})
	}
	return invoices, importResult(len(invoices), len(invoices), 0, started), nil
}

func (c *XeroConnector) SyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(invoice.Lines))
	for _, l := range invoice.Lines {
		lines = append(lines, map[string]any{
			"Description": l.Description,
			"Quantity":    l.Quantity,
			"UnitAmount":  l.UnitPrice,
			"AccountCode": l.AccountCode,
		})
	}
	payload := map[string]any{
		"Invoices": []map[string]any{{
			"Type":          "ACCREC",
			"InvoiceNumber": invoice.InvoiceNumber,
			"Contact":       map[string]string{"ContactID": invoice.CustomerExternalID},
			"Date":          invoice.IssueDate.Format("2006-01-02"),
			"DueDate":       invoice.DueDate.Format("2006-01-02"),
			"LineItems":     lines,
			"Status":        "AUTHORISED",
		}},
	}
	raw, err := c.post(ctx, "/Invoices", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Invoices []xeroInvoice `json:"Invoices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Invoices) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable invoices response", xeroAPIBase, err)
	}
	return okResult(resp.Invoices[0].InvoiceID, started), nil
}

func (c *XeroConnector) UpdateInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Invoices": []map[string]any{{
			"InvoiceID":     invoice.ExternalID,
			"InvoiceNumber": invoice.InvoiceNumber,
		}},
	}
	if _, err := c.post(ctx, "/Invoices", payload); err != nil {
		return nil, err
	}
	return okResult(invoice.ExternalID, started), nil
}

func (c *XeroConnector) DeleteInvoice(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Invoices": []map[string]string{{"InvoiceID": externalID, "Status": "VOIDED"}},
	}
	if _, err := c.post(ctx, "/Invoices", payload); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

func (c *XeroConnector) SyncPayment(ctx context.Context, payment *accounting.Payment) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Payments": []map[string]any{{
			"Invoice":   map[string]string{"InvoiceID": payment.InvoiceExternalID},
			"Amount":    payment.Amount,
			"Date":      payment.PaidAt.Format("2006-01-02"),
			"Reference": payment.Reference,
		}},
	}
	raw, err := c.post(ctx, "/Payments", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Payments []struct {
			PaymentID string `json:"PaymentID"`
		} `json:"Payments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Payments) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable payments response", xeroAPIBase, err)
	}
	return okResult(resp.Payments[0].PaymentID, started), nil
}

func (c *XeroConnector) SyncRefund(ctx context.Context, refund *accounting.Refund) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"CreditNotes": []map[string]any{{
			"Type": "ACCRECCREDIT",
			"Date": refund.RefundedAt.Format("2006-01-02"),
		}},
	}
	raw, err := c.post(ctx, "/CreditNotes", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		CreditNotes []struct {
			CreditNoteID string `json:"CreditNoteID"`
		} `json:"CreditNotes"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.CreditNotes) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable credit notes response", xeroAPIBase, err)
	}
	return okResult(resp.CreditNotes[0].CreditNoteID, started), nil
}

// ---------------------------------------------------------------------------
// Ledger operations
// ---------------------------------------------------------------------------

func (c *XeroConnector) ImportChartOfAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.get(ctx, "/Accounts")
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		Accounts []xeroAccount `json:"Accounts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable accounts response", xeroAPIBase, err)
	}

	accounts := make([]accounting.ChartOfAccount, 0, len(resp.Accounts))
	for _, xa := range resp.Accounts {
		accounts = append(accounts, accounting.ChartOfAccount{
			ExternalID:  xa.AccountID,
			Code:        xa.Code,
			Name:        xa.Name,
			Type:        xa.Type,
			Description: xa.Description,
			IsActive:    xa.Status == "ACTIVE",
		})
	}
	return accounts, importResult(len(accounts), len(accounts), 0, started), nil
}

func (c *XeroConnector) ImportTrialBalance(ctx context.Context, filters accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.get(ctx, "/Reports/TrialBalance")
	if err != nil {
		return nil, nil, err
	}

	var report xeroReport
	if err := json.Unmarshal(raw, &report); err != nil || len(report.Reports) == 0 {
		return nil, nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable report", xeroAPIBase, err)
	}

	rows := make([]accounting.TrialBalanceRow, 0)
	asOf := time.Now()
	for _, section := range report.Reports[0].Rows {
		for _, r := range section.Rows {
			if len(r.Cells) < 3 {
				continue
			}
			rows = append(rows, accounting.TrialBalanceRow{
				AccountName: r.Cells[0].Value,
				Debit:       parseAmount(r.Cells[1].Value),
				Credit:      parseAmount(r.Cells[2].Value),
				AsOf:        asOf,
			})
		}
	}
	return rows, importResult(len(rows), len(rows), 0, started), nil
}

func (c *XeroConnector) ImportGLAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return c.ImportChartOfAccounts(ctx, filters)
}

func (c *XeroConnector) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		amount := l.Debit
		if l.Credit.IsPositive() {
			amount = l.Credit.Neg()
		}
		lines = append(lines, map[string]any{
			"Description": l.Description,
			"LineAmount":  amount,
			"AccountCode": l.AccountCode,
		})
	}
	payload := map[string]any{
		"ManualJournals": []map[string]any{{
			"Narration":    entry.Description,
			"Date":         entry.EntryDate.Format("2006-01-02"),
			"JournalLines": lines,
		}},
	}
	raw, err := c.post(ctx, "/ManualJournals", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		ManualJournals []struct {
			ManualJournalID string `json:"ManualJournalID"`
		} `json:"ManualJournals"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.ManualJournals) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable manual journals response", xeroAPIBase, err)
	}
	return okResult(resp.ManualJournals[0].ManualJournalID, started), nil
}

func (c *XeroConnector) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	kind := "SPEND"
	if entry.IsCredit {
		kind = "RECEIVE"
	}
	payload := map[string]any{
		"BankTransactions": []map[string]any{{
			"Type":        kind,
			"Date":        entry.TransactionDate.Format("2006-01-02"),
			"Reference":   entry.StatementReference,
			"BankAccount": map[string]string{"Code": entry.BankAccountCode},
			"Contact":     map[string]string{"Name": entry.CounterpartyName},
			"LineItems": []map[string]any{{
				"Description": entry.Description,
				"LineAmount":  entry.Amount,
			}},
		}},
	}
	raw, err := c.post(ctx, "/BankTransactions", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		BankTransactions []struct {
			BankTransactionID string `json:"BankTransactionID"`
		} `json:"BankTransactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.BankTransactions) == 0 {
		return nil, accounting.NewVendorError(accounting.SystemXero, 0, "BAD_JSON", "unparseable bank transactions response", xeroAPIBase, err)
	}
	return okResult(resp.BankTransactions[0].BankTransactionID, started), nil
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

func (c *XeroConnector) get(ctx context.Context, path string) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	return doJSON(ctx, c.client, accounting.SystemXero, http.MethodGet, xeroAPIBase+path,
		map[string]string{"Xero-Tenant-Id": c.settings.RealmID}, nil)
}

func (c *XeroConnector) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	return doJSON(ctx, c.client, accounting.SystemXero, http.MethodPost, xeroAPIBase+path,
		map[string]string{"Xero-Tenant-Id": c.settings.RealmID}, payload)
}

// ---------------------------------------------------------------------------
// Xero wire shapes (minimal field coverage)
// ---------------------------------------------------------------------------

type xeroContact struct {
	ContactID     string `json:"ContactID,omitempty"`
	Name          string `json:"Name"`
	EmailAddress  string `json:"EmailAddress,omitempty"`
	TaxNumber     string `json:"TaxNumber,omitempty"`
	ContactStatus string `json:"ContactStatus,omitempty"`
}

type xeroInvoice struct {
	InvoiceID     string          `json:"InvoiceID,omitempty"`
	InvoiceNumber string          `json:"InvoiceNumber,omitempty"`
	Status        string          `json:"Status,omitempty"`
	SubTotal      decimal.Decimal `json:"SubTotal,omitempty"`
	TotalTax      decimal.Decimal `json:"TotalTax,omitempty"`
	Total         decimal.Decimal `json:"Total,omitempty"`
	AmountDue     decimal.Decimal `json:"AmountDue,omitempty"`
	Contact       xeroContact     `json:"Contact,omitempty"`
}

type xeroAccount struct {
	AccountID   string `json:"AccountID"`
	Code        string `json:"Code,omitempty"`
	Name        string `json:"Name"`
	Type        string `json:"Type"`
	Status      string `json:"Status"`
	Description string `json:"Description,omitempty"`
}

type xeroReport struct {
	Reports []struct {
		Rows []struct {
			Rows []struct {
				Cells []struct {
					Value string `json:"Value"`
				} `json:"Cells"`
			} `json:"Rows"`
		} `json:"Rows"`
	} `json:"Reports"`
}
