package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"github.com/finplat/backend/internal/domain/accounting"
)

const (
	quickbooksTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	quickbooksAPIBase  = "https://quickbooks.api.intuit.com/v3/company"
)

// QuickBooksConnector talks to QuickBooks Online over its REST API using an
// OAuth2 refresh-token flow. Token refresh is handled by the oauth2 token
// source; an expired access token is refreshed transparently before a call.
type QuickBooksConnector struct {
	settings  *accounting.OAuthSettings
	baseURL   string
	client    *http.Client
	connected bool
}

var _ accounting.Connector = (*QuickBooksConnector)(nil)

// NewQuickBooksConnector creates an unconnected QuickBooks connector.
func NewQuickBooksConnector() *QuickBooksConnector {
	return &QuickBooksConnector{}
}

// System returns the accounting system this connector handles.
func (c *QuickBooksConnector) System() accounting.AccountingSystem {
	return accounting.SystemQuickBooks
}

// Capabilities returns the operations QuickBooks Online supports.
func (c *QuickBooksConnector) Capabilities() accounting.Capabilities {
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
		},
		SupportsPull:         true,
		SupportsPush:         true,
		SupportsTrialBalance: true,
	}
}

// Connect builds the OAuth2 client and verifies the realm is reachable.
func (c *QuickBooksConnector) Connect(ctx context.Context, settings *accounting.ConnectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.System != accounting.SystemQuickBooks {
		return accounting.ErrInvalidSettings
	}
	if settings.OAuth.RealmID == "" {
		return accounting.ErrInvalidSettings
	}
	c.settings = settings.OAuth
	c.baseURL = fmt.Sprintf("%s/%s", quickbooksAPIBase, c.settings.RealmID)
	c.client = oauthClient(ctx, c.settings, quickbooksTokenURL)
	c.connected = true
	return c.TestConnection(ctx)
}

// Disconnect drops the session state.
func (c *QuickBooksConnector) Disconnect(ctx context.Context) error {
	c.connected = false
	c.settings = nil
	c.client = nil
	return nil
}

// TestConnection fetches company info, the cheapest authenticated call.
func (c *QuickBooksConnector) TestConnection(ctx context.Context) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	_, err := doJSON(ctx, c.client, accounting.SystemQuickBooks, http.MethodGet,
		fmt.Sprintf("%s/companyinfo/%s", c.baseURL, c.settings.RealmID), nil, nil)
	return err
}

// ---------------------------------------------------------------------------
// Customer operations
// ---------------------------------------------------------------------------

func (c *QuickBooksConnector) ImportCustomers(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	started := time.Now()
	query := "select * from Customer"
	if filters.ModifiedSince != nil {
		query += " where MetaData.LastUpdatedTime > '" + filters.ModifiedSince.Format(time.RFC3339) + "'"
	}
	query += fmt.Sprintf(" maxresults %d", pageSize(filters, 0))

	raw, err := c.query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		QueryResponse struct {
			Customer []qbCustomer `json:"Customer"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable query response", c.baseURL, err)
	}

	customers := make([]accounting.Customer, 0, len(resp.QueryResponse.Customer))
	for _, qc := range resp.QueryResponse.Customer {
		customers = append(customers, accounting.Customer{
			ExternalID: qc.ID,
			Name:       qc.DisplayName,
			Email:      qc.PrimaryEmailAddr.Address,
			Phone:      qc.PrimaryPhone.FreeFormNumber,
			Balance:    qc.Balance,
			IsActive:   qc.Active,
		})
	}
	return customers, importResult(len(customers), len(customers), 0, started), nil
}

func (c *QuickBooksConnector) SyncCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := qbCustomer{
		DisplayName: customer.Name,
		Active:      customer.IsActive,
	}
	payload.PrimaryEmailAddr.Address = customer.Email
	payload.PrimaryPhone.FreeFormNumber = customer.Phone

	raw, err := c.post(ctx, "customer", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Customer qbCustomer `json:"Customer"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable create response", c.baseURL, err)
	}
	return okResult(resp.Customer.ID, started), nil
}

func (c *QuickBooksConnector) UpdateCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Id":          customer.ExternalID,
		"DisplayName": customer.Name,
		"sparse":      true,
	}
	if _, err := c.post(ctx, "customer", payload); err != nil {
		return nil, err
	}
	return okResult(customer.ExternalID, started), nil
}

func (c *QuickBooksConnector) DeleteCustomer(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	// QuickBooks deactivates rather than deletes.
	started := time.Now()
	payload := map[string]any{"Id": externalID, "Active": false, "sparse": true}
	if _, err := c.post(ctx, "customer", payload); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

// ---------------------------------------------------------------------------
// Invoice, payment and refund operations
// ---------------------------------------------------------------------------

func (c *QuickBooksConnector) ImportInvoices(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	started := time.Now()
	query := "select * from Invoice"
	if filters.ModifiedSince != nil {
		query += " where MetaData.LastUpdatedTime > '" + filters.ModifiedSince.Format(time.RFC3339) + "'"
	}
	query += fmt.Sprintf(" maxresults %d", pageSize(filters, 0))

	raw, err := c.query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		QueryResponse struct {
			Invoice []qbInvoice `json:"Invoice"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable query response", c.baseURL, err)
	}

	invoices := make([]accounting.Invoice, 0, len(resp.QueryResponse.Invoice))
	for _, qi := range resp.QueryResponse.Invoice {
		issue, _ := time.Parse("2006-01-02", qi.TxnDate)
		due, _ := time.Parse("2006-01-02", qi.DueDate)
		invoices = append(invoices, accounting.Invoice{
			ExternalID:         qi.ID,
			InvoiceNumber:      qi.DocNumber,
			CustomerExternalID: qi.CustomerRef.Value,
			IssueDate:          issue,
			DueDate:            due,
			Total:              qi.TotalAmt,
			AmountDue:          qi.Balance,
		})
	}
	return invoices, importResult(len(invoices), len(invoices), 0, started), nil
}

func (c *QuickBooksConnector) SyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := qbInvoice{
		DocNumber: invoice.InvoiceNumber,
		TxnDate:   invoice.IssueDate.Format("2006-01-02"),
		DueDate:   invoice.DueDate.Format("2006-01-02"),
	}
	payload.CustomerRef.Value = invoice.CustomerExternalID
	for _, line := range invoice.Lines {
		payload.Line = append(payload.Line, qbLine{
			Description: line.Description,
			Amount:      line.Total,
			DetailType:  "SalesItemLineDetail",
		})
	}

	raw, err := c.post(ctx, "invoice", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Invoice qbInvoice `json:"Invoice"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable create response", c.baseURL, err)
	}
	return okResult(resp.Invoice.ID, started), nil
}

func (c *QuickBooksConnector) UpdateInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"Id":        invoice.ExternalID,
		"DocNumber": invoice.InvoiceNumber,
		"sparse":    true,
	}
	if _, err := c.post(ctx, "invoice", payload); err != nil {
		return nil, err
	}
	return okResult(invoice.ExternalID, started), nil
}

func (c *QuickBooksConnector) DeleteInvoice(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{"Id": externalID}
	if _, err := c.post(ctx, "invoice?operation=delete", payload); err != nil {
		return nil, err
	}
	return okResult(externalID, started), nil
}

func (c *QuickBooksConnector) SyncPayment(ctx context.Context, payment *accounting.Payment) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"TotalAmt":      payment.Amount,
		"TxnDate":       payment.PaidAt.Format("2006-01-02"),
		"PaymentRefNum": payment.Reference,
	}
	raw, err := c.post(ctx, "payment", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Payment struct {
			ID string `json:"Id"`
		} `json:"Payment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable create response", c.baseURL, err)
	}
	return okResult(resp.Payment.ID, started), nil
}

func (c *QuickBooksConnector) SyncRefund(ctx context.Context, refund *accounting.Refund) (*accounting.SyncResult, error) {
	started := time.Now()
	payload := map[string]any{
		"TotalAmt": refund.Amount,
		"TxnDate":  refund.RefundedAt.Format("2006-01-02"),
	}
	raw, err := c.post(ctx, "refundreceipt", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		RefundReceipt struct {
			ID string `json:"Id"`
		} `json:"RefundReceipt"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable create response", c.baseURL, err)
	}
	return okResult(resp.RefundReceipt.ID, started), nil
}

// ---------------------------------------------------------------------------
// Ledger operations
// ---------------------------------------------------------------------------

func (c *QuickBooksConnector) ImportChartOfAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := c.query(ctx, "select * from Account")
	if err != nil {
		return nil, nil, err
	}

	var resp struct {
		QueryResponse struct {
			Account []qbAccount `json:"Account"`
		} `json:"QueryResponse"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable query response", c.baseURL, err)
	}

	accounts := make([]accounting.ChartOfAccount, 0, len(resp.QueryResponse.Account))
	for _, qa := range resp.QueryResponse.Account {
		accounts = append(accounts, accounting.ChartOfAccount{
			ExternalID: qa.ID,
			Code:       qa.AcctNum,
			Name:       qa.Name,
			Type:       qa.AccountType,
			SubType:    qa.AccountSubType,
			Balance:    qa.CurrentBalance,
			IsActive:   qa.Active,
		})
	}
	return accounts, importResult(len(accounts), len(accounts), 0, started), nil
}

func (c *QuickBooksConnector) ImportTrialBalance(ctx context.Context, filters accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	started := time.Now()
	raw, err := doJSON(ctx, c.client, accounting.SystemQuickBooks, http.MethodGet,
		c.baseURL+"/reports/TrialBalance", nil, nil)
	if err != nil {
		return nil, nil, err
	}

	var report qbTrialBalanceReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable report", c.baseURL, err)
	}

	rows := make([]accounting.TrialBalanceRow, 0, len(report.Rows.Row))
	asOf := time.Now()
	for _, r := range report.Rows.Row {
		if len(r.ColData) < 3 {
			continue
		}
		rows = append(rows, accounting.TrialBalanceRow{
			AccountExternalID: r.ColData[0].ID,
			AccountName:       r.ColData[0].Value,
			Debit:             parseAmount(r.ColData[1].Value),
			Credit:            parseAmount(r.ColData[2].Value),
			AsOf:              asOf,
		})
	}
	return rows, importResult(len(rows), len(rows), 0, started), nil
}

func (c *QuickBooksConnector) ImportGLAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return c.ImportChartOfAccounts(ctx, filters)
}

func (c *QuickBooksConnector) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	lines := make([]map[string]any, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		postingType := "Debit"
		amount := l.Debit
		if l.Credit.IsPositive() {
			postingType = "Credit"
			amount = l.Credit
		}
		lines = append(lines, map[string]any{
			"Description": l.Description,
			"Amount":      amount,
			"DetailType":  "JournalEntryLineDetail",
			"JournalEntryLineDetail": map[string]any{
				"PostingType": postingType,
				"AccountRef":  map[string]string{"value": l.AccountExternalID},
			},
		})
	}
	payload := map[string]any{
		"TxnDate": entry.EntryDate.Format("2006-01-02"),
		"Line":    lines,
	}
	raw, err := c.post(ctx, "journalentry", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		JournalEntry struct {
			ID string `json:"Id"`
		} `json:"JournalEntry"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, accounting.NewVendorError(accounting.SystemQuickBooks, 0, "BAD_JSON", "unparseable create response", c.baseURL, err)
	}
	return okResult(resp.JournalEntry.ID, started), nil
}

func (c *QuickBooksConnector) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemQuickBooks, "sync bank entry")
}

// ---------------------------------------------------------------------------
// REST plumbing
// ---------------------------------------------------------------------------

func (c *QuickBooksConnector) query(ctx context.Context, q string) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	u := fmt.Sprintf("%s/query?query=%s", c.baseURL, url.QueryEscape(q))
	return doJSON(ctx, c.client, accounting.SystemQuickBooks, http.MethodGet, u, nil, nil)
}

func (c *QuickBooksConnector) post(ctx context.Context, resource string, payload any) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	return doJSON(ctx, c.client, accounting.SystemQuickBooks, http.MethodPost,
		fmt.Sprintf("%s/%s", c.baseURL, resource), nil, payload)
}

// oauthClient builds an HTTP client whose transport refreshes the access
// token against the vendor token endpoint when it expires.
func oauthClient(ctx context.Context, settings *accounting.OAuthSettings, tokenURL string) *http.Client {
	conf := &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	token := &oauth2.Token{
		AccessToken:  settings.AccessToken,
		RefreshToken: settings.RefreshToken,
		Expiry:       settings.TokenExpiry,
	}
	base := &http.Client{Timeout: defaultRequestTimeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := conf.Client(ctx, token)
	client.Timeout = defaultRequestTimeout
	return client
}

// ---------------------------------------------------------------------------
// QuickBooks wire shapes (minimal field coverage)
// ---------------------------------------------------------------------------

type qbCustomer struct {
	ID               string          `json:"Id,omitempty"`
	DisplayName      string          `json:"DisplayName"`
	Active           bool            `json:"Active"`
	Balance          decimal.Decimal `json:"Balance,omitempty"`
	PrimaryEmailAddr struct {
		Address string `json:"Address,omitempty"`
	} `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone struct {
		FreeFormNumber string `json:"FreeFormNumber,omitempty"`
	} `json:"PrimaryPhone,omitempty"`
}

type qbLine struct {
	Description string          `json:"Description,omitempty"`
	Amount      decimal.Decimal `json:"Amount"`
	DetailType  string          `json:"DetailType"`
}

type qbInvoice struct {
	ID          string          `json:"Id,omitempty"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	DueDate     string          `json:"DueDate,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt,omitempty"`
	Balance     decimal.Decimal `json:"Balance,omitempty"`
	Line        []qbLine        `json:"Line,omitempty"`
	CustomerRef struct {
		Value string `json:"value"`
	} `json:"CustomerRef"`
}

type qbAccount struct {
	ID             string          `json:"Id"`
	Name           string          `json:"Name"`
	AcctNum        string          `json:"AcctNum,omitempty"`
	AccountType    string          `json:"AccountType"`
	AccountSubType string          `json:"AccountSubType,omitempty"`
	CurrentBalance decimal.Decimal `json:"CurrentBalance,omitempty"`
	Active         bool            `json:"Active"`
}

type qbTrialBalanceReport struct {
	Rows struct {
		Row []struct {
			ColData []struct {
				ID    string `json:"id,omitempty"`
				Value string `json:"value"`
			} `json:"ColData"`
		} `json:"Row"`
	} `json:"Rows"`
}
