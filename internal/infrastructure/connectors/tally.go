package connectors

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finplat/backend/internal/domain/accounting"
)

// TallyConnector talks to a Tally instance over its XML/HTTP gateway. Tally
// has no authentication of its own; reachability of host/port plus the
// company name is the whole credential.
type TallyConnector struct {
	settings  *accounting.TallySettings
	baseURL   string
	client    *http.Client
	connected bool
}

var _ accounting.Connector = (*TallyConnector)(nil)

// NewTallyConnector creates an unconnected Tally connector.
func NewTallyConnector() *TallyConnector {
	return &TallyConnector{
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// System returns the accounting system this connector handles.
func (c *TallyConnector) System() accounting.AccountingSystem {
	return accounting.SystemTally
}

// Capabilities returns the operations Tally supports.
func (c *TallyConnector) Capabilities() accounting.Capabilities {
	return accounting.Capabilities{
		Entities: map[accounting.EntityType]bool{
			accounting.EntityTypeCustomer:        true,
			accounting.EntityTypeInvoice:         true,
			accounting.EntityTypePayment:         true,
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

// Connect validates the settings and probes the gateway.
func (c *TallyConnector) Connect(ctx context.Context, settings *accounting.ConnectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.System != accounting.SystemTally {
		return accounting.ErrInvalidSettings
	}
	c.settings = settings.Tally
	c.baseURL = fmt.Sprintf("http://%s:%d", c.settings.Host, c.settings.Port)
	c.connected = true
	return c.TestConnection(ctx)
}

// Disconnect drops the session. The Tally gateway is stateless, so this only
// clears local state.
func (c *TallyConnector) Disconnect(ctx context.Context) error {
	c.connected = false
	c.settings = nil
	return nil
}

// TestConnection asks the gateway for the list of companies and checks the
// configured one is loaded.
func (c *TallyConnector) TestConnection(ctx context.Context) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	body, err := c.doExport(ctx, "List of Companies", nil)
	if err != nil {
		return err
	}
	if !bytes.Contains(bytes.ToUpper(body), bytes.ToUpper([]byte(c.settings.Company))) {
		return accounting.NewVendorError(accounting.SystemTally, 0, "COMPANY_NOT_LOADED",
			fmt.Sprintf("company %q is not loaded in Tally", c.settings.Company), c.baseURL, nil)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Customer operations (Tally ledgers under Sundry Debtors)
// ---------------------------------------------------------------------------

func (c *TallyConnector) ImportCustomers(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	started := time.Now()
	body, err := c.doExport(ctx, "List of Ledgers", map[string]string{"GroupName": "Sundry Debtors"})
	if err != nil {
		return nil, nil, err
	}

	var envelope tallyLedgerList
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemTally, 0, "BAD_XML", "unparseable ledger export", c.baseURL, err)
	}

	customers := make([]accounting.Customer, 0, len(envelope.Ledgers))
	for _, ledger := range envelope.Ledgers {
		customers = append(customers, accounting.Customer{
			ExternalID: ledger.Name,
			Name:       ledger.Name,
			Email:      ledger.Email,
			Phone:      ledger.Phone,
			TaxNumber:  ledger.GSTIN,
			IsActive:   true,
		})
	}
	return customers, importResult(len(customers), len(customers), 0, started), nil
}

func (c *TallyConnector) SyncCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	started := time.Now()
	req := tallyImportEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body: tallyImportBody{
			Ledger: &tallyLedger{
				Name:   customer.Name,
				Parent: "Sundry Debtors",
				Email:  customer.Email,
				Phone:  customer.Phone,
				GSTIN:  customer.TaxNumber,
			},
		},
	}
	if err := c.doImport(ctx, &req); err != nil {
		return nil, err
	}
	// Tally identifies ledgers by name.
	return okResult(customer.Name, started), nil
}

func (c *TallyConnector) UpdateCustomer(ctx context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	// Re-importing a ledger with the same name alters it in place.
	return c.SyncCustomer(ctx, customer)
}

func (c *TallyConnector) DeleteCustomer(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemTally, "delete customer")
}

// ---------------------------------------------------------------------------
// Invoice and payment operations (Tally vouchers)
// ---------------------------------------------------------------------------

func (c *TallyConnector) ImportInvoices(ctx context.Context, filters accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	started := time.Now()
	params := map[string]string{"VoucherTypeName": "Sales"}
	if filters.ModifiedSince != nil {
		params["SVFromDate"] = filters.ModifiedSince.Format("20060102")
	}
	body, err := c.doExport(ctx, "Voucher Register", params)
	if err != nil {
		return nil, nil, err
	}

	var envelope tallyVoucherList
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemTally, 0, "BAD_XML", "unparseable voucher export", c.baseURL, err)
	}

	invoices := make([]accounting.Invoice, 0, len(envelope.Vouchers))
	for _, v := range envelope.Vouchers {
		issue, _ := time.Parse("20060102", v.Date)
		invoices = append(invoices, accounting.Invoice{
			ExternalID:         v.GUID,
			InvoiceNumber:      v.VoucherNumber,
			CustomerExternalID: v.PartyLedgerName,
			IssueDate:          issue,
			Status:             "POSTED",
		})
	}
	return invoices, importResult(len(invoices), len(invoices), 0, started), nil
}

func (c *TallyConnector) SyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	started := time.Now()
	voucher := &tallyVoucher{
		VoucherTypeName: "Sales",
		VoucherNumber:   invoice.InvoiceNumber,
		Date:            invoice.IssueDate.Format("20060102"),
		PartyLedgerName: invoice.CustomerExternalID,
		Narration:       invoice.Notes,
		Amount:          invoice.Total.StringFixed(2),
	}
	req := tallyImportEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body:   tallyImportBody{Voucher: voucher},
	}
	if err := c.doImport(ctx, &req); err != nil {
		return nil, err
	}
	return okResult(invoice.InvoiceNumber, started), nil
}

func (c *TallyConnector) UpdateInvoice(ctx context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	return c.SyncInvoice(ctx, invoice)
}

func (c *TallyConnector) DeleteInvoice(ctx context.Context, externalID string) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemTally, "delete invoice")
}

func (c *TallyConnector) SyncPayment(ctx context.Context, payment *accounting.Payment) (*accounting.SyncResult, error) {
	started := time.Now()
	voucher := &tallyVoucher{
		VoucherTypeName: "Receipt",
		Date:            payment.PaidAt.Format("20060102"),
		Narration:       payment.Reference,
		Amount:          payment.Amount.StringFixed(2),
	}
	req := tallyImportEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body:   tallyImportBody{Voucher: voucher},
	}
	if err := c.doImport(ctx, &req); err != nil {
		return nil, err
	}
	return okResult(payment.Reference, started), nil
}

func (c *TallyConnector) SyncRefund(ctx context.Context, refund *accounting.Refund) (*accounting.SyncResult, error) {
	return unsupported(accounting.SystemTally, "sync refund")
}

// ---------------------------------------------------------------------------
// Ledger operations
// ---------------------------------------------------------------------------

func (c *TallyConnector) ImportChartOfAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	started := time.Now()
	body, err := c.doExport(ctx, "List of Ledgers", nil)
	if err != nil {
		return nil, nil, err
	}

	var envelope tallyLedgerList
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemTally, 0, "BAD_XML", "unparseable ledger export", c.baseURL, err)
	}

	accounts := make([]accounting.ChartOfAccount, 0, len(envelope.Ledgers))
	for _, ledger := range envelope.Ledgers {
		accounts = append(accounts, accounting.ChartOfAccount{
			ExternalID: ledger.Name,
			Name:       ledger.Name,
			Type:       ledger.Parent,
			IsActive:   true,
		})
	}
	return accounts, importResult(len(accounts), len(accounts), 0, started), nil
}

func (c *TallyConnector) ImportTrialBalance(ctx context.Context, filters accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	started := time.Now()
	body, err := c.doExport(ctx, "Trial Balance", nil)
	if err != nil {
		return nil, nil, err
	}

	var envelope tallyTrialBalance
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, nil, accounting.NewVendorError(accounting.SystemTally, 0, "BAD_XML", "unparseable trial balance", c.baseURL, err)
	}

	rows := make([]accounting.TrialBalanceRow, 0, len(envelope.Rows))
	asOf := time.Now()
	for _, r := range envelope.Rows {
		rows = append(rows, accounting.TrialBalanceRow{
			AccountExternalID: r.Name,
			AccountName:       r.Name,
			Debit:             parseAmount(r.Debit),
			Credit:            parseAmount(r.Credit),
			AsOf:              asOf,
		})
	}
	return rows, importResult(len(rows), len(rows), 0, started), nil
}

func (c *TallyConnector) ImportGLAccounts(ctx context.Context, filters accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return c.ImportChartOfAccounts(ctx, filters)
}

func (c *TallyConnector) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	voucher := &tallyVoucher{
		VoucherTypeName: "Journal",
		VoucherNumber:   entry.Reference,
		Date:            entry.EntryDate.Format("20060102"),
		Narration:       entry.Description,
	}
	req := tallyImportEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body:   tallyImportBody{Voucher: voucher},
	}
	if err := c.doImport(ctx, &req); err != nil {
		return nil, err
	}
	return okResult(entry.Reference, started), nil
}

func (c *TallyConnector) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*accounting.SyncResult, error) {
	started := time.Now()
	kind := "Payment"
	if entry.IsCredit {
		kind = "Receipt"
	}
	voucher := &tallyVoucher{
		VoucherTypeName: kind,
		Date:            entry.TransactionDate.Format("20060102"),
		Narration:       entry.Description,
		Amount:          entry.Amount.StringFixed(2),
	}
	req := tallyImportEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body:   tallyImportBody{Voucher: voucher},
	}
	if err := c.doImport(ctx, &req); err != nil {
		return nil, err
	}
	return okResult(entry.StatementReference, started), nil
}

// ---------------------------------------------------------------------------
// XML gateway plumbing
// ---------------------------------------------------------------------------

func (c *TallyConnector) doExport(ctx context.Context, reportName string, staticVars map[string]string) ([]byte, error) {
	if !c.connected {
		return nil, accounting.ErrNotConnected
	}
	req := tallyExportEnvelope{
		Header: tallyHeader{TallyRequest: "Export Data"},
		Body: tallyExportBody{
			ReportName: reportName,
			StaticVars: tallyStaticVars{
				Company: c.settings.Company,
				Extra:   staticVars,
			},
		},
	}
	return c.post(ctx, &req)
}

func (c *TallyConnector) doImport(ctx context.Context, req *tallyImportEnvelope) error {
	if !c.connected {
		return accounting.ErrNotConnected
	}
	body, err := c.post(ctx, req)
	if err != nil {
		return err
	}
	if bytes.Contains(body, []byte("<LINEERROR>")) {
		return accounting.NewVendorError(accounting.SystemTally, 0, "IMPORT_REJECTED",
			"tally rejected the import", c.baseURL, nil)
	}
	return nil
}

func (c *TallyConnector) post(ctx context.Context, payload any) ([]byte, error) {
	raw, err := xml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tally: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("tally: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, accounting.NewVendorError(accounting.SystemTally, 0, "", "gateway unreachable", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, accounting.NewVendorError(accounting.SystemTally, resp.StatusCode, "", "read response", c.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, accounting.NewVendorError(accounting.SystemTally, resp.StatusCode, "", "gateway error", c.baseURL, nil)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Tally XML shapes
// ---------------------------------------------------------------------------

type tallyHeader struct {
	TallyRequest string `xml:"TALLYREQUEST"`
}

type tallyStaticVars struct {
	Company string            `xml:"SVCURRENTCOMPANY"`
	Extra   map[string]string `xml:"-"`
}

type tallyExportBody struct {
	ReportName string          `xml:"EXPORTDATA>REQUESTDESC>REPORTNAME"`
	StaticVars tallyStaticVars `xml:"EXPORTDATA>REQUESTDESC>STATICVARIABLES"`
}

type tallyExportEnvelope struct {
	XMLName xml.Name        `xml:"ENVELOPE"`
	Header  tallyHeader     `xml:"HEADER"`
	Body    tallyExportBody `xml:"BODY"`
}

type tallyLedger struct {
	Name   string `xml:"NAME,attr"`
	Parent string `xml:"PARENT"`
	Email  string `xml:"EMAIL"`
	Phone  string `xml:"LEDGERPHONE"`
	GSTIN  string `xml:"PARTYGSTIN"`
}

type tallyVoucher struct {
	GUID            string `xml:"GUID,omitempty"`
	VoucherTypeName string `xml:"VOUCHERTYPENAME"`
	VoucherNumber   string `xml:"VOUCHERNUMBER,omitempty"`
	Date            string `xml:"DATE"`
	PartyLedgerName string `xml:"PARTYLEDGERNAME,omitempty"`
	Narration       string `xml:"NARRATION,omitempty"`
	Amount          string `xml:"AMOUNT,omitempty"`
}

type tallyImportBody struct {
	Ledger  *tallyLedger  `xml:"IMPORTDATA>REQUESTDATA>TALLYMESSAGE>LEDGER,omitempty"`
	Voucher *tallyVoucher `xml:"IMPORTDATA>REQUESTDATA>TALLYMESSAGE>VOUCHER,omitempty"`
}

type tallyImportEnvelope struct {
	XMLName xml.Name        `xml:"ENVELOPE"`
	Header  tallyHeader     `xml:"HEADER"`
	Body    tallyImportBody `xml:"BODY"`
}

type tallyLedgerList struct {
	XMLName xml.Name      `xml:"ENVELOPE"`
	Ledgers []tallyLedger `xml:"BODY>DATA>COLLECTION>LEDGER"`
}

type tallyVoucherList struct {
	XMLName  xml.Name       `xml:"ENVELOPE"`
	Vouchers []tallyVoucher `xml:"BODY>DATA>COLLECTION>VOUCHER"`
}

type tallyTrialBalanceRow struct {
	Name   string `xml:"NAME,attr"`
	Debit  string `xml:"DEBIT"`
	Credit string `xml:"CREDIT"`
}

type tallyTrialBalance struct {
	XMLName xml.Name               `xml:"ENVELOPE"`
	Rows    []tallyTrialBalanceRow `xml:"BODY>DATA>COLLECTION>ACCOUNT"`
}
