// Package ocr turns scanned invoices into normalized fields.
//
// An Extractor calls the remote expense analysis service and returns the
// service's raw view of the document. Parse maps that view onto an
// Extraction of optional typed fields.
package ocr

import (
	"context"
	"errors"
)

// ErrNoExpenseDocument is returned when the service found nothing that looks like an invoice.
var ErrNoExpenseDocument = errors.New("no expense document in analysis result")

// Summary field types reported by the expense analysis service.
const (
	TypeVendorName    = "VENDOR_NAME"
	TypeInvoiceID     = "INVOICE_RECEIPT_ID"
	TypeInvoiceDate   = "INVOICE_RECEIPT_DATE"
	TypeDueDate       = "DUE_DATE"
	TypeSubtotal      = "SUBTOTAL"
	TypeTax           = "TAX"
	TypeTotal         = "TOTAL"
	TypeVendorVAT     = "VENDOR_VAT_NUMBER"
	TypeTaxPayerID    = "TAX_PAYER_ID"
	defaultDocType    = "FACTURA"
	defaultCurrency   = "ARS"
	headerLinesToScan = 15
)

// SummaryField is one key/value pair detected on the document.
type SummaryField struct {
	Type       string
	Label      string
	Text       string
	Confidence float64
	Currency   string
}

// Analysis is the service's view of one document.
type Analysis struct {
	Summary []SummaryField
	// Lines holds the detected text lines in reading order.
	Lines []string
	Pages int
	// Raw is the unmodified service response, stored next to the document.
	Raw []byte
}

// Extractor analyzes a document's bytes.
type Extractor interface {
	Analyze(ctx context.Context, document []byte) (*Analysis, error)
}
