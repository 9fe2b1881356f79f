package ocr

import (
	"time"

	"github.com/shopspring/decimal"

	"docpipeline/internal/model"
)

// Field is an optional extracted value with the service's confidence (0-100).
type Field[T any] struct {
	Value      T
	Confidence float64
	Present    bool
}

// Some returns a present field.
func Some[T any](v T, confidence float64) Field[T] {
	return Field[T]{Value: v, Confidence: confidence, Present: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Present
}

// Ptr returns a pointer to the value, or nil when absent.
func (f Field[T]) Ptr() *T {
	if !f.Present {
		return nil
	}
	v := f.Value
	return &v
}

// Extraction is the normalized result of one analyzed invoice.
type Extraction struct {
	VendorName  Field[string]
	VendorTaxID Field[string]
	InvoiceID   Field[string]
	Letter      Field[string]
	Series      Field[string]
	Number      Field[string]
	IssueDate   Field[time.Time]
	DueDate     Field[time.Time]
	Subtotal    Field[decimal.Decimal]
	Tax         Field[decimal.Decimal]
	Total       Field[decimal.Decimal]

	Type     string
	Currency string
	Pages    int
	// Confidence is the mean confidence over every non-empty summary field the
	// service reported, mapped or not and parseable or not; 0 when there were
	// none. Values found by text fallbacks carry no score.
	Confidence float64
}

// MissingFields lists the required dashboard fields the extraction lacks.
func (e Extraction) MissingFields() model.StringList {
	missing := model.StringList{}
	if !e.IssueDate.Present {
		missing = append(missing, model.FieldIssueDate)
	}
	if !e.Total.Present {
		missing = append(missing, model.FieldTotal)
	}
	if !e.VendorName.Present {
		missing = append(missing, model.FieldVendorName)
	}
	return missing
}

// Payload is the JSON document stored as a Document's normalized payload.
type Payload struct {
	VendorName  *string          `json:"proveedor,omitempty"`
	VendorTaxID *string          `json:"cuit,omitempty"`
	InvoiceID   *string          `json:"numeroComprobante,omitempty"`
	Letter      *string          `json:"letra,omitempty"`
	Series      *string          `json:"puntoVenta,omitempty"`
	Number      *string          `json:"numero,omitempty"`
	IssueDate   *string          `json:"fechaEmision,omitempty"`
	DueDate     *string          `json:"fechaVencimiento,omitempty"`
	Subtotal    *decimal.Decimal `json:"subtotal,omitempty"`
	Tax         *decimal.Decimal `json:"iva,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	Type        string           `json:"tipo"`
	Currency    string           `json:"moneda"`
	Pages       int              `json:"paginas,omitempty"`
	Confidence  float64          `json:"confianza"`
	Missing     []string         `json:"camposFaltantes"`
}

// Payload renders the extraction for storage.
func (e Extraction) Payload() Payload {
	return Payload{
		VendorName:  e.VendorName.Ptr(),
		VendorTaxID: e.VendorTaxID.Ptr(),
		InvoiceID:   e.InvoiceID.Ptr(),
		Letter:      e.Letter.Ptr(),
		Series:      e.Series.Ptr(),
		Number:      e.Number.Ptr(),
		IssueDate:   dateString(e.IssueDate),
		DueDate:     dateString(e.DueDate),
		Subtotal:    e.Subtotal.Ptr(),
		Tax:         e.Tax.Ptr(),
		Total:       e.Total.Ptr(),
		Type:        e.Type,
		Currency:    e.Currency,
		Pages:       e.Pages,
		Confidence:  e.Confidence,
		Missing:     e.MissingFields(),
	}
}

func dateString(f Field[time.Time]) *string {
	if !f.Present {
		return nil
	}
	s := f.Value.Format(time.DateOnly)
	return &s
}
