package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReviewState is the dashboard review status of an extracted document.
type ReviewState string

const (
	ReviewPending   ReviewState = "PENDING"
	ReviewConfirmed ReviewState = "CONFIRMED"
	ReviewError     ReviewState = "ERROR"
	ReviewDuplicate ReviewState = "DUPLICATE"
)

// Names stored in Document.MissingFields. They match the dashboard's column names.
const (
	FieldIssueDate  = "fechaEmision"
	FieldTotal      = "total"
	FieldVendorName = "proveedor"
)

// Document is a normalized invoice record produced by the OCR processor.
// The dashboard may change provider, fields and review state after insert;
// the pipeline itself only inserts rows and sets FinalStorageKey.
type Document struct {
	ID                string              `db:"id" json:"id"`
	TenantID          string              `db:"tenant_id" json:"tenant_id"`
	ProviderID        *string             `db:"provider_id" json:"provider_id,omitempty"`
	Type              string              `db:"type" json:"type"`
	Letter            *string             `db:"letter" json:"letter,omitempty"`
	Series            *string             `db:"series" json:"series,omitempty"`
	Number            *string             `db:"number" json:"number,omitempty"`
	IssueDate         *time.Time          `db:"issue_date" json:"issue_date,omitempty"`
	DueDate           *time.Time          `db:"due_date" json:"due_date,omitempty"`
	Currency          string              `db:"currency" json:"currency"`
	Subtotal          decimal.NullDecimal `db:"subtotal" json:"subtotal"`
	Tax               decimal.NullDecimal `db:"tax" json:"tax"`
	Total             decimal.NullDecimal `db:"total" json:"total"`
	Confidence        float64             `db:"confidence" json:"confidence"`
	ReviewState       ReviewState         `db:"review_state" json:"review_state"`
	MissingFields     StringList          `db:"missing_fields" json:"missing_fields"`
	NormalizedPayload JSONB               `db:"normalized_payload" json:"normalized_payload"`
	VendorName        *string             `db:"vendor_name" json:"vendor_name,omitempty"`
	VendorTaxID       *string             `db:"vendor_tax_id" json:"vendor_tax_id,omitempty"`
	PageCount         *int                `db:"page_count" json:"page_count,omitempty"`
	Filename          string              `db:"filename" json:"filename"`
	ContentHash       string              `db:"content_hash" json:"content_hash"`
	RawStorageKey     string              `db:"raw_storage_key" json:"raw_storage_key"`
	FinalStorageKey   *string             `db:"final_storage_key" json:"final_storage_key,omitempty"`
	RawOCRResponseKey string              `db:"raw_ocr_response_key" json:"raw_ocr_response_key"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// StringList is stored as a JSON array.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

func (s *StringList) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*s = nil
		return nil
	}
	return json.Unmarshal(b, (*[]string)(s))
}

// Contains reports whether name is in the list.
func (s StringList) Contains(name string) bool {
	for _, v := range s {
		if v == name {
			return true
		}
	}
	return false
}

// JSONB is an opaque JSON document column.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *JSONB) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	*j = append((*j)[:0], b...)
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSONB) UnmarshalJSON(b []byte) error {
	*j = append((*j)[:0], b...)
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}
