package model

import "time"

// Tenant is one customer organization routed by filename prefix.
type Tenant struct {
	Prefix           string `json:"prefix"`
	TenantID         string `json:"tenantId"`
	TaxID            string `json:"taxId"`
	Bucket           string `json:"bucket"`
	StorageKeyPrefix string `json:"storageKeyPrefix"`
}

// OCRAttempt tracks failed OCR calls for one inbox object.
type OCRAttempt struct {
	TenantID    string    `db:"tenant_id"`
	ObjectKey   string    `db:"object_key"`
	Attempts    int       `db:"attempts"`
	NextRetryAt time.Time `db:"next_retry_at"`
	LastError   string    `db:"last_error"`
	UpdatedAt   time.Time `db:"updated_at"`
}
