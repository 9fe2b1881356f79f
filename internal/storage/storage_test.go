package storage

import (
	"testing"

	"docpipeline/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"inbox/acme/2026/01/01/acme_20260101_090000.pdf": "application/pdf",
		"acme/2026/01/01/SCAN.PDF":                       "application/pdf",
		"acme/x.jpeg":                                    "image/jpeg",
		"acme/x.tif":                                     "image/tiff",
		"acme/2026/01/01/acme_20260101_090000_ocr.json":  "application/json",
		"acme/2026.01/noext":                             "application/octet-stream",
	}
	for key, want := range tests {
		assert.Equal(t, want, ContentTypeFor(key), key)
	}
}

func TestNewMinIO_Validation(t *testing.T) {
	_, err := NewMinIO(config.MinIOConfig{})
	assert.ErrorContains(t, err, "endpoint is required")

	_, err = NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "credentials are required")

	s, err := NewMinIO(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk"})
	assert.NoError(t, err)
	assert.NotNil(t, s)
}
