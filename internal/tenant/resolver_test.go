package tenant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docpipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMap = `{
  "acme": {"tenantId": "t-acme", "taxId": "30-71234567-1", "bucket": "acme-docs", "storageKeyPrefix": "acme/"},
  "globex-ar": {"tenantId": "t-globex", "taxId": "20-12345678-6", "bucket": "globex"}
}`

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefixes.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolver_Load(t *testing.T) {
	r := NewResolver(writeMap(t, sampleMap))

	tenants, err := r.Load()
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	acme := tenants["acme"]
	assert.Equal(t, "t-acme", acme.TenantID)
	assert.Equal(t, "acme-docs", acme.Bucket)
	assert.Equal(t, "acme", acme.StorageKeyPrefix)

	globex := tenants["globex-ar"]
	assert.Equal(t, "globex-ar", globex.StorageKeyPrefix, "storage prefix defaults to the filename prefix")
}

func TestResolver_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			wantErr: ErrConfigMissing,
		},
		{
			name:    "empty path",
			path:    func(t *testing.T) string { return "" },
			wantErr: ErrConfigMissing,
		},
		{
			name:    "not json",
			path:    func(t *testing.T) string { return writeMap(t, "prefix=acme") },
			wantErr: ErrConfigInvalid,
		},
		{
			name:    "missing bucket",
			path:    func(t *testing.T) string { return writeMap(t, `{"acme": {"tenantId": "t1"}}`) },
			wantErr: ErrConfigInvalid,
		},
		{
			name:    "bad prefix",
			path:    func(t *testing.T) string { return writeMap(t, `{"ac_me": {"tenantId": "t1", "bucket": "b"}}`) },
			wantErr: ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.path(t)).Load()
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	path := writeMap(t, sampleMap)
	r := NewResolver(path)

	_, err := r.Resolve("acme")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"initech": {"tenantId": "t-ini", "bucket": "ini"}}`), 0o600))

	_, err = r.Resolve("acme")
	assert.NoError(t, err, "cached map is served until invalidated")

	r.InvalidateCache()

	_, err = r.Resolve("acme")
	assert.ErrorIs(t, err, ErrUnknownTenant)

	ini, err := r.Resolve("initech")
	require.NoError(t, err)
	assert.Equal(t, "t-ini", ini.TenantID)
}

func TestResolver_ByTenantIDAndTenants(t *testing.T) {
	r := NewStatic(
		model.Tenant{Prefix: "zeta", TenantID: "t-z", Bucket: "z", StorageKeyPrefix: "zeta"},
		model.Tenant{Prefix: "acme", TenantID: "t-a", Bucket: "a", StorageKeyPrefix: "acme"},
	)

	got, err := r.ByTenantID("t-z")
	require.NoError(t, err)
	assert.Equal(t, "zeta", got.Prefix)

	_, err = r.ByTenantID("t-missing")
	assert.ErrorIs(t, err, ErrUnknownTenant)

	all, err := r.Tenants()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acme", all[0].Prefix)
	assert.Equal(t, "zeta", all[1].Prefix)
}

func TestPrefixOf(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"acme_20251226_231633.pdf", "acme", true},
		{"globex-ar_20260101_090000.pdf", "globex-ar", true},
		{"ACME2_x.pdf", "ACME2", true},
		{"noprefix.pdf", "", false},
		{"_20260101.pdf", "", false},
		{"ac.me_20260101.pdf", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := PrefixOf(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
