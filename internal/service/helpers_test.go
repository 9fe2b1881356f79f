package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"docpipeline/internal/model"
	"docpipeline/internal/tenant"
)

var fixedNow = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

var acme = model.Tenant{
	Prefix:           "acme",
	TenantID:         "t-acme",
	TaxID:            "30-71234567-1",
	Bucket:           "acme-docs",
	StorageKeyPrefix: "acme",
}

func testLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func testTenants() *tenant.Resolver {
	return tenant.NewStatic(acme)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testTenantsWith(extra ...model.Tenant) *tenant.Resolver {
	return tenant.NewStatic(append([]model.Tenant{acme}, extra...)...)
}
