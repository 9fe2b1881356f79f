package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentinelQuery = `SELECT to_regclass\('public.ocr_attempts'\) IS NOT NULL`

func TestEnsureMigrated_Skip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, hook := test.NewNullLogger()

	mock.ExpectQuery(sentinelQuery).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, EnsureMigrated(context.Background(), db, logger, "db.local"))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "db_migration_skip", hook.LastEntry().Data["event"])
}

func TestEnsureMigrated_RunsAllSteps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, hook := test.NewNullLogger()

	mock.ExpectQuery(sentinelQuery).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	for range steps {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureMigrated(context.Background(), db, logger, "db.local"))

	assert.NoError(t, mock.ExpectationsWereMet())
	last := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "db_migration_success", last.Data["event"])
}

func TestEnsureMigrated_StepFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, hook := test.NewNullLogger()

	mock.ExpectQuery(sentinelQuery).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE EXTENSION").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_queue").WillReturnError(errors.New("permission denied"))

	err = EnsureMigrated(context.Background(), db, logger, "db.local")

	assert.ErrorContains(t, err, "migration step create_table_ingest_queue failed")
	assert.Equal(t, "create_table_ingest_queue", hook.LastEntry().Data["migration_step"])
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestEnsureMigrated_SentinelError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger, _ := test.NewNullLogger()

	mock.ExpectQuery(sentinelQuery).WillReturnError(errors.New("timeout"))

	err = EnsureMigrated(context.Background(), db, logger, "db.local")
	assert.ErrorContains(t, err, "failed to check sentinel table")
}
