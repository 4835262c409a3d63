package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

func TestDuplicateLogRepositoryCreateAndOverride(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewDuplicateLogRepository(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectQuery("INSERT INTO duplicate_log").
		WithArgs(sqlmock.AnyArg(), "Maria Lopez", "", "", []byte("[]"), "web_admin", models.DuplicateActionChecked, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE duplicate_log SET action_taken = $1")).
		WithArgs(models.DuplicateActionOverride, "web_admin", "twins", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.DuplicateLog{CheckedName: "Maria Lopez", Actor: "web_admin", ActionTaken: models.DuplicateActionChecked}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, int64(3), entry.ID)
	require.NoError(t, repo.MarkOverride(context.Background(), entry.ID, "web_admin", "twins"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
