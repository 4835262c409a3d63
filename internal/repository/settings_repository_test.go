package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

func newSettingsRepoMock(t *testing.T) (*SettingsRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewSettingsRepository(sqlxDB), mock, func() {
		sqlxDB.Close()
	}
}

func TestSettingsRepositoryGet(t *testing.T) {
	repo, mock, cleanup := newSettingsRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM system_settings WHERE setting_key = $1")).
		WithArgs(models.SettingPointAlertThreshold).
		WillReturnRows(sqlmock.NewRows([]string{"setting_key", "setting_value", "description", "updated_by", "updated_at"}).
			AddRow(models.SettingPointAlertThreshold, "500", "", "", time.Now()))

	setting, err := repo.Get(context.Background(), models.SettingPointAlertThreshold)
	require.NoError(t, err)
	assert.Equal(t, "500", setting.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryUpsert(t *testing.T) {
	repo, mock, cleanup := newSettingsRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO system_settings").
		WithArgs(models.SettingAlertRecipients, "a@school.mx", "", "web_admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	setting := &models.Setting{Key: models.SettingAlertRecipients, Value: "a@school.mx", UpdatedBy: "web_admin"}
	require.NoError(t, repo.Upsert(context.Background(), setting))
	assert.False(t, setting.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
