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

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAuditRepository(sqlx.NewDb(db, "sqlmock"))

	id := int64(5)
	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), models.AuditActionCreatePrize, "web_admin", models.TablePrizeInventory, sqlmock.AnyArg(), "created").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	entry := &models.AuditEntry{ActionType: models.AuditActionCreatePrize, Actor: "web_admin", TargetTable: models.TablePrizeInventory, TargetID: &id, Details: "created"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, int64(77), entry.ID)
	assert.False(t, entry.EventTime.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListFilters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAuditRepository(sqlx.NewDb(db, "sqlmock"))

	target := int64(7)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND action_type = $1 AND target_id = $2 ORDER BY event_time DESC, id DESC LIMIT 100")).
		WithArgs(models.AuditActionPointAward, target).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_time", "action_type", "actor", "target_table", "target_id", "details"}).
			AddRow(1, time.Now(), models.AuditActionPointAward, "ms_garcia", models.TableStudents, 7, "+50 points"))

	entries, err := repo.List(context.Background(), models.AuditFilter{ActionType: models.AuditActionPointAward, TargetID: &target})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ms_garcia", entries[0].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
