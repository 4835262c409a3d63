package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository"
	"github.com/noah-isme/points-ledger-api/internal/repository/memory"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

type countingSettingsRepo struct {
	settingsRepository
	gets int
	err  error
}

func (r *countingSettingsRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	return r.settingsRepository.Get(ctx, key)
}

func newCachedSettings(t *testing.T, repo settingsRepository, store *memory.Store) (*SettingsService, *miniredis.Miniredis, *MetricsService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := NewMetricsService()
	cache := NewCacheService(repository.NewCacheRepository(client, zap.NewNop()), metrics, time.Minute, nil, true)
	audit := NewAuditService(store.Audit(), metrics, nil)
	svc := NewSettingsService(repo, cache, audit, SettingsDefaults{AlertThreshold: 300, AdminEmail: "admin@school.mx"}, time.Minute, nil, nil)
	return svc, mr, metrics
}

func TestSettingsThresholdIsCached(t *testing.T) {
	store := memory.New()
	repo := &countingSettingsRepo{settingsRepository: store.Settings()}
	svc, mr, metrics := newCachedSettings(t, repo, store)
	ctx := context.Background()

	assert.Equal(t, int64(500), svc.AlertThreshold(ctx))
	assert.Equal(t, int64(500), svc.AlertThreshold(ctx))
	assert.Equal(t, 1, repo.gets)
	assert.True(t, mr.Exists("settings:POINT_ALERT_THRESHOLD"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))

	_, err := svc.Update(ctx, "point_alert_threshold", dto.UpdateSettingRequest{Value: " 750 ", Actor: "admin"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("settings:POINT_ALERT_THRESHOLD"))
	assert.Equal(t, int64(750), svc.AlertThreshold(ctx))

	entries, err := store.Audit().List(ctx, models.AuditFilter{ActionType: models.AuditActionSettingUpdate})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].Actor)
}

func TestSettingsFallbacks(t *testing.T) {
	store := memory.New()
	repo := &countingSettingsRepo{settingsRepository: store.Settings(), err: context.DeadlineExceeded}
	svc := NewSettingsService(repo, nil, nil, SettingsDefaults{AlertThreshold: 300, AdminEmail: "admin@school.mx"}, time.Minute, nil, nil)
	ctx := context.Background()

	assert.Equal(t, int64(300), svc.AlertThreshold(ctx))
	assert.Equal(t, []string{"admin@school.mx"}, svc.AlertRecipients(ctx))

	repo.err = nil
	assert.Equal(t, []string{"admin@school.mx"}, svc.AlertRecipients(ctx), "empty recipients setting falls back")

	_, err := svc.Update(ctx, models.SettingAlertRecipients, dto.UpdateSettingRequest{Value: "a@school.mx, b@school.mx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@school.mx", "b@school.mx"}, svc.AlertRecipients(ctx))
}

func TestSettingsValidation(t *testing.T) {
	store := memory.New()
	svc := NewSettingsService(store.Settings(), nil, nil, SettingsDefaults{}, 0, nil, nil)
	ctx := context.Background()

	for key, value := range map[string]string{
		models.SettingPointAlertThreshold: "-5",
		models.SettingAlertRecipients:     "not-an-address",
		" ":                               "x",
	} {
		_, err := svc.Update(ctx, key, dto.UpdateSettingRequest{Value: value})
		assert.ErrorIs(t, err, appErrors.ErrValidation, key)
	}
}

type failingAuditRepo struct{}

func (failingAuditRepo) Create(context.Context, *models.AuditEntry) error {
	return errors.New("audit table missing")
}

func (failingAuditRepo) List(context.Context, models.AuditFilter) ([]models.AuditEntry, error) {
	return nil, context.DeadlineExceeded
}

func TestAuditRecordIsBestEffort(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewAuditService(failingAuditRepo{}, metrics, nil)
	id := int64(3)

	svc.Record(context.Background(), models.AuditActionCreatePrize, "admin", models.TablePrizeInventory, &id, "created")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditFailures))

	_, err := svc.List(context.Background(), models.AuditFilter{})
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
}
