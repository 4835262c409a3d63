package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
	"github.com/noah-isme/points-ledger-api/pkg/notify"
)

const settingsCachePrefix = "settings:"

type settingsRepository interface {
	List(ctx context.Context) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

// SettingsDefaults are used when a setting row is missing or unreadable.
type SettingsDefaults struct {
	AlertThreshold int64
	AdminEmail     string
}

// SettingsService reads and updates runtime settings, caching reads in Redis when enabled.
type SettingsService struct {
	repo      settingsRepository
	cache     *CacheService
	audit     *AuditService
	defaults  SettingsDefaults
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs a SettingsService. cache and audit may be nil.
func NewSettingsService(repo settingsRepository, cache *CacheService, audit *AuditService, defaults SettingsDefaults, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.AlertThreshold <= 0 {
		defaults.AlertThreshold = 500
	}
	return &SettingsService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		defaults:  defaults,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// List returns all settings.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	settings, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list settings")
	}
	return settings, nil
}

// Update validates and stores a setting, then evicts its cached copy.
func (s *SettingsService) Update(ctx context.Context, key string, req dto.UpdateSettingRequest) (*models.Setting, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	req.Value = strings.TrimSpace(req.Value)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "setting key is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid setting payload")
	}
	if err := s.validateValue(key, req.Value); err != nil {
		return nil, err
	}

	setting := &models.Setting{
		Key:         key,
		Value:       req.Value,
		Description: req.Description,
		UpdatedBy:   req.Actor,
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, storeError(err, "failed to update setting")
	}
	_ = s.cache.Delete(ctx, settingsCachePrefix+key)

	s.audit.Record(ctx, models.AuditActionSettingUpdate, req.Actor, models.TableSystemSettings, nil,
		fmt.Sprintf("%s set to %q", key, req.Value))
	return setting, nil
}

func (s *SettingsService) validateValue(key, value string) error {
	switch key {
	case models.SettingPointAlertThreshold:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "alert threshold must be a positive integer")
		}
	case models.SettingAlertRecipients:
		for _, addr := range notify.ParseRecipients(value) {
			if err := s.validator.Var(addr, "email"); err != nil {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid recipient %q", addr))
			}
		}
	}
	return nil
}

// AlertThreshold returns the award size that triggers a high-value notification.
func (s *SettingsService) AlertThreshold(ctx context.Context) int64 {
	value, ok := s.lookup(ctx, models.SettingPointAlertThreshold)
	if !ok {
		return s.defaults.AlertThreshold
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
		s.logger.Warn("invalid alert threshold setting, using default",
			zap.String("value", value), zap.Int64("default", s.defaults.AlertThreshold))
		return s.defaults.AlertThreshold
	}
	return n
}

// AlertRecipients returns the operator addresses for notifications.
func (s *SettingsService) AlertRecipients(ctx context.Context) []string {
	value, _ := s.lookup(ctx, models.SettingAlertRecipients)
	return notify.ParseRecipients(value, s.defaults.AdminEmail)
}

// lookup reads a setting value through the cache. It reports false when the setting is missing
// or the store cannot be read; callers fall back to defaults.
func (s *SettingsService) lookup(ctx context.Context, key string) (string, bool) {
	cacheKey := settingsCachePrefix + key
	var cached models.Setting
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached.Value, true
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("setting lookup failed, using default", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	_ = s.cache.Set(ctx, cacheKey, setting, s.cacheTTL)
	return setting.Value, true
}
