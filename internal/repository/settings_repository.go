package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

const settingColumns = `setting_key, setting_value, COALESCE(description, '') AS description, COALESCE(updated_by, '') AS updated_by, updated_at`

// SettingsRepository persists system settings.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// List returns every setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	if err := r.db.SelectContext(ctx, &settings, "SELECT "+settingColumns+" FROM system_settings ORDER BY setting_key ASC"); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// Get fetches a single setting by key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.GetContext(ctx, &setting, "SELECT "+settingColumns+" FROM system_settings WHERE setting_key = $1", key); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert inserts or updates a setting. An empty description keeps the stored one.
func (r *SettingsRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	const query = `INSERT INTO system_settings (setting_key, setting_value, description, updated_by, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)
ON CONFLICT (setting_key)
DO UPDATE SET setting_value = EXCLUDED.setting_value,
              description = COALESCE(EXCLUDED.description, system_settings.description),
              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	setting.UpdatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, setting.Key, setting.Value, setting.Description, setting.UpdatedBy, setting.UpdatedAt); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
