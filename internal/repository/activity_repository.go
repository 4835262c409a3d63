package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

const activityColumns = `id, name, COALESCE(description, '') AS description, default_points, active, created_at`

// ActivityRepository persists the activity catalog.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// List returns activities ordered by name.
func (r *ActivityRepository) List(ctx context.Context, includeInactive bool) ([]models.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities"
	if !includeInactive {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY name ASC"
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// FindByID fetches an activity by ID.
func (r *ActivityRepository) FindByID(ctx context.Context, id int64) (*models.Activity, error) {
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, "SELECT "+activityColumns+" FROM activities WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindActiveByName fetches an active activity by its unique name.
func (r *ActivityRepository) FindActiveByName(ctx context.Context, name string) (*models.Activity, error) {
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, "SELECT "+activityColumns+" FROM activities WHERE name = $1 AND active = TRUE", name); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Create inserts a new activity.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activities (name, description, default_points, active, created_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, activity.Name, activity.Description, activity.DefaultPoints, activity.Active, activity.CreatedAt).
		Scan(&activity.ID); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// Update modifies an activity in place.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	const query = `UPDATE activities SET name = $1, description = NULLIF($2, ''), default_points = $3, active = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, activity.Name, activity.Description, activity.DefaultPoints, activity.Active, activity.ID)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update activity rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
