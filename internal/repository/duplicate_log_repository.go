package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

// DuplicateLogRepository records duplicate screenings and their outcome.
type DuplicateLogRepository struct {
	db *sqlx.DB
}

// NewDuplicateLogRepository constructs a DuplicateLogRepository.
func NewDuplicateLogRepository(db *sqlx.DB) *DuplicateLogRepository {
	return &DuplicateLogRepository{db: db}
}

// Create stores a screening result.
func (r *DuplicateLogRepository) Create(ctx context.Context, entry *models.DuplicateLog) error {
	if entry.EventTime.IsZero() {
		entry.EventTime = time.Now().UTC()
	}
	if len(entry.Matches) == 0 {
		entry.Matches = []byte("[]")
	}
	const query = `INSERT INTO duplicate_log (event_time, checked_name, checked_phone, checked_email, matches, actor, action_taken, justification)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, NULLIF($8, '')) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, entry.EventTime, entry.CheckedName, entry.CheckedPhone, entry.CheckedEmail,
		[]byte(entry.Matches), entry.Actor, entry.ActionTaken, entry.Justification).Scan(&entry.ID); err != nil {
		return fmt.Errorf("create duplicate log: %w", err)
	}
	return nil
}

// MarkOverride records that staff created the student despite the listed matches.
func (r *DuplicateLogRepository) MarkOverride(ctx context.Context, id int64, actor, justification string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE duplicate_log SET action_taken = $1, actor = $2, justification = $3 WHERE id = $4`,
		models.DuplicateActionOverride, actor, justification, id)
	if err != nil {
		return fmt.Errorf("mark duplicate override: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark duplicate override rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
