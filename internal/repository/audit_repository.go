package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

// AuditRepository appends to and reads from audit_log. It never updates or deletes rows.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit entry outside any ledger transaction.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	return insertAuditEntry(ctx, r.db, entry)
}

// List returns the newest audit entries matching the filter.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.ActionType != "" {
		args = append(args, filter.ActionType)
		conditions = append(conditions, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		conditions = append(conditions, fmt.Sprintf("actor = $%d", len(args)))
	}
	if filter.TargetTable != "" {
		args = append(args, filter.TargetTable)
		conditions = append(conditions, fmt.Sprintf("target_table = $%d", len(args)))
	}
	if filter.TargetID != nil {
		args = append(args, *filter.TargetID)
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultAuditLimit
	}

	query := fmt.Sprintf(`SELECT id, event_time, action_type, actor, target_table, target_id, COALESCE(details, '') AS details
        FROM audit_log WHERE %s ORDER BY event_time DESC, id DESC LIMIT %d`, strings.Join(conditions, " AND "), limit)
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func insertAuditEntry(ctx context.Context, q sqlx.QueryerContext, entry *models.AuditEntry) error {
	if entry.EventTime.IsZero() {
		entry.EventTime = time.Now().UTC()
	}
	const query = `INSERT INTO audit_log (event_time, action_type, actor, target_table, target_id, details)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := q.QueryRowxContext(ctx, query, entry.EventTime, entry.ActionType, entry.Actor, entry.TargetTable, entry.TargetID, entry.Details).
		Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
