package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AuditService writes and reads the audit trail for mutations outside the ledger transaction.
type AuditService struct {
	repo    auditRepository
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, metrics: metrics, logger: logger, now: time.Now}
}

// Record appends an audit entry. It is best effort: a failed write is logged and counted but
// never reported to the caller, whose mutation has already committed.
func (s *AuditService) Record(ctx context.Context, action, actor, table string, targetID *int64, details string) {
	if s == nil || s.repo == nil {
		return
	}
	entry := &models.AuditEntry{
		EventTime:   s.now().UTC(),
		ActionType:  action,
		Actor:       actor,
		TargetTable: table,
		TargetID:    targetID,
		Details:     details,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.RecordAuditFailure()
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("actor", actor),
			zap.String("table", table),
			zap.Error(err),
		}
		if targetID != nil {
			fields = append(fields, zap.Int64("target_id", *targetID))
		}
		s.logger.Error("audit write failed", fields...)
	}
}

// List returns the most recent audit entries matching filter.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = models.DefaultAuditLimit
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list audit log")
	}
	return entries, nil
}
