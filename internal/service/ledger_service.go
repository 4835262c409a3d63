package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository"
	"github.com/noah-isme/points-ledger-api/pkg/database"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
	"github.com/noah-isme/points-ledger-api/pkg/notify"
)

const (
	opAward  = "award"
	opRedeem = "redeem"

	outcomeOK = "OK"

	defaultStoreTimeout = 5 * time.Second
	defaultActor        = "web_admin"
	manualActivityName  = "Manual"
)

type ledgerRepository interface {
	RecordAward(ctx context.Context, rec repository.AwardRecord) (*repository.LedgerOutcome, error)
	RecordRedemption(ctx context.Context, rec repository.RedemptionRecord) (*repository.LedgerOutcome, error)
	GetBalance(ctx context.Context, studentID int64) (int64, error)
	ListHistory(ctx context.Context, studentID int64) ([]models.LedgerEntry, error)
	BalanceSnapshot(ctx context.Context, studentID int64) (*models.Balance, error)
	RepairBalance(ctx context.Context, studentID int64, actor string) (*models.Balance, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type activityReader interface {
	FindByID(ctx context.Context, id int64) (*models.Activity, error)
	FindActiveByName(ctx context.Context, name string) (*models.Activity, error)
}

type prizeReader interface {
	FindByID(ctx context.Context, id int64) (*models.Prize, error)
}

// AlertSettings supplies the runtime alert configuration.
type AlertSettings interface {
	AlertThreshold(ctx context.Context) int64
	AlertRecipients(ctx context.Context) []string
}

// StaticAlertSettings is a fixed AlertSettings.
type StaticAlertSettings struct {
	Threshold  int64
	Recipients []string
}

// AlertThreshold implements AlertSettings.
func (s StaticAlertSettings) AlertThreshold(context.Context) int64 { return s.Threshold }

// AlertRecipients implements AlertSettings.
func (s StaticAlertSettings) AlertRecipients(context.Context) []string { return s.Recipients }

// LedgerConfig tunes a LedgerService.
type LedgerConfig struct {
	StoreTimeout time.Duration
	DefaultActor string
}

// LedgerService awards points and redeems prizes. Every balance change goes through the ledger
// repository, which writes the ledger row, the cached balance and the audit entry atomically.
type LedgerService struct {
	ledger     ledgerRepository
	students   studentReader
	activities activityReader
	prizes     prizeReader
	settings   AlertSettings
	notifier   notify.Notifier
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	tracer     trace.Tracer
	timeout    time.Duration
	actor      string
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(
	ledger ledgerRepository,
	students studentReader,
	activities activityReader,
	prizes prizeReader,
	settings AlertSettings,
	notifier notify.Notifier,
	metricsSvc *MetricsService,
	cfg LedgerConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if settings == nil {
		settings = StaticAlertSettings{Threshold: 500}
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.DefaultActor == "" {
		cfg.DefaultActor = defaultActor
	}
	return &LedgerService{
		ledger:     ledger,
		students:   students,
		activities: activities,
		prizes:     prizes,
		settings:   settings,
		notifier:   notifier,
		metrics:    metricsSvc,
		validator:  validate,
		logger:     logger,
		tracer:     otel.Tracer("github.com/noah-isme/points-ledger-api/internal/service/ledger"),
		timeout:    cfg.StoreTimeout,
		actor:      cfg.DefaultActor,
	}
}

// AwardPoints records a signed point movement. Rejections such as an unknown student or an
// overdraft come back as an unsuccessful result with a nil error; only store failures are errors.
func (s *LedgerService) AwardPoints(ctx context.Context, req dto.AwardPointsRequest) (*dto.LedgerResult, error) {
	req.ActivityName = strings.TrimSpace(req.ActivityName)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid award payload")
	}
	actor := s.actorOr(req.Actor)

	ctx, span := s.tracer.Start(ctx, "ledger.award", trace.WithAttributes(
		attribute.Int64("ledger.student_id", req.StudentID),
		attribute.Int64("ledger.points", req.Points),
	))
	defer span.End()

	var student *models.Student
	err := s.call(ctx, "students.find", func(ctx context.Context) (err error) {
		student, err = s.students.FindByID(ctx, req.StudentID)
		return err
	})
	if err != nil {
		return s.settle(ctx, span, opAward, req.StudentID, err)
	}
	if !student.Active {
		return s.reject(span, opAward, req.StudentID, appErrors.ErrNotFound.Code, "student is inactive"), nil
	}

	rec := repository.AwardRecord{
		StudentID:    req.StudentID,
		Points:       req.Points,
		ActivityType: models.LedgerTypeManual,
		ActivityName: manualActivityName,
		Description:  req.Description,
		Actor:        actor,
	}
	activity, err := s.resolveActivity(ctx, req)
	if err != nil {
		return s.settle(ctx, span, opAward, req.StudentID, err)
	}
	if activity != nil {
		id := activity.ID
		rec.ActivityID = &id
		rec.ActivityType = models.LedgerTypeAward
		rec.ActivityName = activity.Name
		if rec.Description == "" {
			rec.Description = activity.Name
		}
	}

	if req.Points < 0 && student.TotalPoints+req.Points < 0 {
		return s.reject(span, opAward, req.StudentID, appErrors.ErrInsufficientBalance.Code,
			fmt.Sprintf("cannot deduct %d points from a balance of %d", -req.Points, student.TotalPoints)), nil
	}

	var out *repository.LedgerOutcome
	err = s.call(ctx, "ledger.record_award", func(ctx context.Context) (err error) {
		out, err = s.ledger.RecordAward(ctx, rec)
		return err
	})
	if err != nil {
		return s.settle(ctx, span, opAward, req.StudentID, err)
	}

	out.Entry.ReferenceName = rec.ActivityName
	s.metrics.RecordLedgerOutcome(opAward, outcomeOK)
	span.SetStatus(codes.Ok, "awarded")
	s.logger.Info("points awarded",
		zap.Int64("student_id", req.StudentID),
		zap.Int64("points", req.Points),
		zap.Int64("entry_id", out.Entry.ID),
		zap.Int64("balance", out.Balance),
		zap.String("actor", actor),
	)

	if req.Points > 0 && req.Points >= s.alertThreshold(ctx) {
		s.notifier.Notify(ctx, notify.Notification{
			Kind:       notify.KindHighValueAward,
			Subject:    fmt.Sprintf("High-value award: %d points to %s", req.Points, student.FullName),
			Body:       fmt.Sprintf("%s awarded %d points to %s (id %d) for %s. New balance: %d.", actor, req.Points, student.FullName, student.ID, rec.ActivityName, out.Balance),
			Recipients: s.alertRecipients(ctx),
		})
	}

	entry := out.Entry
	return &dto.LedgerResult{
		Success: true,
		Code:    outcomeOK,
		Message: awardMessage(req.Points, student.FullName),
		Entry:   &entry,
		Balance: out.Balance,
	}, nil
}

func awardMessage(points int64, name string) string {
	if points < 0 {
		return fmt.Sprintf("Deducted %d points from %s", -points, name)
	}
	return fmt.Sprintf("Awarded %d points to %s", points, name)
}

// resolveActivity looks the activity up by id, then by name. An unknown id is an error; an
// unknown name falls back to a manual entry.
func (s *LedgerService) resolveActivity(ctx context.Context, req dto.AwardPointsRequest) (*models.Activity, error) {
	if req.ActivityID != nil {
		var activity *models.Activity
		err := s.call(ctx, "activities.find", func(ctx context.Context) (err error) {
			activity, err = s.activities.FindByID(ctx, *req.ActivityID)
			return err
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errActivityNotFound
			}
			return nil, err
		}
		if !activity.Active {
			return nil, errActivityNotFound
		}
		return activity, nil
	}
	if req.ActivityName == "" {
		return nil, nil
	}
	var activity *models.Activity
	err := s.call(ctx, "activities.find_by_name", func(ctx context.Context) (err error) {
		activity, err = s.activities.FindActiveByName(ctx, req.ActivityName)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Info("activity not found, recording manual entry", zap.String("activity", req.ActivityName))
		return nil, nil
	}
	return activity, err
}

var (
	errActivityNotFound = errors.New("activity not found")
	errPrizeUnavailable = errors.New("prize not available")
)

// RedeemPrize exchanges points for one unit of a prize. The pre-checks give early, friendly
// rejections; the conditional updates inside the repository transaction are what guarantee
// stock and balance never go negative under concurrency.
func (s *LedgerService) RedeemPrize(ctx context.Context, req dto.RedeemPrizeRequest) (*dto.LedgerResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid redemption payload")
	}
	actor := s.actorOr(req.Actor)

	ctx, span := s.tracer.Start(ctx, "ledger.redeem", trace.WithAttributes(
		attribute.Int64("ledger.student_id", req.StudentID),
		attribute.Int64("ledger.prize_id", req.PrizeID),
	))
	defer span.End()

	var prize *models.Prize
	err := s.call(ctx, "prizes.find", func(ctx context.Context) (err error) {
		prize, err = s.prizes.FindByID(ctx, req.PrizeID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errPrizeUnavailable
		}
		return s.settle(ctx, span, opRedeem, req.StudentID, err)
	}
	if !prize.Active {
		return s.settle(ctx, span, opRedeem, req.StudentID, errPrizeUnavailable)
	}
	if prize.StockCount <= 0 {
		return s.reject(span, opRedeem, req.StudentID, appErrors.ErrOutOfStock.Code, prize.Name+" is out of stock"), nil
	}

	var student *models.Student
	err = s.call(ctx, "students.find", func(ctx context.Context) (err error) {
		student, err = s.students.FindByID(ctx, req.StudentID)
		return err
	})
	if err != nil {
		return s.settle(ctx, span, opRedeem, req.StudentID, err)
	}
	if !student.Active {
		return s.reject(span, opRedeem, req.StudentID, appErrors.ErrNotFound.Code, "student is inactive"), nil
	}
	if student.TotalPoints < prize.PointCost {
		result := s.reject(span, opRedeem, req.StudentID, appErrors.ErrInsufficientBalance.Code,
			fmt.Sprintf("%s needs %d points but has %d", prize.Name, prize.PointCost, student.TotalPoints))
		result.Balance = student.TotalPoints
		return result, nil
	}

	var out *repository.LedgerOutcome
	err = s.call(ctx, "ledger.record_redemption", func(ctx context.Context) (err error) {
		out, err = s.ledger.RecordRedemption(ctx, repository.RedemptionRecord{
			StudentID: req.StudentID,
			PrizeID:   req.PrizeID,
			Actor:     actor,
		})
		return err
	})
	if err != nil {
		return s.settle(ctx, span, opRedeem, req.StudentID, err)
	}

	s.metrics.RecordLedgerOutcome(opRedeem, outcomeOK)
	span.SetStatus(codes.Ok, "redeemed")
	s.logger.Info("prize redeemed",
		zap.Int64("student_id", req.StudentID),
		zap.Int64("prize_id", req.PrizeID),
		zap.Int64("entry_id", out.Entry.ID),
		zap.Int64("balance", out.Balance),
		zap.Int64("stock_remaining", out.StockRemaining),
		zap.String("actor", actor),
	)

	entry := out.Entry
	stock := out.StockRemaining
	return &dto.LedgerResult{
		Success:        true,
		Code:           outcomeOK,
		Message:        fmt.Sprintf("%s redeemed %s", student.FullName, out.PrizeName),
		Entry:          &entry,
		Balance:        out.Balance,
		StockRemaining: &stock,
	}, nil
}

// GetBalance returns the cached balance of a student.
func (s *LedgerService) GetBalance(ctx context.Context, studentID int64) (int64, error) {
	var balance int64
	err := s.call(ctx, "ledger.balance", func(ctx context.Context) (err error) {
		balance, err = s.ledger.GetBalance(ctx, studentID)
		return err
	})
	if err != nil {
		return 0, lookupError(err, "student not found", "failed to load balance")
	}
	return balance, nil
}

// GetLedgerHistory returns a student's ledger entries, most recent first.
func (s *LedgerService) GetLedgerHistory(ctx context.Context, studentID int64) ([]models.LedgerEntry, error) {
	err := s.call(ctx, "students.find", func(ctx context.Context) error {
		_, err := s.students.FindByID(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	var entries []models.LedgerEntry
	err = s.call(ctx, "ledger.history", func(ctx context.Context) (err error) {
		entries, err = s.ledger.ListHistory(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, storeError(err, "failed to load ledger history")
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

// Reconcile compares the cached balance with the ledger sum. With repair set, an inconsistent
// cache is reset to the ledger sum and a BALANCE_RECONCILE audit entry is written.
func (s *LedgerService) Reconcile(ctx context.Context, studentID int64, repair bool, actor string) (*dto.ReconcileResponse, error) {
	actor = s.actorOr(actor)
	var snapshot *models.Balance
	err := s.call(ctx, "ledger.snapshot", func(ctx context.Context) (err error) {
		snapshot, err = s.ledger.BalanceSnapshot(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to read balance")
	}
	resp := &dto.ReconcileResponse{
		StudentID:  studentID,
		Cached:     snapshot.Cached,
		LedgerSum:  snapshot.LedgerSum,
		Consistent: snapshot.Consistent(),
	}
	if resp.Consistent || !repair {
		return resp, nil
	}

	var repaired *models.Balance
	err = s.call(ctx, "ledger.repair", func(ctx context.Context) (err error) {
		repaired, err = s.ledger.RepairBalance(ctx, studentID, actor)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrAuditWrite) && database.Classify(err) != database.FailureUnavailable {
			s.logger.Error("balance repair rolled back", zap.String("code", appErrors.ErrAuditWriteFailed.Code),
				zap.Int64("student_id", studentID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrAuditWriteFailed.Code, appErrors.ErrAuditWriteFailed.Status, "failed to audit balance repair")
		}
		return nil, lookupError(err, "student not found", "failed to repair balance")
	}
	s.logger.Warn("balance repaired",
		zap.Int64("student_id", studentID),
		zap.Int64("cached", snapshot.Cached),
		zap.Int64("ledger_sum", repaired.LedgerSum),
		zap.String("actor", actor),
	)
	resp.Cached = repaired.Cached
	resp.LedgerSum = repaired.LedgerSum
	resp.Consistent = repaired.Consistent()
	resp.Repaired = true
	return resp, nil
}

// call runs fn under the store timeout and records its latency.
func (s *LedgerService) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStoreCall(operation, time.Since(start))
	return err
}

// alertThreshold and alertRecipients read runtime settings under the store timeout. A slow or
// failing settings store yields the configured fallbacks.
func (s *LedgerService) alertThreshold(ctx context.Context) (threshold int64) {
	_ = s.call(ctx, "settings.alert_threshold", func(ctx context.Context) error {
		threshold = s.settings.AlertThreshold(ctx)
		return nil
	})
	return threshold
}

func (s *LedgerService) alertRecipients(ctx context.Context) (recipients []string) {
	_ = s.call(ctx, "settings.alert_recipients", func(ctx context.Context) error {
		recipients = s.settings.AlertRecipients(ctx)
		return nil
	})
	return recipients
}

func (s *LedgerService) actorOr(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return s.actor
}

func (s *LedgerService) reject(span trace.Span, operation string, studentID int64, code, message string) *dto.LedgerResult {
	s.metrics.RecordLedgerOutcome(operation, code)
	span.SetAttributes(attribute.String("ledger.outcome", code))
	s.logger.Info("ledger operation rejected",
		zap.String("operation", operation),
		zap.Int64("student_id", studentID),
		zap.String("code", code),
		zap.String("reason", message),
	)
	return &dto.LedgerResult{Success: false, Code: code, Message: message}
}

// settle turns a failed step into either a rejection result or an infrastructure error.
func (s *LedgerService) settle(ctx context.Context, span trace.Span, operation string, studentID int64, err error) (*dto.LedgerResult, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, repository.ErrStudentInactive):
		return s.reject(span, operation, studentID, appErrors.ErrNotFound.Code, "student not found or inactive"), nil
	case errors.Is(err, errActivityNotFound):
		return s.reject(span, operation, studentID, appErrors.ErrNotFound.Code, "activity not found or inactive"), nil
	case errors.Is(err, errPrizeUnavailable), errors.Is(err, repository.ErrPrizeInactive):
		return s.reject(span, operation, studentID, appErrors.ErrNotFound.Code, "prize not found or inactive"), nil
	case errors.Is(err, repository.ErrStockExhausted):
		return s.reject(span, operation, studentID, appErrors.ErrOutOfStock.Code, appErrors.ErrOutOfStock.Message), nil
	case errors.Is(err, repository.ErrBalanceGuard):
		return s.reject(span, operation, studentID, appErrors.ErrInsufficientBalance.Code, appErrors.ErrInsufficientBalance.Message), nil
	}

	class := database.Classify(err)
	if class == database.FailureConflict {
		return s.reject(span, operation, studentID, appErrors.ErrConcurrentConflict.Code, appErrors.ErrConcurrentConflict.Message), nil
	}

	var appErr *appErrors.Error
	switch {
	case class == database.FailureUnavailable:
		appErr = appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	case errors.Is(err, repository.ErrAuditWrite):
		appErr = appErrors.Wrap(err, appErrors.ErrAuditWriteFailed.Code, appErrors.ErrAuditWriteFailed.Status, "ledger change rolled back: audit write failed")
	default:
		appErr = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ledger operation failed")
	}

	s.metrics.RecordLedgerOutcome(operation, appErr.Code)
	span.RecordError(err)
	span.SetStatus(codes.Error, appErr.Code)
	s.logger.Error("ledger operation failed",
		zap.String("operation", operation),
		zap.Int64("student_id", studentID),
		zap.String("code", appErr.Code),
		zap.Error(err),
	)
	s.notifier.Notify(ctx, notify.Notification{
		Kind:       notify.KindSystemError,
		Subject:    fmt.Sprintf("Ledger %s failed: %s", operation, appErr.Code),
		Body:       fmt.Sprintf("A %s for student %d failed and was rolled back: %v", operation, studentID, err),
		Recipients: s.alertRecipients(ctx),
	})
	return nil, appErr
}
