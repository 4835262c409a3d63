package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/internal/repository"
	"github.com/noah-isme/points-ledger-api/pkg/database"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

type activityRepository interface {
	List(ctx context.Context, includeInactive bool) ([]models.Activity, error)
	FindByID(ctx context.Context, id int64) (*models.Activity, error)
	Create(ctx context.Context, activity *models.Activity) error
	Update(ctx context.Context, activity *models.Activity) error
}

type prizeRepository interface {
	List(ctx context.Context, includeInactive bool) ([]models.Prize, error)
	FindByID(ctx context.Context, id int64) (*models.Prize, error)
	Create(ctx context.Context, prize *models.Prize) error
	AdjustStock(ctx context.Context, id int64, delta int64) (int64, error)
}

// CatalogService manages activities and prize inventory.
type CatalogService struct {
	activities activityRepository
	prizes     prizeRepository
	audit      *AuditService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(activities activityRepository, prizes prizeRepository, audit *AuditService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{activities: activities, prizes: prizes, audit: audit, validator: validate, logger: logger}
}

// ListActivities returns activities ordered by name.
func (s *CatalogService) ListActivities(ctx context.Context, includeInactive bool) ([]models.Activity, error) {
	items, err := s.activities.List(ctx, includeInactive)
	if err != nil {
		return nil, storeError(err, "failed to list activities")
	}
	if items == nil {
		items = []models.Activity{}
	}
	return items, nil
}

// CreateActivity registers a new activity.
func (s *CatalogService) CreateActivity(ctx context.Context, req dto.CreateActivityRequest) (*models.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	activity := &models.Activity{
		Name:          req.Name,
		Description:   strings.TrimSpace(req.Description),
		DefaultPoints: req.DefaultPoints,
		Active:        true,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, conflictOr(err, "activity name already exists", "failed to create activity")
	}
	s.audit.Record(ctx, models.AuditActionCreateActivity, req.Actor, models.TableActivities, &activity.ID,
		fmt.Sprintf("created activity %q (%d points)", activity.Name, activity.DefaultPoints))
	return activity, nil
}

// UpdateActivity modifies an activity.
func (s *CatalogService) UpdateActivity(ctx context.Context, id int64, req dto.UpdateActivityRequest) (*models.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "activity not found", "failed to load activity")
	}
	activity.Name = req.Name
	activity.Description = strings.TrimSpace(req.Description)
	activity.DefaultPoints = req.DefaultPoints
	activity.Active = req.Active
	if err := s.activities.Update(ctx, activity); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "activity name already exists")
		}
		return nil, lookupError(err, "activity not found", "failed to update activity")
	}
	s.audit.Record(ctx, models.AuditActionUpdateActivity, req.Actor, models.TableActivities, &activity.ID,
		fmt.Sprintf("updated activity %q (active=%t)", activity.Name, activity.Active))
	return activity, nil
}

// ListPrizes returns prizes ordered by name.
func (s *CatalogService) ListPrizes(ctx context.Context, includeInactive bool) ([]models.Prize, error) {
	items, err := s.prizes.List(ctx, includeInactive)
	if err != nil {
		return nil, storeError(err, "failed to list prizes")
	}
	if items == nil {
		items = []models.Prize{}
	}
	return items, nil
}

// CreatePrize adds a prize to inventory.
func (s *CatalogService) CreatePrize(ctx context.Context, req dto.CreatePrizeRequest) (*models.Prize, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prize payload")
	}
	prize := &models.Prize{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		PointCost:   req.PointCost,
		StockCount:  req.StockCount,
		Active:      true,
	}
	if err := s.prizes.Create(ctx, prize); err != nil {
		return nil, conflictOr(err, "prize name already exists", "failed to create prize")
	}
	s.audit.Record(ctx, models.AuditActionCreatePrize, req.Actor, models.TablePrizeInventory, &prize.ID,
		fmt.Sprintf("created prize %q costing %d with stock %d", prize.Name, prize.PointCost, prize.StockCount))
	return prize, nil
}

// AdjustStock restocks or writes off prize units. Stock never goes below zero.
func (s *CatalogService) AdjustStock(ctx context.Context, id int64, req dto.AdjustStockRequest) (*models.Prize, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stock adjustment")
	}
	stock, err := s.prizes.AdjustStock(ctx, id, req.Delta)
	if err != nil {
		if errors.Is(err, repository.ErrStockExhausted) {
			return nil, appErrors.Clone(appErrors.ErrOutOfStock, "adjustment would make stock negative")
		}
		return nil, lookupError(err, "prize not found", "failed to adjust stock")
	}
	details := fmt.Sprintf("stock %+d, now %d", req.Delta, stock)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		details += ": " + reason
	}
	s.audit.Record(ctx, models.AuditActionInventoryUpdate, req.Actor, models.TablePrizeInventory, &id, details)

	prize, err := s.prizes.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "prize not found", "failed to load prize")
	}
	return prize, nil
}

func conflictOr(err error, conflict, message string) *appErrors.Error {
	if database.IsUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrConflict, conflict)
	}
	return storeError(err, message)
}
