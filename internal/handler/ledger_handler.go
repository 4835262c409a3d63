package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
	"github.com/noah-isme/points-ledger-api/pkg/response"
)

type ledgerService interface {
	AwardPoints(ctx context.Context, req dto.AwardPointsRequest) (*dto.LedgerResult, error)
	RedeemPrize(ctx context.Context, req dto.RedeemPrizeRequest) (*dto.LedgerResult, error)
	GetBalance(ctx context.Context, studentID int64) (int64, error)
	GetLedgerHistory(ctx context.Context, studentID int64) ([]models.LedgerEntry, error)
	Reconcile(ctx context.Context, studentID int64, repair bool, actor string) (*dto.ReconcileResponse, error)
}

// rejectionStatus maps ledger rejection codes onto HTTP statuses.
var rejectionStatus = map[string]*appErrors.Error{
	appErrors.ErrNotFound.Code:            appErrors.ErrNotFound,
	appErrors.ErrOutOfStock.Code:          appErrors.ErrOutOfStock,
	appErrors.ErrInsufficientBalance.Code: appErrors.ErrInsufficientBalance,
	appErrors.ErrConcurrentConflict.Code:  appErrors.ErrConcurrentConflict,
}

// LedgerHandler exposes point awards, redemptions and balance reads.
type LedgerHandler struct {
	ledger ledgerService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Award godoc
// @Summary Award or deduct points
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body dto.AwardPointsRequest true "Award payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /ledger/awards [post]
func (h *LedgerHandler) Award(c *gin.Context) {
	var req dto.AwardPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	result, err := h.ledger.AwardPoints(c.Request.Context(), req)
	writeLedgerResult(c, result, err)
}

// Redeem godoc
// @Summary Redeem a prize
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body dto.RedeemPrizeRequest true "Redemption payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /ledger/redemptions [post]
func (h *LedgerHandler) Redeem(c *gin.Context) {
	var req dto.RedeemPrizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	result, err := h.ledger.RedeemPrize(c.Request.Context(), req)
	writeLedgerResult(c, result, err)
}

func writeLedgerResult(c *gin.Context, result *dto.LedgerResult, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Success {
		response.Created(c, result)
		return
	}
	base, ok := rejectionStatus[result.Code]
	if !ok {
		base = appErrors.ErrConflict
	}
	response.ErrorWithData(c, appErrors.Clone(base, result.Message), result)
}

// Balance godoc
// @Summary Get cached balance
// @Tags Ledger
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/balance [get]
func (h *LedgerHandler) Balance(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.ledger.GetBalance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BalanceResponse{StudentID: id, Balance: balance}, nil)
}

// History godoc
// @Summary Get ledger history, most recent first
// @Tags Ledger
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/history [get]
func (h *LedgerHandler) History(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.ledger.GetLedgerHistory(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}

// Reconcile godoc
// @Summary Compare the cached balance with the ledger, optionally repairing it
// @Tags Ledger
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.ReconcileRequest false "Repair flag"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reconcile [post]
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	result, err := h.ledger.Reconcile(c.Request.Context(), id, req.Repair, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
