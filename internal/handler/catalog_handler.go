package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/pkg/response"
)

type catalogService interface {
	ListActivities(ctx context.Context, includeInactive bool) ([]models.Activity, error)
	CreateActivity(ctx context.Context, req dto.CreateActivityRequest) (*models.Activity, error)
	UpdateActivity(ctx context.Context, id int64, req dto.UpdateActivityRequest) (*models.Activity, error)
	ListPrizes(ctx context.Context, includeInactive bool) ([]models.Prize, error)
	CreatePrize(ctx context.Context, req dto.CreatePrizeRequest) (*models.Prize, error)
	AdjustStock(ctx context.Context, id int64, req dto.AdjustStockRequest) (*models.Prize, error)
}

// CatalogHandler exposes activity and prize inventory endpoints.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListActivities godoc
// @Summary List activities
// @Tags Catalog
// @Produce json
// @Param includeInactive query bool false "Include inactive activities"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *CatalogHandler) ListActivities(c *gin.Context) {
	items, err := h.catalog.ListActivities(c.Request.Context(), c.Query("includeInactive") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateActivity godoc
// @Summary Create activity
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Router /activities [post]
func (h *CatalogHandler) CreateActivity(c *gin.Context) {
	var req dto.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	activity, err := h.catalog.CreateActivity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// UpdateActivity godoc
// @Summary Update activity
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Activity ID"
// @Param payload body dto.UpdateActivityRequest true "Activity payload"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [put]
func (h *CatalogHandler) UpdateActivity(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	activity, err := h.catalog.UpdateActivity(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// ListPrizes godoc
// @Summary List prizes
// @Tags Catalog
// @Produce json
// @Param includeInactive query bool false "Include inactive prizes"
// @Success 200 {object} response.Envelope
// @Router /prizes [get]
func (h *CatalogHandler) ListPrizes(c *gin.Context) {
	items, err := h.catalog.ListPrizes(c.Request.Context(), c.Query("includeInactive") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreatePrize godoc
// @Summary Create prize
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreatePrizeRequest true "Prize payload"
// @Success 201 {object} response.Envelope
// @Router /prizes [post]
func (h *CatalogHandler) CreatePrize(c *gin.Context) {
	var req dto.CreatePrizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	prize, err := h.catalog.CreatePrize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prize)
}

// AdjustStock godoc
// @Summary Restock or write off prize units
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Prize ID"
// @Param payload body dto.AdjustStockRequest true "Stock delta"
// @Success 200 {object} response.Envelope
// @Router /prizes/{id}/stock [patch]
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	prize, err := h.catalog.AdjustStock(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prize, nil)
}
