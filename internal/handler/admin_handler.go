package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

type settingsService interface {
	List(ctx context.Context) ([]models.Setting, error)
	Update(ctx context.Context, key string, req dto.UpdateSettingRequest) (*models.Setting, error)
}

// AdminHandler exposes the audit trail and runtime settings.
type AdminHandler struct {
	audit    auditService
	settings settingsService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(audit auditService, settings settingsService) *AdminHandler {
	return &AdminHandler{audit: audit, settings: settings}
}

// AuditLogs godoc
// @Summary List audit entries, newest first
// @Tags Admin
// @Produce json
// @Param actionType query string false "Action type"
// @Param actor query string false "Actor"
// @Param targetTable query string false "Target table"
// @Param targetId query int false "Target id"
// @Param limit query int false "Maximum entries (default 100)"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	filter := models.AuditFilter{
		ActionType:  query.ActionType,
		Actor:       query.Actor,
		TargetTable: query.TargetTable,
		Limit:       query.Limit,
	}
	if query.TargetID > 0 {
		filter.TargetID = &query.TargetID
	}
	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Settings godoc
// @Summary List runtime settings
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *AdminHandler) Settings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// UpdateSetting godoc
// @Summary Update a runtime setting
// @Tags Admin
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param payload body dto.UpdateSettingRequest true "Setting value"
// @Success 200 {object} response.Envelope
// @Router /settings/{key} [put]
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req dto.UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	setting, err := h.settings.Update(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, setting, nil)
}
