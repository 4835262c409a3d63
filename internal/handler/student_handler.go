package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/points-ledger-api/internal/dto"
	"github.com/noah-isme/points-ledger-api/internal/models"
	"github.com/noah-isme/points-ledger-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, query dto.StudentQuery) ([]models.Student, error)
	Get(ctx context.Context, id int64) (*models.Student, error)
	Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, []dto.DuplicateMatch, error)
	Update(ctx context.Context, id int64, req dto.UpdateStudentRequest) (*models.Student, error)
	Deactivate(ctx context.Context, id int64, actor string) error
	CheckDuplicates(ctx context.Context, req dto.DuplicateCheckRequest, actor string) ([]dto.DuplicateMatch, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary Search students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or id"
// @Param includeInactive query bool false "Include deactivated students"
// @Param all query bool false "Return every match instead of the first 50"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var query dto.StudentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	students, err := h.students.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil, map[string]interface{}{"count": len(students)})
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Enroll student
// @Description Screens for duplicates first. A 409 DUPLICATE_CANDIDATES response lists the candidates; resend with allowDuplicate and a justification to override.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	student, matches, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		if len(matches) > 0 {
			response.ErrorWithData(c, err, gin.H{"candidates": matches})
			return
		}
		response.Error(c, err)
		return
	}
	if len(matches) > 0 {
		response.JSON(c, http.StatusCreated, student, nil, map[string]interface{}{"overridden": matches})
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Actor = actorFromContext(c)
	student, err := h.students.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Deactivate godoc
// @Summary Deactivate student
// @Tags Students
// @Param id path int true "Student ID"
// @Success 204 {string} string ""
// @Router /students/{id} [delete]
func (h *StudentHandler) Deactivate(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.Deactivate(c.Request.Context(), id, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckDuplicates godoc
// @Summary Screen for duplicate students
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.DuplicateCheckRequest true "Identity to screen"
// @Success 200 {object} response.Envelope
// @Router /students/duplicates [post]
func (h *StudentHandler) CheckDuplicates(c *gin.Context) {
	var req dto.DuplicateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	matches, err := h.students.CheckDuplicates(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matches, nil)
}
