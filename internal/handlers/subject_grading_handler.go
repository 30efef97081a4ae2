package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type SubjectGradingHandler struct {
	BaseHandler
	subjectService services.SubjectGradingService
}

func NewSubjectGradingHandler(subjectService services.SubjectGradingService, logger utils.Logger) *SubjectGradingHandler {
	return &SubjectGradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		subjectService: subjectService,
	}
}

// GradeOwn grades the caller's subject sheet
// @Summary Grade own subject sheet
// @Tags subject
// @Accept json
// @Produce json
// @Success 200 {object} services.SubjectGradeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /grade/subject [post]
func (h *SubjectGradingHandler) GradeOwn(c *gin.Context) {
	user := h.requireUser(c)
	if user == nil {
		return
	}

	var req services.SubjectGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	h.LogRequest(c, "Grading subject sheet", "subject", req.Subject, "user_id", user.ID)

	resp, err := h.subjectService.GradeOwn(c.Request.Context(), &req, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GradeForStudent grades a subject sheet on behalf of a student
// @Summary Grade subject sheet for a student
// @Tags staff
// @Accept json
// @Produce json
// @Success 200 {object} services.SubjectGradeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /staff/grade/subject [post]
func (h *SubjectGradingHandler) GradeForStudent(c *gin.Context) {
	staff := h.requireUser(c)
	if staff == nil {
		return
	}

	var req services.StaffSubjectGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	h.LogRequest(c, "Grading subject sheet for student",
		"subject", req.Subject,
		"target_student_id", req.TargetStudentID,
		"staff_id", staff.ID)

	resp, err := h.subjectService.GradeForStudent(c.Request.Context(), &req, staff)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
