package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// ListAttempts lists the caller's attempts, newest first
// @Summary List own attempts
// @Tags attempts
// @Produce json
// @Param limit query int false "Page size (default: 200, max: 500)"
// @Success 200 {object} services.AttemptListResponse
// @Failure 401 {object} ErrorResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	user := h.requireUser(c)
	if user == nil {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	h.LogRequest(c, "Listing own attempts", "user_id", user.ID, "limit", limit)

	resp, err := h.attemptService.ListOwn(c.Request.Context(), user, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAttempt returns one of the caller's attempts with its items
// @Summary Get own attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.ExamAttempt
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	user := h.requireUser(c)
	if user == nil {
		return
	}
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting attempt", "attempt_id", id)

	attempt, err := h.attemptService.GetOwn(c.Request.Context(), id, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "attempt": attempt})
}

// MarkViewed stamps viewed_at on up to 20 of the caller's attempts
// @Summary Mark attempts viewed
// @Tags attempts
// @Accept json
// @Produce json
// @Success 200 {object} services.MarkViewedResponse
// @Failure 400 {object} ErrorResponse
// @Router /attempts/viewed [post]
func (h *AttemptHandler) MarkViewed(c *gin.Context) {
	user := h.requireUser(c)
	if user == nil {
		return
	}

	var req services.MarkViewedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	h.LogRequest(c, "Marking attempts viewed", "user_id", user.ID)

	resp, err := h.attemptService.MarkViewed(c.Request.Context(), &req, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListUserAttempts lists the attempts of any user for staff
// @Summary List a user's attempts
// @Tags staff
// @Produce json
// @Param user_id query string true "User ID"
// @Param include_deleted query bool false "Include soft deleted attempts"
// @Param limit query int false "Page size (default: 200, max: 500)"
// @Success 200 {object} services.AttemptListResponse
// @Failure 403 {object} ErrorResponse
// @Router /staff/attempts [get]
func (h *AttemptHandler) ListUserAttempts(c *gin.Context) {
	staff := h.requireUser(c)
	if staff == nil {
		return
	}

	var query services.AttemptListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid query parameters")
		return
	}

	h.LogRequest(c, "Listing user attempts", "user_id", query.UserID, "staff_id", staff.ID)

	resp, err := h.attemptService.ListForUser(c.Request.Context(), &query, staff)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SoftDelete hides an attempt from its owner
// @Summary Soft delete an attempt
// @Tags staff
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.SoftDeleteResponse
// @Failure 404 {object} ErrorResponse
// @Router /staff/attempts/{id}/soft-delete [post]
func (h *AttemptHandler) SoftDelete(c *gin.Context) {
	staff := h.requireUser(c)
	if staff == nil {
		return
	}
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Soft deleting attempt", "attempt_id", id, "staff_id", staff.ID)

	resp, err := h.attemptService.SoftDelete(c.Request.Context(), id, staff)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
