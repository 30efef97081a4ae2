package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

// Error codes returned in the "error" field
const (
	CodeInvalidRequest   = "invalid_request"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeExamNotFound     = "exam_not_found"
	CodeAnswerNotFound   = "answer_not_found"
	CodeAttemptNotFound  = "attempt_not_found"
	CodeStudentNotFound  = "student_not_found"
	CodeStudentNotLinked = "student_not_linked"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeUpstreamTimeout  = "upstream_timeout"
	CodeServerError      = "server_error"
)

type ErrorResponse struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// BlockedResponse is the 429 body of a submission rejected by the retake window.
type BlockedResponse struct {
	OK                bool   `json:"ok"`
	Blocked           bool   `json:"blocked"`
	Section           string `json:"section,omitempty"`
	Reason            string `json:"reason"`
	Rule              string `json:"rule"`
	RetryAfterMinutes int    `json:"retry_after_minutes"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs through the request scoped logger so request_id is attached.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, append(args, "method", c.Request.Method, "path", c.FullPath())...)
}

func (h *BaseHandler) respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: code, Message: message})
}

// parseIDParam returns 0 after writing a 400 when the parameter is not a positive integer.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, name+" must be a positive integer")
		return 0
	}
	return uint(id)
}

// optionalUser is the caller when a valid token was presented, nil otherwise.
func (h *BaseHandler) optionalUser(c *gin.Context) *models.User {
	user, err := GetUserFromContext(c)
	if err != nil {
		return nil
	}
	return user
}

// requireUser writes a 401 and returns nil when the caller is anonymous.
func (h *BaseHandler) requireUser(c *gin.Context) *models.User {
	user := h.optionalUser(c)
	if user == nil {
		h.respondError(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	}
	return user
}

// handleServiceError maps service errors to status codes. Store error text never reaches the
// client.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	log := utils.GetLogger(c, h.logger)

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   CodeInvalidRequest,
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var blocked *services.GateBlockedError
	if errors.As(err, &blocked) {
		c.Header("Retry-After", strconv.Itoa(blocked.RetryAfterMinutes*60))
		c.JSON(http.StatusTooManyRequests, BlockedResponse{
			Blocked:           true,
			Section:           blocked.Section,
			Reason:            blocked.Reason,
			Rule:              blocked.Rule,
			RetryAfterMinutes: blocked.RetryAfterMinutes,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   CodeForbidden,
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var upstreamError *services.UpstreamError
	if errors.As(err, &upstreamError) {
		if upstreamError.Timeout {
			log.Warn("Upstream call timed out", "op", upstreamError.Op, "error", err)
			h.respondError(c, http.StatusServiceUnavailable, CodeUpstreamTimeout, "upstream timed out, retry later")
			return
		}
		log.Error("Upstream call failed", "op", upstreamError.Op, "error", err)
		h.respondError(c, http.StatusInternalServerError, CodeServerError, "")
		return
	}

	var persistenceError *services.PersistenceError
	if errors.As(err, &persistenceError) {
		log.Error("Attempt not stored", "section", persistenceError.Section, "error", err)
		h.respondError(c, http.StatusInternalServerError, CodeServerError, "")
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "")
	case errors.Is(err, services.ErrUnauthorized):
		h.respondError(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	case errors.Is(err, services.ErrUserMismatch):
		h.respondError(c, http.StatusForbidden, CodeForbidden, "user_id does not match the caller")
	case errors.Is(err, services.ErrForbidden):
		h.respondError(c, http.StatusForbidden, CodeForbidden, "")
	case errors.Is(err, services.ErrExamNotFound):
		h.respondError(c, http.StatusNotFound, CodeExamNotFound, "")
	case errors.Is(err, services.ErrAnswerNotFound):
		h.respondError(c, http.StatusNotFound, CodeAnswerNotFound, "")
	case errors.Is(err, services.ErrAttemptNotFound):
		h.respondError(c, http.StatusNotFound, CodeAttemptNotFound, "")
	case errors.Is(err, services.ErrStudentNotFound):
		h.respondError(c, http.StatusNotFound, CodeStudentNotFound, "")
	case errors.Is(err, services.ErrStudentNotLinked):
		h.respondError(c, http.StatusConflict, CodeStudentNotLinked, "student has no linked account")
	default:
		log.Error("Unhandled service error", "error", err)
		h.respondError(c, http.StatusInternalServerError, CodeServerError, "")
	}
}
