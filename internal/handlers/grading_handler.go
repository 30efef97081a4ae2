package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// Usage describes the two request shapes of the grade endpoint
// @Summary Grade endpoint usage
// @Tags grading
// @Produce json
// @Success 200 {object} services.UsageResponse
// @Router /grade [get]
func (h *GradingHandler) Usage(c *gin.Context) {
	c.JSON(http.StatusOK, h.gradingService.Usage())
}

// Grade grades one section or both sections of an exam
// @Summary Grade answers
// @Description Single mode takes section and answers; multi mode takes lang_answers and
// @Description logic_answers. Authenticated attempts are stored and subject to the retake window.
// @Tags grading
// @Accept json
// @Produce json
// @Success 200 {object} services.SingleGradeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} BlockedResponse
// @Failure 503 {object} ErrorResponse
// @Router /grade [post]
func (h *GradingHandler) Grade(c *gin.Context) {
	var req services.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	user := h.optionalUser(c)
	h.LogRequest(c, "Grading submission", "year", req.Year.String(), "authenticated", user != nil)

	resp, err := h.gradingService.Grade(c.Request.Context(), &req, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp.Body())
}

// RevealAnswers returns the official answers of the chosen questions
// @Summary Reveal answers
// @Tags grading
// @Accept json
// @Produce json
// @Success 200 {object} services.RevealAnswersResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /answers/reveal [post]
func (h *GradingHandler) RevealAnswers(c *gin.Context) {
	var req services.RevealAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	h.LogRequest(c, "Revealing answers", "year", req.Year.String(), "section", req.Section)

	resp, err := h.gradingService.RevealAnswers(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// MethodNotAllowed answers every method the router has no route for.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: CodeMethodNotAllowed})
}
