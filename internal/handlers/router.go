package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

type HandlerManager struct {
	gradingHandler        *GradingHandler
	subjectGradingHandler *SubjectGradingHandler
	attemptHandler        *AttemptHandler
	authMiddleware        *CasdoorAuthMiddleware
	serviceManager        services.ServiceManager
	logger                utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
) *HandlerManager {
	return &HandlerManager{
		gradingHandler:        NewGradingHandler(serviceManager.Grading(), logger),
		subjectGradingHandler: NewSubjectGradingHandler(serviceManager.SubjectGrading(), logger),
		attemptHandler:        NewAttemptHandler(serviceManager.Attempt(), logger),
		authMiddleware:        authMiddleware,
		serviceManager:        serviceManager,
		logger:                logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)

	v1 := router.Group("/api/v1")

	// Public routes; a valid token only adds the user
	public := v1.Group("")
	public.Use(hm.authMiddleware.OptionalAuthMiddleware())
	{
		public.GET("/grade", hm.gradingHandler.Usage)
		public.POST("/grade", hm.gradingHandler.Grade)
		public.POST("/answers/reveal", hm.gradingHandler.RevealAnswers)
	}

	// Authenticated user routes
	authed := v1.Group("")
	authed.Use(hm.authMiddleware.AuthMiddleware())
	{
		authed.POST("/grade/subject", hm.subjectGradingHandler.GradeOwn)

		attempts := authed.Group("/attempts")
		{
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.POST("/viewed", hm.attemptHandler.MarkViewed)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
		}
	}

	// Staff routes - Assistants and Admins only
	staff := v1.Group("/staff")
	staff.Use(hm.authMiddleware.AuthMiddleware(), hm.authMiddleware.RequireRoleMiddleware(models.RoleAssistant, models.RoleAdmin))
	{
		staff.POST("/grade/subject", hm.subjectGradingHandler.GradeForStudent)
		staff.GET("/attempts", hm.attemptHandler.ListUserAttempts)
		staff.POST("/attempts/:id/soft-delete", hm.attemptHandler.SoftDelete)
	}

	router.GET("/health", hm.health)
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		utils.GetLogger(c, hm.logger).Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "grading-service",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "grading-service",
	})
}
