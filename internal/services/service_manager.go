package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	Grading        ServiceConfig
	SubjectGrading ServiceConfig
	Attempt        ServiceConfig

	// UpstreamTimeout bounds every store, identity and broker call
	UpstreamTimeout time.Duration
	// GradedTopic is where graded events go; empty disables publishing
	GradedTopic string
}

type ServiceConfig struct {
	Enabled bool
}

// DefaultServiceManagerConfig enables every service.
func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		Grading:         ServiceConfig{Enabled: true},
		SubjectGrading:  ServiceConfig{Enabled: true},
		Attempt:         ServiceConfig{Enabled: true},
		UpstreamTimeout: DefaultUpstreamTimeout,
	}
}

// Validate validates the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	if config.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	return nil
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db          *gorm.DB
	repoManager repositories.RepositoryManager
	publisher   events.EventPublisher
	guard       *cache.SubmissionGuard
	logger      *slog.Logger
	validator   *validator.Validator
	config      ServiceManagerConfig

	// Service instances
	gradingService        GradingService
	subjectGradingService SubjectGradingService
	attemptService        AttemptService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager. The repository manager must already be
// initialized.
func NewServiceManager(db *gorm.DB, repoManager repositories.RepositoryManager, publisher events.EventPublisher, guard *cache.SubmissionGuard, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:          db,
		repoManager: repoManager,
		publisher:   publisher,
		guard:       guard,
		logger:      logger,
		validator:   validator,
		config:      config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	repo := sm.repoManager.GetRepository()
	if repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	timeout := sm.config.UpstreamTimeout
	persister := NewAttemptPersister(sm.db, repo, sm.publisher, sm.config.GradedTopic, sm.logger, timeout)

	if sm.config.Grading.Enabled {
		sm.gradingService = NewGradingService(repo, persister, sm.guard, sm.logger, sm.validator, timeout)
		sm.logger.Info("Grading service initialized", "submission_guard", sm.guard.Enabled())
	}

	if sm.config.SubjectGrading.Enabled {
		sm.subjectGradingService = NewSubjectGradingService(repo, persister, sm.logger, sm.validator, timeout)
		sm.logger.Info("Subject grading service initialized")
	}

	if sm.config.Attempt.Enabled {
		sm.attemptService = NewAttemptService(repo, sm.logger, sm.validator, timeout)
		sm.logger.Info("Attempt service initialized")
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Grading.Enabled && sm.gradingService != nil {
		return sm.gradingService
	}

	panic("grading service not enabled or not initialized")
}

func (sm *serviceManager) SubjectGrading() SubjectGradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.SubjectGrading.Enabled && sm.subjectGradingService != nil {
		return sm.subjectGradingService
	}

	panic("subject grading service not enabled or not initialized")
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Attempt.Enabled && sm.attemptService != nil {
		return sm.attemptService
	}

	panic("attempt service not enabled or not initialized")
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repoManager.HealthCheck(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.repoManager.Shutdown(ctx); err != nil {
		sm.logger.Error("Failed to shutdown repository manager", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
