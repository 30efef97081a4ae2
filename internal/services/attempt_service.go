package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	timeout   time.Duration
	now       func() time.Time
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, timeout time.Duration) AttemptService {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		timeout:   timeout,
		now:       time.Now,
	}
}

// ===== OWN ATTEMPTS =====

func (s *attemptService) ListOwn(ctx context.Context, user *models.User, limit int) (*AttemptListResponse, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	return s.list(ctx, repositories.AttemptFilters{UserID: user.ID, Limit: limit})
}

// GetOwn hides deleted attempts and attempts of other users behind ErrAttemptNotFound.
func (s *attemptService) GetOwn(ctx context.Context, id uint, user *models.User) (*models.ExamAttempt, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempt, err := s.repo.Attempt().GetByIDWithItems(tctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, NewUpstreamError("get attempt", err)
	}
	if attempt.IsDeleted || attempt.UserID == nil || *attempt.UserID != user.ID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// MarkViewed stamps viewed_at on the caller's attempts; ids of other users are skipped.
func (s *attemptService) MarkViewed(ctx context.Context, req *MarkViewedRequest, user *models.User) (*MarkViewedResponse, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	ids := req.IDs()
	if len(ids) == 0 {
		return nil, NewValidationError("attempt_ids", "at least one attempt id is required", nil)
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	updated, err := s.repo.Attempt().MarkViewed(tctx, nil, user.ID, ids, s.now().UTC())
	if err != nil {
		return nil, NewUpstreamError("mark attempts viewed", err)
	}
	if updated == nil {
		updated = []uint{}
	}

	s.logger.InfoContext(ctx, "Attempts marked viewed",
		"user_id", user.ID,
		"requested", len(ids),
		"updated", len(updated))

	return &MarkViewedResponse{OK: true, Updated: len(updated), IDs: updated}, nil
}

// ===== STAFF =====

func (s *attemptService) ListForUser(ctx context.Context, query *AttemptListQuery, staff *models.User) (*AttemptListResponse, error) {
	if err := requireStaff(staff, 0, "list"); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(query); err != nil {
		return nil, err
	}

	return s.list(ctx, repositories.AttemptFilters{
		UserID:         query.UserID,
		IncludeDeleted: query.IncludeDeleted,
		Limit:          query.Limit,
	})
}

func (s *attemptService) SoftDelete(ctx context.Context, id uint, staff *models.User) (*SoftDeleteResponse, error) {
	if err := requireStaff(staff, id, "delete"); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, NewValidationError("id", "attempt id must be positive", id)
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempt, err := s.repo.Attempt().SoftDelete(tctx, nil, id, s.now().UTC())
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, NewUpstreamError("soft delete attempt", err)
	}

	s.logger.InfoContext(ctx, "Attempt soft deleted",
		"attempt_id", id,
		"staff_id", staff.ID,
		"role", staff.Role)

	return &SoftDeleteResponse{OK: true, Attempt: attempt}, nil
}

func (s *attemptService) list(ctx context.Context, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempts, err := s.repo.Attempt().ListByUser(tctx, nil, filters)
	if err != nil {
		return nil, NewUpstreamError("list attempts", err)
	}
	if attempts == nil {
		attempts = []*models.ExamAttempt{}
	}
	return &AttemptListResponse{OK: true, Attempts: attempts, Total: len(attempts)}, nil
}

func requireStaff(user *models.User, resourceID uint, action string) error {
	if user == nil {
		return ErrUnauthorized
	}
	if !user.IsStaff() {
		return NewPermissionError(user.ID, resourceID, "attempt", action, "staff role required")
	}
	return nil
}
