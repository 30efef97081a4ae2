package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

const itemBatchSize = 100

// columns never written on insert; they only change through MarkViewed and SoftDelete
var attemptInsertOmit = []string{"viewed_at", "deleted_at", "Items"}

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, omit ...string) error {
	db := a.getDB(tx)
	cols := append(slices.Clone(attemptInsertOmit), omit...)
	if err := db.WithContext(ctx).Omit(cols...).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) CreateItems(ctx context.Context, tx *gorm.DB, items []models.ExamAttemptItem, omit ...string) error {
	if len(items) == 0 {
		return nil
	}
	db := a.getDB(tx)
	query := db.WithContext(ctx)
	if len(omit) > 0 {
		query = query.Omit(omit...)
	}
	if err := query.CreateInBatches(&items, itemBatchSize).Error; err != nil {
		return fmt.Errorf("failed to create attempt items: %w", err)
	}
	return nil
}

// GetLatestByUser orders by COALESCE(viewed_at, created_at). Deployments without is_deleted or
// viewed_at still get an answer: the filter is dropped or created_at alone is used.
func (a *AttemptPostgreSQL) GetLatestByUser(ctx context.Context, tx *gorm.DB, userID string) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var latest *models.ExamAttempt

	fallback := repositories.ColumnFallback{Optional: []string{"is_deleted", "viewed_at"}}
	err := fallback.Run(func(omit []string) error {
		query := db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("user_id = ?", userID)
		if !slices.Contains(omit, "is_deleted") {
			query = query.Where("is_deleted = ?", false)
		}
		if slices.Contains(omit, "viewed_at") {
			query = query.Order("created_at DESC")
		} else {
			query = query.Order("COALESCE(viewed_at, created_at) DESC")
		}

		var rows []*models.ExamAttempt
		if err := query.Order("id DESC").Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			latest = rows[0]
		}
		return nil
	})
	if err != nil {
		// an anonymous-only schema has no history to gate on
		if col, ok := repositories.MissingColumn(err); ok && col == "user_id" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest attempt: %w", err)
	}
	return latest, nil
}

func (a *AttemptPostgreSQL) GetByIDWithItems(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	fetch := func() (interface{}, error) {
		var attempt models.ExamAttempt
		err := a.getDB(tx).WithContext(ctx).
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_no ASC") }).
			First(&attempt, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("attempt %d: %w", id, repositories.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get attempt: %w", err)
		}
		return &attempt, nil
	}

	// reads inside a transaction must see uncommitted rows, so they bypass the cache
	if tx != nil {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		return v.(*models.ExamAttempt), nil
	}

	var attempt models.ExamAttempt
	cacheKey := fmt.Sprintf("id:%d", id)
	if err := a.cacheManager.Attempt.CacheOrExecute(ctx, cacheKey, &attempt, cache.AttemptCacheConfig.TTL, fetch); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.ExamAttempt, error) {
	filters.Limit = normalizeLimit(filters.Limit)

	fetch := func() (interface{}, error) {
		var attempts []*models.ExamAttempt
		fallback := repositories.ColumnFallback{Optional: []string{"is_deleted"}}
		err := fallback.Run(func(omit []string) error {
			query := a.getDB(tx).WithContext(ctx).Model(&models.ExamAttempt{}).Where("user_id = ?", filters.UserID)
			if !filters.IncludeDeleted && !slices.Contains(omit, "is_deleted") {
				query = query.Where("is_deleted = ?", false)
			}
			attempts = nil
			return query.Order("created_at DESC").Order("id DESC").Limit(filters.Limit).Find(&attempts).Error
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		if attempts == nil {
			attempts = []*models.ExamAttempt{}
		}
		return attempts, nil
	}

	if tx != nil {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		return v.([]*models.ExamAttempt), nil
	}

	var attempts []*models.ExamAttempt
	cacheKey := fmt.Sprintf("user:%s:list:%t:%d", filters.UserID, filters.IncludeDeleted, filters.Limit)
	if err := a.cacheManager.Attempt.CacheOrExecute(ctx, cacheKey, &attempts, cache.AttemptCacheConfig.TTL, fetch); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) MarkViewed(ctx context.Context, tx *gorm.DB, userID string, ids []uint, at time.Time) ([]uint, error) {
	if len(ids) == 0 {
		return []uint{}, nil
	}
	db := a.getDB(tx)

	var owned []uint
	if err := db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("id ASC").
		Pluck("id", &owned).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve attempts: %w", err)
	}
	if len(owned) == 0 {
		return []uint{}, nil
	}

	if err := db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("id IN ?", owned).
		Update("viewed_at", at).Error; err != nil {
		return nil, fmt.Errorf("failed to mark attempts viewed: %w", err)
	}

	for _, id := range owned {
		cache.InvalidateAttemptCache(ctx, a.cacheManager, id, "")
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, 0, userID)
	return owned, nil
}

// SoftDelete is idempotent; an already deleted attempt is returned unchanged.
func (a *AttemptPostgreSQL) SoftDelete(ctx context.Context, tx *gorm.DB, id uint, at time.Time) (*models.ExamAttempt, error) {
	db := a.getDB(tx)

	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.IsDeleted {
		return &attempt, nil
	}

	if err := db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at}).Error; err != nil {
		return nil, fmt.Errorf("failed to soft delete attempt: %w", err)
	}
	attempt.IsDeleted = true
	attempt.DeletedAt = &at

	owner := ""
	if attempt.UserID != nil {
		owner = *attempt.UserID
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, id, owner)
	return &attempt, nil
}

func (a *AttemptPostgreSQL) InvalidateCache(ctx context.Context, attemptID uint, userID string) {
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attemptID, userID)
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return repositories.DefaultAttemptListLimit
	case limit > repositories.MaxAttemptListLimit:
		return repositories.MaxAttemptListLimit
	}
	return limit
}
