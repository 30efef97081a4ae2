package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	UserID         string `json:"user_id"`
	IncludeDeleted bool   `json:"include_deleted"`
	Limit          int    `json:"limit"`
}

const (
	DefaultAttemptListLimit = 200
	MaxAttemptListLimit     = 500
)

// ===== ATTEMPT DOMAIN =====

// AttemptRepository owns exam_attempts and exam_attempt_items. The omit arguments name
// columns to leave out of the insert when the deployed schema does not have them.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, omit ...string) error
	CreateItems(ctx context.Context, tx *gorm.DB, items []models.ExamAttemptItem, omit ...string) error

	// GetLatestByUser returns nil, nil when the user has no attempts.
	GetLatestByUser(ctx context.Context, tx *gorm.DB, userID string) (*models.ExamAttempt, error)
	GetByIDWithItems(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	ListByUser(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.ExamAttempt, error)

	// MarkViewed stamps viewed_at on the listed attempts owned by userID and returns the ids it touched.
	MarkViewed(ctx context.Context, tx *gorm.DB, userID string, ids []uint, at time.Time) ([]uint, error)
	SoftDelete(ctx context.Context, tx *gorm.DB, id uint, at time.Time) (*models.ExamAttempt, error)

	// InvalidateCache drops cached reads of an attempt and of its owner's lists.
	InvalidateCache(ctx context.Context, attemptID uint, userID string)
}

type AnonAttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.AnonAttempt, omit ...string) error
}

// ItemStat is one per-question counter update. Year is the base year without edition suffix.
type ItemStat struct {
	Year      int
	Section   string
	Form      string
	ItemNo    int
	IsCorrect bool
}

type ItemStatsRepository interface {
	Apply(ctx context.Context, tx *gorm.DB, stats []ItemStat) error
}

// ===== STUDENT DOMAIN =====

type StudentRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Student, error)
}

// ===== EXAM DATA =====

// ExamDataRepository serves the static answer keys and score tables.
type ExamDataRepository interface {
	SectionKey(year, section, form string) (*models.SectionKey, error)
	Conversion(year, section string, raw int) (models.ScoreConversion, error)
	RankTable(year string) ([]models.RankCut, error)
	Stars(section, year string) (map[int]int, error)
	SubjectRows(subject string, startQ, endQ int) ([]models.SubjectKeyRow, error)
}
