package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

type AnonAttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAnonAttemptPostgreSQL(db *gorm.DB) repositories.AnonAttemptRepository {
	return &AnonAttemptPostgreSQL{db: db}
}

func (a *AnonAttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.AnonAttempt, omit ...string) error {
	query := a.getDB(tx).WithContext(ctx)
	if len(omit) > 0 {
		query = query.Omit(omit...)
	}
	if err := query.Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create anonymous attempt: %w", err)
	}
	return nil
}

func (a *AnonAttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}
