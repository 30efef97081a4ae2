package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// ItemStatsPostgreSQL feeds per-question answer counters through the item_stats_apply function.
// The function is owned by the analytics schema; it may not be deployed everywhere.
type ItemStatsPostgreSQL struct {
	db *gorm.DB
}

func NewItemStatsPostgreSQL(db *gorm.DB) repositories.ItemStatsRepository {
	return &ItemStatsPostgreSQL{db: db}
}

// Apply stops at the first failure. A missing function or grant is returned as is so callers
// can recognise it with repositories.IsCapabilityMissing.
func (s *ItemStatsPostgreSQL) Apply(ctx context.Context, tx *gorm.DB, stats []repositories.ItemStat) error {
	db := s.getDB(tx).WithContext(ctx)
	for _, st := range stats {
		err := db.Exec("SELECT item_stats_apply(?, ?, ?, ?, ?)",
			st.Year, st.Section, st.Form, st.ItemNo, st.IsCorrect).Error
		if err != nil {
			return fmt.Errorf("item_stats_apply q%d: %w", st.ItemNo, err)
		}
	}
	return nil
}

func (s *ItemStatsPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
