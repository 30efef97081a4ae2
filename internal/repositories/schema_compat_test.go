package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingColumn(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		column string
		ok     bool
	}{
		{"nil", nil, "", false},
		{
			name:   "postgres relation message",
			err:    &pgconn.PgError{Code: "42703", Message: `column "meta" of relation "exam_attempts" does not exist`},
			column: "meta", ok: true,
		},
		{
			name:   "postgres qualified column",
			err:    fmt.Errorf("query: %w", &pgconn.PgError{Code: "42703", Message: `column a.viewed_at does not exist`}),
			column: "viewed_at", ok: true,
		},
		{
			name:   "postgres column name field",
			err:    &pgconn.PgError{Code: "42703", ColumnName: "is_deleted"},
			column: "is_deleted", ok: true,
		},
		{
			name: "postgres other code",
			err:  &pgconn.PgError{Code: "23505", Message: `column "meta" does not exist`},
		},
		{
			name:   "postgrest schema cache",
			err:    errors.New(`Could not find the 'p_correct' column of 'exam_attempt_items' in the schema cache`),
			column: "p_correct", ok: true,
		},
		{
			name:   "sqlite insert",
			err:    errors.New("table exam_attempts has no column named user_id"),
			column: "user_id", ok: true,
		},
		{
			name:   "sqlite select",
			err:    errors.New("no such column: viewed_at"),
			column: "viewed_at", ok: true,
		},
		{
			name: "unrelated",
			err:  errors.New("connection reset by peer"),
		},
		{
			name:   "already parsed",
			err:    fmt.Errorf("insert: %w", &MissingColumnError{Column: "meta", Err: errors.New("x")}),
			column: "meta", ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, ok := MissingColumn(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.column, col)
		})
	}
}

func TestColumnFallback(t *testing.T) {
	missing := func(col string) error {
		return fmt.Errorf("table exam_attempts has no column named %s", col)
	}

	t.Run("strips optional columns until the write succeeds", func(t *testing.T) {
		var seen [][]string
		schemaLacks := map[string]bool{"meta": true, "user_id": true}

		err := ColumnFallback{Optional: AttemptOptionalColumns}.Run(func(omit []string) error {
			seen = append(seen, omit)
			for col := range schemaLacks {
				if !contains(omit, col) {
					return missing(col)
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, 3)
		assert.Empty(t, seen[0])
		assert.ElementsMatch(t, []string{"meta", "user_id"}, seen[2])
	})

	t.Run("required column is not retried", func(t *testing.T) {
		calls := 0
		err := ColumnFallback{Optional: AttemptOptionalColumns}.Run(func([]string) error {
			calls++
			return missing("raw_score")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("other errors stop immediately", func(t *testing.T) {
		boom := errors.New("deadlock detected")
		calls := 0
		err := ColumnFallback{Optional: AttemptOptionalColumns}.Run(func([]string) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("same column reported twice stops", func(t *testing.T) {
		calls := 0
		err := ColumnFallback{Optional: AttemptOptionalColumns}.Run(func([]string) error {
			calls++
			return missing("meta")
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("bounded by the optional set", func(t *testing.T) {
		calls := 0
		optional := []string{"a", "b"}
		err := ColumnFallback{Optional: optional}.Run(func(omit []string) error {
			calls++
			return missing(optional[min(len(omit), len(optional)-1)])
		})
		assert.Error(t, err)
		assert.LessOrEqual(t, calls, len(optional)+1)
	})
}

func TestIsCapabilityMissing(t *testing.T) {
	assert.True(t, IsCapabilityMissing(&pgconn.PgError{Code: "42883"}))
	assert.True(t, IsCapabilityMissing(fmt.Errorf("rpc: %w", &pgconn.PgError{Code: "42P01"})))
	assert.True(t, IsCapabilityMissing(&pgconn.PgError{Code: "42501"}))
	assert.True(t, IsCapabilityMissing(errors.New("no such function: item_stats_apply")))
	assert.False(t, IsCapabilityMissing(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsCapabilityMissing(errors.New("timeout")))
	assert.False(t, IsCapabilityMissing(nil))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(fmt.Errorf("attempt 3: %w", ErrNotFound)))
	assert.False(t, IsNotFoundError(errors.New("other")))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
