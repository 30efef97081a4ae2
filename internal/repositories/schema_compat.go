package repositories

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store reacts to
const (
	pgUndefinedColumn   = "42703"
	pgUndefinedFunction = "42883"
	pgUndefinedTable    = "42P01"
	pgInsufficientPriv  = "42501"
)

var missingColumnPatterns = []*regexp.Regexp{
	// postgres: column "meta" of relation "exam_attempts" does not exist
	regexp.MustCompile(`column "?(?:\w+\.)?(\w+)"?(?: of relation "[^"]+")? does not exist`),
	// PostgREST schema cache
	regexp.MustCompile(`Could not find the '([^']+)' column`),
	// sqlite
	regexp.MustCompile(`has no column named (\w+)`),
	regexp.MustCompile(`no such column: (?:\w+\.)?(\w+)`),
}

// MissingColumnError is a store error caused by a column the deployed schema lacks.
type MissingColumnError struct {
	Column string
	Err    error
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q: %v", e.Column, e.Err)
}

func (e *MissingColumnError) Unwrap() error {
	return e.Err
}

// MissingColumn extracts the missing column name from a store error.
func MissingColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var mce *MissingColumnError
	if errors.As(err, &mce) {
		return mce.Column, true
	}

	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUndefinedColumn {
			return "", false
		}
		if pgErr.ColumnName != "" {
			return pgErr.ColumnName, true
		}
		msg = pgErr.Message
	}

	for _, p := range missingColumnPatterns {
		if m := p.FindStringSubmatch(msg); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// AsMissingColumn parses err once into a *MissingColumnError, or returns nil.
func AsMissingColumn(err error) *MissingColumnError {
	col, ok := MissingColumn(err)
	if !ok {
		return nil
	}
	return &MissingColumnError{Column: col, Err: err}
}

// IsCapabilityMissing reports errors meaning an optional table, function or grant is absent.
// Callers treat these as "feature not deployed" rather than a failure.
func IsCapabilityMissing(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedFunction, pgUndefinedTable, pgInsufficientPriv:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such function") || strings.Contains(msg, "no such table")
}

// ColumnFallback retries a write without the optional columns the schema turns out not to have.
type ColumnFallback struct {
	Optional []string
}

// Run calls fn with a growing omit list. It stops on success, on an error that is not a
// missing optional column, or after len(Optional)+1 tries.
func (f ColumnFallback) Run(fn func(omit []string) error) error {
	var omit []string
	var err error
	for try := 0; try <= len(f.Optional); try++ {
		err = fn(slices.Clone(omit))
		if err == nil {
			return nil
		}

		col, ok := MissingColumn(err)
		if !ok || !slices.Contains(f.Optional, col) || slices.Contains(omit, col) {
			return err
		}
		omit = append(omit, col)
	}
	return err
}

// Optional columns per table
var (
	AttemptOptionalColumns     = []string{"user_id", "is_deleted", "meta"}
	AttemptItemOptionalColumns = []string{"user_id", "p_correct"}
	AnonAttemptOptionalColumns = []string{"percentile"}
)
