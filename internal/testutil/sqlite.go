// Package testutil builds in-memory stores for package tests.
package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CurrentSchema is the attempt schema as deployed today.
var CurrentSchema = []string{
	`CREATE TABLE exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT,
		year TEXT NOT NULL,
		section TEXT NOT NULL,
		form TEXT NOT NULL,
		raw_score INTEGER,
		official_total INTEGER,
		standard_score REAL,
		percentile REAL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		deleted_at DATETIME,
		viewed_at DATETIME,
		meta TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE exam_attempt_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL REFERENCES exam_attempts(id),
		user_id TEXT,
		item_no INTEGER NOT NULL,
		my_answer INTEGER,
		correct_answer INTEGER,
		is_correct BOOLEAN,
		p_correct REAL
	)`,
	`CREATE TABLE exam_attempts_anon (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year TEXT NOT NULL,
		section TEXT NOT NULL,
		form TEXT NOT NULL,
		raw_score INTEGER,
		standard_score REAL,
		percentile REAL,
		created_at DATETIME
	)`,
	studentsTable,
}

// LegacySchema predates soft delete, view tracking, meta, per-item ownership and percentiles.
var LegacySchema = []string{
	`CREATE TABLE exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT,
		year TEXT NOT NULL,
		section TEXT NOT NULL,
		form TEXT NOT NULL,
		raw_score INTEGER,
		official_total INTEGER,
		standard_score REAL,
		percentile REAL,
		created_at DATETIME
	)`,
	`CREATE TABLE exam_attempt_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL REFERENCES exam_attempts(id),
		item_no INTEGER NOT NULL,
		my_answer INTEGER,
		correct_answer INTEGER,
		is_correct BOOLEAN
	)`,
	`CREATE TABLE exam_attempts_anon (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year TEXT NOT NULL,
		section TEXT NOT NULL,
		form TEXT NOT NULL,
		raw_score INTEGER,
		standard_score REAL,
		created_at DATETIME
	)`,
	studentsTable,
}

const studentsTable = `CREATE TABLE students (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	user_id TEXT,
	grade_level TEXT,
	grade_year INTEGER
)`

// NewSQLiteDB opens a private in-memory database and applies ddl. The pool is pinned to one
// connection so every statement sees the same memory database.
func NewSQLiteDB(t *testing.T, ddl []string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply ddl: %v", err)
		}
	}
	return db
}
