package repositories

import "context"

// Repository groups the stores the grading service reads and writes
type Repository interface {
	// Attempt domain
	Attempt() AttemptRepository
	AnonAttempt() AnonAttemptRepository
	ItemStats() ItemStatsRepository

	// Student domain (read-only)
	Student() StudentRepository

	// User domain (identity provider, read-only)
	User() UserRepository

	// Static exam data
	ExamData() ExamDataRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
