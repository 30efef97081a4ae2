package repositories

import (
	"context"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// UserRepository reads identities from the external provider; this service never owns users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
