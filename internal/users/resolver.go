package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

// Lookup reads a user record.
type Lookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Resolver maps an identity to its role.
type Resolver struct {
	users Lookup
}

// NewResolver creates a role resolver over the user store.
func NewResolver(users Lookup) *Resolver {
	return &Resolver{users: users}
}

// ResolveRole returns the stored role, or student when the record or its role is missing.
func (r *Resolver) ResolveRole(ctx context.Context, id uuid.UUID) (models.Role, error) {
	u, err := r.users.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return models.RoleStudent, nil
	}
	if err != nil {
		return "", err
	}
	if !u.Role.Valid() {
		return models.RoleStudent, nil
	}
	return u.Role, nil
}
