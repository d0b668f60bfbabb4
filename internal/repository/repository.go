// Package repository declares the storage interfaces the services depend on.
// Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/foodlens/internal/model"
)

// IdentityRepository stores user accounts.
type IdentityRepository interface {
	// Create inserts a new identity and fills in ID and CreatedAt.
	// It returns apperror.ErrConflict if the email is taken.
	Create(ctx context.Context, identity *model.Identity) error
	// GetByEmail returns apperror.ErrNotFound if no identity has the email.
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
	// SetNameIfEmpty sets the display name only when it is currently empty.
	SetNameIfEmpty(ctx context.Context, email, name string) error
}

// RecipeRepository stores recipes. Every method is scoped by owner; there
// is deliberately no way to address a recipe without one.
type RecipeRepository interface {
	// Create returns apperror.ErrConflict if owner already has the title.
	Create(ctx context.Context, recipe *model.Recipe) error
	// ListByOwner returns the owner's recipes, newest first.
	ListByOwner(ctx context.Context, owner string) ([]model.Recipe, error)
	// Update applies the supplied fields of patch to (owner, title).
	// It returns apperror.ErrNotFound if nothing matched.
	Update(ctx context.Context, owner, title string, patch model.RecipePatch) error
	// Delete returns apperror.ErrNotFound if nothing matched.
	Delete(ctx context.Context, owner, title string) error
}
