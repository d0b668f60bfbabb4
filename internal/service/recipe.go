package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/model"
	"github.com/sakif/foodlens/internal/repository"
)

// MaxTitleLength bounds recipe titles.
const MaxTitleLength = 200

const (
	msgRecipeNotFound = "Recipe not found."
	msgNothingToApply = "No fields to update provided."
)

// RecipeService implements the owner-scoped recipe operations.
//
// Every method takes the raw bearer token and verifies it before touching
// storage. The owner passed to the repository is always the verified token
// subject, never anything from the request body.
type RecipeService struct {
	recipes repository.RecipeRepository
	tokens  TokenVerifier
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecipeService creates a RecipeService.
func NewRecipeService(recipes repository.RecipeRepository, tokens TokenVerifier, logger *slog.Logger) *RecipeService {
	return &RecipeService{
		recipes: recipes,
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}
}

// owner verifies the token and returns its subject.
func (s *RecipeService) owner(token string) (string, error) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return "", apperror.Forbidden(msgInvalidToken)
	}
	return claims.Subject(), nil
}

// Save stores a recipe for the caller. Owner and CreatedAt are stamped
// here; whatever the client sent for them is overwritten.
func (s *RecipeService) Save(ctx context.Context, token string, recipe *model.Recipe) error {
	owner, err := s.owner(token)
	if err != nil {
		return err
	}

	if recipe == nil {
		return apperror.ValidationFailed("recipe", "recipe body is required")
	}
	recipe.Title = strings.TrimSpace(recipe.Title)
	if recipe.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if len(recipe.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or fewer", MaxTitleLength))
	}

	recipe.Owner = owner
	recipe.CreatedAt = s.now().UTC()

	if err := s.recipes.Create(ctx, recipe); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: fmt.Sprintf("A recipe titled %q already exists.", recipe.Title),
				Field:   "title",
			}
		}
		return fmt.Errorf("service/recipe: creating recipe: %w", err)
	}

	s.logger.Debug("recipe saved", slog.String("recipeID", recipe.ID))
	return nil
}

// List returns the caller's recipes, newest first. It never returns
// another identity's recipes.
func (s *RecipeService) List(ctx context.Context, token string) ([]model.Recipe, error) {
	owner, err := s.owner(token)
	if err != nil {
		return nil, err
	}

	recipes, err := s.recipes.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("service/recipe: listing recipes: %w", err)
	}
	return recipes, nil
}

// Update applies patch to the caller's recipe with the given title.
// Checks run in order: token (Forbidden), patch content (Unprocessable),
// then existence (NotFound).
func (s *RecipeService) Update(ctx context.Context, token, title string, patch model.RecipePatch) error {
	owner, err := s.owner(token)
	if err != nil {
		return err
	}

	if patch.IsEmpty() {
		return apperror.Unprocessable("patch", msgNothingToApply)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}

	if err := s.recipes.Update(ctx, owner, title, patch); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &apperror.AppError{Err: apperror.ErrNotFound, Message: msgRecipeNotFound}
		}
		return fmt.Errorf("service/recipe: updating recipe: %w", err)
	}
	return nil
}

// Delete removes the caller's recipe with the given title.
func (s *RecipeService) Delete(ctx context.Context, token, title string) error {
	owner, err := s.owner(token)
	if err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}

	if err := s.recipes.Delete(ctx, owner, title); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &apperror.AppError{Err: apperror.ErrNotFound, Message: msgRecipeNotFound}
		}
		return fmt.Errorf("service/recipe: deleting recipe: %w", err)
	}
	return nil
}
