package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/model"
	"github.com/sakif/foodlens/internal/repository"
)

// compile-time check that *RecipeDB implements repository.RecipeRepository
var _ repository.RecipeRepository = (*RecipeDB)(nil)

// RecipeDB is the recipes table view of a DB.
//
// OWNER SCOPING:
// Every statement below has "owner = ?" in its WHERE clause. There is no
// query that addresses a recipe by title or id alone, so one user can never
// read or change another user's rows through this type.
type RecipeDB struct {
	conn *sql.DB
}

// Recipes returns the recipe repository backed by db.
func (db *DB) Recipes() *RecipeDB {
	return &RecipeDB{conn: db.conn}
}

// Create inserts a recipe. Owner and Title must already be set.
func (s *RecipeDB) Create(ctx context.Context, recipe *model.Recipe) error {
	recipe.ID = xid.New().String()
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = time.Now()
	}
	// Stored in UTC so the text form sorts chronologically.
	recipe.CreatedAt = recipe.CreatedAt.UTC()

	extra, err := encodeExtra(recipe.Extra)
	if err != nil {
		return fmt.Errorf("sqlite: encoding extra fields: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO recipes (id, owner, title, note, recipe, extra, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner, title) DO NOTHING`,
		recipe.ID,
		recipe.Owner,
		recipe.Title,
		recipe.Note,
		nullableJSON(recipe.Content),
		extra,
		recipe.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting recipe %q: %w", recipe.Title, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("recipe", recipe.Title)
	}

	return nil
}

// ListByOwner returns every recipe owned by owner, newest first. Recipes
// with the same created_at come back in reverse insertion order.
func (s *RecipeDB) ListByOwner(ctx context.Context, owner string) ([]model.Recipe, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, owner, title, note, recipe, extra, created_at
		 FROM recipes
		 WHERE owner = ?
		 ORDER BY created_at DESC, rowid DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]model.Recipe, 0)
	for rows.Next() {
		var (
			r       model.Recipe
			content sql.NullString
			extra   string
		)
		if err := rows.Scan(
			&r.ID, &r.Owner, &r.Title, &r.Note,
			&content, &extra, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		if content.Valid {
			r.Content = json.RawMessage(content.String)
		}
		if err := decodeExtra(extra, &r); err != nil {
			return nil, fmt.Errorf("sqlite: decoding extra fields of %s: %w", r.ID, err)
		}
		recipes = append(recipes, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipes: %w", err)
	}

	return recipes, nil
}

// Update applies the supplied fields of patch to the recipe (owner, title).
// RowsAffected() == 0 means no such recipe exists for this owner.
func (s *RecipeDB) Update(ctx context.Context, owner, title string, patch model.RecipePatch) error {
	var (
		sets []string
		args []any
	)
	if patch.HasNote() {
		sets = append(sets, "note = ?")
		args = append(args, *patch.Note)
	}
	if patch.HasContent() {
		sets = append(sets, "recipe = ?")
		args = append(args, string(patch.Content))
	}
	if len(sets) == 0 {
		return apperror.Unprocessable("patch", "No fields to update provided.")
	}
	args = append(args, owner, title)

	result, err := s.conn.ExecContext(ctx,
		`UPDATE recipes SET `+strings.Join(sets, ", ")+` WHERE owner = ? AND title = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating recipe %q: %w", title, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("recipe", title)
	}

	return nil
}

// Delete removes the recipe (owner, title).
func (s *RecipeDB) Delete(ctx context.Context, owner, title string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM recipes WHERE owner = ? AND title = ?`,
		owner, title,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %q: %w", title, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("recipe", title)
	}

	return nil
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}

func encodeExtra(extra map[string]json.RawMessage) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeExtra(raw string, r *model.Recipe) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(raw), &r.Extra)
}
