package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/metrics"
	"github.com/sakif/foodlens/internal/model"
)

// RecipeService is the part of service.RecipeService the handlers need.
type RecipeService interface {
	Save(ctx context.Context, token string, recipe *model.Recipe) error
	List(ctx context.Context, token string) ([]model.Recipe, error)
	Update(ctx context.Context, token, title string, patch model.RecipePatch) error
	Delete(ctx context.Context, token, title string) error
}

// RecipeHandler serves the owner-scoped recipe endpoints. Every route sits
// behind auth.RequireBearer; the service verifies the token itself.
type RecipeHandler struct {
	svc     RecipeService
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewRecipeHandler creates a RecipeHandler.
func NewRecipeHandler(svc RecipeService, rec metrics.Recorder, logger *slog.Logger) *RecipeHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &RecipeHandler{svc: svc, metrics: rec, logger: logger}
}

// RecipeListResponse wraps the caller's recipes.
type RecipeListResponse struct {
	Recipes []model.Recipe `json:"recipes"`
}

type updateRecipeRequest struct {
	Title  string          `json:"title"`
	Note   *string         `json:"note"`
	Recipe json.RawMessage `json:"recipe"`
}

// HandleSave stores a recipe for the caller.
//
// HTTP: POST /save_recipe
// REQUEST BODY: any JSON object with a "title"; other fields are kept as-is.
func (h *RecipeHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	var recipe model.Recipe
	if err := decodeJSON(w, r, &recipe); err != nil {
		h.metrics.RecipeOperation("save", err)
		writeError(w, err)
		return
	}

	err := h.svc.Save(r.Context(), token, &recipe)
	h.metrics.RecipeOperation("save", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Recipe saved successfully"})
}

// HandleList returns the caller's recipes, newest first.
//
// HTTP: GET /my_recipes
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	recipes, err := h.svc.List(r.Context(), token)
	h.metrics.RecipeOperation("list", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, RecipeListResponse{Recipes: recipes})
}

// HandleUpdate changes the note and/or recipe body of one recipe.
//
// HTTP: POST /update_recipe
// REQUEST BODY: {"title": "Soup", "note": "less salt", "recipe": {...}}
func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	var req updateRecipeRequest
	err := decodeJSON(w, r, &req)
	if err == nil && strings.TrimSpace(req.Title) == "" {
		// The title addresses the recipe; without it the body is well-formed
		// but names nothing to update.
		err = apperror.Unprocessable("title", "title is required")
	}
	if err != nil {
		h.metrics.RecipeOperation("update", err)
		writeError(w, err)
		return
	}

	patch := model.RecipePatch{Note: req.Note, Content: req.Recipe}
	err = h.svc.Update(r.Context(), token, req.Title, patch)
	h.metrics.RecipeOperation("update", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Recipe updated successfully"})
}

// HandleDelete removes one recipe by title.
//
// HTTP: DELETE /delete_recipe?title=Soup
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	title := r.URL.Query().Get("title")
	if title == "" {
		err := apperror.ValidationFailed("title", "title is required")
		h.metrics.RecipeOperation("delete", err)
		writeError(w, err)
		return
	}

	err := h.svc.Delete(r.Context(), token, title)
	h.metrics.RecipeOperation("delete", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Recipe deleted successfully"})
}
