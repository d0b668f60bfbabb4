package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/handler"
	"github.com/sakif/foodlens/internal/model"
)

// serveWithBearer runs h behind RequireBearer with the given token.
func serveWithBearer(h http.HandlerFunc, req *http.Request, token string) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	auth.RequireBearer(h).ServeHTTP(rr, req)
	return rr
}

func TestRecipeHandler_Save(t *testing.T) {
	logger := testLogger()

	t.Run("passes token and body", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		body := `{"title":"Soup","note":"spicy","recipe":{"steps":["boil"]},"servings":4}`
		req := httptest.NewRequest(http.MethodPost, "/save_recipe", strings.NewReader(body))
		rr := serveWithBearer(h.HandleSave, req, "tok")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"msg":"Recipe saved successfully"}`, rr.Body.String())
		assert.Equal(t, "tok", svc.gotToken)
		require.NotNil(t, svc.gotRecipe)
		assert.Equal(t, "Soup", svc.gotRecipe.Title)
		assert.JSONEq(t, `{"steps":["boil"]}`, string(svc.gotRecipe.Content))
		assert.JSONEq(t, `4`, string(svc.gotRecipe.Extra["servings"]))
	})

	t.Run("non-object body", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/save_recipe", strings.NewReader(`["Soup"]`))
		rr := serveWithBearer(h.HandleSave, req, "tok")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, svc.gotRecipe)
	})

	t.Run("duplicate title", func(t *testing.T) {
		svc := &fakeRecipeService{err: apperror.Conflict("recipe", "Soup")}
		h := handler.NewRecipeHandler(svc, nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/save_recipe", strings.NewReader(`{"title":"Soup"}`))
		rr := serveWithBearer(h.HandleSave, req, "tok")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		svc := &fakeRecipeService{err: apperror.Forbidden("Invalid token")}
		h := handler.NewRecipeHandler(svc, nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/save_recipe", strings.NewReader(`{"title":"Soup"}`))
		rr := serveWithBearer(h.HandleSave, req, "garbage")

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestRecipeHandler_List(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := &fakeRecipeService{recipes: []model.Recipe{
		{ID: "r1", Owner: "a@x.com", Title: "Soup", CreatedAt: created},
	}}
	h := handler.NewRecipeHandler(svc, nil, testLogger())

	rr := serveWithBearer(h.HandleList, httptest.NewRequest(http.MethodGet, "/my_recipes", nil), "tok")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"recipes":[{
		"id":"r1",
		"user_email":"a@x.com",
		"title":"Soup",
		"created_at":"2024-05-01T10:00:00Z"
	}]}`, rr.Body.String())
}

func TestRecipeHandler_List_Empty(t *testing.T) {
	h := handler.NewRecipeHandler(&fakeRecipeService{recipes: []model.Recipe{}}, nil, testLogger())

	rr := serveWithBearer(h.HandleList, httptest.NewRequest(http.MethodGet, "/my_recipes", nil), "tok")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"recipes":[]}`, rr.Body.String())
}

func TestRecipeHandler_Update(t *testing.T) {
	logger := testLogger()

	t.Run("builds the patch", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		body := `{"title":"Soup","note":"less salt"}`
		rr := serveWithBearer(h.HandleUpdate, httptest.NewRequest(http.MethodPost, "/update_recipe", strings.NewReader(body)), "tok")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Soup", svc.gotTitle)
		require.NotNil(t, svc.gotPatch.Note)
		assert.Equal(t, "less salt", *svc.gotPatch.Note)
		assert.False(t, svc.gotPatch.HasContent())
	})

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty patch", apperror.Unprocessable("patch", "No fields to update provided."), http.StatusUnprocessableEntity},
		{"not found", apperror.NotFound("recipe", "Soup"), http.StatusNotFound},
		{"invalid token", apperror.Forbidden("Invalid token"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := handler.NewRecipeHandler(&fakeRecipeService{err: tc.err}, nil, logger)

			rr := serveWithBearer(h.HandleUpdate, httptest.NewRequest(http.MethodPost, "/update_recipe", strings.NewReader(`{"title":"Soup"}`)), "tok")

			assert.Equal(t, tc.status, rr.Code)
		})
	}

	t.Run("missing title", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		for _, body := range []string{`{"note":"x"}`, `{"title":"  ","note":"x"}`} {
			rr := serveWithBearer(h.HandleUpdate, httptest.NewRequest(http.MethodPost, "/update_recipe", strings.NewReader(body)), "tok")

			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
			assert.Contains(t, rr.Body.String(), "unprocessable_entity")
		}
		assert.Empty(t, svc.gotToken)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		rr := serveWithBearer(h.HandleUpdate, httptest.NewRequest(http.MethodPost, "/update_recipe", strings.NewReader(`{"title":`)), "tok")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, svc.gotToken)
	})
}

func TestRecipeHandler_Delete(t *testing.T) {
	logger := testLogger()

	t.Run("success", func(t *testing.T) {
		svc := &fakeRecipeService{}
		h := handler.NewRecipeHandler(svc, nil, logger)

		rr := serveWithBearer(h.HandleDelete, httptest.NewRequest(http.MethodDelete, "/delete_recipe?title=Tomato+Soup", nil), "tok")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Tomato Soup", svc.gotTitle)
		assert.JSONEq(t, `{"msg":"Recipe deleted successfully"}`, rr.Body.String())
	})

	t.Run("missing title", func(t *testing.T) {
		h := handler.NewRecipeHandler(&fakeRecipeService{}, nil, logger)

		rr := serveWithBearer(h.HandleDelete, httptest.NewRequest(http.MethodDelete, "/delete_recipe", nil), "tok")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not found", func(t *testing.T) {
		h := handler.NewRecipeHandler(&fakeRecipeService{err: apperror.NotFound("recipe", "Soup")}, nil, logger)

		rr := serveWithBearer(h.HandleDelete, httptest.NewRequest(http.MethodDelete, "/delete_recipe?title=Soup", nil), "tok")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
