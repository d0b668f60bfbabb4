package handler_test

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/detector"
	"github.com/sakif/foodlens/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAuthService records its inputs and returns canned results.
type fakeAuthService struct {
	registerErr error

	loginToken string
	loginErr   error

	federatedToken string
	federatedErr   error

	identity *model.Identity
	whoErr   error

	gotEmail, gotPassword, gotName string
	gotAssertion                   auth.FederatedAssertion
	gotToken                       string
}

func (f *fakeAuthService) Register(_ context.Context, email, password, name string) error {
	f.gotEmail, f.gotPassword, f.gotName = email, password, name
	return f.registerErr
}

func (f *fakeAuthService) Login(_ context.Context, email, password string) (string, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.loginToken, f.loginErr
}

func (f *fakeAuthService) FederatedLogin(_ context.Context, email, name string) (string, error) {
	f.gotEmail, f.gotName = email, name
	return f.federatedToken, f.federatedErr
}

func (f *fakeAuthService) FederatedSignIn(_ context.Context, a auth.FederatedAssertion) (string, error) {
	f.gotAssertion = a
	return f.federatedToken, f.federatedErr
}

func (f *fakeAuthService) WhoAmI(_ context.Context, token string) (*model.Identity, error) {
	f.gotToken = token
	return f.identity, f.whoErr
}

type fakeGoogle struct {
	identity auth.FederatedIdentity
	err      error
	gotCode  string
}

func (g *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (g *fakeGoogle) Exchange(_ context.Context, code string) (auth.FederatedIdentity, error) {
	g.gotCode = code
	return g.identity, g.err
}

type fakeRecipeService struct {
	err     error
	recipes []model.Recipe

	gotToken  string
	gotRecipe *model.Recipe
	gotTitle  string
	gotPatch  model.RecipePatch
}

func (f *fakeRecipeService) Save(_ context.Context, token string, r *model.Recipe) error {
	f.gotToken, f.gotRecipe = token, r
	return f.err
}

func (f *fakeRecipeService) List(_ context.Context, token string) ([]model.Recipe, error) {
	f.gotToken = token
	return f.recipes, f.err
}

func (f *fakeRecipeService) Update(_ context.Context, token, title string, patch model.RecipePatch) error {
	f.gotToken, f.gotTitle, f.gotPatch = token, title, patch
	return f.err
}

func (f *fakeRecipeService) Delete(_ context.Context, token, title string) error {
	f.gotToken, f.gotTitle = token, title
	return f.err
}

type fakeDetector struct {
	detections []detector.Detection
	err        error
	gotBytes   []byte
}

func (d *fakeDetector) Detect(_ context.Context, r io.Reader) ([]detector.Detection, error) {
	d.gotBytes, _ = io.ReadAll(r)
	return d.detections, d.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
