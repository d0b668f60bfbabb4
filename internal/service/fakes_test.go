package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeIdentityRepo is an in-memory repository.IdentityRepository.
type fakeIdentityRepo struct {
	mu     sync.Mutex
	byMail map[string]*model.Identity
	nextID int
	// set to a non-nil error to simulate a database failure
	getErr error
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byMail: make(map[string]*model.Identity)}
}

func (f *fakeIdentityRepo) Create(_ context.Context, i *model.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byMail[i.Email]; ok {
		return apperror.Conflict("identity", i.Email)
	}
	f.nextID++
	i.ID = "identity-" + string(rune('0'+f.nextID))
	i.CreatedAt = time.Now()
	copied := *i
	f.byMail[i.Email] = &copied
	return nil
}

func (f *fakeIdentityRepo) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	i, ok := f.byMail[email]
	if !ok {
		return nil, apperror.NotFound("identity", email)
	}
	copied := *i
	return &copied, nil
}

func (f *fakeIdentityRepo) SetNameIfEmpty(_ context.Context, email, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.byMail[email]; ok && i.Name == "" {
		i.Name = name
	}
	return nil
}

// fakeRecipeRepo is an in-memory repository.RecipeRepository. calls counts
// every method invocation so tests can assert storage was never reached.
type fakeRecipeRepo struct {
	mu      sync.Mutex
	recipes []model.Recipe
	calls   int
	nextID  int
}

func (f *fakeRecipeRepo) Create(_ context.Context, r *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, existing := range f.recipes {
		if existing.Owner == r.Owner && existing.Title == r.Title {
			return apperror.Conflict("recipe", r.Title)
		}
	}
	f.nextID++
	r.ID = "recipe-" + string(rune('0'+f.nextID))
	f.recipes = append(f.recipes, *r)
	return nil
}

func (f *fakeRecipeRepo) ListByOwner(_ context.Context, owner string) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]model.Recipe, 0)
	for i := len(f.recipes) - 1; i >= 0; i-- {
		if f.recipes[i].Owner == owner {
			out = append(out, f.recipes[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (f *fakeRecipeRepo) Update(_ context.Context, owner, title string, p model.RecipePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for i := range f.recipes {
		r := &f.recipes[i]
		if r.Owner != owner || r.Title != title {
			continue
		}
		if p.HasNote() {
			r.Note = *p.Note
		}
		if p.HasContent() {
			r.Content = p.Content
		}
		return nil
	}
	return apperror.NotFound("recipe", title)
}

func (f *fakeRecipeRepo) Delete(_ context.Context, owner, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for i, r := range f.recipes {
		if r.Owner == owner && r.Title == title {
			f.recipes = append(f.recipes[:i], f.recipes[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound("recipe", title)
}

// fakeFederatedVerifier returns a fixed identity or error.
type fakeFederatedVerifier struct {
	identity auth.FederatedIdentity
	err      error
}

func (f fakeFederatedVerifier) VerifyAssertion(context.Context, auth.FederatedAssertion) (auth.FederatedIdentity, error) {
	return f.identity, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokens(t *testing.T, opts ...auth.TokenOption) *auth.TokenService {
	t.Helper()
	signer, err := auth.NewHMACSigner("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	return auth.NewTokenService(signer, opts...)
}

func newTestAuthService(t *testing.T, repo *fakeIdentityRepo, fed auth.FederatedVerifier) *AuthService {
	t.Helper()
	// bcrypt.MinCost keeps hashing fast in tests.
	return NewAuthService(repo, newTestTokens(t), auth.NewPasswordServiceWithCost(bcrypt.MinCost), fed, testLogger())
}
