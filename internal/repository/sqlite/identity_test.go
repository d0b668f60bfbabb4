package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test its own fresh database, destroyed when the
// connection closes. t.Cleanup closes it even when the test fails.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestIdentity(t *testing.T, s *IdentityDB, email, hash, name string) *model.Identity {
	t.Helper()
	i := &model.Identity{Email: email, PasswordHash: hash, Name: name, Federated: hash == ""}
	if err := s.Create(context.Background(), i); err != nil {
		t.Fatalf("failed to create test identity: %v", err)
	}
	return i
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestIdentityCreate(t *testing.T) {
	s := newTestDB(t).Identities()

	i := &model.Identity{Email: "a@x.com", PasswordHash: "$2a$04$hash", Name: "Ann"}
	if err := s.Create(context.Background(), i); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if i.ID == "" {
		t.Error("Create() did not set ID")
	}
	if i.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}
}

func TestIdentityCreate_DuplicateEmail(t *testing.T) {
	s := newTestDB(t).Identities()
	createTestIdentity(t, s, "a@x.com", "$2a$04$hash", "")

	err := s.Create(context.Background(), &model.Identity{Email: "a@x.com", PasswordHash: "other"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestIdentityCreate_EmailIsCaseSensitive(t *testing.T) {
	s := newTestDB(t).Identities()
	createTestIdentity(t, s, "a@x.com", "$2a$04$hash", "")

	if err := s.Create(context.Background(), &model.Identity{Email: "A@x.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create() with different case error = %v, want nil", err)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestIdentityGetByEmail(t *testing.T) {
	s := newTestDB(t).Identities()
	created := createTestIdentity(t, s, "a@x.com", "$2a$04$hash", "Ann")

	got, err := s.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if got.PasswordHash != "$2a$04$hash" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if got.Name != "Ann" || got.Federated {
		t.Errorf("Name/Federated = %q/%v, want Ann/false", got.Name, got.Federated)
	}
}

func TestIdentityGetByEmail_Federated(t *testing.T) {
	s := newTestDB(t).Identities()
	createTestIdentity(t, s, "g@x.com", "", "")

	got, err := s.GetByEmail(context.Background(), "g@x.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.HasPassword() {
		t.Error("federated identity should have no password hash")
	}
	if !got.Federated {
		t.Error("Federated = false, want true")
	}
}

func TestIdentityGetByEmail_NotFound(t *testing.T) {
	s := newTestDB(t).Identities()

	_, err := s.GetByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestIdentitySetNameIfEmpty(t *testing.T) {
	s := newTestDB(t).Identities()
	ctx := context.Background()
	createTestIdentity(t, s, "empty@x.com", "", "")
	createTestIdentity(t, s, "named@x.com", "", "Original")

	for _, email := range []string{"empty@x.com", "named@x.com"} {
		if err := s.SetNameIfEmpty(ctx, email, "New"); err != nil {
			t.Fatalf("SetNameIfEmpty(%s) error = %v", email, err)
		}
	}

	got, _ := s.GetByEmail(ctx, "empty@x.com")
	if got.Name != "New" {
		t.Errorf("empty name: Name = %q, want New", got.Name)
	}
	got, _ = s.GetByEmail(ctx, "named@x.com")
	if got.Name != "Original" {
		t.Errorf("existing name: Name = %q, want Original", got.Name)
	}

	if err := s.SetNameIfEmpty(ctx, "nobody@x.com", "New"); err != nil {
		t.Errorf("SetNameIfEmpty(unknown) error = %v, want nil", err)
	}
}
