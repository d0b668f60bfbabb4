package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/model"
	"github.com/sakif/foodlens/internal/repository"
)

// compile-time check that *IdentityDB implements repository.IdentityRepository
var _ repository.IdentityRepository = (*IdentityDB)(nil)

// IdentityDB is the identities table view of a DB.
type IdentityDB struct {
	conn *sql.DB
}

// Identities returns the identity repository backed by db.
func (db *DB) Identities() *IdentityDB {
	return &IdentityDB{conn: db.conn}
}

// Create inserts a new identity.
//
// ON CONFLICT DO NOTHING turns a duplicate email into "0 rows affected"
// instead of a driver-specific constraint error, so the check and the
// insert are one atomic statement.
func (s *IdentityDB) Create(ctx context.Context, identity *model.Identity) error {
	identity.ID = xid.New().String()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, name, federated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		identity.ID,
		identity.Email,
		sql.NullString{String: identity.PasswordHash, Valid: identity.PasswordHash != ""},
		identity.Name,
		identity.Federated,
		identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting identity %s: %w", identity.Email, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("identity", identity.Email)
	}

	return nil
}

// GetByEmail retrieves an identity by its exact email.
// Returns apperror.ErrNotFound if no identity exists with that email.
func (s *IdentityDB) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	var (
		i    model.Identity
		hash sql.NullString
	)

	err := s.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, federated, created_at
		 FROM identities WHERE email = ?`,
		email,
	).Scan(
		&i.ID,
		&i.Email,
		&hash,
		&i.Name,
		&i.Federated,
		&i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("identity", email)
		}
		return nil, fmt.Errorf("sqlite: getting identity %s: %w", email, err)
	}
	i.PasswordHash = hash.String

	return &i, nil
}

// SetNameIfEmpty fills in a display name. It is a no-op when the identity
// already has one, when name is empty, or when the email is unknown.
func (s *IdentityDB) SetNameIfEmpty(ctx context.Context, email, name string) error {
	if name == "" {
		return nil
	}

	_, err := s.conn.ExecContext(ctx,
		`UPDATE identities SET name = ? WHERE email = ? AND name = ''`,
		name, email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting name for %s: %w", email, err)
	}
	return nil
}
