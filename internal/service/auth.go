// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes to the database
//
// Services depend on small interfaces (repositories, token and password
// capabilities) rather than concrete types, so the tests in this package
// run against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/model"
	"github.com/sakif/foodlens/internal/repository"
)

// TokenIssuer issues a default-lifetime token for a subject.
type TokenIssuer interface {
	IssueFor(subject string) (string, error)
}

// TokenVerifier checks a bearer token. It never fails loudly: any problem
// with the token is reported as ok=false.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, bool)
}

// Tokens is the {sign, verify-sign} capability.
type Tokens interface {
	TokenIssuer
	TokenVerifier
}

// PasswordHasher is the {hash, verify-hash} capability.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// Messages shown to API clients. Login failures share one message so a
// caller cannot tell an unknown email from a wrong password.
const (
	msgUserExists         = "User already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid token"
	msgInvalidFederated   = "Could not verify federated identity"
)

// AuthService implements registration, password and federated login, and
// "who am I".
type AuthService struct {
	identities repository.IdentityRepository
	tokens     Tokens
	passwords  PasswordHasher
	federated  auth.FederatedVerifier
	logger     *slog.Logger
}

// NewAuthService wires an AuthService. federated may be nil, in which case
// every federated assertion is rejected.
func NewAuthService(
	identities repository.IdentityRepository,
	tokens Tokens,
	passwords PasswordHasher,
	federated auth.FederatedVerifier,
	logger *slog.Logger,
) *AuthService {
	if federated == nil {
		federated = auth.DisabledVerifier{}
	}
	return &AuthService{
		identities: identities,
		tokens:     tokens,
		passwords:  passwords,
		federated:  federated,
		logger:     logger,
	}
}

// Register creates a password identity. A second registration with the
// same email fails with apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, name string) error {
	// The email is the login key and is stored exactly as given, so Login
	// finds it with the same string.
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return apperror.ValidationFailed("password",
				fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
		}
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}

	identity := &model.Identity{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Federated:    false,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: msgUserExists, Field: "email"}
		}
		return fmt.Errorf("service/auth: creating identity: %w", err)
	}

	s.logger.Info("identity registered", slog.String("identityID", identity.ID))
	return nil
}

// Login checks a password and issues a token whose subject is the email.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized(msgInvalidCredentials)
		}
		return "", fmt.Errorf("service/auth: looking up identity: %w", err)
	}

	// Federated-only identities have no password to check against.
	if !identity.HasPassword() {
		return "", apperror.Unauthorized(msgInvalidCredentials)
	}

	if err := s.passwords.Verify(identity.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", apperror.Unauthorized(msgInvalidCredentials)
		}
		return "", fmt.Errorf("service/auth: verifying password for %s: %w", identity.ID, err)
	}

	token, err := s.tokens.IssueFor(identity.Email)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing token: %w", err)
	}
	return token, nil
}

// FederatedLogin signs in an identity asserted by an external provider.
// The first login creates a federated identity with no password; later
// logins only fill in a display name that is still empty. A token is
// always issued.
//
// The caller must already have verified the email. FederatedSignIn does
// that for HTTP clients.
func (s *AuthService) FederatedLogin(ctx context.Context, email, name string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	name = strings.TrimSpace(name)

	_, err := s.identities.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		identity := &model.Identity{Email: email, Name: name, Federated: true}
		err := s.identities.Create(ctx, identity)
		switch {
		case err == nil:
			s.logger.Info("federated identity created", slog.String("identityID", identity.ID))
		case errors.Is(err, apperror.ErrConflict):
			// Lost a race with a concurrent first login; the row exists now.
			if err := s.identities.SetNameIfEmpty(ctx, email, name); err != nil {
				return "", fmt.Errorf("service/auth: setting display name: %w", err)
			}
		default:
			return "", fmt.Errorf("service/auth: creating federated identity: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("service/auth: looking up identity: %w", err)
	default:
		if err := s.identities.SetNameIfEmpty(ctx, email, name); err != nil {
			return "", fmt.Errorf("service/auth: setting display name: %w", err)
		}
	}

	token, err := s.tokens.IssueFor(email)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing token: %w", err)
	}
	return token, nil
}

// FederatedSignIn verifies an assertion with the configured verifier and
// then calls FederatedLogin with the verified email and name.
func (s *AuthService) FederatedSignIn(ctx context.Context, assertion auth.FederatedAssertion) (string, error) {
	identity, err := s.federated.VerifyAssertion(ctx, assertion)
	if err != nil {
		if errors.Is(err, auth.ErrUnverifiedAssertion) {
			s.logger.Debug("federated assertion rejected", slog.String("error", err.Error()))
			return "", apperror.Unauthorized(msgInvalidFederated)
		}
		return "", fmt.Errorf("service/auth: verifying federated assertion: %w", err)
	}

	name := identity.Name
	if name == "" {
		name = assertion.Name
	}
	return s.FederatedLogin(ctx, identity.Email, name)
}

// WhoAmI returns the identity a token belongs to. An invalid token and a
// token for an identity that no longer exists both fail with Forbidden.
func (s *AuthService) WhoAmI(ctx context.Context, token string) (*model.Identity, error) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return nil, apperror.Forbidden(msgInvalidToken)
	}

	identity, err := s.identities.GetByEmail(ctx, claims.Subject())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden(msgInvalidToken)
		}
		return nil, fmt.Errorf("service/auth: looking up identity: %w", err)
	}
	return identity, nil
}
