// Package auth provides bearer token issuance and verification, password
// hashing, bearer extraction middleware and federated identity verification.
//
// TOKEN FORMAT:
// Tokens are JWTs (HEADER.PAYLOAD.SIGNATURE) carrying at least
//
//	{"sub": "<email>", "iat": 1700000000, "exp": 1700007200, "iss": "foodlens"}
//
// The server keeps no session state: a token is valid if its signature
// verifies against the configured secret, the issuer matches and exp is in
// the future.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of a token when no explicit ttl is given.
const DefaultTTL = 2 * time.Hour

// MinSecretLength is the shortest HMAC secret NewHMACSigner accepts.
const MinSecretLength = 16

// Claims is the decoded payload of a token.
//
// After Verify, numeric claims (iat, exp) hold float64 values, as produced by
// encoding/json.
type Claims map[string]any

// Subject returns the "sub" claim, or "" if it is absent or not a string.
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// ExpiresAt returns the "exp" claim as a time, or the zero time if absent.
func (c Claims) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Signer is the signing capability the token service depends on.
// Swapping HS256 for an asymmetric algorithm means providing another Signer;
// TokenService does not change.
type Signer interface {
	Method() jwt.SigningMethod
	SigningKey() any
	VerificationKey() any
}

// HMACSigner signs tokens with HS256 and a shared secret.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner returns an HS256 signer. The secret should be at least
// 32 bytes of random data in production, e.g. JWT_SECRET=$(openssl rand -hex 32).
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

func (s *HMACSigner) Method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (s *HMACSigner) SigningKey() any           { return s.secret }
func (s *HMACSigner) VerificationKey() any      { return s.secret }

// TokenService issues and verifies bearer tokens.
type TokenService struct {
	signer Signer
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the "iss" claim written on issue and required on verify.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now; used by tests to move across expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService around the given signer.
func NewTokenService(signer Signer, opts ...TokenOption) *TokenService {
	s := &TokenService{
		signer: signer,
		issuer: "foodlens",
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs claims plus iat, exp (= now + ttl) and iss.
// A ttl <= 0 uses the service default. Caller-supplied iat, exp and iss
// are overwritten. Claims must carry a non-empty string "sub"; Verify
// rejects tokens without one.
//
// exp is rounded up to the next whole second, since NumericDate drops the
// fraction and truncating would end the token before now + ttl.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject() == "" {
		return "", errors.New("auth: token subject must not be empty")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); !whole.Equal(exp) {
		exp = whole.Add(time.Second)
	}

	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(exp)
	if s.issuer != "" {
		mc["iss"] = s.issuer
	}

	token := jwt.NewWithClaims(s.signer.Method(), mc)
	signed, err := token.SignedString(s.signer.SigningKey())
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// IssueFor issues a default-lifetime token whose subject is the given email.
func (s *TokenService) IssueFor(subject string) (string, error) {
	return s.Issue(Claims{"sub": subject}, 0)
}

// Verify decodes a token and reports whether it is valid.
//
// Verify never returns an error. A malformed string, a bad signature, an
// unexpected algorithm, a wrong issuer, a missing subject and an expired or
// missing exp all yield (nil, false); callers treat every one of them as
// "unauthenticated".
func (s *TokenService) Verify(tokenStr string) (Claims, bool) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (s *TokenService) parse(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return nil, errors.New("auth: empty token")
	}

	opts := []jwt.ParserOption{
		// Pinning the algorithm rejects "none" and algorithm-confusion tokens.
		jwt.WithValidMethods([]string{s.signer.Method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return s.signer.VerificationKey(), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if sub, err := mc.GetSubject(); err != nil || sub == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return Claims(mc), nil
}
