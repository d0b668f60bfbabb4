package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the OpenID Connect issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// GoogleProvider verifies Google ID tokens and drives the OAuth2
// authorization code flow.
//
// Flow:
//  1. GET /auth/google/login redirects the browser to AuthURL(state)
//  2. Google redirects back to the callback with ?code=...&state=...
//  3. Exchange swaps the code for tokens and verifies the returned id_token
//
// Single-page and mobile clients that already hold an ID token skip the
// redirect and post it to /google-auth, which calls VerifyAssertion.
type GoogleProvider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
}

// NewGoogleProvider discovers Google's OIDC configuration. It makes one
// HTTP request to the discovery document, so call it once at startup.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, callbackURL string) (*GoogleProvider, error) {
	if clientID == "" {
		return nil, errors.New("auth: google client id is required")
	}

	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering google provider: %w", err)
	}

	return NewGoogleProviderWithVerifier(
		provider.Verifier(&oidc.Config{ClientID: clientID}),
		&oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  callbackURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
	), nil
}

// NewGoogleProviderWithVerifier builds a provider from parts. Tests use it
// with a static key set and a local token endpoint.
func NewGoogleProviderWithVerifier(verifier *oidc.IDTokenVerifier, config *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{verifier: verifier, config: config}
}

// AuthURL returns the Google consent screen URL for the given state.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and verifies the
// id_token in the response.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (FederatedIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("auth: exchanging google code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return FederatedIdentity{}, fmt.Errorf("%w: token response has no id_token", ErrUnverifiedAssertion)
	}

	return p.verifyIDToken(ctx, rawIDToken)
}

// VerifyAssertion accepts only a signed ID token. Raw email/name pairs are
// rejected: with Google configured there is no reason to trust them.
func (p *GoogleProvider) VerifyAssertion(ctx context.Context, a FederatedAssertion) (FederatedIdentity, error) {
	if a.IDToken == "" {
		return FederatedIdentity{}, fmt.Errorf("%w: id token required", ErrUnverifiedAssertion)
	}
	return p.verifyIDToken(ctx, a.IDToken)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *GoogleProvider) verifyIDToken(ctx context.Context, raw string) (FederatedIdentity, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: %v", ErrUnverifiedAssertion, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: decoding claims: %v", ErrUnverifiedAssertion, err)
	}
	if claims.Email == "" {
		return FederatedIdentity{}, fmt.Errorf("%w: id token has no email", ErrUnverifiedAssertion)
	}
	// Google has sent email_verified both as a JSON bool and as a string.
	switch v := claims.EmailVerified.(type) {
	case bool:
		if !v {
			return FederatedIdentity{}, fmt.Errorf("%w: email not verified", ErrUnverifiedAssertion)
		}
	case string:
		if v != "true" {
			return FederatedIdentity{}, fmt.Errorf("%w: email not verified", ErrUnverifiedAssertion)
		}
	default:
		return FederatedIdentity{}, fmt.Errorf("%w: email not verified", ErrUnverifiedAssertion)
	}

	return FederatedIdentity{Email: claims.Email, Name: claims.Name}, nil
}

var _ FederatedVerifier = (*GoogleProvider)(nil)
