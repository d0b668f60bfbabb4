package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrUnverifiedAssertion is returned by a FederatedVerifier that cannot
// establish who the caller is.
var ErrUnverifiedAssertion = errors.New("auth: federated assertion could not be verified")

// FederatedAssertion is what a client presents to /google-auth: either an
// identity-provider ID token or, in the opt-in trusted mode, a raw
// email/name pair.
type FederatedAssertion struct {
	IDToken string
	Email   string
	Name    string
}

// FederatedIdentity is the verified result of a FederatedAssertion.
type FederatedIdentity struct {
	Email string
	Name  string
}

// FederatedVerifier turns an assertion into an identity or fails with an
// error wrapping ErrUnverifiedAssertion.
type FederatedVerifier interface {
	VerifyAssertion(ctx context.Context, a FederatedAssertion) (FederatedIdentity, error)
}

// TrustedClaimsVerifier accepts a raw email/name pair without any check.
//
// It reproduces the legacy /google-auth contract where the client is
// trusted to have validated the user out-of-band. Anyone can sign in as
// any email with it, so it is only wired when ALLOW_UNVERIFIED_FEDERATED
// is set.
type TrustedClaimsVerifier struct{}

func (TrustedClaimsVerifier) VerifyAssertion(_ context.Context, a FederatedAssertion) (FederatedIdentity, error) {
	if strings.TrimSpace(a.Email) == "" {
		return FederatedIdentity{}, ErrUnverifiedAssertion
	}
	return FederatedIdentity{Email: a.Email, Name: strings.TrimSpace(a.Name)}, nil
}

// DisabledVerifier rejects every assertion. Used when neither Google
// sign-in nor trusted mode is configured.
type DisabledVerifier struct{}

func (DisabledVerifier) VerifyAssertion(context.Context, FederatedAssertion) (FederatedIdentity, error) {
	return FederatedIdentity{}, ErrUnverifiedAssertion
}
