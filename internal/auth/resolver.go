// ABOUTME: IdentityResolver turns connection credentials into a member ID
// ABOUTME: TokenResolver verifies JWTs; InsecureResolver trusts the token for local development

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredentials is returned when a request carries no token at all.
var ErrNoCredentials = errors.New("no credentials")

// Credentials are what a client presents when opening a connection.
type Credentials struct {
	Token string
}

// IdentityResolver resolves credentials to the authenticated member ID.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, creds Credentials) (string, error)
}

// TokenResolver resolves credentials by verifying a signed token.
type TokenResolver struct {
	verifier TokenVerifier
}

// NewTokenResolver creates a resolver backed by verifier.
func NewTokenResolver(verifier TokenVerifier) *TokenResolver {
	return &TokenResolver{verifier: verifier}
}

// ResolveIdentity verifies the token and returns its subject.
func (r *TokenResolver) ResolveIdentity(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token == "" {
		return "", ErrNoCredentials
	}
	return r.verifier.Verify(creds.Token)
}

// InsecureResolver treats the token itself as the member ID.
// Only for local development when no jwt_secret is configured.
type InsecureResolver struct{}

// ResolveIdentity returns the raw token as the member ID.
func (InsecureResolver) ResolveIdentity(ctx context.Context, creds Credentials) (string, error) {
	id := strings.TrimSpace(creds.Token)
	if id == "" {
		return "", ErrNoCredentials
	}
	return id, nil
}

// CredentialsFromRequest extracts credentials from the Authorization header,
// falling back to the access_token query parameter that browser websocket
// clients use because they cannot set headers.
func CredentialsFromRequest(r *http.Request) (Credentials, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, errMsg := extractBearerToken(header)
		if errMsg != "" {
			return Credentials{}, errors.New(errMsg)
		}
		return Credentials{Token: token}, nil
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return Credentials{Token: token}, nil
	}
	return Credentials{}, ErrNoCredentials
}

var (
	_ IdentityResolver = (*TokenResolver)(nil)
	_ IdentityResolver = InsecureResolver{}
)
