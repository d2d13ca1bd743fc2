// Package auth provides the client attestation gate. In hardened
// deployments every mutating operation checks the gate before writing to
// the shared tree; in permissive/local mode the check is bypassed.
package auth

import (
	"fmt"
	"net/url"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Attestor answers whether a client has passed identity verification.
type Attestor interface {
	Verified() bool
}

// Permissive is the local-development attestor: always verified.
type Permissive struct{}

func (Permissive) Verified() bool { return true }

// TokenAttestor is verified once a token validates against the provider's
// JWKS. It starts unverified.
type TokenAttestor struct {
	baseURL  string
	verified bool
	userID   string
}

// NewTokenAttestor returns an unverified attestor for the given auth
// provider base URL.
func NewTokenAttestor(baseURL string) *TokenAttestor {
	return &TokenAttestor{baseURL: baseURL}
}

func (a *TokenAttestor) Verified() bool { return a.verified }

// UserID returns the subject of the validated token, or "".
func (a *TokenAttestor) UserID() string { return a.userID }

// Verify validates tokenString against the provider's JWKS and marks the
// attestor verified on success.
func (a *TokenAttestor) Verify(tokenString string) error {
	claims, err := validateToken(a.baseURL, tokenString)
	if err != nil {
		return err
	}
	a.verified = true
	a.userID = userIDFromClaims(claims)
	return nil
}

// validateToken validates a JWT using the provider's published JWKS and
// returns its claims.
func validateToken(baseURL, tokenString string) (jwt.MapClaims, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth base URL is not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth base URL: %w", err)
	}
	expectedIssuer := u.Scheme + "://" + u.Host

	jwks, err := keyfunc.NewDefault([]string{baseURL + "/.well-known/jwks.json"})
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, jwks.Keyfunc,
		jwt.WithIssuer(expectedIssuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func userIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}
