// Package oauthserver hosts the gateway's own OAuth 2.1 authorization
// server for inbound MCP clients: RFC 7591 dynamic client registration,
// authorization-code + PKCE issuance, token exchange, refresh, and
// revocation. Built on golang-jwt/jwt/v5 for tokens, golang.org/x/time/rate
// for per-path limiting, and stdlib crypto for PKCE.
package oauthserver

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the JWT payload issued for access tokens.
type claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
}

// tokenIssuer signs and verifies access tokens with a process-wide HS256
// secret sourced from internal/collab.SecretProvider.
type tokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func newTokenIssuer(secret []byte, issuer string, ttl time.Duration) *tokenIssuer {
	return &tokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

func (t *tokenIssuer) issue(clientID, scope string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ClientID: clientID,
		Scope:    scope,
	})
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("oauthserver: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (t *tokenIssuer) verify(token string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("oauthserver: invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("oauthserver: invalid token")
	}
	return &c, nil
}
