package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcpmux/gateway/internal/model"
)

// AuthorizationCode is a short-lived PKCE authorization code issued by
// the inbound OAuth Authorization Server.
type AuthorizationCode struct {
	Code                string    `db:"code"`
	ClientID            string    `db:"client_id"`
	RedirectURI         string    `db:"redirect_uri"`
	Scope               string    `db:"scope"`
	CodeChallenge       string    `db:"code_challenge"`
	CodeChallengeMethod string    `db:"code_challenge_method"`
	ExpiresAt           time.Time `db:"expires_at"`
	Consumed            bool      `db:"consumed"`
	CreatedAt           time.Time `db:"created_at"`
}

func (s *Store) CreateAuthorizationCode(ctx context.Context, c AuthorizationCode) error {
	const q = `INSERT INTO oauth_authorization_codes
		(code, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, consumed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`
	_, err := s.db.ExecContext(ctx, q, c.Code, c.ClientID, c.RedirectURI, c.Scope,
		c.CodeChallenge, c.CodeChallengeMethod, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthorizationCode atomically marks a code consumed and returns
// its row, failing if it was already consumed or does not exist. This
// makes single-use a property of the UPDATE's affected-row count rather
// than a check-then-act race.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer rollback(tx)

	var row AuthorizationCode
	const sel = `SELECT code, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, consumed, created_at
		FROM oauth_authorization_codes WHERE code = $1`
	if err := tx.GetContext(ctx, &row, sel, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("authorization code: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get authorization code: %w", err)
	}
	if row.Consumed {
		return nil, fmt.Errorf("authorization code already used: %w", model.ErrInvalidArgument)
	}

	res, err := tx.ExecContext(ctx, `UPDATE oauth_authorization_codes SET consumed = 1 WHERE code = $1 AND consumed = 0`, code)
	if err != nil {
		return nil, fmt.Errorf("store: consume authorization code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("authorization code already used: %w", model.ErrInvalidArgument)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit authorization code consumption: %w", err)
	}
	return &row, nil
}

// RefreshToken is a hashed, revocable bearer refresh token.
type RefreshToken struct {
	TokenHash string    `db:"token_hash"`
	ClientID  string    `db:"client_id"`
	Scope     string    `db:"scope"`
	ExpiresAt time.Time `db:"expires_at"`
	Revoked   bool      `db:"revoked"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreateRefreshToken(ctx context.Context, t RefreshToken) error {
	const q = `INSERT INTO oauth_refresh_tokens (token_hash, client_id, scope, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`
	_, err := s.db.ExecContext(ctx, q, t.TokenHash, t.ClientID, t.Scope, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	const q = `SELECT token_hash, client_id, scope, expires_at, revoked, created_at
		FROM oauth_refresh_tokens WHERE token_hash = $1`
	var t RefreshToken
	if err := s.db.GetContext(ctx, &t, q, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get refresh token: %w", err)
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const q = `UPDATE oauth_refresh_tokens SET revoked = 1 WHERE token_hash = $1`
	_, err := s.db.ExecContext(ctx, q, tokenHash)
	if err != nil {
		return fmt.Errorf("store: revoke refresh token: %w", err)
	}
	return nil
}
