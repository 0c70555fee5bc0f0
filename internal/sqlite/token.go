package sqlite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rpggio/skitimer/internal/repository"
)

// TokenRepository implements repository.TokenRepository for SQLite.
// Only sha256 hashes of tokens are stored.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Issue creates a random token for deviceID and returns it in clear text.
// expiresAt of 0 issues a token that never expires.
func (r *TokenRepository) Issue(ctx context.Context, deviceID string, expiresAt, now int64) (string, error) {
	if deviceID == "" {
		return "", repository.ErrInvalidInput
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, device_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		HashToken(token), deviceID, expiresAt, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Lookup returns the stored token record. Expiry is left to the caller.
func (r *TokenRepository) Lookup(ctx context.Context, token string) (*repository.Token, error) {
	var tok repository.Token
	err := r.db.QueryRowContext(ctx,
		`SELECT device_id, expires_at, created_at FROM api_tokens WHERE token_hash = ?`,
		HashToken(token),
	).Scan(&tok.DeviceID, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	return &tok, nil
}

// HashToken returns the hex sha256 of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
