package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/repository"
)

var (
	// ErrTokenInvalid indicates an unknown or malformed bearer token.
	ErrTokenInvalid = errors.New("invalid bearer token")
	// ErrTokenExpired indicates a known token past its expiry.
	ErrTokenExpired = errors.New("bearer token expired")
)

type deviceKey struct{}

// TokenResolver resolves the device a bearer token was issued to.
type TokenResolver interface {
	ResolveDevice(ctx context.Context, token string) (string, error)
}

// DeviceFromContext returns the authenticated device id, if present.
func DeviceFromContext(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceKey{}).(string)
	return deviceID, ok
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" || token == auth {
				Unauthorized(w, "missing bearer token", false)
				return
			}

			deviceID, err := resolver.ResolveDevice(r.Context(), token)
			switch {
			case errors.Is(err, ErrTokenExpired):
				Unauthorized(w, "token expired", true)
				return
			case err != nil || deviceID == "":
				Unauthorized(w, "invalid bearer token", false)
				return
			}

			ctx := context.WithValue(r.Context(), deviceKey{}, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenStoreResolver resolves tokens through a TokenRepository.
type TokenStoreResolver struct {
	tokens repository.TokenRepository
	clock  clock.Clock
}

// NewTokenStoreResolver creates a resolver over tokens.
func NewTokenStoreResolver(tokens repository.TokenRepository, clk clock.Clock) *TokenStoreResolver {
	return &TokenStoreResolver{tokens: tokens, clock: clock.OrReal(clk)}
}

func (r *TokenStoreResolver) ResolveDevice(ctx context.Context, token string) (string, error) {
	tok, err := r.tokens.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("looking up token: %w", err)
	}
	if tok.ExpiresAt != 0 && tok.ExpiresAt <= clock.Millis(r.clock.Now()) {
		return "", ErrTokenExpired
	}
	return tok.DeviceID, nil
}
