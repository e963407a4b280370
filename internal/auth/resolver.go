// Package auth resolves client credentials to accounts. Credentials arrive as
// an opaque string (WebSocket query parameter or Authorization header); a
// resolver decides whether it is a signed token or a stored API key.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// Claims is the JWT payload issued for authenticated accounts.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256-signed tokens locally, without a store lookup.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve parses and verifies the token. Any parse or signature failure maps
// to domain.ErrUnauthorized so callers can degrade uniformly.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (domain.Account, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return domain.Account{}, domain.ErrUnauthorized
	}

	return domain.Account{
		ID:   claims.Subject,
		Role: domain.ParseRole(claims.Role),
	}, nil
}

// SignToken mints a token for an account. Used by the token admin endpoint
// and by tests.
func SignToken(secret string, account domain.Account, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// StoreResolver treats the credential as an API key and looks it up in the
// account store.
type StoreResolver struct {
	store domain.AccountStore
}

func NewStoreResolver(store domain.AccountStore) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(ctx context.Context, credential string) (domain.Account, error) {
	account, err := r.store.GetByAPIKey(ctx, credential)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return account, nil
}

// Chain tries each resolver in order and returns the first success.
type Chain []domain.CredentialResolver

func (c Chain) Resolve(ctx context.Context, credential string) (domain.Account, error) {
	var lastErr error = domain.ErrUnauthorized
	for _, r := range c {
		account, err := r.Resolve(ctx, credential)
		if err == nil {
			return account, nil
		}
		lastErr = err
	}
	return domain.Account{}, lastErr
}
