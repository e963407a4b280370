package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

const testSecret = "test-secret"

func TestJWTResolver_RoundTrip(t *testing.T) {
	token, err := SignToken(testSecret, domain.Account{ID: "u-42", Role: domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	account, err := NewJWTResolver(testSecret).Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", account.ID)
	assert.Equal(t, domain.RoleUser, account.Role)
}

func TestJWTResolver_WrongSecret(t *testing.T) {
	token, err := SignToken(testSecret, domain.Account{ID: "u-42", Role: domain.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = NewJWTResolver("other-secret").Resolve(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestJWTResolver_Expired(t *testing.T) {
	token, err := SignToken(testSecret, domain.Account{ID: "u-42", Role: domain.RoleUser}, -time.Minute)
	require.NoError(t, err)

	_, err = NewJWTResolver(testSecret).Resolve(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestJWTResolver_Garbage(t *testing.T) {
	_, err := NewJWTResolver(testSecret).Resolve(context.Background(), "not.a.jwt")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestJWTResolver_UnknownRoleDowngrades(t *testing.T) {
	token, err := SignToken(testSecret, domain.Account{ID: "u-42", Role: domain.Role("superuser")}, time.Hour)
	require.NoError(t, err)

	account, err := NewJWTResolver(testSecret).Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAnonymous, account.Role)
}

type stubStore struct {
	accounts map[string]domain.Account
}

func (s stubStore) GetByAPIKey(_ context.Context, apiKey string) (domain.Account, error) {
	account, ok := s.accounts[apiKey]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func TestStoreResolver(t *testing.T) {
	r := NewStoreResolver(stubStore{accounts: map[string]domain.Account{
		"key-1": {ID: "acct-1", Role: domain.RoleAdmin},
	}})

	account, err := r.Resolve(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", account.ID)

	_, err = r.Resolve(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

type failResolver struct{ err error }

func (f failResolver) Resolve(context.Context, string) (domain.Account, error) {
	return domain.Account{}, f.err
}

func TestChain_FirstSuccessWins(t *testing.T) {
	token, err := SignToken(testSecret, domain.Account{ID: "u-7", Role: domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	chain := Chain{
		failResolver{err: errors.New("store down")},
		NewJWTResolver(testSecret),
	}

	account, err := chain.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", account.ID)
}

func TestChain_AllFail(t *testing.T) {
	chain := Chain{
		failResolver{err: domain.ErrUnauthorized},
		failResolver{err: errors.New("store down")},
	}

	_, err := chain.Resolve(context.Background(), "whatever")
	require.Error(t, err)
}

func TestChain_Empty(t *testing.T) {
	_, err := Chain{}.Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
