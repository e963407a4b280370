package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// GetByAPIKey looks up the account owning an API key. It returns
// domain.ErrNotFound for unknown keys.
func (s *AccountStore) GetByAPIKey(ctx context.Context, apiKey string) (domain.Account, error) {
	const query = `
		SELECT id, role
		FROM accounts
		WHERE api_key = $1`

	var (
		account domain.Account
		role    string
	)
	err := s.pool.QueryRow(ctx, query, apiKey).Scan(&account.ID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account by api key: %w", err)
	}

	account.Role = domain.ParseRole(role)
	return account, nil
}

// Upsert inserts or updates an account. Used by provisioning tooling.
func (s *AccountStore) Upsert(ctx context.Context, account domain.Account, apiKey string) error {
	const query = `
		INSERT INTO accounts (id, api_key, role, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			api_key    = EXCLUDED.api_key,
			role       = EXCLUDED.role,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, account.ID, apiKey, string(account.Role))
	if err != nil {
		return fmt.Errorf("postgres: upsert account %s: %w", account.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
