package domain

import "context"

// Role is the access tier of a downstream account. It decides the
// subscription quota applied to that account's connections.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a raw string to a known Role, defaulting to anonymous.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser:
		return RoleUser
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleAnonymous
	}
}

// Account identifies an authenticated downstream user.
type Account struct {
	ID   string
	Role Role
}

// Anonymous is the account assigned to connections without a valid credential.
var Anonymous = Account{Role: RoleAnonymous}

// CredentialResolver resolves a presented credential (bearer token or API key)
// to an account. Implementations return ErrUnauthorized when the credential
// cannot be verified; callers degrade to Anonymous rather than rejecting.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string) (Account, error)
}

// AccountStore looks up accounts in persistent storage.
type AccountStore interface {
	GetByAPIKey(ctx context.Context, apiKey string) (Account, error)
}
