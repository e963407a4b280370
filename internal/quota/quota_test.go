package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

func TestLimit(t *testing.T) {
	assert.Equal(t, 5, Limit(domain.RoleAnonymous))
	assert.Equal(t, 25, Limit(domain.RoleUser))
	assert.Equal(t, Unlimited, Limit(domain.RoleAdmin))
}

func TestLimit_UnknownRoleFallsBackToAnonymous(t *testing.T) {
	assert.Equal(t, 5, Limit(domain.Role("superuser")))
}

func TestAllows(t *testing.T) {
	assert.True(t, Allows(domain.RoleAnonymous, 2, 3))
	assert.False(t, Allows(domain.RoleAnonymous, 2, 4))
	assert.True(t, Allows(domain.RoleUser, 20, 5))
	assert.False(t, Allows(domain.RoleUser, 20, 6))
}

func TestAllows_AdminUnbounded(t *testing.T) {
	assert.True(t, Allows(domain.RoleAdmin, 100000, 500))
}
