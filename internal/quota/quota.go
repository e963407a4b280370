// Package quota maps account roles to subscription limits. The table is fixed
// for the process lifetime and consulted only at subscribe time.
package quota

import "github.com/alanyoungcy/pricerelay/internal/domain"

// Unlimited marks a role with no subscription cap.
const Unlimited = -1

var limits = map[domain.Role]int{
	domain.RoleAnonymous: 5,
	domain.RoleUser:      25,
	domain.RoleAdmin:     Unlimited,
}

// Limit returns the maximum subscription-set size for the given role. Unknown
// roles get the anonymous limit.
func Limit(role domain.Role) int {
	if l, ok := limits[role]; ok {
		return l
	}
	return limits[domain.RoleAnonymous]
}

// Allows reports whether a set of size current may grow by added symbols
// under the role's limit.
func Allows(role domain.Role, current, added int) bool {
	l := Limit(role)
	if l == Unlimited {
		return true
	}
	return current+added <= l
}
