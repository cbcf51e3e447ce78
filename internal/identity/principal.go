package identity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role is the part a principal plays in the supply chain.
type Role string

const (
	RoleProducer    Role = "producer"
	RoleHandler     Role = "handler"
	RoleDistributor Role = "distributor"
	RoleRetailer    Role = "retailer"
	RoleAdmin       Role = "admin"
)

var roles = []Role{RoleProducer, RoleHandler, RoleDistributor, RoleRetailer, RoleAdmin}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Principal is an authenticated identity as carried by a session token.
type Principal struct {
	ID      string
	Role    Role
	Address common.Address
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
