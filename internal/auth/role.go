package auth

import (
	"strings"

	appErrors "github.com/fatali-fataliyev/expense_tracker/customErrors"
)

type Role string

const (
	RoleUser      Role = "ROLE_USER"
	RoleModerator Role = "ROLE_MODERATOR"
	RoleAdmin     Role = "ROLE_ADMIN"
)

// AllRoles is the seed set of the roles table.
var AllRoles = []Role{RoleUser, RoleModerator, RoleAdmin}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts "admin", "mod", "moderator", "user" in any case, with or
// without the ROLE_ prefix.
func ParseRole(name string) (Role, error) {
	normalized := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "ROLE_")
	switch normalized {
	case "USER":
		return RoleUser, nil
	case "MOD", "MODERATOR":
		return RoleModerator, nil
	case "ADMIN":
		return RoleAdmin, nil
	}
	return "", appErrors.ErrorResponse{
		Code:    appErrors.ErrRoleNotFound,
		Message: "Error: Role '" + name + "' is not found.",
	}
}
