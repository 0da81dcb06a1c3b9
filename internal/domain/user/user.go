package user

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Role represents a platform role carried by the identity token.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleSystem Role = "SYSTEM"
)

var ErrInvalidRole = errors.New("invalid role")

// SystemID identifies engine-internal callers such as the release sweep and payment webhooks.
var SystemID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   Role      `json:"role"`
}

// System returns the actor used for engine-triggered transitions.
func System() Actor {
	return Actor{UserID: SystemID, Role: RoleSystem}
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// String formats the actor for event and audit records.
func (a Actor) String() string {
	prefix := "user"
	switch a.Role {
	case RoleAdmin:
		prefix = "admin"
	case RoleSystem:
		prefix = "system"
	}
	return prefix + ":" + a.UserID.String()
}

// ParseRole normalizes a role claim. Only client-facing roles are accepted.
func ParseRole(v string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(v))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember, "":
		return RoleMember, nil
	default:
		return "", ErrInvalidRole
	}
}
