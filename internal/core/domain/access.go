package domain

import (
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
)

// AccessMask is a bit-per-role access vector held by a principal for a
// building.
type AccessMask int64

// Role flags. A requirement built from several roles is satisfied by any one
// of them.
const (
	RoleSuperAdmin AccessMask = 1 << iota
	RoleAdmin
	RoleStaff
	RoleUser
)

// BuildMask ORs the given role flags into a single requirement.
func BuildMask(roles ...AccessMask) AccessMask {
	var mask AccessMask
	for _, role := range roles {
		mask |= role
	}
	return mask
}

// AdminMask is the requirement for building administration.
func AdminMask() AccessMask {
	return BuildMask(RoleSuperAdmin, RoleAdmin)
}

// AnyBitSet reports whether the context mask grants at least one of the
// required roles. Negative masks are rejected rather than evaluated.
func AnyBitSet(contextMask, requiredMask AccessMask) (bool, error) {
	if contextMask < 0 || requiredMask < 0 {
		return false, apperrors.ErrNegativeMask
	}
	return contextMask&requiredMask != 0, nil
}

// NotificationCategory is a bit-set over the kinds of notifications a user
// can opt into.
type NotificationCategory int64

const (
	NotificationTickets NotificationCategory = 1 << iota
	NotificationAnnouncements
	NotificationPolls
)
