package services

import (
	"context"
	"fmt"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// RecipientResolver computes who should hear about a ticket. It owns no
// state; every call reads the directory afresh.
type RecipientResolver struct {
	personnel   ports.PersonnelLookup
	preferences ports.NotificationPreferences
}

// NewRecipientResolver creates a new recipient resolver
func NewRecipientResolver(
	personnel ports.PersonnelLookup,
	preferences ports.NotificationPreferences,
) *RecipientResolver {
	return &RecipientResolver{
		personnel:   personnel,
		preferences: preferences,
	}
}

// ResolveAdmins returns the building's super admins and admins that have
// ticket notifications enabled.
func (r *RecipientResolver) ResolveAdmins(ctx context.Context, buildingID string) ([]string, error) {
	admins, err := r.personnel.ByBuildingAndAccess(ctx, buildingID, domain.AdminMask())
	if err != nil {
		return nil, fmt.Errorf("resolve admins of building %s: %w", buildingID, err)
	}
	return r.withTicketNotifications(ctx, admins)
}

// ResolvePositionPersonnel returns the staff assigned to a position that have
// ticket notifications enabled. Assignment implies authorization, so no
// access mask is checked.
func (r *RecipientResolver) ResolvePositionPersonnel(ctx context.Context, positionID string) ([]string, error) {
	staff, err := r.personnel.ByPosition(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("resolve personnel of position %s: %w", positionID, err)
	}
	return r.withTicketNotifications(ctx, staff)
}

func (r *RecipientResolver) withTicketNotifications(ctx context.Context, principalIDs []string) ([]string, error) {
	principalIDs = uniqueIDs(principalIDs)
	if len(principalIDs) == 0 {
		return nil, nil
	}

	enabled, err := r.preferences.FilterEnabled(ctx, principalIDs, domain.NotificationTickets)
	if err != nil {
		return nil, fmt.Errorf("filter notification preferences: %w", err)
	}
	return uniqueIDs(enabled), nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
