package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/mocks"
	"github.com/lorrc/service-desk-notifier/internal/core/services"
)

func TestRecipientResolver_ResolveAdmins(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by notification preference", func(t *testing.T) {
		personnel := mocks.NewMockPersonnelLookup()
		prefs := mocks.NewMockNotificationPreferences()
		r := services.NewRecipientResolver(personnel, prefs)

		personnel.On("ByBuildingAndAccess", ctx, "B1", domain.AdminMask()).
			Return([]string{"U2", "U3", "U2", ""}, nil)
		prefs.On("FilterEnabled", ctx, []string{"U2", "U3"}, domain.NotificationTickets).
			Return([]string{"U3"}, nil)

		ids, err := r.ResolveAdmins(ctx, "B1")

		require.NoError(t, err)
		assert.Equal(t, []string{"U3"}, ids)
		personnel.AssertExpectations(t)
		prefs.AssertExpectations(t)
	})

	t.Run("no admins skips preference lookup", func(t *testing.T) {
		personnel := mocks.NewMockPersonnelLookup()
		prefs := mocks.NewMockNotificationPreferences()
		r := services.NewRecipientResolver(personnel, prefs)

		personnel.On("ByBuildingAndAccess", ctx, "B1", domain.AdminMask()).Return(nil, nil)

		ids, err := r.ResolveAdmins(ctx, "B1")

		require.NoError(t, err)
		assert.Empty(t, ids)
		prefs.AssertNotCalled(t, "FilterEnabled", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("directory error is wrapped", func(t *testing.T) {
		personnel := mocks.NewMockPersonnelLookup()
		r := services.NewRecipientResolver(personnel, mocks.NewMockNotificationPreferences())

		cause := errors.New("timeout")
		personnel.On("ByBuildingAndAccess", ctx, "B1", domain.AdminMask()).Return(nil, cause)

		ids, err := r.ResolveAdmins(ctx, "B1")

		assert.Nil(t, ids)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "B1")
	})

	t.Run("preference error is wrapped", func(t *testing.T) {
		personnel := mocks.NewMockPersonnelLookup()
		prefs := mocks.NewMockNotificationPreferences()
		r := services.NewRecipientResolver(personnel, prefs)

		cause := errors.New("timeout")
		personnel.On("ByBuildingAndAccess", ctx, "B1", domain.AdminMask()).Return([]string{"U2"}, nil)
		prefs.On("FilterEnabled", ctx, []string{"U2"}, domain.NotificationTickets).Return(nil, cause)

		_, err := r.ResolveAdmins(ctx, "B1")

		assert.ErrorIs(t, err, cause)
	})
}

func TestRecipientResolver_ResolvePositionPersonnel(t *testing.T) {
	ctx := context.Background()
	personnel := mocks.NewMockPersonnelLookup()
	prefs := mocks.NewMockNotificationPreferences()
	r := services.NewRecipientResolver(personnel, prefs)

	personnel.On("ByPosition", ctx, "P1").Return([]string{"S1", "S2"}, nil)
	prefs.On("FilterEnabled", ctx, []string{"S1", "S2"}, domain.NotificationTickets).
		Return([]string{"S2", "S1", "S2"}, nil)

	ids, err := r.ResolvePositionPersonnel(ctx, "P1")

	require.NoError(t, err)
	assert.Equal(t, []string{"S2", "S1"}, ids)
	personnel.AssertNotCalled(t, "ByBuildingAndAccess", mock.Anything, mock.Anything, mock.Anything)
}
