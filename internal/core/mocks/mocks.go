package mocks

import (
	"context"
	"time"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

var (
	_ ports.PersonnelLookup         = (*MockPersonnelLookup)(nil)
	_ ports.NotificationPreferences = (*MockNotificationPreferences)(nil)
	_ ports.BuildingLookup          = (*MockBuildingLookup)(nil)
	_ ports.NotificationChannel     = (*MockNotificationChannel)(nil)
	_ ports.MetricsRecorder         = (*MockMetricsRecorder)(nil)
)

// MockPersonnelLookup is a mock implementation of ports.PersonnelLookup
type MockPersonnelLookup struct {
	mock.Mock
}

func NewMockPersonnelLookup() *MockPersonnelLookup {
	return &MockPersonnelLookup{}
}

func (m *MockPersonnelLookup) ByBuildingAndAccess(ctx context.Context, buildingID string, required domain.AccessMask) ([]string, error) {
	args := m.Called(ctx, buildingID, required)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPersonnelLookup) ByPosition(ctx context.Context, positionID string) ([]string, error) {
	args := m.Called(ctx, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockNotificationPreferences is a mock implementation of ports.NotificationPreferences
type MockNotificationPreferences struct {
	mock.Mock
}

func NewMockNotificationPreferences() *MockNotificationPreferences {
	return &MockNotificationPreferences{}
}

func (m *MockNotificationPreferences) FilterEnabled(ctx context.Context, principalIDs []string, category domain.NotificationCategory) ([]string, error) {
	args := m.Called(ctx, principalIDs, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockBuildingLookup is a mock implementation of ports.BuildingLookup
type MockBuildingLookup struct {
	mock.Mock
}

func NewMockBuildingLookup() *MockBuildingLookup {
	return &MockBuildingLookup{}
}

func (m *MockBuildingLookup) BuildingIDByApartment(ctx context.Context, apartmentID string) (string, error) {
	args := m.Called(ctx, apartmentID)
	return args.String(0), args.Error(1)
}

// MockNotificationChannel is a mock implementation of ports.NotificationChannel
type MockNotificationChannel struct {
	mock.Mock
}

func NewMockNotificationChannel() *MockNotificationChannel {
	return &MockNotificationChannel{}
}

func (m *MockNotificationChannel) Send(ctx context.Context, update domain.NotificationUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *MockNotificationChannel) Revoke(ctx context.Context, entityID string) error {
	args := m.Called(ctx, entityID)
	return args.Error(0)
}

// MockMetricsRecorder is a mock implementation of ports.MetricsRecorder.
// Tests usually only assert on the calls they care about; the rest can be
// allowed with .Maybe().
type MockMetricsRecorder struct {
	mock.Mock
}

func NewMockMetricsRecorder() *MockMetricsRecorder {
	return &MockMetricsRecorder{}
}

func (m *MockMetricsRecorder) EventReceived(operation domain.OperationKind) {
	m.Called(operation)
}

func (m *MockMetricsRecorder) EventHandled(operation domain.OperationKind, duration time.Duration) {
	m.Called(operation, duration)
}

func (m *MockMetricsRecorder) Reconnect() {
	m.Called()
}

func (m *MockMetricsRecorder) ClassificationFailure(reason string) {
	m.Called(reason)
}

func (m *MockMetricsRecorder) Delivery(updateType domain.UpdateType, err error) {
	m.Called(updateType, err)
}

func (m *MockMetricsRecorder) Revocation(err error) {
	m.Called(err)
}
