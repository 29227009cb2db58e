package vouchers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"ms-attendance/internal/models"
)

type MockVoucherStore struct {
	mock.Mock
}

func (m *MockVoucherStore) GetVoucherByID(ctx context.Context, id string) (*models.Voucher, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Voucher), args.Error(1)
}

func (m *MockVoucherStore) GetVoucherByIssueKey(ctx context.Context, key string) (*models.Voucher, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Voucher), args.Error(1)
}

func (m *MockVoucherStore) ListVouchersByIdentity(ctx context.Context, identity string) ([]models.Voucher, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Voucher), args.Error(1)
}

func (m *MockVoucherStore) ListVouchersByHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error) {
	args := m.Called(ctx, holder, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Voucher), args.Error(1)
}

func (m *MockVoucherStore) InsertVoucherIfAbsent(ctx context.Context, voucher *models.Voucher) (bool, error) {
	args := m.Called(ctx, voucher)
	return args.Bool(0), args.Error(1)
}

func (m *MockVoucherStore) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockIdentityStore) FindLegacy(ctx context.Context, externalID string) (*models.LegacyAttendee, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LegacyAttendee), args.Error(1)
}

type MockEventRegistry struct {
	mock.Mock
}

func (m *MockEventRegistry) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventRegistry) GetRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	args := m.Called(ctx, eventID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockEventRegistry) SetAttended(ctx context.Context, registration *models.Registration) error {
	args := m.Called(ctx, registration)
	return args.Error(0)
}

func (m *MockEventRegistry) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Registration), args.Error(1)
}

type MockIssuanceLock struct {
	mock.Mock
}

func (m *MockIssuanceLock) Acquire(ctx context.Context, eventID string) (string, bool, error) {
	args := m.Called(ctx, eventID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIssuanceLock) Release(ctx context.Context, eventID, token string) error {
	args := m.Called(ctx, eventID, token)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishRedemption(ctx context.Context, event models.VoucherRedeemedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingEmitter struct {
	events []models.VoucherRedeemedEvent
}

func (r *recordingEmitter) EmitRedemption(event models.VoucherRedeemedEvent) {
	r.events = append(r.events, event)
}
